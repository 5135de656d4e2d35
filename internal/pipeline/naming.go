package pipeline

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Root folders and fixed path segments of the bucket layout.
const (
	AttachmentsFolder  = "attachments"
	ImagesFolder       = "images"
	ConcatenatedFolder = "concatenated_text"
	SummaryFolder      = "chatgpt_output"
	ReviewedFolder     = "claude_output"

	transcriptPrefix = "transcript_"
)

// ErrInvalidKey is returned when an object name does not have the
// rootFolder/[subpath/]baseName.ext shape.
var ErrInvalidKey = errors.New("invalid object key")

// ObjectKey is the decoded form of an object name:
// Root/Subpath[0]/.../Subpath[n]/Base.Ext
type ObjectKey struct {
	Root    string
	Subpath []string
	Base    string
	Ext     string
}

// ParseKey decodes an object name. Subpath is nil when the object sits
// directly under its root folder. The extension is everything after the
// last dot of the final segment.
func ParseKey(name string) (ObjectKey, error) {
	if name == "" || strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") {
		return ObjectKey{}, fmt.Errorf("%w: %q", ErrInvalidKey, name)
	}
	segs := strings.Split(name, "/")
	if len(segs) < 2 {
		return ObjectKey{}, fmt.Errorf("%w: %q has no root folder", ErrInvalidKey, name)
	}
	for _, seg := range segs {
		if seg == "" {
			return ObjectKey{}, fmt.Errorf("%w: %q has an empty segment", ErrInvalidKey, name)
		}
	}

	file := segs[len(segs)-1]
	dot := strings.LastIndex(file, ".")
	if dot <= 0 || dot == len(file)-1 {
		return ObjectKey{}, fmt.Errorf("%w: %q has no extension", ErrInvalidKey, name)
	}

	var sub []string
	if len(segs) > 2 {
		sub = append(sub, segs[1:len(segs)-1]...)
	}
	return ObjectKey{
		Root:    segs[0],
		Subpath: sub,
		Base:    file[:dot],
		Ext:     file[dot+1:],
	}, nil
}

// String encodes the key back into an object name.
func (k ObjectKey) String() string {
	return k.Dir() + "/" + k.Filename()
}

// Dir is the folder part of the key, without a trailing slash.
func (k ObjectKey) Dir() string {
	if len(k.Subpath) == 0 {
		return k.Root
	}
	return k.Root + "/" + strings.Join(k.Subpath, "/")
}

// Filename is Base.Ext.
func (k ObjectKey) Filename() string {
	return k.Base + "." + k.Ext
}

// HasExt reports whether the key's extension is one of exts, ignoring case.
func (k ObjectKey) HasExt(exts ...string) bool {
	for _, ext := range exts {
		if strings.EqualFold(k.Ext, ext) {
			return true
		}
	}
	return false
}

// inImages reports whether the key lives under attachments/images/<job>/.
func (k ObjectKey) inImages() bool {
	return k.Root == AttachmentsFolder && len(k.Subpath) >= 2 && k.Subpath[0] == ImagesFolder
}

// JobID recovers the originating upload's base name from any pipeline path.
// This positional extraction is the only notion of job identity, so two
// unrelated uploads sharing a base name resolve to the same job.
func JobID(name string) (string, bool) {
	k, err := ParseKey(name)
	if err != nil {
		return "", false
	}
	switch k.Root {
	case AttachmentsFolder:
		if len(k.Subpath) == 0 {
			return k.Base, true
		}
		if k.inImages() {
			return k.Subpath[1], true
		}
	case ConcatenatedFolder, SummaryFolder, ReviewedFolder:
		if len(k.Subpath) >= 1 {
			return k.Subpath[0], true
		}
	}
	return "", false
}

// PDFKey is where the convert stage publishes the PDF for an attachment.
func PDFKey(base string) string {
	return AttachmentsFolder + "/" + base + ".pdf"
}

// ImagesPrefix is the listing prefix holding every image and extracted text of a job.
func ImagesPrefix(job string) string {
	return AttachmentsFolder + "/" + ImagesFolder + "/" + job + "/"
}

// ImageKey names the rasterized page at zero-based index. Pages are grouped
// perFolder to a subfolder; both counters are one-based and at least two digits.
func ImageKey(job string, index, perFolder int) string {
	if perFolder <= 0 {
		perFolder = 10
	}
	return fmt.Sprintf("%ssubfolder_%02d/image_%02d.jpeg", ImagesPrefix(job), index/perFolder+1, index+1)
}

// ResponseKey names an extracted-text object in the image folder dir.
// The name embeds ts, so every call with a new time yields a new object.
func ResponseKey(dir string, ts time.Time) string {
	return fmt.Sprintf("%s/response_%d.txt", strings.TrimSuffix(dir, "/"), ts.UTC().UnixMilli())
}

// ConcatenatedKey is the fan-in output of the concatenate stage.
func ConcatenatedKey(job string) string {
	return ConcatenatedFolder + "/" + job + "/" + job + "_concatenated.txt"
}

// SummaryKey is the fan-in output of the summarize stage.
func SummaryKey(job string) string {
	return SummaryFolder + "/" + job + "/review_summary_" + job + ".html"
}

// TranscriptKey names the persisted transcript with number n.
func TranscriptKey(n int) string {
	return transcriptPrefix + strconv.Itoa(n) + ".json"
}

// TranscriptPrefix is the listing prefix of all transcript objects.
func TranscriptPrefix() string {
	return transcriptPrefix
}

// ParseTranscriptNumber extracts n from transcript_<n>.json.
func ParseTranscriptNumber(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, transcriptPrefix)
	if !ok {
		return 0, false
	}
	num, _, _ := strings.Cut(rest, ".")
	n, err := strconv.Atoi(num)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// RecipientFromKey finds the sender address embedded in a reviewed HTML
// name such as claude_output/<job>/review_jane@example.com_<job>.html.
func RecipientFromKey(name string) (string, bool) {
	k, err := ParseKey(name)
	if err != nil {
		return "", false
	}
	for _, part := range strings.Split(k.Base, "_") {
		at := strings.Index(part, "@")
		if at > 0 && at < len(part)-1 && strings.Contains(part[at:], ".") {
			return part, true
		}
	}
	return "", false
}

// CompareKeys orders object names so that runs of digits compare by value:
// subfolder_11 sorts before subfolder_100. Leading zeros do not matter.
func CompareKeys(a, b string) int {
	for a != "" && b != "" {
		if isDigit(a[0]) && isDigit(b[0]) {
			na, ra := digitRun(a)
			nb, rb := digitRun(b)
			if c := compareDigits(na, nb); c != 0 {
				return c
			}
			a, b = ra, rb
			continue
		}
		if a[0] != b[0] {
			if a[0] < b[0] {
				return -1
			}
			return 1
		}
		a, b = a[1:], b[1:]
	}
	return len(a) - len(b)
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }

func digitRun(s string) (string, string) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return s[:i], s[i:]
}

func compareDigits(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		return len(a) - len(b)
	}
	return strings.Compare(a, b)
}
