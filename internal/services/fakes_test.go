package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Lllllllleong/attachmentflow/internal/blob"
	"github.com/Lllllllleong/attachmentflow/internal/events"
	"github.com/Lllllllleong/attachmentflow/internal/ledger"
	"github.com/Lllllllleong/attachmentflow/internal/mail"
	"github.com/Lllllllleong/attachmentflow/internal/models"
	"github.com/Lllllllleong/attachmentflow/internal/openai"
	"github.com/stretchr/testify/require"
)

type recordingLedger struct {
	mu      sync.Mutex
	entries []ledger.Entry
}

func (l *recordingLedger) Record(_ context.Context, e ledger.Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	return nil
}

func (l *recordingLedger) statuses() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e.Status)
	}
	return out
}

type recordingEvents struct {
	mu     sync.Mutex
	events []events.StageEvent
}

func (p *recordingEvents) Publish(_ context.Context, e events.StageEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

// failingPutStore rejects writes to one object name and delegates the rest.
type failingPutStore struct {
	*blob.MemoryStore
	fail string
}

func (s *failingPutStore) Put(ctx context.Context, name string, r io.Reader, contentType string) error {
	if name == s.fail {
		return errors.New("upload quota exceeded")
	}
	return s.MemoryStore.Put(ctx, name, r, contentType)
}

type harness struct {
	store  *blob.MemoryStore
	ledger *recordingLedger
	events *recordingEvents
	root   string
	runner *Runner
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:  blob.NewMemoryStore(),
		ledger: &recordingLedger{},
		events: &recordingEvents{},
		root:   t.TempDir(),
	}
	h.runner = NewRunner(RunnerConfig{
		Store:         h.store,
		Ledger:        h.ledger,
		Events:        h.events,
		WorkspaceRoot: h.root,
	})
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	h.runner.now = func() time.Time {
		clock = clock.Add(time.Millisecond)
		return clock
	}
	return h
}

// failPutsOn makes the runner's uploads of name fail.
func (h *harness) failPutsOn(name string) {
	h.runner.store = &failingPutStore{MemoryStore: h.store, fail: name}
}

func (h *harness) assertNoResidue(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(h.root)
	require.NoError(t, err)
	require.Empty(t, entries, "workspace root should be empty after the invocation")
}

func event(name string) models.GCSEvent {
	return models.GCSEvent{Bucket: "test-bucket", Name: name}
}

func tinyJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

type fakeConverter struct {
	pdf   []byte
	err   error
	calls int
	exts  []string
	dirs  []string
}

func (c *fakeConverter) ConvertToPDF(_ context.Context, _ []byte, ext, dir string) ([]byte, error) {
	c.calls++
	c.exts = append(c.exts, ext)
	c.dirs = append(c.dirs, dir)
	return c.pdf, c.err
}

type fakeRasterizer struct {
	pages [][]byte
	err   error
}

func (r *fakeRasterizer) Rasterize(_ context.Context, _ string, _ int) ([][]byte, error) {
	return r.pages, r.err
}

func passthroughPrepare(pages int) func(string, string) (string, int, error) {
	return func(src, _ string) (string, int, error) { return src, pages, nil }
}

type fakeExtractor struct {
	mu     sync.Mutex
	calls  int
	images []int
	err    error
}

func (e *fakeExtractor) ExtractText(_ context.Context, images [][]byte, _, _ string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return "", e.err
	}
	e.calls++
	e.images = append(e.images, len(images))
	return fmt.Sprintf("page %d", e.calls), nil
}

type fakeCompleter struct {
	system   string
	messages []openai.Message
	reply    string
	err      error
}

func (c *fakeCompleter) Complete(_ context.Context, system string, messages []openai.Message) (string, error) {
	c.system = system
	c.messages = messages
	return c.reply, c.err
}

type fakeSender struct {
	sent []mail.Message
	err  error
}

func (s *fakeSender) Send(_ context.Context, m mail.Message) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.sent = append(s.sent, m)
	return fmt.Sprintf("msg-%d", len(s.sent)), nil
}
