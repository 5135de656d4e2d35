package convert

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildDocx(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

const sampleDocument = `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Patient: Zoë</w:t></w:r><w:r><w:t xml:space="preserve"> — follow up</w:t></w:r></w:p>
    <w:p></w:p>
    <w:p><w:r><w:t>Dose &lt; 5mg</w:t></w:r></w:p>
  </w:body>
</w:document>`

func TestSanitize(t *testing.T) {
	assert.Equal(t, "Zo.", Sanitize("Zoë"))
	assert.Equal(t, "a.b", Sanitize("a—b"))
	assert.Equal(t, "plain ascii\t!", Sanitize("plain ascii\t!"))
}

func TestDocxParagraphs(t *testing.T) {
	paras, err := DocxParagraphs(buildDocx(t, sampleDocument))
	require.NoError(t, err)
	assert.Equal(t, []string{"Patient: Zoë — follow up", "", "Dose < 5mg"}, paras)
}

func TestDocxParagraphs_Invalid(t *testing.T) {
	_, err := DocxParagraphs([]byte("not a zip"))
	assert.ErrorIs(t, err, ErrInvalidDocx)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, _ = zw.Create("other.xml")
	require.NoError(t, zw.Close())
	_, err = DocxParagraphs(buf.Bytes())
	assert.ErrorIs(t, err, ErrInvalidDocx)
}

func TestSanitizedHTML(t *testing.T) {
	out := string(SanitizedHTML([]string{"Zoë <b>", ""}))
	assert.Contains(t, out, "<p>Zo. &lt;b&gt;</p>")
	assert.Contains(t, out, "<p></p>")
}

type fakeLegacy struct {
	out []byte
	err error
	got []byte
}

func (f *fakeLegacy) Process(_ context.Context, data []byte, _ string) ([]byte, error) {
	f.got = data
	return f.out, f.err
}

func TestDocumentConverter_Docx(t *testing.T) {
	c := NewDocumentConverter("pandoc", nil)
	dir := t.TempDir()
	var gotArgs []string
	c.run = func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotArgs = append([]string{name}, args...)
		html, err := os.ReadFile(args[0])
		require.NoError(t, err)
		assert.Contains(t, string(html), "Patient: Zo. . follow up")
		return nil, os.WriteFile(args[len(args)-1], []byte("%PDF-fake"), 0o644)
	}
	c.validate = func([]byte) (int, error) { return 1, nil }

	pdf, err := c.ConvertToPDF(context.Background(), buildDocx(t, sampleDocument), "DOCX", dir)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-fake", string(pdf))
	assert.Equal(t, "pandoc", gotArgs[0])
	assert.Equal(t, []string{"-f", "html", "-o"}, gotArgs[2:5])
	assert.Equal(t, dir, filepath.Dir(gotArgs[1]), "pandoc input is staged in the caller's directory")
	assert.Equal(t, dir, filepath.Dir(gotArgs[5]), "pandoc output is staged in the caller's directory")
}

func TestDocumentConverter_DocxNeedsDirectory(t *testing.T) {
	c := NewDocumentConverter("pandoc", nil)
	c.run = func(context.Context, string, ...string) ([]byte, error) {
		t.Fatal("pandoc must not run without a working directory")
		return nil, nil
	}
	_, err := c.ConvertToPDF(context.Background(), buildDocx(t, sampleDocument), "docx", "")
	assert.Error(t, err)
}

func TestDocumentConverter_PandocFailure(t *testing.T) {
	c := NewDocumentConverter("pandoc", nil)
	c.run = func(context.Context, string, ...string) ([]byte, error) {
		return []byte("pdflatex not found"), errors.New("exit status 43")
	}
	_, err := c.ConvertToPDF(context.Background(), buildDocx(t, sampleDocument), "docx", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdflatex not found")
}

func TestDocumentConverter_Legacy(t *testing.T) {
	legacy := &fakeLegacy{out: []byte("%PDF-legacy")}
	c := NewDocumentConverter("", legacy)
	c.validate = func([]byte) (int, error) { return 3, nil }

	pdf, err := c.ConvertToPDF(context.Background(), []byte("xls bytes"), "xls", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "%PDF-legacy", string(pdf))
	assert.Equal(t, "xls bytes", string(legacy.got))
}

func TestDocumentConverter_RejectsInvalidOutput(t *testing.T) {
	c := NewDocumentConverter("", &fakeLegacy{out: []byte("garbage")})

	_, err := c.ConvertToPDF(context.Background(), []byte("doc"), "doc", t.TempDir())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "not a valid PDF"))

	_, err = c.ConvertToPDF(context.Background(), []byte("x"), "pptx", t.TempDir())
	assert.Error(t, err)
}

func solidJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 10, B: 10, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func TestResizeJPEG(t *testing.T) {
	small := solidJPEG(t, 100, 50)
	out, err := ResizeJPEG(small, MaxVisionEdge, 90)
	require.NoError(t, err)
	assert.Equal(t, small, out)

	large := solidJPEG(t, 2000, 1000)
	out, err = ResizeJPEG(large, MaxVisionEdge, 90)
	require.NoError(t, err)
	cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 1568, cfg.Width)
	assert.Equal(t, 784, cfg.Height)

	_, err = ResizeJPEG([]byte("nope"), MaxVisionEdge, 90)
	assert.Error(t, err)
}

func TestFitWithin_Portrait(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1000, 3136))
	got := FitWithin(img, 1568)
	assert.Equal(t, 500, got.Bounds().Dx())
	assert.Equal(t, 1568, got.Bounds().Dy())
}
