package convert

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// LegacyProcessor converts formats pandoc cannot read (.doc, .xls).
type LegacyProcessor interface {
	Process(ctx context.Context, data []byte, mimeType string) ([]byte, error)
}

// CommandRunner runs an external program. Tests replace it.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// DocumentConverter turns uploaded office documents into PDF.
type DocumentConverter struct {
	PandocPath string
	Legacy     LegacyProcessor

	run      CommandRunner
	validate func([]byte) (int, error)
}

func NewDocumentConverter(pandocPath string, legacy LegacyProcessor) *DocumentConverter {
	if pandocPath == "" {
		pandocPath = "pandoc"
	}
	return &DocumentConverter{
		PandocPath: pandocPath,
		Legacy:     legacy,
		run:        execCommand,
		validate:   PageCount,
	}
}

// ConvertToPDF converts data according to ext (doc, docx or xls, without
// the dot) and checks that the result is a PDF with at least one page.
// Intermediate files go into dir, which the caller owns and removes.
func (c *DocumentConverter) ConvertToPDF(ctx context.Context, data []byte, ext, dir string) ([]byte, error) {
	var (
		pdf []byte
		err error
	)
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "docx":
		pdf, err = c.docxToPDF(ctx, data, dir)
	case "doc", "xls":
		if c.Legacy == nil {
			return nil, fmt.Errorf("no converter configured for .%s", ext)
		}
		pdf, err = c.Legacy.Process(ctx, data, "application/octet-stream")
	default:
		return nil, fmt.Errorf("unsupported extension %q", ext)
	}
	if err != nil {
		return nil, err
	}

	pages, err := c.validate(pdf)
	if err != nil {
		return nil, fmt.Errorf("converted output is not a valid PDF: %w", err)
	}
	if pages == 0 {
		return nil, fmt.Errorf("converted PDF has no pages")
	}
	return pdf, nil
}

func (c *DocumentConverter) docxToPDF(ctx context.Context, data []byte, dir string) ([]byte, error) {
	if dir == "" {
		return nil, fmt.Errorf("no working directory for pandoc")
	}
	paragraphs, err := DocxParagraphs(data)
	if err != nil {
		return nil, err
	}

	sanitized := filepath.Join(dir, "sanitized.html")
	if err := os.WriteFile(sanitized, SanitizedHTML(paragraphs), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write sanitized document: %w", err)
	}
	out := filepath.Join(dir, "output.pdf")
	if output, err := c.run(ctx, c.PandocPath, sanitized, "-f", "html", "-o", out); err != nil {
		return nil, fmt.Errorf("pandoc failed: %w: %s", err, strings.TrimSpace(string(output)))
	}
	pdf, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("pandoc produced no output: %w", err)
	}
	return pdf, nil
}

func relaxedConfig() *model.Configuration {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}

// PageCount validates a PDF in memory and returns its page count.
func PageCount(pdf []byte) (int, error) {
	return api.PageCount(bytes.NewReader(pdf), relaxedConfig())
}

// OptimizePDF rewrites inPath to outPath, validating it on the way.
func OptimizePDF(inPath, outPath string) error {
	return api.OptimizeFile(inPath, outPath, relaxedConfig())
}

// PrepareForRaster optimizes the PDF at src into dir and returns the path
// to rasterize plus its page count. Optimization failures are not fatal:
// the renderer gets the original file.
func PrepareForRaster(src, dir string) (string, int, error) {
	optimized := filepath.Join(dir, "optimized.pdf")
	target := optimized
	if err := OptimizePDF(src, optimized); err != nil {
		slog.Warn("PDF optimization failed, rasterizing original.", "path", src, "error", err)
		target = src
	}
	pages, err := api.PageCountFile(target)
	if err != nil {
		return "", 0, fmt.Errorf("failed to get page count: %w", err)
	}
	return target, pages, nil
}
