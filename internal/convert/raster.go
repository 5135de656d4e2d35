package convert

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"

	"github.com/gen2brain/go-fitz"
)

// FitzRasterizer renders PDF pages with MuPDF.
type FitzRasterizer struct {
	Quality int
}

func NewFitzRasterizer(quality int) *FitzRasterizer {
	if quality <= 0 || quality > 100 {
		quality = 90
	}
	return &FitzRasterizer{Quality: quality}
}

// Rasterize renders every page of the PDF at pdfPath at dpi and returns the
// JPEG bytes in page order.
func (r *FitzRasterizer) Rasterize(ctx context.Context, pdfPath string, dpi int) ([][]byte, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}

	pages := make([][]byte, 0, pageCount)
	for n := 0; n < pageCount; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := doc.ImageDPI(n, float64(dpi))
		if err != nil {
			return nil, fmt.Errorf("failed to render page %d: %w", n+1, err)
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: r.Quality}); err != nil {
			return nil, fmt.Errorf("failed to encode page %d as JPEG: %w", n+1, err)
		}
		pages = append(pages, buf.Bytes())
	}
	return pages, nil
}
