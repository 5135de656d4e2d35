package services

import (
	"context"
	"fmt"
	"os"

	"github.com/Lllllllleong/attachmentflow/internal/convert"
	"github.com/Lllllllleong/attachmentflow/internal/models"
	"github.com/Lllllllleong/attachmentflow/internal/pipeline"
)

// Rasterizer renders every page of a local PDF as an encoded JPEG.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdfPath string, dpi int) ([][]byte, error)
}

// RasterizeConfig holds the rendering settings.
type RasterizeConfig struct {
	DPI             int
	ImagesPerFolder int
}

// RasterizeFunction splits attachments/<base>.pdf into page images under
// attachments/images/<base>/.
type RasterizeFunction struct {
	runner     *Runner
	rasterizer Rasterizer
	config     RasterizeConfig

	// prepare optimizes the PDF and counts its pages.
	prepare func(src, dir string) (string, int, error)
}

func NewRasterizeFunction(runner *Runner, rasterizer Rasterizer, cfg RasterizeConfig) *RasterizeFunction {
	if cfg.DPI <= 0 {
		cfg.DPI = 200
	}
	if cfg.ImagesPerFolder <= 0 {
		cfg.ImagesPerFolder = 10
	}
	return &RasterizeFunction{
		runner:     runner,
		rasterizer: rasterizer,
		config:     cfg,
		prepare:    convert.PrepareForRaster,
	}
}

func (f *RasterizeFunction) Def() StageDef {
	return StageDef{Stage: pipeline.StageRasterize, Body: f.rasterize}
}

// Process handles one storage event.
func (f *RasterizeFunction) Process(ctx context.Context, e models.GCSEvent) error {
	return f.runner.Run(ctx, f.Def(), e)
}

func (f *RasterizeFunction) rasterize(ctx context.Context, inv *Invocation) ([]Output, error) {
	target, pages, err := f.prepare(inv.Inputs[0].Path, inv.Workspace.Dir())
	if err != nil {
		return nil, err
	}
	inv.Log.Info("PDF validated.", "pageCount", pages, "dpi", f.config.DPI)

	images, err := f.rasterizer.Rasterize(ctx, target, f.config.DPI)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("rasterizer produced no images for %s", inv.Object)
	}
	if len(images) != pages {
		inv.Log.Warn("Rendered image count differs from page count.", "images", len(images), "pageCount", pages)
	}

	outputs := make([]Output, 0, len(images))
	for i, img := range images {
		local := inv.Workspace.Path(fmt.Sprintf("image_%04d.jpeg", i+1))
		if err := os.WriteFile(local, img, 0o600); err != nil {
			return nil, fmt.Errorf("failed to write page %d: %w", i+1, err)
		}
		outputs = append(outputs, Output{
			Name:        pipeline.ImageKey(inv.JobID, i, f.config.ImagesPerFolder),
			Path:        local,
			ContentType: "image/jpeg",
		})
	}
	return outputs, nil
}
