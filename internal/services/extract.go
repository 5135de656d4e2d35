package services

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/Lllllllleong/attachmentflow/internal/convert"
	"github.com/Lllllllleong/attachmentflow/internal/models"
	"github.com/Lllllllleong/attachmentflow/internal/pipeline"
)

// TextExtractor reads the text out of an ordered set of page images.
type TextExtractor interface {
	ExtractText(ctx context.Context, images [][]byte, systemPrompt, userPrompt string) (string, error)
}

// Prompts are the instructions handed to a model alongside its input.
type Prompts struct {
	System string
	User   string
}

// ExtractFunction writes response_<ts>.txt next to each page image. The
// timestamped name means a redelivered event adds a second response
// rather than replacing the first.
type ExtractFunction struct {
	runner    *Runner
	extractor TextExtractor
	prompts   Prompts
	quality   int
}

func NewExtractFunction(runner *Runner, extractor TextExtractor, prompts Prompts, jpegQuality int) *ExtractFunction {
	if jpegQuality <= 0 {
		jpegQuality = 90
	}
	return &ExtractFunction{runner: runner, extractor: extractor, prompts: prompts, quality: jpegQuality}
}

func (f *ExtractFunction) Def() StageDef {
	return StageDef{Stage: pipeline.StageExtractText, Body: f.extract}
}

// Process handles one storage event.
func (f *ExtractFunction) Process(ctx context.Context, e models.GCSEvent) error {
	return f.runner.Run(ctx, f.Def(), e)
}

func (f *ExtractFunction) extract(ctx context.Context, inv *Invocation) ([]Output, error) {
	key, err := pipeline.ParseKey(inv.Object)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(inv.Inputs[0].Path)
	if err != nil {
		return nil, Wrap(ErrFetch, inv.Stage.String(), "read staged input", err)
	}
	img, err := convert.ResizeJPEG(data, convert.MaxVisionEdge, f.quality)
	if err != nil {
		return nil, err
	}

	inv.Log.Info("Extracting text from image.", "bytes", len(img))
	text, err := f.extractor.ExtractText(ctx, [][]byte{img}, f.prompts.System, f.prompts.User)
	if err != nil {
		return nil, fmt.Errorf("failed to extract text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		inv.Log.Warn("No text extracted. Treating as empty page.")
	}

	return []Output{{
		Name:        pipeline.ResponseKey(key.Dir(), f.runner.now()),
		Data:        []byte(text),
		ContentType: "text/plain; charset=utf-8",
	}}, nil
}
