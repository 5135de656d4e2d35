package services

import (
	"context"
	"fmt"
	"os"

	"github.com/Lllllllleong/attachmentflow/internal/models"
	"github.com/Lllllllleong/attachmentflow/internal/pipeline"
)

// DocumentConverter turns an office document into PDF bytes.
type DocumentConverter interface {
	ConvertToPDF(ctx context.Context, data []byte, ext, dir string) ([]byte, error)
}

// ConvertFunction publishes attachments/<base>.pdf for an uploaded
// .doc, .docx or .xls and retires the upload.
type ConvertFunction struct {
	runner    *Runner
	converter DocumentConverter
}

func NewConvertFunction(runner *Runner, converter DocumentConverter) *ConvertFunction {
	return &ConvertFunction{runner: runner, converter: converter}
}

func (f *ConvertFunction) Def() StageDef {
	return StageDef{Stage: pipeline.StageConvertPDF, Body: f.convert}
}

// Process handles one storage event.
func (f *ConvertFunction) Process(ctx context.Context, e models.GCSEvent) error {
	return f.runner.Run(ctx, f.Def(), e)
}

func (f *ConvertFunction) convert(ctx context.Context, inv *Invocation) ([]Output, error) {
	key, err := pipeline.ParseKey(inv.Object)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(inv.Inputs[0].Path)
	if err != nil {
		return nil, Wrap(ErrFetch, inv.Stage.String(), "read staged input", err)
	}

	inv.Log.Info("Converting document to PDF.", "ext", key.Ext, "bytes", len(data))
	pdf, err := f.converter.ConvertToPDF(ctx, data, key.Ext, inv.Workspace.Dir())
	if err != nil {
		return nil, fmt.Errorf("failed to convert %s: %w", key.Filename(), err)
	}

	return []Output{{
		Name:        pipeline.PDFKey(key.Base),
		Data:        pdf,
		ContentType: "application/pdf",
	}}, nil
}
