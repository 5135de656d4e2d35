package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/Lllllllleong/attachmentflow/internal/models"
	"github.com/Lllllllleong/attachmentflow/internal/openai"
	"github.com/Lllllllleong/attachmentflow/internal/pipeline"
)

// Completer answers a chat conversation under a system prompt.
type Completer interface {
	Complete(ctx context.Context, system string, messages []openai.Message) (string, error)
}

// SummarizeFunction asks a chat model for an HTML summary of all the text
// extracted for a job and publishes it under chatgpt_output/<job>/.
type SummarizeFunction struct {
	runner       *Runner
	completer    Completer
	systemPrompt string
}

func NewSummarizeFunction(runner *Runner, completer Completer, systemPrompt string) *SummarizeFunction {
	return &SummarizeFunction{runner: runner, completer: completer, systemPrompt: systemPrompt}
}

func (f *SummarizeFunction) Def() StageDef {
	return StageDef{Stage: pipeline.StageSummarize, Inputs: siblingText, Body: f.summarize}
}

// Process handles one storage event.
func (f *SummarizeFunction) Process(ctx context.Context, e models.GCSEvent) error {
	return f.runner.Run(ctx, f.Def(), e)
}

func (f *SummarizeFunction) summarize(ctx context.Context, inv *Invocation) ([]Output, error) {
	content, err := joinInputs(inv)
	if err != nil {
		return nil, err
	}
	// Extracted text may carry a UTF-8 byte order mark.
	text := strings.TrimSpace(string(bytes.ReplaceAll(content, []byte("\uFEFF"), nil)))
	if text == "" {
		return nil, fmt.Errorf("no extracted text to summarize for job %s", inv.JobID)
	}

	inv.Log.Info("Requesting summary.", "inputs", len(inv.Inputs), "chars", len(text))
	html, err := f.completer.Complete(ctx, f.systemPrompt, []openai.Message{{Role: "user", Content: text}})
	if err != nil {
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}

	return []Output{{
		Name:        pipeline.SummaryKey(inv.JobID),
		Data:        []byte(html),
		ContentType: "text/html; charset=utf-8",
	}}, nil
}
