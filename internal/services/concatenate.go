package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/Lllllllleong/attachmentflow/internal/blob"
	"github.com/Lllllllleong/attachmentflow/internal/models"
	"github.com/Lllllllleong/attachmentflow/internal/pipeline"
)

const textSeparator = "\n\n"

// siblingText lists every extracted-text object of the trigger's job in
// key order, with numeric path parts compared by value. The trigger itself is always part of the result.
func siblingText(ctx context.Context, store blob.Store, trigger string) ([]string, error) {
	job, ok := pipeline.JobID(trigger)
	if !ok {
		return nil, fmt.Errorf("no job identity in %q", trigger)
	}
	names, err := store.List(ctx, pipeline.ImagesPrefix(job))
	if err != nil {
		return nil, err
	}

	var text []string
	seen := false
	for _, name := range names {
		k, err := pipeline.ParseKey(name)
		if err != nil || !k.HasExt("txt") {
			continue
		}
		if name == trigger {
			seen = true
		}
		text = append(text, name)
	}
	if !seen {
		text = append(text, trigger)
	}
	slices.SortFunc(text, pipeline.CompareKeys)
	return text, nil
}

// joinInputs reads the staged files in order, each followed by a blank line.
func joinInputs(inv *Invocation) ([]byte, error) {
	var buf bytes.Buffer
	for _, in := range inv.Inputs {
		data, err := os.ReadFile(in.Path)
		if err != nil {
			return nil, Wrap(ErrFetch, inv.Stage.String(), "read "+in.Name, err)
		}
		buf.Write(data)
		buf.WriteString(textSeparator)
	}
	return buf.Bytes(), nil
}

// ConcatenateFunction rebuilds concatenated_text/<job>/<job>_concatenated.txt
// from every extracted-text sibling each time one arrives.
type ConcatenateFunction struct {
	runner *Runner
}

func NewConcatenateFunction(runner *Runner) *ConcatenateFunction {
	return &ConcatenateFunction{runner: runner}
}

func (f *ConcatenateFunction) Def() StageDef {
	return StageDef{Stage: pipeline.StageConcatenate, Inputs: siblingText, Body: f.concatenate}
}

// Process handles one storage event.
func (f *ConcatenateFunction) Process(ctx context.Context, e models.GCSEvent) error {
	return f.runner.Run(ctx, f.Def(), e)
}

func (f *ConcatenateFunction) concatenate(ctx context.Context, inv *Invocation) ([]Output, error) {
	for _, in := range inv.Inputs {
		inv.Log.Debug("Concatenating text object.", "object", in.Name)
	}
	content, err := joinInputs(inv)
	if err != nil {
		return nil, err
	}
	inv.Log.Info("Concatenated text objects.", "count", len(inv.Inputs))
	return []Output{{
		Name:        pipeline.ConcatenatedKey(inv.JobID),
		Data:        content,
		ContentType: "text/plain; charset=utf-8",
	}}, nil
}
