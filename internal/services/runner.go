package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/Lllllllleong/attachmentflow/internal/blob"
	"github.com/Lllllllleong/attachmentflow/internal/events"
	"github.com/Lllllllleong/attachmentflow/internal/ledger"
	"github.com/Lllllllleong/attachmentflow/internal/models"
	"github.com/Lllllllleong/attachmentflow/internal/pipeline"
	"github.com/Lllllllleong/attachmentflow/internal/workspace"
	"golang.org/x/sync/errgroup"
)

const publishConcurrency = 10

// StagedFile is a downloaded input inside the invocation workspace.
type StagedFile struct {
	Name string // object key
	Path string // local file
}

// Output is one object a stage body wants published. Either Path (a file
// inside the workspace) or Data is set.
type Output struct {
	Name        string
	Path        string
	Data        []byte
	ContentType string
}

func (o Output) open() (io.ReadCloser, error) {
	if o.Path != "" {
		return os.Open(o.Path)
	}
	return io.NopCloser(bytes.NewReader(o.Data)), nil
}

// Invocation is what a stage body sees: the trigger, its staged inputs and
// a private workspace.
type Invocation struct {
	Stage     pipeline.Stage
	Object    string
	JobID     string
	Inputs    []StagedFile
	Workspace *workspace.Workspace
	Log       *slog.Logger
}

// Body performs a stage's conversion and returns what to publish.
type Body func(ctx context.Context, inv *Invocation) ([]Output, error)

// InputLister returns the object names to stage for a trigger, trigger
// included. Fan-in stages use it to collect every sibling of the job.
type InputLister func(ctx context.Context, store blob.Store, trigger string) ([]string, error)

// StageDef binds a stage tag to its body.
type StageDef struct {
	Stage  pipeline.Stage
	Inputs InputLister
	Body   Body
}

// RunnerConfig holds the collaborators shared by every stage.
type RunnerConfig struct {
	Store         blob.Store
	Ledger        ledger.Recorder
	Events        events.Publisher
	WorkspaceRoot string
}

// Runner drives one stage through
// received → staged → converted → published → retired|preserved.
type Runner struct {
	store         blob.Store
	ledger        ledger.Recorder
	events        events.Publisher
	workspaceRoot string
	now           func() time.Time
}

func NewRunner(cfg RunnerConfig) *Runner {
	r := &Runner{
		store:         cfg.Store,
		ledger:        cfg.Ledger,
		events:        cfg.Events,
		workspaceRoot: cfg.WorkspaceRoot,
		now:           time.Now,
	}
	if r.ledger == nil {
		r.ledger = ledger.Nop{}
	}
	if r.events == nil {
		r.events = events.Nop{}
	}
	return r
}

// Run handles one storage event. Objects that do not route to def.Stage
// return nil without touching the store.
func (r *Runner) Run(ctx context.Context, def StageDef, e models.GCSEvent) error {
	stage := def.Stage.String()
	logCtx := slog.With("stage", stage, "gcsBucket", e.Bucket, "gcsObject", e.Name)

	if !pipeline.Matches(def.Stage, e.Name) {
		logCtx.Debug("Object does not route to this stage. Skipping.")
		return nil
	}

	jobID, _ := pipeline.JobID(e.Name)
	logCtx = logCtx.With("jobId", jobID)
	logCtx.Info("Processing new GCS object.")
	r.record(ctx, logCtx, ledger.Entry{JobID: jobID, Stage: stage, Object: e.Name, Status: models.StatusReceived})

	var published []string
	err := workspace.Run(ctx, r.workspaceRoot, jobID, func(ctx context.Context, ws *workspace.Workspace) error {
		logCtx.Debug("Created workspace.", "path", ws.Dir())

		inputs, err := r.stage(ctx, def, e.Name, ws)
		if err != nil {
			return err
		}
		inv := &Invocation{
			Stage:     def.Stage,
			Object:    e.Name,
			JobID:     jobID,
			Inputs:    inputs,
			Workspace: ws,
			Log:       logCtx,
		}

		outputs, err := def.Body(ctx, inv)
		if err != nil {
			if Kind(err) == nil {
				err = Wrap(ErrConvert, stage, "convert", err)
			}
			return err
		}

		if published, err = r.publish(ctx, logCtx, def.Stage, outputs); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return r.handleError(ctx, logCtx, def.Stage, jobID, e.Name, err)
	}

	r.retire(ctx, logCtx, def.Stage, e.Name)

	r.record(ctx, logCtx, ledger.Entry{JobID: jobID, Stage: stage, Object: e.Name, Status: models.StatusPublished, Outputs: published})
	r.announce(ctx, logCtx, events.StageEvent{
		Stage:   stage,
		Outcome: events.OutcomePublished,
		Object:  e.Name,
		JobID:   jobID,
		Outputs: published,
	})
	logCtx.Info("Stage complete.", "outputs", len(published))
	return nil
}

// stage downloads the trigger, or every object the stage's lister names,
// into the workspace.
func (r *Runner) stage(ctx context.Context, def StageDef, trigger string, ws *workspace.Workspace) ([]StagedFile, error) {
	names := []string{trigger}
	if def.Inputs != nil {
		listed, err := def.Inputs(ctx, r.store, trigger)
		if err != nil {
			return nil, Wrap(ErrFetch, def.Stage.String(), "list inputs", err)
		}
		names = listed
	}

	staged := make([]StagedFile, 0, len(names))
	for i, name := range names {
		local := ws.Path(fmt.Sprintf("in_%04d_%s", i, path.Base(name)))
		if err := r.download(ctx, name, local); err != nil {
			return nil, Wrap(ErrFetch, def.Stage.String(), "download "+name, err)
		}
		staged = append(staged, StagedFile{Name: name, Path: local})
	}
	return staged, nil
}

func (r *Runner) download(ctx context.Context, name, destPath string) error {
	localFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file at %s: %w", destPath, err)
	}
	defer localFile.Close()
	return r.store.Download(ctx, name, localFile)
}

// publish validates every output against the transition table before
// writing any of them, then uploads them with bounded concurrency.
func (r *Runner) publish(ctx context.Context, logCtx *slog.Logger, stage pipeline.Stage, outputs []Output) ([]string, error) {
	names := make([]string, 0, len(outputs))
	for _, out := range outputs {
		if err := pipeline.ValidateOutput(stage, out.Name); err != nil {
			return nil, Wrap(ErrPublish, stage.String(), "validate", err)
		}
		names = append(names, out.Name)
	}
	if len(outputs) == 0 {
		return nil, nil
	}

	logCtx.Info("Publishing outputs.", "count", len(outputs))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(publishConcurrency)
	for _, out := range outputs {
		eg.Go(func() error {
			rc, err := out.open()
			if err != nil {
				return fmt.Errorf("%s: %w", out.Name, err)
			}
			defer rc.Close()
			if err := r.store.Put(gctx, out.Name, rc, out.ContentType); err != nil {
				return fmt.Errorf("%s: %w", out.Name, err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, Wrap(ErrPublish, stage.String(), "upload", err)
	}
	return names, nil
}

// retire applies the stage's input policy. A failed delete leaves the input
// in place, which downstream stages tolerate.
func (r *Runner) retire(ctx context.Context, logCtx *slog.Logger, stage pipeline.Stage, trigger string) {
	if !stage.DeletesInput() {
		logCtx.Debug("Input preserved.")
		return
	}
	if err := r.store.Delete(ctx, trigger); err != nil && !errors.Is(err, blob.ErrNotFound) {
		logCtx.Warn("Failed to retire input object.", "error", Wrap(ErrSecondary, stage.String(), "delete input", err))
		return
	}
	logCtx.Info("Input retired.")
}

func (r *Runner) handleError(ctx context.Context, logCtx *slog.Logger, stage pipeline.Stage, jobID, object string, err error) error {
	logCtx.Error("Stage failed.", "kind", fmt.Sprint(Kind(err)), "error", err)
	r.record(ctx, logCtx, ledger.Entry{
		JobID:        jobID,
		Stage:        stage.String(),
		Object:       object,
		Status:       models.StatusFailed,
		ErrorDetails: err.Error(),
	})
	r.announce(ctx, logCtx, events.StageEvent{
		Stage:   stage.String(),
		Outcome: events.OutcomeFailed,
		Object:  object,
		JobID:   jobID,
		Error:   err.Error(),
	})
	return err
}

func (r *Runner) record(ctx context.Context, logCtx *slog.Logger, e ledger.Entry) {
	if err := r.ledger.Record(ctx, e); err != nil {
		logCtx.Error("Failed to update job ledger.", "status", e.Status, "error", err)
	}
}

func (r *Runner) announce(ctx context.Context, logCtx *slog.Logger, e events.StageEvent) {
	e.Timestamp = r.now().UTC()
	if err := r.events.Publish(ctx, e); err != nil {
		logCtx.Warn("Failed to publish stage event.", "subject", e.Subject(), "error", err)
	}
}
