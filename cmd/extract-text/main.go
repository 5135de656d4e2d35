// Command extract-text is the ExtractText Cloud Function. Transcribes one page image with a vision model.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/attachmentflow/internal/config"
	"github.com/Lllllllleong/attachmentflow/internal/logging"
	"github.com/Lllllllleong/attachmentflow/internal/models"
	"github.com/Lllllllleong/attachmentflow/internal/services"
	"github.com/Lllllllleong/attachmentflow/internal/workspace"
)

var (
	extractor *services.ExtractFunction
	cfg       config.Config
	once      sync.Once
	initErr   error
)

func init() {
	cfg = config.Load()
	logging.Setup(cfg.LogLevel)
	workspace.SweepStale(cfg.WorkspaceRoot, time.Hour)

	functions.CloudEvent("ExtractText", extractText)
}

// main is required by the Go Functions Framework.
func main() {}

func extractText(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		extractor, initErr = services.NewExtractText(context.Background(), cfg)
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent models.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}
	return extractor.Process(ctx, gcsEvent)
}
