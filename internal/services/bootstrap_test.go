package services

import (
	"context"
	"testing"

	"github.com/Lllllllleong/attachmentflow/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The constructors take their settings from the Config they are given; the
// environment is read once by the caller.
func TestConstructors_UseGivenConfig(t *testing.T) {
	t.Setenv("PROJECT_ID", "from-env")
	t.Setenv("CLOUD_STORAGE_BUCKET", "from-env")
	t.Setenv("NOTIFY_FROM", "env@example.com")

	ctx := context.Background()
	empty := config.Config{}

	tests := []struct {
		name string
		new  func() error
		want string
	}{
		{"convert", func() error { _, err := NewConvertToPDF(ctx, empty); return err }, "PROJECT_ID"},
		{"rasterize", func() error { _, err := NewRasterize(ctx, empty); return err }, "PROJECT_ID"},
		{"extract", func() error { _, err := NewExtractText(ctx, empty); return err }, "PROJECT_ID"},
		{"concatenate", func() error { _, err := NewConcatenate(ctx, empty); return err }, "PROJECT_ID"},
		{"summarize", func() error { _, err := NewSummarize(ctx, empty); return err }, "PROJECT_ID"},
		{"notify", func() error { _, err := NewNotify(ctx, empty); return err }, "NOTIFY_FROM"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.new()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewRunner_RequiresBucket(t *testing.T) {
	_, err := newRunner(context.Background(), config.Config{ProjectID: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CLOUD_STORAGE_BUCKET")
}
