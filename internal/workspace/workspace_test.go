package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entries(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	list, err := os.ReadDir(dir)
	require.NoError(t, err)
	return list
}

func TestAcquire_DistinctDirsForSameJob(t *testing.T) {
	root := t.TempDir()

	a, err := Acquire(root, "report")
	require.NoError(t, err)
	b, err := Acquire(root, "report")
	require.NoError(t, err)

	assert.NotEqual(t, a.Dir(), b.Dir())
	require.NoError(t, a.Release())
	require.NoError(t, a.Release())
	require.NoError(t, b.Release())
	assert.Empty(t, entries(t, root))
}

func TestRun_ReleasesOnFailure(t *testing.T) {
	root := t.TempDir()
	boom := errors.New("conversion failed")

	err := Run(context.Background(), root, "report", func(_ context.Context, ws *Workspace) error {
		require.NoError(t, os.WriteFile(ws.Path("input.docx"), []byte("x"), 0o644))
		require.NoError(t, os.MkdirAll(ws.Path("out", "nested"), 0o755))
		require.NoError(t, os.WriteFile(ws.Path("out", "nested", "page.jpeg"), []byte("y"), 0o644))
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Empty(t, entries(t, root))
}

func TestRun_ReleasesOnPanic(t *testing.T) {
	root := t.TempDir()

	assert.Panics(t, func() {
		_ = Run(context.Background(), root, "report", func(_ context.Context, ws *Workspace) error {
			_ = os.WriteFile(ws.Path("input.pdf"), []byte("x"), 0o644)
			panic("adapter crashed")
		})
	})
	assert.Empty(t, entries(t, root))
}

func TestSweepStale(t *testing.T) {
	root := t.TempDir()

	old, err := Acquire(root, "old")
	require.NoError(t, err)
	fresh, err := Acquire(root, "fresh")
	require.NoError(t, err)
	foreign := filepath.Join(root, "not-ours")
	require.NoError(t, os.Mkdir(foreign, 0o755))

	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old.Dir(), past, past))
	require.NoError(t, os.Chtimes(foreign, past, past))

	res := SweepStale(root, time.Hour)
	assert.Equal(t, []string{old.Dir()}, res.Removed)
	assert.Empty(t, res.Errors)

	assert.DirExists(t, fresh.Dir())
	assert.DirExists(t, foreign)
	assert.NoDirExists(t, old.Dir())
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "my_report_v2", sanitize("my report/v2"))
	assert.Equal(t, "job", sanitize(""))
}
