// Package workspace provides per-invocation local staging directories.
package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const dirPrefix = "attachmentflow-"

// Workspace is a private directory owned by one invocation.
type Workspace struct {
	dir  string
	once sync.Once
	err  error
}

// Acquire creates a fresh directory under root (os.TempDir when empty).
// Concurrent calls for the same job get distinct directories.
func Acquire(root, jobID string) (*Workspace, error) {
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace root %s: %w", root, err)
	}
	dir, err := os.MkdirTemp(root, dirPrefix+sanitize(jobID)+"-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

// Dir is the workspace directory.
func (w *Workspace) Dir() string { return w.dir }

// Path joins name onto the workspace directory.
func (w *Workspace) Path(name ...string) string {
	return filepath.Join(append([]string{w.dir}, name...)...)
}

// Release removes the directory and everything in it. Safe to call more than once.
func (w *Workspace) Release() error {
	w.once.Do(func() {
		w.err = os.RemoveAll(w.dir)
	})
	return w.err
}

// Run acquires a workspace, calls fn, and releases the workspace on every
// exit path. A panic in fn is re-raised after release.
func Run(ctx context.Context, root, jobID string, fn func(ctx context.Context, ws *Workspace) error) error {
	ws, err := Acquire(root, jobID)
	if err != nil {
		return err
	}
	defer func() {
		if relErr := ws.Release(); relErr != nil {
			slog.Warn("Failed to release workspace.", "path", ws.Dir(), "error", relErr)
		}
	}()
	return fn(ctx, ws)
}

// SweepResult lists what SweepStale removed and what it could not.
type SweepResult struct {
	Removed []string
	Errors  map[string]error
}

// SweepStale removes workspace directories under root older than maxAge,
// left behind by invocations killed before they could release.
func SweepStale(root string, maxAge time.Duration) SweepResult {
	result := SweepResult{Errors: map[string]error{}}
	if root = strings.TrimSpace(root); root == "" {
		root = os.TempDir()
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors[root] = err
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), dirPrefix) {
			continue
		}
		path := filepath.Join(root, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors[path] = err
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			result.Errors[path] = err
			slog.Warn("Failed to remove stale workspace.", "path", path, "error", err)
			continue
		}
		result.Removed = append(result.Removed, path)
		slog.Info("Removed stale workspace.", "path", path, "age", time.Since(info.ModTime()).String())
	}
	return result
}

func sanitize(jobID string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, jobID)
	if len(clean) > 40 {
		clean = clean[:40]
	}
	if clean == "" {
		clean = "job"
	}
	return clean
}
