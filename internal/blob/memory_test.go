package blob

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_PutGetList(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Put(ctx, "a/2.txt", strings.NewReader("two"), "text/plain"))
	require.NoError(t, s.Put(ctx, "a/1.txt", strings.NewReader("one"), "text/plain"))
	require.NoError(t, s.Put(ctx, "b/1.txt", strings.NewReader("other"), "text/plain"))

	names, err := s.List(ctx, "a/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/1.txt", "a/2.txt"}, names)

	data, err := s.Get(ctx, "a/1.txt")
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))

	var buf bytes.Buffer
	require.NoError(t, s.Download(ctx, "a/2.txt", &buf))
	assert.Equal(t, "two", buf.String())
}

func TestMemoryStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, "missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "missing.txt"), ErrNotFound)
}

func TestMemoryStore_PutIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.PutIfAbsent(ctx, "t_1.json", strings.NewReader("first"), "application/json"))
	err := s.PutIfAbsent(ctx, "t_1.json", strings.NewReader("second"), "application/json")
	assert.ErrorIs(t, err, ErrAlreadyExists)

	obj, ok := s.Object("t_1.json")
	require.True(t, ok)
	assert.Equal(t, "first", string(obj.Data))
	assert.Equal(t, "application/json", obj.ContentType)
}

func TestMemoryStore_OpsIgnoreSeed(t *testing.T) {
	s := NewMemoryStore()
	s.Seed("x/y.pdf", []byte("%PDF"), "application/pdf")
	_, _ = s.Object("x/y.pdf")
	_ = s.Names()

	reads, writes := s.Ops()
	assert.Zero(t, reads)
	assert.Zero(t, writes)

	_, _ = s.Get(context.Background(), "x/y.pdf")
	reads, _ = s.Ops()
	assert.Equal(t, 1, reads)
}
