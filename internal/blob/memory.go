package blob

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// Ensure MemoryStore implements the interface.
var _ Store = (*MemoryStore)(nil)

// Object is a stored value plus its content type.
type Object struct {
	Data        []byte
	ContentType string
}

// MemoryStore is an in-memory implementation of Store. It counts calls so
// tests can assert that an invocation touched nothing.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]Object

	reads  int
	writes int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]Object)}
}

// List returns every name starting with prefix, sorted.
func (s *MemoryStore) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	var names []string
	for name := range s.objects {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Get returns a copy of the object's bytes.
func (s *MemoryStore) Get(_ context.Context, name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	obj, ok := s.objects[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return append([]byte(nil), obj.Data...), nil
}

// Download writes the object's bytes to w.
func (s *MemoryStore) Download(ctx context.Context, name string, w io.Writer) error {
	data, err := s.Get(ctx, name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Put stores or replaces an object.
func (s *MemoryStore) Put(_ context.Context, name string, r io.Reader, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.objects[name] = Object{Data: data, ContentType: contentType}
	return nil
}

// PutIfAbsent stores an object only if the name is free.
func (s *MemoryStore) PutIfAbsent(_ context.Context, name string, r io.Reader, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if _, ok := s.objects[name]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	}
	s.objects[name] = Object{Data: data, ContentType: contentType}
	return nil
}

// Delete removes an object.
func (s *MemoryStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if _, ok := s.objects[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(s.objects, name)
	return nil
}

// Object returns the stored object without counting a read.
func (s *MemoryStore) Object(name string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[name]
	return obj, ok
}

// Seed stores an object without counting a write.
func (s *MemoryStore) Seed(name string, data []byte, contentType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[name] = Object{Data: data, ContentType: contentType}
}

// Names lists every stored name, sorted, without counting a read.
func (s *MemoryStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.objects))
	for name := range s.objects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Ops returns the number of reads and writes performed through Store.
func (s *MemoryStore) Ops() (reads, writes int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reads, s.writes
}
