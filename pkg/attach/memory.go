package attach

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
)

// Table is the key/bytes store behind memory: URIs.
type Table interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// PutIfAbsent stores data unless key is taken and reports whether it did.
	PutIfAbsent(ctx context.Context, key string, data []byte) (bool, error)
	// Delete removes key and reports whether it was present.
	Delete(ctx context.Context, key string) (bool, error)
	Has(ctx context.Context, key string) (bool, error)
}

// LocalTable is a process-local Table.
type LocalTable struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewLocalTable() *LocalTable {
	return &LocalTable{blobs: make(map[string][]byte)}
}

func (t *LocalTable) Get(_ context.Context, key string) ([]byte, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	data, ok := t.blobs[key]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(data), true, nil
}

func (t *LocalTable) PutIfAbsent(_ context.Context, key string, data []byte) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.blobs[key]; ok {
		return false, nil
	}
	t.blobs[key] = bytes.Clone(data)
	return true, nil
}

func (t *LocalTable) Delete(_ context.Context, key string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.blobs[key]
	delete(t.blobs, key)
	return ok, nil
}

func (t *LocalTable) Has(_ context.Context, key string) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.blobs[key]
	return ok, nil
}

// Len reports how many payloads the table holds.
func (t *LocalTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.blobs)
}

// MemorySource is a payload in the registry's memory table, addressed as
// memory:/<key>.
type MemorySource struct {
	state
	uri *url.URL
	key string
}

func (r *Registry) reloadMemory(_ context.Context, uri *url.URL, md Metadata) (Source, error) {
	key := lastSegment(uri)
	if key == "" {
		return nil, fmt.Errorf("%w: memory uri without key: %s", ErrInvalidSource, uri)
	}
	return &MemorySource{state: newState(r, md), uri: uri, key: key}, nil
}

func (r *Registry) storeMemory(ctx context.Context, src Source, uri *url.URL) (Source, error) {
	key := lastSegment(uri)
	if key == "" {
		return nil, fmt.Errorf("%w: memory uri without key: %s", ErrInvalidSource, uri)
	}
	data, md, err := snapshot(ctx, src)
	if err != nil {
		return nil, err
	}
	ok, err := r.memory.PutIfAbsent(ctx, key, data)
	if err != nil {
		return nil, fmt.Errorf("failed to store %s: %w", uri, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: memory key %q exists", ErrStorageConflict, key)
	}
	return &MemorySource{state: newState(r, md), uri: uri, key: key}, nil
}

func (s *MemorySource) Valid(ctx context.Context) bool {
	return s.validate(ctx, func(ctx context.Context) error {
		ok, err := s.reg.memory.Has(ctx, s.key)
		if err != nil {
			return missing("memory table unavailable", err)
		}
		if !ok {
			return missing(fmt.Sprintf("no such key %q in memory table", s.key), nil)
		}
		return nil
	})
}

func (s *MemorySource) Persistent() bool    { return true }
func (s *MemorySource) ReadOnly() bool      { return s.frozen }
func (s *MemorySource) URI() *url.URL       { return s.uri }
func (s *MemorySource) PublicURI() *url.URL { return nil }

func (s *MemorySource) Metadata(ctx context.Context) (Metadata, error) {
	return s.assemble(ctx, func(context.Context) (Metadata, error) {
		var md Metadata
		md.Set(KeyFilename, s.key)
		return md, nil
	}, s.Blob)
}

func (s *MemorySource) Blob(ctx context.Context) ([]byte, error) {
	if err := s.live(); err != nil {
		return nil, err
	}
	data, ok, err := s.reg.memory.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.uri, err)
	}
	if !ok {
		return nil, missing(fmt.Sprintf("no such key %q in memory table", s.key), nil)
	}
	return data, nil
}

func (s *MemorySource) Open(ctx context.Context) (io.ReadCloser, error) {
	data, err := s.Blob(ctx)
	if err != nil {
		return nil, err
	}
	return readerOf(data), nil
}

func (s *MemorySource) Tempfile(ctx context.Context) (string, error) {
	data, err := s.Blob(ctx)
	if err != nil {
		return "", err
	}
	return s.reg.writeTemp(tempName(s.primer, s.key), bytes.NewReader(data))
}

func (s *MemorySource) Destroy(ctx context.Context) error {
	if s.frozen {
		return nil
	}
	ok, err := s.reg.memory.Delete(ctx, s.key)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", s.uri, err)
	}
	if !ok {
		return s.settle(missing(fmt.Sprintf("no such key %q in memory table", s.key), nil))
	}
	return s.settle(nil)
}

// snapshot reads src's payload and metadata for a store. The payload is read
// first so sources that memoize fetched bytes serve both from one fetch.
func snapshot(ctx context.Context, src Source) ([]byte, Metadata, error) {
	data, err := src.Blob(ctx)
	if err != nil {
		return nil, Metadata{}, err
	}
	md, err := src.Metadata(ctx)
	if err != nil {
		return nil, Metadata{}, err
	}
	return data, md, nil
}
