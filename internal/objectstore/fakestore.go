package objectstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// FakeStore is an in-memory Client used by sync pipeline tests so they don't
// need a live MinIO/S3 endpoint.
type FakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewFakeStore returns an empty in-memory object store.
func NewFakeStore() *FakeStore {
	return &FakeStore{objects: make(map[string][]byte)}
}

func (f *FakeStore) Upload(ctx context.Context, key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.objects[key] = cp
	return nil
}

func (f *FakeStore) Download(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (f *FakeStore) List(ctx context.Context, prefix string) ([]ObjectSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ObjectSummary
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, ObjectSummary{Key: k, LastModified: time.Now()})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (f *FakeStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *FakeStore) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok, nil
}

func (f *FakeStore) TestConnection(ctx context.Context) error {
	return nil
}
