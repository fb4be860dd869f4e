package objectstore

import (
	"context"
	"errors"
	"testing"
)

func TestNewClientRequiresBucketAndEndpoint(t *testing.T) {
	if _, err := NewClient(Config{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestFakeStoreUploadDownloadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewFakeStore()

	if err := store.Upload(ctx, "devices/device-a/delta-1.bin", []byte("payload")); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	data, err := store.Download(ctx, "devices/device-a/delta-1.bin")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("Download = %q, want %q", data, "payload")
	}
}

func TestFakeStoreDownloadMissingKey(t *testing.T) {
	ctx := context.Background()
	store := NewFakeStore()

	if _, err := store.Download(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFakeStoreListByPrefix(t *testing.T) {
	ctx := context.Background()
	store := NewFakeStore()

	_ = store.Upload(ctx, "devices/device-a/1.bin", []byte("a"))
	_ = store.Upload(ctx, "devices/device-a/2.bin", []byte("b"))
	_ = store.Upload(ctx, "devices/device-b/1.bin", []byte("c"))

	objs, err := store.List(ctx, "devices/device-a/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(objs) != 2 {
		t.Fatalf("List returned %d objects, want 2", len(objs))
	}
	if objs[0].Key != "devices/device-a/1.bin" || objs[1].Key != "devices/device-a/2.bin" {
		t.Errorf("unexpected keys: %+v", objs)
	}
}

func TestFakeStoreExistsAndDelete(t *testing.T) {
	ctx := context.Background()
	store := NewFakeStore()
	_ = store.Upload(ctx, "k", []byte("v"))

	ok, err := store.Exists(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v, want true, nil", ok, err)
	}

	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	ok, err = store.Exists(ctx, "k")
	if err != nil || ok {
		t.Fatalf("Exists after delete = %v, %v, want false, nil", ok, err)
	}
}
