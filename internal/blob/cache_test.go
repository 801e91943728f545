package blob

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalCache_Store(t *testing.T) {
	cache := NewLocalCache(t.TempDir())

	path, err := cache.Store([]byte("photo"))
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	hash := Hash([]byte("photo"))
	if filepath.Base(path) != hash {
		t.Errorf("file name = %s, want %s", filepath.Base(path), hash)
	}
	if filepath.Base(filepath.Dir(path)) != hash[2:4] {
		t.Errorf("parent dir = %s, want %s", filepath.Base(filepath.Dir(path)), hash[2:4])
	}

	again, err := cache.Store([]byte("photo"))
	if err != nil {
		t.Fatal(err)
	}
	if again != path {
		t.Errorf("second Store() = %s, want deduplicated %s", again, path)
	}

	files, size, err := cache.Usage()
	if err != nil {
		t.Fatalf("Usage() error = %v", err)
	}
	if files != 1 || size != 5 {
		t.Errorf("Usage() = %d files, %d bytes, want 1 and 5", files, size)
	}
}

func TestLocalCache_Verify(t *testing.T) {
	cache := NewLocalCache(t.TempDir())
	path, _ := cache.Store([]byte("photo"))

	ok, err := cache.Verify(path)
	if err != nil || !ok {
		t.Errorf("Verify() = %v, %v, want true", ok, err)
	}

	if err := os.WriteFile(path, []byte("tampered"), 0o644); err != nil {
		t.Fatal(err)
	}
	if ok, _ := cache.Verify(path); ok {
		t.Error("Verify() should fail after the file changed")
	}
}

func TestLocalCache_RemoveAndUsage(t *testing.T) {
	cache := NewLocalCache(filepath.Join(t.TempDir(), "missing"))
	if files, _, err := cache.Usage(); err != nil || files != 0 {
		t.Errorf("Usage() on missing dir = %d, %v, want 0, nil", files, err)
	}
	if err := cache.Remove(filepath.Join(t.TempDir(), "nope")); err != nil {
		t.Errorf("Remove() of missing file error = %v", err)
	}
	if cache.Exists(filepath.Join(t.TempDir(), "nope")) {
		t.Error("Exists() = true for a missing file")
	}
}

func TestMemoryStore(t *testing.T) {
	m := NewMemoryStore("mem://photos")
	ctx := context.Background()

	u, err := m.Upload(ctx, "a.jpg", []byte("x"), "image/jpeg")
	if err != nil {
		t.Fatal(err)
	}
	if u != "mem://photos/a.jpg" {
		t.Errorf("Upload() = %s", u)
	}
	data, err := m.Download(ctx, u)
	if err != nil || string(data) != "x" {
		t.Errorf("Download() = %q, %v", data, err)
	}
	if err := m.Delete(ctx, "a.jpg"); err != nil || m.Len() != 0 {
		t.Errorf("Delete() = %v, Len = %d", err, m.Len())
	}
	if _, err := m.Download(ctx, u); err == nil {
		t.Error("Download() after delete should fail")
	}
}
