package mediastore_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"curator/internal/mediastore"
	"curator/internal/services"
	"curator/internal/testsupport"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestResolve(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := mediastore.New(cfg)
	writeFile(t, filepath.Join(cfg.Paths.MediaRoot, "imgs", "a.jpg"), "jpeg-bytes")

	abs, err := store.Resolve("imgs/a.jpg")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if abs != filepath.Join(cfg.Paths.MediaRoot, "imgs", "a.jpg") {
		t.Fatalf("unexpected path %s", abs)
	}
}

func TestResolveMissing(t *testing.T) {
	store := mediastore.New(testsupport.NewConfig(t))
	_, err := store.Resolve("imgs/none.jpg")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestResolveRejectsEscapes(t *testing.T) {
	store := mediastore.New(testsupport.NewConfig(t))
	for _, id := range []string{"../etc/passwd", "/abs/path.jpg", "."} {
		if _, err := store.Resolve(id); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("id %q: expected validation error, got %v", id, err)
		}
	}
}

func TestListAllFindsMediaAndSidecars(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := mediastore.New(cfg)
	root := cfg.Paths.MediaRoot

	writeFile(t, filepath.Join(root, "imgs", "a.jpg"), "a")
	writeFile(t, filepath.Join(root, "imgs", "a.anno"), "{}")
	writeFile(t, filepath.Join(root, "imgs", "b.png"), "b")
	writeFile(t, filepath.Join(root, "notes.txt"), "not media")

	entries, err := store.ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 media entries, got %d", len(entries))
	}
	if entries[0].SampleID != "imgs/a.jpg" || entries[0].SidecarPath == "" {
		t.Fatalf("expected a.jpg with sidecar, got %#v", entries[0])
	}
	if entries[1].SampleID != "imgs/b.png" || entries[1].SidecarPath != "" {
		t.Fatalf("expected b.png without sidecar, got %#v", entries[1])
	}
}

func TestChecksumChangesWithContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.anno")
	writeFile(t, path, "v1")

	first, err := mediastore.Checksum(path)
	if err != nil {
		t.Fatalf("Checksum: %v", err)
	}
	writeFile(t, path, "v2")
	second, err := mediastore.Checksum(path)
	if err != nil {
		t.Fatalf("Checksum: %v", err)
	}
	if first == second {
		t.Fatal("checksum did not change with content")
	}
}
