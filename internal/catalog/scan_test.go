package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(""), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestScanDir(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "01_Opening_Hymn.mp4"))
	writeFile(t, filepath.Join(root, "01_Opening_Hymn.jpg"))
	writeFile(t, filepath.Join(root, "photos", "Tribute.MKV"))
	writeFile(t, filepath.Join(root, "notes.txt"))
	writeFile(t, filepath.Join(root, ".cache", "partial.mp4"))

	cat, err := ScanDir(root, nil)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	videos := cat.List()
	if len(videos) != 2 {
		t.Fatalf("expected 2 videos, got %+v", videos)
	}
	if videos[0].Title != "01 Opening Hymn" {
		t.Fatalf("unexpected title %q", videos[0].Title)
	}
	if !strings.HasPrefix(videos[0].Src, "file://") || !strings.HasSuffix(videos[0].Src, "01_Opening_Hymn.mp4") {
		t.Fatalf("unexpected src %q", videos[0].Src)
	}
	if !strings.HasSuffix(videos[0].Thumbnail, "01_Opening_Hymn.jpg") {
		t.Fatalf("expected sibling thumbnail, got %q", videos[0].Thumbnail)
	}
	if videos[1].Title != "Tribute" || videos[1].Thumbnail != "" {
		t.Fatalf("unexpected second video %+v", videos[1])
	}

	again, err := ScanDir(root, nil)
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if again.List()[0].ID != videos[0].ID {
		t.Fatalf("ids must be stable across scans")
	}
}

func TestScanDirExtensionFilter(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.mp4"))
	writeFile(t, filepath.Join(root, "b.webm"))

	cat, err := ScanDir(root, []string{"webm"})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if cat.Len() != 1 || cat.First().Title != "b" {
		t.Fatalf("unexpected catalog %+v", cat.List())
	}
}

func TestScanDirEmpty(t *testing.T) {
	if _, err := ScanDir(t.TempDir(), nil); !errors.Is(err, ErrNoVideos) {
		t.Fatalf("expected no videos, got %v", err)
	}
}
