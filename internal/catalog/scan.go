package catalog

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dhowden/tag"
	"github.com/mikey-austin/vigil/pkg/vigil"
)

// DefaultVideoExts are the file extensions ScanDir picks up.
var DefaultVideoExts = []string{".mp4", ".m4v", ".mkv", ".webm", ".mov"}

var thumbnailExts = []string{".jpg", ".jpeg", ".png", ".webp"}

// ScanDir builds a catalog from the video files under root, in path order.
// Titles come from embedded metadata where the container carries it and
// from the file name otherwise. An image with the same base name next to a
// video becomes its thumbnail.
func ScanDir(root string, exts []string) (*Catalog, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if len(exts) == 0 {
		exts = DefaultVideoExts
	}
	include := buildExtMap(exts)

	var paths []string
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if include[strings.ToLower(filepath.Ext(d.Name()))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	sort.Strings(paths)

	videos := make([]vigil.VideoDescriptor, 0, len(paths))
	for _, path := range paths {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		videos = append(videos, vigil.VideoDescriptor{
			ID:        shortID(filepath.ToSlash(rel)),
			Title:     readTitle(path),
			Src:       fileURL(path),
			Thumbnail: findThumbnail(path),
		})
	}
	return New(videos)
}

func readTitle(path string) string {
	if f, err := os.Open(path); err == nil {
		defer f.Close()
		if metadata, err := tag.ReadFrom(f); err == nil {
			if title := strings.TrimSpace(metadata.Title()); title != "" {
				return title
			}
		}
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.TrimSpace(strings.NewReplacer("_", " ", ".", " ").Replace(name))
}

func findThumbnail(path string) string {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	for _, ext := range thumbnailExts {
		candidate := base + ext
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return fileURL(candidate)
		}
	}
	return ""
}

func fileURL(path string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

func buildExtMap(exts []string) map[string]bool {
	out := make(map[string]bool, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out[ext] = true
	}
	return out
}
