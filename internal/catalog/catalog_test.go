package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/mikey-austin/vigil/pkg/vigil"
)

const sampleTOML = `
[[video]]
id = "1"
title = "Opening"
src = "https://media.example.org/opening.mp4"
thumbnail = "https://media.example.org/opening.jpg"

[[video]]
id = "2"
src = "https://media.example.org/tribute.mp4"
`

const sampleFeed = `<?xml version="1.0"?>
<rss version="2.0" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd">
<channel>
  <title>Service</title>
  <itunes:image href="https://media.example.org/cover.jpg"/>
  <item>
    <title>Tribute</title>
    <guid>tribute-1</guid>
    <enclosure url="https://media.example.org/tribute.mp4" type="video/mp4" length="1"/>
  </item>
  <item>
    <title>Reading</title>
    <guid>reading-1</guid>
    <enclosure url="https://media.example.org/reading.mp3" type="audio/mpeg" length="1"/>
  </item>
</channel>
</rss>`

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.toml")
	if err := os.WriteFile(path, []byte(sampleTOML), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 videos, got %d", c.Len())
	}
	v, ok := c.Lookup("2")
	if !ok {
		t.Fatalf("expected video 2")
	}
	if v.Title != "2" {
		t.Fatalf("expected title to default to id, got %q", v.Title)
	}
	if _, ok := c.Lookup("3"); ok {
		t.Fatalf("unexpected video 3")
	}
}

func TestParseTOMLRejectsUnknownKeys(t *testing.T) {
	_, err := ParseTOML([]byte("[[video]]\nid = \"1\"\nurl = \"x\"\n"))
	if !errors.Is(err, ErrInvalidCatalog) {
		t.Fatalf("expected ErrInvalidCatalog, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string][]vigil.VideoDescriptor{
		"empty":     nil,
		"no id":     {{Src: "https://a/b.mp4"}},
		"duplicate": {{ID: "1", Src: "https://a/1.mp4"}, {ID: "1", Src: "https://a/2.mp4"}},
		"relative":  {{ID: "1", Src: "/videos/1.mp4"}},
		"bad thumb": {{ID: "1", Src: "https://a/1.mp4", Thumbnail: "thumb.jpg"}},
	}
	for name, videos := range cases {
		if _, err := New(videos); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := New(nil); !errors.Is(err, ErrNoVideos) {
		t.Fatalf("expected ErrNoVideos")
	}
}

func TestParseFeedKeepsVideoEnclosures(t *testing.T) {
	videos, err := ParseFeed(sampleFeed)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(videos) != 1 {
		t.Fatalf("expected 1 video, got %d", len(videos))
	}
	v := videos[0]
	if v.Title != "Tribute" || v.Src != "https://media.example.org/tribute.mp4" {
		t.Fatalf("unexpected video %+v", v)
	}
	if v.Thumbnail != "https://media.example.org/cover.jpg" {
		t.Fatalf("expected feed image fallback, got %q", v.Thumbnail)
	}
	again, _ := ParseFeed(sampleFeed)
	if again[0].ID != v.ID {
		t.Fatalf("expected stable ids")
	}
}

func TestFetchFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	c, err := FetchFeed(context.Background(), srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 video, got %d", c.Len())
	}
}
