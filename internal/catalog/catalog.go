// Package catalog loads the fixed list of videos a controller serves.
//
// The list is supplied once at startup from a TOML file or a media feed and
// never changes while the controller runs.
package catalog

import (
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/mikey-austin/vigil/pkg/vigil"
	"github.com/mmcdole/gofeed"
)

var (
	ErrNoVideos       = errors.New("catalog has no videos")
	ErrInvalidCatalog = errors.New("invalid catalog")
)

// Catalog is an immutable, id-indexed video list.
type Catalog struct {
	videos []vigil.VideoDescriptor
	index  map[string]int
}

// New validates videos and builds a catalog.
func New(videos []vigil.VideoDescriptor) (*Catalog, error) {
	videos, err := Validate(videos)
	if err != nil {
		return nil, err
	}
	c := &Catalog{videos: videos, index: make(map[string]int, len(videos))}
	for i, v := range videos {
		c.index[v.ID] = i
	}
	return c, nil
}

// Lookup returns the descriptor for id.
func (c *Catalog) Lookup(id string) (vigil.VideoDescriptor, bool) {
	i, ok := c.index[id]
	if !ok {
		return vigil.VideoDescriptor{}, false
	}
	return c.videos[i], true
}

// List returns a copy of the videos in catalog order.
func (c *Catalog) List() []vigil.VideoDescriptor {
	out := make([]vigil.VideoDescriptor, len(c.videos))
	copy(out, c.videos)
	return out
}

// First returns the first video.
func (c *Catalog) First() vigil.VideoDescriptor {
	return c.videos[0]
}

// Len returns the number of videos.
func (c *Catalog) Len() int {
	return len(c.videos)
}

type file struct {
	Video []vigil.VideoDescriptor `toml:"video"`
}

// LoadFile reads a TOML catalog with one [[video]] table per entry.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	videos, err := ParseTOML(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return New(videos)
}

// ParseTOML decodes [[video]] tables.
func ParseTOML(data []byte) ([]vigil.VideoDescriptor, error) {
	var f file
	md, err := toml.Decode(string(data), &f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: unknown key %s", ErrInvalidCatalog, undecoded[0])
	}
	return f.Video, nil
}

// FetchFeed downloads an RSS or Atom feed and turns its video enclosures
// into a catalog.
func FetchFeed(ctx context.Context, client *http.Client, feedURL string) (*Catalog, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "vigil/1.0")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch feed: %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	videos, err := ParseFeed(string(body))
	if err != nil {
		return nil, err
	}
	return New(videos)
}

// ParseFeed maps feed items to descriptors. Items without a video enclosure
// are skipped.
func ParseFeed(body string) ([]vigil.VideoDescriptor, error) {
	feed, err := gofeed.NewParser().ParseString(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	feedImage := ""
	if feed.Image != nil {
		feedImage = feed.Image.URL
	}
	if feedImage == "" && feed.ITunesExt != nil {
		feedImage = feed.ITunesExt.Image
	}

	videos := make([]vigil.VideoDescriptor, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		src := pickVideo(item)
		if src == "" {
			continue
		}
		key := strings.TrimSpace(item.GUID)
		if key == "" {
			key = strings.TrimSpace(item.Link)
		}
		if key == "" {
			key = src
		}
		thumb := itemImage(item)
		if thumb == "" {
			thumb = feedImage
		}
		videos = append(videos, vigil.VideoDescriptor{
			ID:        shortID(key),
			Title:     strings.TrimSpace(item.Title),
			Src:       src,
			Thumbnail: thumb,
		})
	}
	return videos, nil
}

// Validate checks ids, titles and URLs, defaulting empty titles to the id.
func Validate(videos []vigil.VideoDescriptor) ([]vigil.VideoDescriptor, error) {
	if len(videos) == 0 {
		return nil, ErrNoVideos
	}
	out := make([]vigil.VideoDescriptor, 0, len(videos))
	seen := make(map[string]struct{}, len(videos))
	for i, v := range videos {
		v.ID = strings.TrimSpace(v.ID)
		if v.ID == "" {
			return nil, fmt.Errorf("%w: video %d has no id", ErrInvalidCatalog, i)
		}
		if _, dup := seen[v.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidCatalog, v.ID)
		}
		seen[v.ID] = struct{}{}
		if strings.TrimSpace(v.Title) == "" {
			v.Title = v.ID
		}
		if !absoluteURL(v.Src) {
			return nil, fmt.Errorf("%w: video %q src %q is not an absolute URL", ErrInvalidCatalog, v.ID, v.Src)
		}
		if v.Thumbnail != "" && !absoluteURL(v.Thumbnail) {
			return nil, fmt.Errorf("%w: video %q thumbnail %q is not an absolute URL", ErrInvalidCatalog, v.ID, v.Thumbnail)
		}
		out = append(out, v)
	}
	return out, nil
}

func absoluteURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	return err == nil && u.Scheme != "" && (u.Host != "" || u.Scheme == "file")
}

func pickVideo(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if enc.Type == "" || strings.HasPrefix(enc.Type, "video/") || strings.Contains(enc.Type, "mpegurl") {
			return enc.URL
		}
	}
	return ""
}

func itemImage(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	if item.ITunesExt != nil && item.ITunesExt.Image != "" {
		return item.ITunesExt.Image
	}
	return ""
}

func shortID(key string) string {
	sum := sha1.Sum([]byte(key))
	return fmt.Sprintf("%x", sum[:4])
}
