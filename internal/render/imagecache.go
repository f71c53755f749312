package render

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageSource resolves an image component's src to pixels. ok is false
// while the image is unavailable.
type ImageSource interface {
	Image(src string) (image.Image, bool)
}

// ImageCache decodes image sources on first use and keeps them in memory.
// Sources are file paths or data: URLs. File-backed entries are watched and
// dropped when the file changes on disk, after which onChange fires so the
// owner can repaint.
type ImageCache struct {
	watcher  *fsnotify.Watcher
	onChange func(src string)

	mu       sync.RWMutex
	images   map[string]image.Image
	failed   map[string]error
	watching map[string]string // abs path -> src
	dirs     map[string]bool
}

// NewImageCache creates a cache. onChange may be nil.
func NewImageCache(onChange func(src string)) (*ImageCache, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	c := &ImageCache{
		watcher:  watcher,
		onChange: onChange,
		images:   make(map[string]image.Image),
		failed:   make(map[string]error),
		watching: make(map[string]string),
		dirs:     make(map[string]bool),
	}
	go c.watchLoop()
	return c, nil
}

// Image returns the decoded image for src, loading it on first use.
// A source that failed to decode stays failed until it is invalidated.
func (c *ImageCache) Image(src string) (image.Image, bool) {
	if src == "" {
		return nil, false
	}
	c.mu.RLock()
	img, ok := c.images[src]
	_, failed := c.failed[src]
	c.mu.RUnlock()
	if ok {
		return img, true
	}
	if failed {
		return nil, false
	}

	img, err := c.load(src)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		log.Printf("[RENDER] image %s: %v", truncate(src, 64), err)
		c.failed[src] = err
		return nil, false
	}
	c.images[src] = img
	return img, true
}

// Put seeds the cache with an already decoded image.
func (c *ImageCache) Put(src string, img image.Image) {
	c.mu.Lock()
	c.images[src] = img
	delete(c.failed, src)
	c.mu.Unlock()
}

// Invalidate forgets src so the next lookup decodes it again.
func (c *ImageCache) Invalidate(src string) {
	c.mu.Lock()
	delete(c.images, src)
	delete(c.failed, src)
	c.mu.Unlock()
}

func (c *ImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}

func (c *ImageCache) Close() error {
	return c.watcher.Close()
}

func (c *ImageCache) load(src string) (image.Image, error) {
	if strings.HasPrefix(src, "data:") {
		return decodeDataURL(src)
	}

	path := strings.TrimPrefix(src, "file://")
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	c.watch(absPath, src)
	return img, nil
}

func (c *ImageCache) watch(absPath, src string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watching[absPath] = src
	dir := filepath.Dir(absPath)
	if c.dirs[dir] {
		return
	}
	// fsnotify watches directories for file events
	if err := c.watcher.Add(dir); err != nil {
		log.Printf("[RENDER] watch %s: %v", dir, err)
		return
	}
	c.dirs[dir] = true
}

func (c *ImageCache) watchLoop() {
	for {
		select {
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			absPath, _ := filepath.Abs(event.Name)
			c.mu.RLock()
			src, watched := c.watching[absPath]
			c.mu.RUnlock()
			if !watched {
				continue
			}
			c.Invalidate(src)
			if c.onChange != nil {
				c.onChange(src)
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[RENDER] image watcher error: %v", err)
		}
	}
}

func decodeDataURL(src string) (image.Image, error) {
	comma := strings.IndexByte(src, ',')
	if comma < 0 {
		return nil, fmt.Errorf("malformed data url")
	}
	meta, payload := src[:comma], src[comma+1:]
	if !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("data url is not base64")
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode data url: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
