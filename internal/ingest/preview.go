package ingest

import (
	"strings"
	"sync"
)

// PreviewRefPrefix marks a LocalPreviewRef as a PreviewCache key.
const PreviewRefPrefix = "preview:"

// Preview is the raw bytes of a selected file, held until the document is
// closed. Thumb is filled lazily.
type Preview struct {
	LocalID     string
	ContentType string
	Data        []byte
	thumb       []byte
}

// PreviewCache holds the originals of files being ingested so they can be
// shown before the upload settles. It lives in process memory only; a
// LocalPreviewRef does not survive a restart.
type PreviewCache struct {
	mu      sync.Mutex
	entries map[string]*Preview
	maxDim  int
	quality int
}

func NewPreviewCache(maxDim, quality int) *PreviewCache {
	if maxDim <= 0 {
		maxDim = 480
	}
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &PreviewCache{entries: make(map[string]*Preview), maxDim: maxDim, quality: quality}
}

// Put stores a preview and returns its ref.
func (c *PreviewCache) Put(localID, attachmentID, contentType string, data []byte) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[attachmentID] = &Preview{LocalID: localID, ContentType: contentType, Data: data}
	return PreviewRefPrefix + attachmentID
}

// Thumbnail returns a JPEG thumbnail for ref. Files that cannot be decoded
// as images are returned as stored.
func (c *PreviewCache) Thumbnail(ref string) (contentType string, data []byte, ok bool) {
	id, found := strings.CutPrefix(ref, PreviewRefPrefix)
	if !found {
		return "", nil, false
	}

	c.mu.Lock()
	p, exists := c.entries[id]
	if exists && p.thumb != nil {
		thumb := p.thumb
		c.mu.Unlock()
		return "image/jpeg", thumb, true
	}
	c.mu.Unlock()
	if !exists {
		return "", nil, false
	}

	thumb, err := Thumbnail(p.Data, c.maxDim, c.maxDim, c.quality)
	if err != nil {
		return p.ContentType, p.Data, true
	}

	c.mu.Lock()
	if cur, still := c.entries[id]; still {
		cur.thumb = thumb
	}
	c.mu.Unlock()
	return "image/jpeg", thumb, true
}

// Release drops one preview.
func (c *PreviewCache) Release(ref string) {
	id, _ := strings.CutPrefix(ref, PreviewRefPrefix)
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// ReleaseDocument drops every preview belonging to localID.
func (c *PreviewCache) ReleaseDocument(localID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, p := range c.entries {
		if p.LocalID == localID {
			delete(c.entries, id)
			n++
		}
	}
	return n
}

// Len reports how many previews are held.
func (c *PreviewCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
