package audio

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DirLoader decodes pad assets from a directory and keeps the most recently
// used clips in memory so key changes back and forth don't re-decode.
type DirLoader struct {
	dir    string
	decode func(path string) ([]int16, error)
	cache  *lru.Cache[string, *Clip] // nil when caching is off
}

// NewDirLoader creates a loader rooted at dir that caches up to cacheSize clips.
// A cacheSize below 1 disables caching.
func NewDirLoader(dir string, cacheSize int) *DirLoader {
	l := &DirLoader{dir: dir, decode: DecodeFile}
	if cacheSize > 0 {
		// New only fails for a non-positive size.
		l.cache, _ = lru.New[string, *Clip](cacheSize)
	}
	return l
}

// Load returns the decoded clip for an asset file name.
func (l *DirLoader) Load(ctx context.Context, file string) (*Clip, error) {
	path := filepath.Join(l.dir, file)
	if l.cache != nil {
		if c, ok := l.cache.Get(path); ok {
			return c, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	samples, err := l.decode(path)
	if err != nil {
		return nil, err
	}
	if len(samples) < Channels {
		return nil, fmt.Errorf("decode %s: no audio", path)
	}
	c := &Clip{Path: path, Samples: samples}
	if l.cache != nil {
		l.cache.Add(path, c)
	}
	log.Printf("Decoded %s (%.1fs)", path, c.Duration().Seconds())
	return c, nil
}
