package ih

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"image/jpeg"
	"image/png"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/sjc5/holster/internal/globset"
	"github.com/sjc5/holster/internal/util"
	"github.com/sjc5/kit/pkg/fsutil"
	"golang.org/x/sync/errgroup"
)

const (
	imageCacheFile = "images.gob"
	jpegQuality    = 85
)

// imageCache maps a source image, relative to the theme, to the content
// hash it had when last optimized.
type imageCache map[string]string

func (c *Config) imageCacheRef() string {
	return filepath.Join(c.getCleanRootDir(), stateDir, imageCacheFile)
}

func (c *Config) loadImageCache() imageCache {
	file, err := os.Open(c.imageCacheRef())
	if err != nil {
		return imageCache{}
	}
	defer file.Close()

	var cache imageCache
	if err := fsutil.FromGobInto(file, &cache); err != nil {
		c.Logger.Errorf("error: ignoring unreadable image cache: %v", err)
		return imageCache{}
	}
	return cache
}

func (c *Config) saveImageCache(cache imageCache) error {
	ref := c.imageCacheRef()
	if err := os.MkdirAll(filepath.Dir(ref), 0755); err != nil {
		return fmt.Errorf("error creating state directory: %w", err)
	}
	file, err := os.Create(ref)
	if err != nil {
		return fmt.Errorf("error creating image cache: %w", err)
	}
	if err := gob.NewEncoder(file).Encode(cache); err != nil {
		file.Close()
		return fmt.Errorf("error encoding image cache: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("error closing image cache: %w", err)
	}
	return nil
}

type imageStats struct {
	mu        sync.Mutex
	optimized int
	unchanged int
	saved     int64
}

// optimizeImages writes every source image to the images destination,
// recompressed when that makes it smaller. Sources whose content matches
// the cache and whose output exists are skipped.
func (c *Config) optimizeImages(ctx context.Context, _ *Invocation) error {
	root := c.getCleanRootDir()
	set := globset.New(c.Paths.Images...)
	rels, err := set.Expand(root)
	if err != nil {
		return fmt.Errorf("error expanding images: %w", err)
	}
	base := set.Base()

	prev := c.loadImageCache()
	next := imageCache{}
	var stats imageStats

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, rel := range rels {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			src := filepath.Join(root, filepath.FromSlash(rel))
			data, err := os.ReadFile(src)
			if err != nil {
				return fmt.Errorf("error reading %s: %w", rel, err)
			}
			hash := util.ContentHash(data)

			outRel := path.Join(c.Dest.Images, strings.TrimPrefix(rel, base+"/"))
			if base == "." {
				outRel = path.Join(c.Dest.Images, rel)
			}
			out := filepath.Join(root, filepath.FromSlash(outRel))

			stats.mu.Lock()
			next[rel] = hash
			cached := prev[rel] == hash
			stats.mu.Unlock()

			if cached {
				if _, err := os.Stat(out); err == nil {
					stats.mu.Lock()
					stats.unchanged++
					stats.mu.Unlock()
					return nil
				}
			}

			saved, err := writeOptimizedImage(src, out, data)
			if err != nil {
				return fmt.Errorf("error optimizing %s: %w", rel, err)
			}
			stats.mu.Lock()
			stats.optimized++
			stats.saved += saved
			stats.mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := c.saveImageCache(next); err != nil {
		return err
	}
	c.Logger.Infof("images: %d optimized, %d unchanged, saved %s",
		stats.optimized, stats.unchanged, humanize.Bytes(uint64(stats.saved)))
	return nil
}

// writeOptimizedImage writes the smaller of data and its re-encoding to
// out, returning the bytes saved. Formats other than PNG and JPEG, and
// images that fail to decode, are copied as they are.
func writeOptimizedImage(src, out string, data []byte) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return 0, fmt.Errorf("error creating directory: %w", err)
	}

	encoded, ok := reencodeImage(data, strings.ToLower(filepath.Ext(src)))
	if !ok || len(encoded) >= len(data) {
		if err := fsutil.CopyFile(src, out); err != nil {
			return 0, fmt.Errorf("error copying file: %w", err)
		}
		return 0, nil
	}
	if err := os.WriteFile(out, encoded, 0644); err != nil {
		return 0, fmt.Errorf("error writing file: %w", err)
	}
	return int64(len(data) - len(encoded)), nil
}

func reencodeImage(data []byte, ext string) ([]byte, bool) {
	var buf bytes.Buffer
	switch ext {
	case ".png":
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, false
		}
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, false
		}
	case ".jpg", ".jpeg":
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, false
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
			return nil, false
		}
	default:
		return nil, false
	}
	return buf.Bytes(), true
}
