package csspipe

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/sjc5/holster/internal/globset"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// File is one item of a stream. Base is relative to the project root and
// Path is relative to Base; both use forward slashes.
type File struct {
	Base      string
	Path      string
	Contents  []byte
	SourceMap []byte
	ModTime   time.Time
}

// Rel is the file's path relative to the project root.
func (f *File) Rel() string {
	return path.Join(f.Base, f.Path)
}

func (f *File) SetExt(ext string) {
	f.Path = strings.TrimSuffix(f.Path, path.Ext(f.Path)) + ext
}

func (f *File) Clone() *File {
	clone := *f
	clone.Contents = append([]byte(nil), f.Contents...)
	if f.SourceMap != nil {
		clone.SourceMap = append([]byte(nil), f.SourceMap...)
	}
	return &clone
}

// Caps open files across every stream in the process; watch mode can run
// several tasks at once.
var fileSemaphore = semaphore.NewWeighted(100)

// Src reads the files under root selected by set. Paths are made relative to
// the set's glob parent, so outputs keep the source tree shape below it.
func Src(ctx context.Context, root string, set globset.Set) ([]*File, error) {
	matches, err := set.Expand(root)
	if err != nil {
		return nil, err
	}
	return ReadFiles(ctx, root, set.Base(), matches)
}

// ReadFiles reads root-relative paths into Files based at base. Order is kept.
func ReadFiles(ctx context.Context, root, base string, rels []string) ([]*File, error) {
	files := make([]*File, len(rels))

	g, ctx := errgroup.WithContext(ctx)
	for i, rel := range rels {
		g.Go(func() error {
			if err := fileSemaphore.Acquire(ctx, 1); err != nil {
				return fmt.Errorf("error acquiring semaphore: %w", err)
			}
			defer fileSemaphore.Release(1)

			full := filepath.Join(root, filepath.FromSlash(rel))
			info, err := os.Stat(full)
			if err != nil {
				return fmt.Errorf("error reading %s: %w", rel, err)
			}
			content, err := os.ReadFile(full)
			if err != nil {
				return fmt.Errorf("error reading %s: %w", rel, err)
			}
			files[i] = &File{
				Base:     base,
				Path:     relativeTo(base, rel),
				Contents: content,
				ModTime:  info.ModTime(),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

func relativeTo(base, rel string) string {
	if base == "." || base == "" {
		return rel
	}
	return strings.TrimPrefix(rel, base+"/")
}

// Dest writes files to root/dir, keeping each file's Path below dir, and
// rebases them onto dir.
func Dest(ctx context.Context, root, dir string, files []*File) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, f := range files {
		g.Go(func() error {
			if err := fileSemaphore.Acquire(ctx, 1); err != nil {
				return fmt.Errorf("error acquiring semaphore: %w", err)
			}
			defer fileSemaphore.Release(1)

			out := filepath.Join(root, filepath.FromSlash(dir), filepath.FromSlash(f.Path))
			if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
				return fmt.Errorf("error creating output directory: %w", err)
			}
			if err := os.WriteFile(out, f.Contents, 0644); err != nil {
				return fmt.Errorf("error writing %s: %w", out, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, f := range files {
		f.Base = path.Clean(filepath.ToSlash(dir))
	}
	return nil
}
