package csspipe

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/bep/godartsass/v2"
	"github.com/sjc5/holster/internal/util"
	"github.com/sjc5/kit/pkg/safecache"
)

type CompileRequest struct {
	Path         string // root-relative, for messages
	Filename     string // absolute when known, for source map URLs
	Source       string
	IncludePaths []string
	SourceMap    bool
}

type CompileResult struct {
	CSS       string
	SourceMap string
}

// Compiler turns a Sass source into CSS.
type Compiler interface {
	Compile(ctx context.Context, req CompileRequest) (CompileResult, error)
}

type CompileOptions struct {
	Root         string
	IncludePaths []string // root-relative
	SourceMaps   bool
	Logger       util.Logger
}

// Compile runs every non-partial .scss file through c. Partials (files
// whose name starts with "_") leave the stream silently. A failing file is
// logged as a Sass error and reported as a FileError wrapping a CompileError.
func Compile(c Compiler, opts CompileOptions) Step {
	logger := opts.Logger
	if logger == nil {
		logger = util.Log
	}
	return StepFunc("sass", func(ctx context.Context, files []*File) ([]*File, error) {
		sources := make([]*File, 0, len(files))
		for _, f := range files {
			if !strings.HasPrefix(path.Base(f.Path), "_") {
				sources = append(sources, f)
			}
		}
		return Each("sass", func(ctx context.Context, f *File) error {
			includes := []string{filepath.Join(opts.Root, filepath.FromSlash(path.Dir(f.Rel())))}
			for _, p := range opts.IncludePaths {
				includes = append(includes, filepath.Join(opts.Root, filepath.FromSlash(p)))
			}
			filename, err := filepath.Abs(filepath.Join(opts.Root, filepath.FromSlash(f.Rel())))
			if err != nil {
				filename = ""
			}
			res, err := c.Compile(ctx, CompileRequest{
				Path:         f.Rel(),
				Filename:     filename,
				Source:       string(f.Contents),
				IncludePaths: includes,
				SourceMap:    opts.SourceMaps,
			})
			if err != nil {
				logger.Errorf("Sass Error: %s: %v", f.Rel(), err)
				return &FileError{Step: "sass", Path: f.Rel(), Err: &CompileError{Path: f.Rel(), Message: err.Error()}}
			}
			f.Contents = []byte(res.CSS)
			f.SourceMap = nil
			if opts.SourceMaps && res.SourceMap != "" {
				f.SourceMap = []byte(res.SourceMap)
			}
			f.SetExt(".css")
			return nil
		}).Apply(ctx, sources)
	})
}

// DartSass compiles through the embedded Dart Sass protocol. The compiler
// process starts on first use and lives until Close.
type DartSass struct {
	started    atomic.Bool
	transpiler *safecache.Cache[*godartsass.Transpiler]
}

// NewDartSass uses binaryPath as the Dart Sass executable; "" means "sass"
// on the PATH.
func NewDartSass(binaryPath string) *DartSass {
	d := &DartSass{}
	d.transpiler = safecache.New(func() (*godartsass.Transpiler, error) {
		t, err := godartsass.Start(godartsass.Options{DartSassEmbeddedFilename: binaryPath})
		if err != nil {
			return nil, fmt.Errorf("error starting dart sass: %w", err)
		}
		d.started.Store(true)
		return t, nil
	}, nil)
	return d
}

func (d *DartSass) Compile(ctx context.Context, req CompileRequest) (CompileResult, error) {
	if err := ctx.Err(); err != nil {
		return CompileResult{}, err
	}
	t, err := d.transpiler.Get()
	if err != nil {
		return CompileResult{}, err
	}
	res, err := t.Execute(godartsass.Args{
		Source:                  req.Source,
		URL:                     fileURL(req.Filename),
		SourceSyntax:            godartsass.SourceSyntaxSCSS,
		OutputStyle:             godartsass.OutputStyleExpanded,
		IncludePaths:            req.IncludePaths,
		EnableSourceMap:         req.SourceMap,
		SourceMapIncludeSources: req.SourceMap,
	})
	if err != nil {
		return CompileResult{}, err
	}
	return CompileResult{CSS: res.CSS, SourceMap: res.SourceMap}, nil
}

// fileURL names an absolute path the way Dart Sass expects a source URL.
// "" stays "", which Dart Sass reports as stdin.
func fileURL(filename string) string {
	if filename == "" {
		return ""
	}
	p := filepath.ToSlash(filename)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return (&url.URL{Scheme: "file", Path: p}).String()
}

func (d *DartSass) Close() error {
	if !d.started.Load() {
		return nil
	}
	t, err := d.transpiler.Get()
	if err != nil {
		return nil
	}
	return t.Close()
}
