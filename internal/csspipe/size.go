package csspipe

import (
	"bytes"
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"
	"github.com/sjc5/holster/internal/util"
)

type SizeOptions struct {
	Limit  int64
	Gzip   bool
	Logger util.Logger
}

// CheckSize fails the run with a SizeLimitError when a file (gzipped, if
// asked) is larger than the limit. The error is not a FileError, so an
// error trap never swallows it.
func CheckSize(opts SizeOptions) Step {
	logger := opts.Logger
	if logger == nil {
		logger = util.Log
	}
	return StepFunc("check-filesize", func(_ context.Context, files []*File) ([]*File, error) {
		for _, f := range files {
			size := int64(len(f.Contents))
			if opts.Gzip {
				var err error
				if size, err = GzipSize(f.Contents); err != nil {
					return nil, fmt.Errorf("error gzipping %s: %w", f.Rel(), err)
				}
			}
			logger.Infof(
				"%s: %s raw, %s checked against %s",
				f.Rel(),
				humanize.Bytes(uint64(len(f.Contents))),
				humanize.Bytes(uint64(size)),
				humanize.Bytes(uint64(opts.Limit)),
			)
			if size > opts.Limit {
				return nil, &SizeLimitError{Path: f.Rel(), Size: size, Limit: opts.Limit, Gzip: opts.Gzip}
			}
		}
		return files, nil
	})
}

func GzipSize(b []byte) (int64, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return 0, err
	}
	if _, err := w.Write(b); err != nil {
		return 0, err
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	return int64(buf.Len()), nil
}
