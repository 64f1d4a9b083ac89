package csspipe

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

// CompileError is a preprocessor failure for a single source file.
type CompileError struct {
	Path    string
	Message string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// FileError reports a failure transforming a single file of the stream.
// Only FileErrors are swallowed by an installed error trap.
type FileError struct {
	Step string
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("error in step %s on %s: %v", e.Step, e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// SizeLimitError is returned by CheckSize when an artifact is too large.
type SizeLimitError struct {
	Path  string
	Size  int64
	Limit int64
	Gzip  bool
}

func (e *SizeLimitError) Error() string {
	kind := "raw"
	if e.Gzip {
		kind = "gzipped"
	}
	return fmt.Sprintf(
		"%s is %s (%s), over the limit of %s",
		e.Path, humanize.Bytes(uint64(e.Size)), kind, humanize.Bytes(uint64(e.Limit)),
	)
}

// fileErrors flattens err into its FileErrors. ok is false when err holds
// anything other than FileErrors.
func fileErrors(err error) (out []*FileError, ok bool) {
	var walk func(error) bool
	walk = func(e error) bool {
		if joined, isJoined := e.(interface{ Unwrap() []error }); isJoined {
			for _, inner := range joined.Unwrap() {
				if !walk(inner) {
					return false
				}
			}
			return true
		}
		var fe *FileError
		if errors.As(e, &fe) {
			out = append(out, fe)
			return true
		}
		return false
	}
	return out, walk(err)
}
