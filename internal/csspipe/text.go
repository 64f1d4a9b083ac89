package csspipe

import (
	"bytes"
	"context"
	"path"
	"regexp"
)

// Replace substitutes every occurrence of old with new.
func Replace(old, new string) Step {
	return Each("replace", func(_ context.Context, f *File) error {
		f.Contents = bytes.ReplaceAll(f.Contents, []byte(old), []byte(new))
		return nil
	})
}

// ReplaceRegexp rewrites every match of re with repl, which may reference
// submatches as in regexp.Regexp.Expand.
func ReplaceRegexp(re *regexp.Regexp, repl string) Step {
	return Each("replace", func(_ context.Context, f *File) error {
		f.Contents = re.ReplaceAll(f.Contents, []byte(repl))
		return nil
	})
}

func Wrap(prefix, suffix string) Step {
	return Each("wrap", func(_ context.Context, f *File) error {
		wrapped := make([]byte, 0, len(prefix)+len(f.Contents)+len(suffix))
		wrapped = append(wrapped, prefix...)
		wrapped = append(wrapped, f.Contents...)
		wrapped = append(wrapped, suffix...)
		f.Contents = wrapped
		return nil
	})
}

// Rename keeps each file in its directory under a new name.
func Rename(name string) Step {
	return Each("rename", func(_ context.Context, f *File) error {
		f.Path = path.Join(path.Dir(f.Path), name)
		return nil
	})
}

// Concat joins the stream, in order, into a single file named name, based
// where the first file was. An empty stream stays empty.
func Concat(name string) Step {
	return StepFunc("concat", func(_ context.Context, files []*File) ([]*File, error) {
		if len(files) == 0 {
			return nil, nil
		}
		var buf bytes.Buffer
		for i, f := range files {
			if i > 0 {
				buf.WriteByte('\n')
			}
			buf.Write(f.Contents)
		}
		return []*File{{
			Base:     files[0].Base,
			Path:     name,
			Contents: buf.Bytes(),
			ModTime:  files[0].ModTime,
		}}, nil
	})
}
