package csspipe

import (
	"context"
	"encoding/base64"
)

const sourceMapURLPrefix = "/*# sourceMappingURL=data:application/json;charset=utf8;base64,"

// WriteSourceMaps inlines each file's source map as a trailing comment.
// Files without a map pass through untouched.
func WriteSourceMaps() Step {
	return Each("sourcemaps", func(_ context.Context, f *File) error {
		if len(f.SourceMap) == 0 {
			return nil
		}
		comment := sourceMapURLPrefix + base64.StdEncoding.EncodeToString(f.SourceMap) + " */\n"
		if n := len(f.Contents); n > 0 && f.Contents[n-1] != '\n' {
			f.Contents = append(f.Contents, '\n')
		}
		f.Contents = append(f.Contents, comment...)
		return nil
	})
}
