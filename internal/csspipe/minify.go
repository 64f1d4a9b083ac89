package csspipe

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
)

type MinifyOptions struct {
	// Compatibility is a browser floor such as "ie8". Floors below IE9
	// keep the output valid CSS2.
	Compatibility string

	// KeepSpecialComments is how many "/*! ... */" comments survive, in
	// order of appearance; negative keeps all.
	KeepSpecialComments int
}

func Minify(opts MinifyOptions) Step {
	m := minify.New()
	m.Add("text/css", &css.Minifier{KeepCSS2: keepsCSS2(opts.Compatibility)})

	return Each("minify", func(_ context.Context, f *File) error {
		comments, rest := splitSpecialComments(f.Contents)
		minified, err := m.Bytes("text/css", rest)
		if err != nil {
			return fmt.Errorf("error minifying CSS: %w", err)
		}
		if opts.KeepSpecialComments >= 0 && len(comments) > opts.KeepSpecialComments {
			comments = comments[:opts.KeepSpecialComments]
		}
		var buf bytes.Buffer
		for _, c := range comments {
			buf.Write(c)
			buf.WriteByte('\n')
		}
		buf.Write(minified)
		f.Contents = buf.Bytes()
		f.SourceMap = nil
		return nil
	})
}

func keepsCSS2(compat string) bool {
	switch strings.ToLower(strings.TrimSpace(compat)) {
	case "ie7", "ie8":
		return true
	}
	return false
}
