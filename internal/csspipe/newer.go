package csspipe

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Newer keeps only files modified after their counterpart under
// root/destDir, the counterpart's extension being ext. Files without a
// counterpart are kept.
func Newer(root, destDir, ext string) Step {
	return StepFunc("newer", func(_ context.Context, files []*File) ([]*File, error) {
		out := make([]*File, 0, len(files))
		for _, f := range files {
			target := strings.TrimSuffix(f.Path, path.Ext(f.Path)) + ext
			info, err := os.Stat(filepath.Join(root, filepath.FromSlash(destDir), filepath.FromSlash(target)))
			if err != nil || f.ModTime.After(info.ModTime()) {
				out = append(out, f)
			}
		}
		return out, nil
	})
}
