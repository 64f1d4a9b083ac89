// Package globset implements ordered include/exclude glob pattern sets.
//
// A pattern prefixed with "!" excludes. Patterns are evaluated in order and
// the last matching pattern decides, so later exclusions subtract from
// earlier inclusions (and a later inclusion can add a path back).
package globset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/sjc5/kit/pkg/typed"
)

type pattern struct {
	glob    string
	exclude bool
}

type Set struct {
	patterns []pattern
}

// New builds a Set. A leading "./" or "/" is trimmed from every pattern, so
// "!/**/blocks.scss" excludes blocks.scss anywhere below the root.
func New(patterns ...string) Set {
	s := Set{patterns: make([]pattern, 0, len(patterns))}
	for _, p := range patterns {
		exclude := strings.HasPrefix(p, "!")
		p = strings.TrimPrefix(p, "!")
		p = normalize(p)
		if p == "" {
			continue
		}
		s.patterns = append(s.patterns, pattern{glob: p, exclude: exclude})
	}
	return s
}

func normalize(p string) string {
	p = filepath.ToSlash(strings.TrimSpace(p))
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	return strings.TrimLeft(p, "/")
}

// Patterns returns the set in its original "!"-prefixed notation.
func (s Set) Patterns() []string {
	out := make([]string, 0, len(s.patterns))
	for _, p := range s.patterns {
		if p.exclude {
			out = append(out, "!"+p.glob)
		} else {
			out = append(out, p.glob)
		}
	}
	return out
}

func (s Set) IsEmpty() bool {
	for _, p := range s.patterns {
		if !p.exclude {
			return false
		}
	}
	return true
}

var matchResults = typed.SyncMap[string, bool]{}

func isMatch(glob, name string) bool {
	combined := glob + "\x00" + name
	if hit, isCached := matchResults.Load(combined); isCached {
		return hit
	}
	matches, err := doublestar.Match(glob, name)
	if err != nil {
		return false
	}
	actualValue, _ := matchResults.LoadOrStore(combined, matches)
	return actualValue
}

// Match reports whether relPath (relative to the set's root) is selected.
func (s Set) Match(relPath string) bool {
	name := normalize(relPath)
	matched := false
	for _, p := range s.patterns {
		if isMatch(p.glob, name) {
			matched = !p.exclude
		}
	}
	return matched
}

// Expand lists the regular files below root selected by the set. Results
// keep the traversal order of the glob engine, include pattern by include
// pattern, without duplicates.
func (s Set) Expand(root string) ([]string, error) {
	fsys := os.DirFS(filepath.Clean(root))

	seen := map[string]bool{}
	var out []string
	for _, p := range s.patterns {
		if p.exclude {
			continue
		}
		matches, err := doublestar.Glob(fsys, p.glob, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("error expanding pattern %q: %w", p.glob, err)
		}
		for _, m := range matches {
			if seen[m] || !s.Match(m) {
				continue
			}
			seen[m] = true
			out = append(out, m)
		}
	}
	return out, nil
}

// Base returns the glob parent of the first include pattern: the leading
// directories that contain no glob metacharacters. "." when there are none.
func (s Set) Base() string {
	for _, p := range s.patterns {
		if p.exclude {
			continue
		}
		base, _ := doublestar.SplitPattern(p.glob)
		if base == "" {
			return "."
		}
		return base
	}
	return "."
}
