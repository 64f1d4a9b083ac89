package globset

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeFiles(t *testing.T, root string, paths ...string) {
	t.Helper()
	for _, p := range paths {
		full := filepath.Join(root, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatalf("Failed to create directory: %v", err)
		}
		if err := os.WriteFile(full, []byte("x"), 0644); err != nil {
			t.Fatalf("Failed to write file: %v", err)
		}
	}
}

func TestMatch(t *testing.T) {
	set := New(
		"./styles/blocks/**/*.scss",
		"!./styles/blocks/**/_*.scss",
		"!/**/blocks.scss",
	)

	tests := []struct {
		path string
		want bool
	}{
		{"styles/blocks/header/header.scss", true},
		{"styles/blocks/header/_vars.scss", false},
		{"styles/blocks/blocks.scss", false},
		{"styles/main.scss", false},
		{"styles/blocks/header/header.css", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := set.Match(tt.path); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestMatchLaterIncludeWins(t *testing.T) {
	set := New("**/*.scss", "!**/_*.scss", "styles/_keep.scss")
	if !set.Match("styles/_keep.scss") {
		t.Errorf("expected later include to re-add styles/_keep.scss")
	}
	if set.Match("styles/_drop.scss") {
		t.Errorf("expected styles/_drop.scss to stay excluded")
	}
}

func TestExpand(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root,
		"styles/blocks/b/b.scss",
		"styles/blocks/a/a.scss",
		"styles/blocks/a/_partial.scss",
		"styles/blocks/blocks.scss",
		"styles/main.scss",
	)

	set := New("styles/blocks/**/*.scss", "!styles/blocks/**/_*.scss", "!**/blocks.scss")
	got, err := set.Expand(root)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	want := []string{"styles/blocks/a/a.scss", "styles/blocks/b/b.scss"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expand() = %v, want %v", got, want)
	}
}

func TestExpandDeduplicatesAcrossPatterns(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "styles/main.scss", "styles/blocks/a/a.scss")

	set := New("styles/*.scss", "styles/**/*.scss")
	got, err := set.Expand(root)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	want := []string{"styles/main.scss", "styles/blocks/a/a.scss"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expand() = %v, want %v", got, want)
	}
}

func TestExpandNoMatches(t *testing.T) {
	root := t.TempDir()
	got, err := New("styles/**/*.scss").Expand(root)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expand() = %v, want no files", got)
	}
}

func TestBase(t *testing.T) {
	tests := []struct {
		patterns []string
		want     string
	}{
		{[]string{"styles/**/*.scss"}, "styles"},
		{[]string{"!x", "./styles/common/holsters/*.scss"}, "styles/common/holsters"},
		{[]string{"styles/main.scss"}, "styles"},
		{[]string{"*.scss"}, "."},
		{nil, "."},
	}
	for _, tt := range tests {
		if got := New(tt.patterns...).Base(); got != tt.want {
			t.Errorf("Base(%v) = %q, want %q", tt.patterns, got, tt.want)
		}
	}
}

func TestPatternsRoundTrip(t *testing.T) {
	set := New("./a/**/*.scss", "!/**/b.scss")
	want := []string{"a/**/*.scss", "!**/b.scss"}
	if got := set.Patterns(); !reflect.DeepEqual(got, want) {
		t.Errorf("Patterns() = %v, want %v", got, want)
	}
	if set.IsEmpty() {
		t.Errorf("IsEmpty() = true, want false")
	}
	if !New("!x").IsEmpty() {
		t.Errorf("IsEmpty() = false for exclude-only set")
	}
}
