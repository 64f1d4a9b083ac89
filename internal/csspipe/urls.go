package csspipe

import (
	"context"
	"regexp"
	"strings"
)

var urlRegex = regexp.MustCompile(`url\(([^)]+)\)`)

// AdjustURLs prepends and appends fixed strings to every relative url()
// reference. Absolute, protocol-relative, data and fragment URLs are left
// unchanged.
func AdjustURLs(prefix, suffix string) Step {
	return Each("url-adjust", func(_ context.Context, f *File) error {
		f.Contents = []byte(ResolveCSSURLFuncArgs(string(f.Contents), func(u string) string {
			return prefix + u + suffix
		}))
		return nil
	})
}

// ResolveCSSURLFuncArgs rewrites the argument of each relative url() with
// resolve, keeping the original quoting.
func ResolveCSSURLFuncArgs(css string, resolve func(string) string) string {
	return urlRegex.ReplaceAllStringFunc(css, func(match string) string {
		rawURL := strings.TrimSpace(urlRegex.FindStringSubmatch(match)[1])
		quote := ""
		if len(rawURL) >= 2 && (rawURL[0] == '\'' || rawURL[0] == '"') && rawURL[len(rawURL)-1] == rawURL[0] {
			quote = rawURL[:1]
			rawURL = rawURL[1 : len(rawURL)-1]
		}
		cleanedURL := strings.TrimSpace(rawURL)
		if !isRelativeURL(cleanedURL) {
			return match
		}
		return "url(" + quote + resolve(cleanedURL) + quote + ")"
	})
}

func isRelativeURL(u string) bool {
	switch {
	case u == "",
		strings.HasPrefix(u, "/"),
		strings.HasPrefix(u, "#"),
		strings.HasPrefix(u, "data:"),
		strings.HasPrefix(u, "http"),
		strings.Contains(u, "://"):
		return false
	}
	return true
}
