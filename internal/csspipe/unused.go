package csspipe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sjc5/holster/internal/globset"
)

// Corpus is the set of words found in markup and script files. A class or
// id absent from the corpus is considered unused.
type Corpus map[string]struct{}

var wordRegex = regexp.MustCompile(`[A-Za-z0-9_-]+`)

// BuildCorpus collects the words of every file under root selected by set.
func BuildCorpus(ctx context.Context, root string, set globset.Set) (Corpus, error) {
	matches, err := set.Expand(root)
	if err != nil {
		return nil, err
	}
	c := Corpus{}
	for _, rel := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return nil, fmt.Errorf("error reading %s: %w", rel, err)
		}
		c.Add(string(content))
	}
	return c, nil
}

func (c Corpus) Add(text string) {
	for _, w := range wordRegex.FindAllString(text, -1) {
		c[w] = struct{}{}
	}
}

func (c Corpus) Has(word string) bool {
	_, ok := c[word]
	return ok
}

var (
	selectorNameRegex   = regexp.MustCompile(`[.#](-?[_a-zA-Z][_a-zA-Z0-9-]*)`)
	selectorStripRegex  = regexp.MustCompile(`\[[^\]]*\]|"[^"]*"|'[^']*'`)
	keepChildrenAtRules = map[string]bool{"@font-face": true, "@page": true, "@charset": true, "@import": true}
)

// SelectorUsed reports whether every class and id named by sel appears in
// the corpus. Selectors without classes or ids (element selectors) are kept.
func (c Corpus) SelectorUsed(sel string) bool {
	stripped := selectorStripRegex.ReplaceAllString(sel, "")
	for _, m := range selectorNameRegex.FindAllStringSubmatch(stripped, -1) {
		if !c.Has(m[1]) {
			return false
		}
	}
	return true
}

// RemoveUnused drops selectors whose classes or ids never appear in the
// corpus, then rules left without selectors and blocks left empty.
func RemoveUnused(corpus Corpus) Step {
	return treeStep("remove-unused-css", true, func(_ *File, s *Stylesheet) error {
		s.Nodes = corpus.filterNodes(s.Nodes)
		return nil
	})
}

func (c Corpus) filterNodes(nodes []Node) []Node {
	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		switch n := n.(type) {
		case *Rule:
			kept := n.Selectors[:0]
			for _, sel := range n.Selectors {
				if c.SelectorUsed(sel) {
					kept = append(kept, sel)
				}
			}
			if len(kept) == 0 {
				continue
			}
			n.Selectors = kept
		case *AtRule:
			if !n.Block || keepChildrenAtRules[n.Name] || strings.HasSuffix(n.Name, "keyframes") {
				break
			}
			n.Children = c.filterNodes(n.Children)
			if len(n.Children) == 0 {
				continue
			}
		}
		out = append(out, n)
	}
	return out
}
