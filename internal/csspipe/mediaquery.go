package csspipe

import "strings"

// CombineMediaQueries merges top-level @media blocks with the same query
// and moves them, in order of first appearance, after all other rules.
func CombineMediaQueries(beautify bool) Step {
	return treeStep("combine-mq", beautify, func(_ *File, s *Stylesheet) error {
		s.Nodes = combineMediaQueries(s.Nodes)
		return nil
	})
}

func combineMediaQueries(nodes []Node) []Node {
	var rest []Node
	var order []string
	groups := map[string]*AtRule{}

	for _, n := range nodes {
		at, ok := n.(*AtRule)
		if !ok || at.Name != "@media" || !at.Block {
			rest = append(rest, n)
			continue
		}
		key := normalizeMediaQuery(at.Prelude)
		group, exists := groups[key]
		if !exists {
			group = &AtRule{Name: at.Name, Prelude: at.Prelude, Block: true}
			groups[key] = group
			order = append(order, key)
		}
		group.Children = append(group.Children, at.Children...)
	}

	out := rest
	for _, key := range order {
		out = append(out, groups[key])
	}
	return out
}

func normalizeMediaQuery(q string) string {
	q = strings.ToLower(strings.Join(strings.Fields(q), " "))
	q = strings.ReplaceAll(q, ": ", ":")
	q = strings.ReplaceAll(q, "( ", "(")
	return strings.ReplaceAll(q, " )", ")")
}
