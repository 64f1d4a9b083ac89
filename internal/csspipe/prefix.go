package csspipe

import (
	"slices"
	"strconv"
	"strings"
)

// browser versions up to and including the given one need the prefix.
type prefixRule struct {
	property string
	prefix   string
	upTo     map[string]float64
}

const evergreen = 1e6

var prefixTable = []prefixRule{
	{"transition", "-webkit-", map[string]float64{"safari": 6, "ios": 6.1, "android": 4.3, "chrome": 25}},
	{"transition", "-o-", map[string]float64{"opera": 12}},
	{"transform", "-webkit-", map[string]float64{"safari": 8, "ios": 8.4, "android": 4.4, "chrome": 35}},
	{"transform", "-ms-", map[string]float64{"ie": 9}},
	{"transform-origin", "-webkit-", map[string]float64{"safari": 8, "ios": 8.4, "android": 4.4, "chrome": 35}},
	{"transform-origin", "-ms-", map[string]float64{"ie": 9}},
	{"animation", "-webkit-", map[string]float64{"safari": 8, "ios": 8.4, "android": 4.4, "chrome": 42}},
	{"box-sizing", "-webkit-", map[string]float64{"safari": 5, "ios": 4.3, "android": 3}},
	{"box-sizing", "-moz-", map[string]float64{"firefox": 28}},
	{"box-shadow", "-webkit-", map[string]float64{"safari": 5, "ios": 4.3, "android": 3}},
	{"border-radius", "-webkit-", map[string]float64{"safari": 4, "ios": 3.2, "android": 2.1}},
	{"background-size", "-webkit-", map[string]float64{"safari": 4, "android": 2.3}},
	{"backface-visibility", "-webkit-", map[string]float64{"safari": evergreen, "ios": evergreen, "android": 4.4, "chrome": 35}},
	{"perspective", "-webkit-", map[string]float64{"safari": 8, "ios": 8.4, "android": 4.4, "chrome": 35}},
	{"user-select", "-webkit-", map[string]float64{"safari": evergreen, "ios": evergreen, "android": 4.4, "chrome": 53}},
	{"user-select", "-moz-", map[string]float64{"firefox": 68}},
	{"user-select", "-ms-", map[string]float64{"ie": 11, "edge": 18}},
	{"appearance", "-webkit-", map[string]float64{"safari": evergreen, "ios": evergreen, "chrome": evergreen, "edge": evergreen, "android": evergreen}},
	{"appearance", "-moz-", map[string]float64{"firefox": 79}},
	{"hyphens", "-webkit-", map[string]float64{"safari": evergreen, "ios": evergreen}},
	{"hyphens", "-ms-", map[string]float64{"ie": 11, "edge": 18}},
}

var browserAliases = map[string]string{
	"explorer":   "ie",
	"ios_saf":    "ios",
	"ios_safari": "ios",
	"ff":         "firefox",
}

// Targets is the lowest version of each browser to support.
type Targets map[string]float64

// ParseTargets reads browserslist-style queries such as "ie 8",
// "android 4" or "last 2 versions". "last N versions" adds the current
// evergreen browsers.
func ParseTargets(queries ...string) Targets {
	t := Targets{}
	add := func(name string, v float64) {
		if cur, ok := t[name]; !ok || v < cur {
			t[name] = v
		}
	}
	for _, q := range queries {
		fields := strings.Fields(strings.ToLower(q))
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "last" {
			for _, b := range []string{"chrome", "firefox", "safari", "ios", "edge", "android"} {
				add(b, evergreen)
			}
			continue
		}
		if len(fields) != 2 {
			continue
		}
		name := fields[0]
		if alias, ok := browserAliases[name]; ok {
			name = alias
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			continue
		}
		add(name, v)
	}
	return t
}

// Prefixes returns the vendor prefixes property needs for t, in table order.
func (t Targets) Prefixes(property string) []string {
	var out []string
	for _, r := range prefixTable {
		if r.property != property {
			continue
		}
		for browser, upTo := range r.upTo {
			if v, ok := t[browser]; ok && v <= upTo {
				out = append(out, r.prefix)
				break
			}
		}
	}
	return out
}

// Autoprefix adds vendor-prefixed copies of declarations (and of
// @keyframes blocks) that the target browsers need.
func Autoprefix(browsers ...string) Step {
	targets := ParseTargets(browsers...)
	return treeStep("autoprefixer", true, func(_ *File, s *Stylesheet) error {
		s.Nodes = targets.prefixNodes(s.Nodes)
		return nil
	})
}

func (t Targets) prefixNodes(nodes []Node) []Node {
	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		switch n := n.(type) {
		case *Rule:
			n.Declarations = t.prefixDeclarations(n.Declarations)
		case *AtRule:
			if n.Name == "@keyframes" && slices.Contains(t.Prefixes("animation"), "-webkit-") {
				out = append(out, &AtRule{
					Name:     "@-webkit-keyframes",
					Prelude:  n.Prelude,
					Block:    true,
					Children: t.prefixNodes(cloneNodes(n.Children)),
				})
			}
			n.Children = t.prefixNodes(n.Children)
		}
		out = append(out, n)
	}
	return out
}

func (t Targets) prefixDeclarations(decls []Declaration) []Declaration {
	present := map[string]bool{}
	for _, d := range decls {
		present[d.Property] = true
	}
	out := make([]Declaration, 0, len(decls))
	for _, d := range decls {
		for _, p := range t.Prefixes(d.Property) {
			if !present[p+d.Property] {
				out = append(out, Declaration{Property: p + d.Property, Value: d.Value})
			}
		}
		out = append(out, d)
	}
	return out
}

func cloneNodes(nodes []Node) []Node {
	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		switch n := n.(type) {
		case *Rule:
			out = append(out, &Rule{
				Selectors:    append([]string(nil), n.Selectors...),
				Declarations: append([]Declaration(nil), n.Declarations...),
			})
		case *AtRule:
			out = append(out, &AtRule{Name: n.Name, Prelude: n.Prelude, Block: n.Block, Children: cloneNodes(n.Children)})
		case *Declaration:
			d := *n
			out = append(out, &d)
		}
	}
	return out
}

// DefaultBrowsers is the target list of the theme build.
var DefaultBrowsers = []string{"last 2 version", "safari 5", "ie 8", "ie 9", "opera 12.1", "ios 6", "android 4"}
