package csspipe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// Node is a Rule, an AtRule or a Declaration.
type Node interface {
	write(buf *bytes.Buffer, beautify bool, depth int)
}

type Declaration struct {
	Property string
	Value    string
}

type Rule struct {
	Selectors    []string
	Declarations []Declaration
}

// AtRule is either a statement (@import, @charset) or, when Block is set, a
// block whose Children may hold rules, nested at-rules or declarations
// (@font-face, @page).
type AtRule struct {
	Name     string // including "@"
	Prelude  string
	Block    bool
	Children []Node
}

// Stylesheet is a minimal CSS tree: enough structure to prefix, filter and
// regroup rules. Ordinary comments are dropped.
type Stylesheet struct {
	Nodes []Node
}

func ParseStylesheet(src []byte) (*Stylesheet, error) {
	p := css.NewParser(parse.NewInputBytes(src), false)

	root := &AtRule{Block: true}
	stack := []*AtRule{root}
	var rule *Rule
	var selectors []string

	top := func() *AtRule { return stack[len(stack)-1] }

	for {
		gt, _, data := p.Next()
		switch gt {
		case css.ErrorGrammar:
			if err := p.Err(); err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("error parsing stylesheet: %w", err)
			}
			return &Stylesheet{Nodes: root.Children}, nil
		case css.AtRuleGrammar:
			top().Children = append(top().Children, &AtRule{
				Name:    string(data),
				Prelude: tokensString(p.Values()),
			})
		case css.BeginAtRuleGrammar:
			at := &AtRule{Name: string(data), Prelude: tokensString(p.Values()), Block: true}
			top().Children = append(top().Children, at)
			stack = append(stack, at)
		case css.EndAtRuleGrammar:
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		case css.QualifiedRuleGrammar:
			selectors = append(selectors, tokensString(p.Values()))
		case css.BeginRulesetGrammar:
			selectors = append(selectors, tokensString(p.Values()))
			rule = &Rule{Selectors: selectors}
			selectors = nil
			top().Children = append(top().Children, rule)
		case css.EndRulesetGrammar:
			rule = nil
		case css.DeclarationGrammar, css.CustomPropertyGrammar:
			decl := Declaration{Property: string(data), Value: tokensString(p.Values())}
			if rule != nil {
				rule.Declarations = append(rule.Declarations, decl)
			} else {
				top().Children = append(top().Children, &decl)
			}
		}
	}
}

func tokensString(tokens []css.Token) string {
	var sb strings.Builder
	for _, t := range tokens {
		sb.Write(t.Data)
	}
	return strings.TrimSpace(sb.String())
}

func (s *Stylesheet) Bytes(beautify bool) []byte {
	var buf bytes.Buffer
	for _, n := range s.Nodes {
		n.write(&buf, beautify, 0)
	}
	return buf.Bytes()
}

func indent(buf *bytes.Buffer, beautify bool, depth int) {
	if beautify {
		buf.WriteString(strings.Repeat("  ", depth))
	}
}

func newline(buf *bytes.Buffer, beautify bool) {
	if beautify {
		buf.WriteByte('\n')
	}
}

func (d *Declaration) write(buf *bytes.Buffer, beautify bool, depth int) {
	indent(buf, beautify, depth)
	buf.WriteString(d.Property)
	buf.WriteByte(':')
	if beautify {
		buf.WriteByte(' ')
	}
	buf.WriteString(d.Value)
	buf.WriteByte(';')
	newline(buf, beautify)
}

func (r *Rule) write(buf *bytes.Buffer, beautify bool, depth int) {
	indent(buf, beautify, depth)
	sep := ","
	if beautify {
		sep = ",\n" + strings.Repeat("  ", depth)
	}
	buf.WriteString(strings.Join(r.Selectors, sep))
	if beautify {
		buf.WriteByte(' ')
	}
	buf.WriteByte('{')
	newline(buf, beautify)
	for i := range r.Declarations {
		r.Declarations[i].write(buf, beautify, depth+1)
	}
	indent(buf, beautify, depth)
	buf.WriteByte('}')
	newline(buf, beautify)
}

func (a *AtRule) write(buf *bytes.Buffer, beautify bool, depth int) {
	indent(buf, beautify, depth)
	buf.WriteString(a.Name)
	if a.Prelude != "" {
		buf.WriteByte(' ')
		buf.WriteString(a.Prelude)
	}
	if !a.Block {
		buf.WriteByte(';')
		newline(buf, beautify)
		return
	}
	if beautify {
		buf.WriteByte(' ')
	}
	buf.WriteByte('{')
	newline(buf, beautify)
	for _, c := range a.Children {
		c.write(buf, beautify, depth+1)
	}
	indent(buf, beautify, depth)
	buf.WriteByte('}')
	newline(buf, beautify)
}

var specialCommentRegex = regexp.MustCompile(`(?s)/\*!.*?\*/`)

// splitSpecialComments removes "/*! ... */" comments from src and returns
// them in order of appearance.
func splitSpecialComments(src []byte) (comments [][]byte, rest []byte) {
	comments = specialCommentRegex.FindAll(src, -1)
	rest = specialCommentRegex.ReplaceAll(src, nil)
	return comments, rest
}

// treeStep parses each file, hands the tree to fn and serializes it back.
// "/*!" comments are kept at the top of the file.
func treeStep(name string, beautify bool, fn func(f *File, s *Stylesheet) error) Step {
	return Each(name, func(_ context.Context, f *File) error {
		comments, rest := splitSpecialComments(f.Contents)
		sheet, err := ParseStylesheet(rest)
		if err != nil {
			return err
		}
		if err := fn(f, sheet); err != nil {
			return err
		}
		var buf bytes.Buffer
		for _, c := range comments {
			buf.Write(c)
			buf.WriteByte('\n')
		}
		buf.Write(sheet.Bytes(beautify))
		f.Contents = buf.Bytes()
		return nil
	})
}
