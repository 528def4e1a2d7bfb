package testing

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
)

// TagFilter selects tests by their effective tags: class tags plus method
// tags.
//
// Expressions combine tag names with `|` or `,` (or), `&` (and), `!` (not)
// and parentheses. `&` binds tighter than `|`. The empty expression matches
// every test.
//
//	always-suspending,lazy-state
//	!only-single-node & (state | upgrade)
type TagFilter struct {
	expr string
	root tagNode
}

type tagNode interface {
	match(tags []string) bool
}

type tagLeaf string

func (n tagLeaf) match(tags []string) bool { return slices.Contains(tags, string(n)) }

type tagNot struct{ operand tagNode }

func (n tagNot) match(tags []string) bool { return !n.operand.match(tags) }

type tagAnd []tagNode

func (n tagAnd) match(tags []string) bool {
	for _, op := range n {
		if !op.match(tags) {
			return false
		}
	}
	return true
}

type tagOr []tagNode

func (n tagOr) match(tags []string) bool {
	for _, op := range n {
		if op.match(tags) {
			return true
		}
	}
	return false
}

// ParseTagFilter parses a tag expression.
func ParseTagFilter(expr string) (TagFilter, error) {
	p := &tagParser{input: expr}
	p.skipSpace()
	if p.done() {
		return TagFilter{expr: expr}, nil
	}
	root, err := p.parseOr()
	if err != nil {
		return TagFilter{}, fmt.Errorf("invalid tag expression %q: %w", expr, err)
	}
	if !p.done() {
		return TagFilter{}, fmt.Errorf("invalid tag expression %q: unexpected %q at offset %d", expr, p.input[p.pos], p.pos)
	}
	return TagFilter{expr: expr, root: root}, nil
}

// Match reports whether tags satisfy the filter.
func (f TagFilter) Match(tags []string) bool {
	if f.root == nil {
		return true
	}
	return f.root.match(tags)
}

// String returns the expression the filter was parsed from.
func (f TagFilter) String() string {
	return f.expr
}

type tagParser struct {
	input string
	pos   int
}

func (p *tagParser) done() bool { return p.pos >= len(p.input) }

func (p *tagParser) skipSpace() {
	for !p.done() && unicode.IsSpace(rune(p.input[p.pos])) {
		p.pos++
	}
}

func (p *tagParser) accept(chars string) bool {
	p.skipSpace()
	if !p.done() && strings.IndexByte(chars, p.input[p.pos]) >= 0 {
		p.pos++
		return true
	}
	return false
}

func (p *tagParser) parseOr() (tagNode, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	nodes := tagOr{first}
	for p.accept("|,") {
		next, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, next)
	}
	if len(nodes) == 1 {
		return first, nil
	}
	return nodes, nil
}

func (p *tagParser) parseAnd() (tagNode, error) {
	first, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	nodes := tagAnd{first}
	for p.accept("&") {
		next, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, next)
	}
	if len(nodes) == 1 {
		return first, nil
	}
	return nodes, nil
}

func (p *tagParser) parseUnary() (tagNode, error) {
	if p.accept("!") {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return tagNot{operand}, nil
	}
	if p.accept("(") {
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.accept(")") {
			return nil, fmt.Errorf("missing ')' at offset %d", p.pos)
		}
		return inner, nil
	}
	return p.parseTag()
}

func (p *tagParser) parseTag() (tagNode, error) {
	p.skipSpace()
	start := p.pos
	for !p.done() && isTagChar(rune(p.input[p.pos])) {
		p.pos++
	}
	if start == p.pos {
		if p.done() {
			return nil, fmt.Errorf("expected tag at end of expression")
		}
		return nil, fmt.Errorf("expected tag at offset %d", p.pos)
	}
	return tagLeaf(p.input[start:p.pos]), nil
}

func isTagChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("-_.:/", r)
}
