// Package prompt implements the Prompt Renderer (spec §4.2, §9 C1): a small
// mustache-like template language supporting dotted field access and
// bracket indexing, backed by a bounded LRU of compiled templates so a
// question's templates are parsed once regardless of how many interviews
// render it.
//
// The bracket-index form ({{ a[i] }}) and the precise piping grammar of
// spec §4.1 ({{ prior_question.answer[i] }}) have no equivalent in
// text/template, whose index syntax is a function call rather than bracket
// notation — so the renderer is a small hand-written interpreter rather
// than a thin wrapper over the standard library, in the teacher's habit of
// writing small purpose-built interpreters (expr/, dsl/) instead of
// repurposing a general one for a narrow grammar.
package prompt

import (
	"fmt"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// node is one parsed template segment: either literal text or a reference.
type node struct {
	literal string
	ref     []refPart // non-nil for a reference node
}

type refPart struct {
	field string
	index int // -1 when this part is a plain field, not a[index]
}

// compiled is a parsed template, cached by source text.
type compiled struct {
	nodes []node
}

// Cache is a bounded LRU of compiled templates keyed by source text (spec
// §4.2: "cached as compiled templates keyed by template source (bounded
// LRU, ≥ 2048 entries)").
type Cache struct {
	lru *lru.Cache[string, *compiled]
}

// NewCache constructs a Cache with the given capacity. Capacity below 2048
// is rejected to preserve the spec's minimum guarantee.
func NewCache(capacity int) (*Cache, error) {
	if capacity < 2048 {
		return nil, fmt.Errorf("prompt: template cache capacity must be >= 2048, got %d", capacity)
	}
	c, err := lru.New[string, *compiled](capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: c}, nil
}

// TemplateRenderError is returned when a template fails to parse or a
// referenced name cannot be resolved against the render context (spec
// §4.1: "Unresolved references after rendering are a TemplateRenderError").
type TemplateRenderError struct {
	Template string
	Reason   string
}

func (e *TemplateRenderError) Error() string {
	return fmt.Sprintf("prompt: template render error: %s (template: %q)", e.Reason, e.Template)
}

func (c *Cache) compile(src string) (*compiled, error) {
	if cc, ok := c.lru.Get(src); ok {
		return cc, nil
	}
	cc, err := parse(src)
	if err != nil {
		return nil, err
	}
	c.lru.Add(src, cc)
	return cc, nil
}

// Render expands src against data, a tree of maps/slices/scalars keyed by
// the top-level names used in references (e.g. "scenario", "agent", a prior
// question's name). Unresolved references produce a *TemplateRenderError.
func (c *Cache) Render(src string, data map[string]any) (string, error) {
	cc, err := c.compile(src)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, n := range cc.nodes {
		if n.ref == nil {
			b.WriteString(n.literal)
			continue
		}
		v, ok := resolve(data, n.ref)
		if !ok {
			return "", &TemplateRenderError{Template: src, Reason: fmt.Sprintf("unresolved reference %s", refString(n.ref))}
		}
		b.WriteString(stringify(v))
	}
	return b.String(), nil
}

func refString(parts []refPart) string {
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteString(".")
		}
		b.WriteString(p.field)
		if p.index >= 0 {
			fmt.Fprintf(&b, "[%d]", p.index)
		}
	}
	return b.String()
}

func parse(src string) (*compiled, error) {
	var nodes []node
	rest := src
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			if rest != "" {
				nodes = append(nodes, node{literal: rest})
			}
			break
		}
		if start > 0 {
			nodes = append(nodes, node{literal: rest[:start]})
		}
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			return nil, &TemplateRenderError{Template: src, Reason: "unbalanced {{ }} delimiter"}
		}
		end += start
		expr := strings.TrimSpace(rest[start+2 : end])
		ref, err := parseRef(expr)
		if err != nil {
			return nil, &TemplateRenderError{Template: src, Reason: err.Error()}
		}
		nodes = append(nodes, node{ref: ref})
		rest = rest[end+2:]
	}
	return &compiled{nodes: nodes}, nil
}

// parseRef parses "a.b[2].c" into a sequence of refParts.
func parseRef(expr string) ([]refPart, error) {
	if expr == "" {
		return nil, fmt.Errorf("empty reference")
	}
	var parts []refPart
	for _, segment := range strings.Split(expr, ".") {
		field := segment
		idx := -1
		if b := strings.IndexByte(segment, '['); b >= 0 {
			if !strings.HasSuffix(segment, "]") {
				return nil, fmt.Errorf("malformed index in %q", segment)
			}
			field = segment[:b]
			n, err := strconv.Atoi(segment[b+1 : len(segment)-1])
			if err != nil {
				return nil, fmt.Errorf("non-integer index in %q", segment)
			}
			idx = n
		}
		if field == "" {
			return nil, fmt.Errorf("empty path segment in %q", expr)
		}
		parts = append(parts, refPart{field: field, index: idx})
	}
	return parts, nil
}

func resolve(data map[string]any, parts []refPart) (any, bool) {
	var cur any = data
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[p.field]
		if !ok {
			return nil, false
		}
		if p.index >= 0 {
			list, ok := v.([]any)
			if !ok || p.index >= len(list) {
				return nil, false
			}
			v = list[p.index]
		}
		cur = v
	}
	return cur, true
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
