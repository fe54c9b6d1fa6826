package preseed

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/alessio/shellescape"

	"github.com/lyubomir-popov/maas/internal/domain"
)

// ErrInheritanceCycle is returned when inherit directives form a loop.
var ErrInheritanceCycle = errors.New("template inheritance cycle")

// Context is the key/value mapping fed to templates. Built fresh per
// request and never mutated after construction.
type Context map[string]any

// Template is a parsed preseed template. The dialect supports variable
// substitution ({{key}}), a shell-escaping filter ({{key|escape.shell}})
// and inheritance ({{inherit "name"}}), resolved through the loader's
// parent lookup.
type Template struct {
	Name  string
	nodes []templateNode
}

type templateNode struct {
	kind    nodeKind
	literal string // kindLiteral
	key     string // kindPlaceholder
	filter  string // kindPlaceholder, "" when unfiltered
	parent  string // kindInherit
}

type nodeKind int

const (
	kindLiteral nodeKind = iota
	kindPlaceholder
	kindInherit
)

// ParseTemplate parses source into an explicit node list; inherit
// directives become tagged nodes resolved at render time.
func ParseTemplate(name, source string) (*Template, error) {
	t := &Template{Name: name}
	for len(source) > 0 {
		open := strings.Index(source, "{{")
		if open < 0 {
			t.nodes = append(t.nodes, templateNode{kind: kindLiteral, literal: source})
			break
		}
		if open > 0 {
			t.nodes = append(t.nodes, templateNode{kind: kindLiteral, literal: source[:open]})
		}
		source = source[open+2:]
		closing := strings.Index(source, "}}")
		if closing < 0 {
			return nil, fmt.Errorf("template %s: unterminated directive", name)
		}
		directive := strings.TrimSpace(source[:closing])
		source = source[closing+2:]

		node, err := parseDirective(name, directive)
		if err != nil {
			return nil, err
		}
		t.nodes = append(t.nodes, node)
	}
	return t, nil
}

func parseDirective(name, directive string) (templateNode, error) {
	if rest, ok := strings.CutPrefix(directive, "inherit "); ok {
		parent, err := strconv.Unquote(strings.TrimSpace(rest))
		if err != nil {
			return templateNode{}, fmt.Errorf("template %s: malformed inherit directive %q", name, directive)
		}
		return templateNode{kind: kindInherit, parent: parent}, nil
	}
	key, filter, _ := strings.Cut(directive, "|")
	key = strings.TrimSpace(key)
	filter = strings.TrimSpace(filter)
	if key == "" {
		return templateNode{}, fmt.Errorf("template %s: empty placeholder", name)
	}
	return templateNode{kind: kindPlaceholder, key: key, filter: filter}, nil
}

// Loader resolves and renders templates through an ordered provider list.
type Loader struct {
	Providers []TemplateProvider
}

// Load resolves the most specific template for the machine and prefix,
// including the generic fallback. A mandatory top-level template that
// cannot be found is a fatal, user-visible error for the request.
func (l *Loader) Load(m *domain.Machine, prefix, osystem, release string) (*Template, error) {
	names := ResolveFilenames(m, prefix, osystem, release, true)
	path, content, ok := FindTemplate(l.Providers, names)
	if !ok {
		return nil, &TemplateNotFoundError{Name: prefix}
	}
	return ParseTemplate(path, content)
}

// Render renders t against ctx. Inherit directives re-resolve through the
// ladder restricted to parent lookup (no generic fallback) for the same
// machine, OS and release.
func (l *Loader) Render(t *Template, m *domain.Machine, osystem, release string, ctx Context) (string, error) {
	st := &renderState{
		loader:  l,
		machine: m,
		osystem: osystem,
		release: release,
		visited: map[string]bool{t.Name: true},
	}
	return t.render(st, ctx)
}

type renderState struct {
	loader  *Loader
	machine *domain.Machine
	osystem string
	release string
	visited map[string]bool
}

func (t *Template) render(st *renderState, ctx Context) (string, error) {
	var b strings.Builder
	for _, node := range t.nodes {
		switch node.kind {
		case kindLiteral:
			b.WriteString(node.literal)
		case kindPlaceholder:
			value, ok := ctx[node.key]
			if !ok {
				return "", fmt.Errorf("template %s: name %q is not defined", t.Name, node.key)
			}
			text, err := applyFilter(node.filter, stringify(value))
			if err != nil {
				return "", fmt.Errorf("template %s: %w", t.Name, err)
			}
			b.WriteString(text)
		case kindInherit:
			text, err := st.renderParent(node.parent, ctx)
			if err != nil {
				return "", err
			}
			b.WriteString(text)
		}
	}
	return b.String(), nil
}

// renderParent resolves the named parent. Parent lookup never uses the
// generic fallback; an unresolvable parent fails the render.
func (st *renderState) renderParent(name string, ctx Context) (string, error) {
	names := ResolveFilenames(st.machine, name, st.osystem, st.release, false)
	path, content, ok := FindTemplate(st.loader.Providers, names)
	if !ok {
		return "", &TemplateNotFoundError{Name: name}
	}
	if st.visited[path] {
		return "", fmt.Errorf("%w: %s", ErrInheritanceCycle, path)
	}
	st.visited[path] = true
	parent, err := ParseTemplate(path, content)
	if err != nil {
		return "", err
	}
	return parent.render(st, ctx)
}

func applyFilter(filter, value string) (string, error) {
	switch filter {
	case "":
		return value, nil
	case "escape.shell":
		return shellescape.Quote(value), nil
	default:
		return "", fmt.Errorf("unknown filter %q", filter)
	}
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
