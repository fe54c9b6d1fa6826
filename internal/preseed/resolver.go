package preseed

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/lyubomir-popov/maas/internal/domain"
)

// GenericName is the last-resort template name appended when defaults are
// requested.
const GenericName = "generic"

// TemplateProvider is one named source of template content. Providers are
// composed into an ordered list at startup; lookup walks candidate names
// in specificity order and providers in configured order.
type TemplateProvider interface {
	// Lookup returns the content stored under name, and whether it exists.
	Lookup(name string) (string, bool)
	// Path names where the content came from, for error messages.
	Path(name string) string
}

// DirProvider serves templates from files in a directory.
type DirProvider struct {
	Dir string
}

func (p DirProvider) Lookup(name string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(p.Dir, name))
	if err != nil {
		return "", false
	}
	return string(data), true
}

func (p DirProvider) Path(name string) string {
	return filepath.Join(p.Dir, name)
}

// MemProvider serves templates from memory; used in tests.
type MemProvider map[string]string

func (p MemProvider) Lookup(name string) (string, bool) {
	content, ok := p[name]
	return content, ok
}

func (p MemProvider) Path(name string) string {
	return "mem:" + name
}

// ResolveFilenames returns candidate template names from most to least
// specific. The full ladder with a machine present is
//
//	{prefix}_{osystem}_{arch}_{subarch}_{release}_{hostname}
//
// dropping hostname, then release, then subarch, then arch, then osystem,
// down to the bare prefix, with GenericName appended when includeDefault
// is set. Without a machine only the OS/release/prefix-level names are
// produced. For the primary supported distribution each stage that still
// carries the OS segment is followed by the same name with the OS segment
// omitted; duplicates are dropped while preserving order.
func ResolveFilenames(m *domain.Machine, prefix, osystem, release string, includeDefault bool) []string {
	var elements []string
	if prefix != "" {
		elements = append(elements, prefix)
	}
	if osystem != "" {
		elements = append(elements, osystem)
	}
	if m != nil {
		arch, subarch := m.SplitArch()
		elements = append(elements, arch, subarch)
	}
	if release != "" {
		elements = append(elements, release)
	}
	if m != nil {
		elements = append(elements, m.Hostname)
	}

	var names []string
	seen := make(map[string]bool)
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for len(elements) > 0 {
		add(composeFilename(elements))
		if osystem == domain.DefaultOSystem {
			add(composeFilename(withoutElement(elements, osystem)))
		}
		elements = elements[:len(elements)-1]
	}
	if includeDefault {
		add(GenericName)
	}
	return names
}

func composeFilename(elements []string) string {
	return strings.Join(elements, "_")
}

// withoutElement returns elements with the first occurrence of value
// removed, leaving the input untouched.
func withoutElement(elements []string, value string) []string {
	for i, e := range elements {
		if e == value {
			out := make([]string, 0, len(elements)-1)
			out = append(out, elements[:i]...)
			return append(out, elements[i+1:]...)
		}
	}
	return elements
}

// FindTemplate walks candidate names in order, trying each provider in
// configured order, and returns the first match. ok is false when no
// provider is configured or nothing matched.
func FindTemplate(providers []TemplateProvider, names []string) (path, content string, ok bool) {
	for _, name := range names {
		for _, provider := range providers {
			if body, found := provider.Lookup(name); found {
				return provider.Path(name), body, true
			}
		}
	}
	return "", "", false
}
