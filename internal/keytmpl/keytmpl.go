// Package keytmpl parses and resolves primary-key templates for mapped entities.
//
// A template mixes literal text with ${attribute} placeholders, e.g.
// "USER#${id}" or "ORG#${org}#ROLE#${role}". Templates are parsed once when
// an entity is registered and resolved against attribute values per operation.
package keytmpl

import (
	"fmt"
	"strings"
)

// segment is one piece of a parsed template: either a literal or a placeholder.
type segment struct {
	literal string
	attr    string // non-empty means placeholder
}

// Template is a parsed key template, immutable after Parse.
type Template struct {
	raw      string
	segments []segment
	attrs    []string
}

// MissingAttributeError reports a placeholder whose attribute value was not
// supplied at resolution time.
type MissingAttributeError struct {
	Pattern   string
	Attribute string
}

func (e *MissingAttributeError) Error() string {
	return fmt.Sprintf("keytmpl: attribute %q required by pattern %q is missing", e.Attribute, e.Pattern)
}

// Parse parses a key template pattern. It fails on unterminated or empty
// placeholders.
func Parse(pattern string) (*Template, error) {
	t := &Template{raw: pattern}
	rest := pattern
	for rest != "" {
		start := strings.Index(rest, "${")
		if start < 0 {
			t.segments = append(t.segments, segment{literal: rest})
			break
		}
		if start > 0 {
			t.segments = append(t.segments, segment{literal: rest[:start]})
		}
		end := strings.Index(rest[start:], "}")
		if end < 0 {
			return nil, fmt.Errorf("keytmpl: unterminated placeholder in pattern %q", pattern)
		}
		attr := rest[start+2 : start+end]
		if attr == "" {
			return nil, fmt.Errorf("keytmpl: empty placeholder in pattern %q", pattern)
		}
		t.segments = append(t.segments, segment{attr: attr})
		t.attrs = append(t.attrs, attr)
		rest = rest[start+end+1:]
	}
	return t, nil
}

// Pattern returns the original template string.
func (t *Template) Pattern() string { return t.raw }

// Attributes returns the attribute names referenced by the template, in
// order of appearance. Duplicates are preserved.
func (t *Template) Attributes() []string { return t.attrs }

// References reports whether the template contains a placeholder for attr.
func (t *Template) References(attr string) bool {
	for _, a := range t.attrs {
		if a == attr {
			return true
		}
	}
	return false
}

// Resolve substitutes each placeholder with its value from values and
// returns the concrete key string. A placeholder without a value fails
// with MissingAttributeError.
func (t *Template) Resolve(values map[string]string) (string, error) {
	var b strings.Builder
	for _, s := range t.segments {
		if s.attr == "" {
			b.WriteString(s.literal)
			continue
		}
		v, ok := values[s.attr]
		if !ok {
			return "", &MissingAttributeError{Pattern: t.raw, Attribute: s.attr}
		}
		b.WriteString(v)
	}
	return b.String(), nil
}
