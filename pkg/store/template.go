package store

import (
	"strings"
)

// DefaultTemplate names cached files symbolic-name, classifier, version and
// extension, e.g. foo-sources_1.0.0.jar or foo_1.0.0.jar.
const DefaultTemplate Template = "%s-%c_%v.%e"

// Template is a file name pattern. Placeholders:
//
//	%s  symbolic name (falls back to the artifact name)
//	%n  artifact name
//	%g  group id
//	%c  classifier
//	%v  version, in canonical OSGi form when it parses as one
//	%e  extension
//	%%  a literal percent sign
//
// A placeholder that expands to nothing also removes one separator ('-', '_'
// or '.') next to it, preferring the one before it.
type Template string

// Names are the values substituted into a Template.
type Names struct {
	SymbolicName string
	Name         string
	GroupID      string
	Classifier   string
	Version      string
	Extension    string
}

// Format expands t with n. The result is a pure function of its inputs.
func (t Template) Format(n Names) string {
	if t == "" {
		t = DefaultTemplate
	}
	s := string(t)
	var b strings.Builder
	dropNextSep := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '%' || i+1 == len(s) {
			if dropNextSep && isSep(c) {
				dropNextSep = false
				continue
			}
			dropNextSep = false
			b.WriteByte(c)
			continue
		}
		i++
		var v string
		switch s[i] {
		case 's':
			v = n.SymbolicName
			if v == "" {
				v = n.Name
			}
		case 'n':
			v = n.Name
		case 'g':
			v = n.GroupID
		case 'c':
			v = n.Classifier
		case 'v':
			v = n.Version
		case 'e':
			v = n.Extension
		case '%':
			b.WriteByte('%')
			dropNextSep = false
			continue
		default:
			b.WriteByte('%')
			b.WriteByte(s[i])
			dropNextSep = false
			continue
		}
		v = sanitize(v)
		if v != "" {
			b.WriteString(v)
			dropNextSep = false
			continue
		}
		out := b.String()
		if len(out) > 0 && isSep(out[len(out)-1]) {
			b.Reset()
			b.WriteString(out[:len(out)-1])
		} else {
			dropNextSep = true
		}
	}
	return b.String()
}

func isSep(c byte) bool {
	return c == '-' || c == '_' || c == '.'
}

// sanitize keeps a value from escaping the target directory.
func sanitize(v string) string {
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(strings.TrimSpace(v))
}
