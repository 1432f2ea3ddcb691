package index

import (
	"fmt"
	"strings"

	"github.com/matzehuels/osgirepo/pkg/manifest"
)

// param is one attribute or directive of a manifest clause.
type param struct {
	Name      string
	Type      string
	Value     string
	Directive bool
}

// clause is one comma-separated entry of a manifest header. Several paths
// may share the same parameters ("a;b;version=1").
type clause struct {
	Paths  []string
	Params []param
}

func (c clause) attr(name string) (string, bool) {
	for _, p := range c.Params {
		if !p.Directive && p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

func (c clause) directive(name string) (string, bool) {
	for _, p := range c.Params {
		if p.Directive && p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// parseClauses splits a header value on commas and semicolons outside
// double quotes.
func parseClauses(header string) []clause {
	var out []clause
	for _, raw := range split(header, ',') {
		var c clause
		for _, part := range split(raw, ';') {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if p, ok := parseParam(part); ok {
				c.Params = append(c.Params, p)
				continue
			}
			c.Paths = append(c.Paths, part)
		}
		if len(c.Paths) > 0 {
			out = append(out, c)
		}
	}
	return out
}

func parseParam(s string) (param, bool) {
	i := strings.IndexByte(s, '=')
	if i <= 0 || strings.HasPrefix(s, "\"") {
		return param{}, false
	}
	name, value := strings.TrimSpace(s[:i]), unquote(strings.TrimSpace(s[i+1:]))
	if strings.HasSuffix(name, ":") {
		return param{Name: strings.TrimSpace(strings.TrimSuffix(name, ":")), Value: value, Directive: true}, true
	}
	p := param{Name: name, Value: value}
	if j := strings.IndexByte(name, ':'); j > 0 {
		p.Name, p.Type = strings.TrimSpace(name[:j]), strings.TrimSpace(name[j+1:])
	}
	return p, true
}

func split(s string, sep byte) []string {
	var out []string
	quoted := false
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			quoted = !quoted
		case sep:
			if !quoted {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	return append(out, s[start:])
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// rangeFilter renders an LDAP filter for attr matching an OSGi version range.
// A bare version means "at least". An empty range matches any version.
func rangeFilter(attr, rng string) (string, error) {
	rng = strings.TrimSpace(rng)
	if rng == "" {
		return "", nil
	}
	if !strings.ContainsAny(rng[:1], "[(") {
		v, err := manifest.ParseVersion(rng)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s>=%s)", attr, v), nil
	}
	if len(rng) < 5 || !strings.ContainsAny(rng[len(rng)-1:], "])") {
		return "", fmt.Errorf("invalid version range %q", rng)
	}
	lo, hi, ok := strings.Cut(rng[1:len(rng)-1], ",")
	if !ok {
		return "", fmt.Errorf("invalid version range %q", rng)
	}
	low, err := manifest.ParseVersion(lo)
	if err != nil {
		return "", err
	}
	high, err := manifest.ParseVersion(hi)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("(&")
	if rng[0] == '[' {
		fmt.Fprintf(&b, "(%s>=%s)", attr, low)
	} else {
		fmt.Fprintf(&b, "(!(%s<=%s))", attr, low)
	}
	if rng[len(rng)-1] == ']' {
		fmt.Fprintf(&b, "(%s<=%s)", attr, high)
	} else {
		fmt.Fprintf(&b, "(!(%s>=%s))", attr, high)
	}
	b.WriteString(")")
	return b.String(), nil
}
