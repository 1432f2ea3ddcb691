package p2

import (
	"path"
	"strings"
)

// matchFilter evaluates the LDAP-style filters used by p2 mapping rules,
// such as "(& (classifier=osgi.bundle) (format=packed))". Equality values
// may contain * wildcards. A malformed filter never matches.
func matchFilter(filter string, attrs map[string]string) bool {
	p := &filterParser{s: filter}
	ok, err := p.parse(attrs)
	if err != nil {
		return false
	}
	p.skipSpace()
	return p.pos == len(p.s) && ok
}

type filterParser struct {
	s   string
	pos int
}

type filterError string

func (e filterError) Error() string { return string(e) }

func (p *filterParser) skipSpace() {
	for p.pos < len(p.s) && (p.s[p.pos] == ' ' || p.s[p.pos] == '\t' || p.s[p.pos] == '\n') {
		p.pos++
	}
}

func (p *filterParser) expect(c byte) error {
	p.skipSpace()
	if p.pos >= len(p.s) || p.s[p.pos] != c {
		return filterError("expected " + string(c))
	}
	p.pos++
	return nil
}

func (p *filterParser) parse(attrs map[string]string) (bool, error) {
	if err := p.expect('('); err != nil {
		return false, err
	}
	p.skipSpace()
	if p.pos >= len(p.s) {
		return false, filterError("unexpected end")
	}

	var result bool
	switch op := p.s[p.pos]; op {
	case '&', '|':
		p.pos++
		result = op == '&'
		for {
			p.skipSpace()
			if p.pos < len(p.s) && p.s[p.pos] == ')' {
				break
			}
			ok, err := p.parse(attrs)
			if err != nil {
				return false, err
			}
			if op == '&' {
				result = result && ok
			} else {
				result = result || ok
			}
		}
	case '!':
		p.pos++
		ok, err := p.parse(attrs)
		if err != nil {
			return false, err
		}
		result = !ok
	default:
		end := strings.IndexByte(p.s[p.pos:], ')')
		if end < 0 {
			return false, filterError("unterminated comparison")
		}
		key, value, found := strings.Cut(p.s[p.pos:p.pos+end], "=")
		if !found {
			return false, filterError("missing =")
		}
		p.pos += end
		actual, present := attrs[strings.TrimSpace(key)]
		value = strings.TrimSpace(value)
		switch {
		case value == "*":
			result = present && actual != ""
		case strings.Contains(value, "*"):
			result, _ = path.Match(value, actual)
		default:
			result = actual == value
		}
	}
	return result, p.expect(')')
}
