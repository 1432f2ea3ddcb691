package manifest

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is an OSGi version: major.minor.micro.qualifier.
type Version struct {
	Major, Minor, Micro int
	Qualifier           string
}

// ParseVersion parses an OSGi version. Missing numeric parts default to 0.
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Version{}, fmt.Errorf("empty version")
	}
	parts := strings.SplitN(s, ".", 4)
	var v Version
	nums := []*int{&v.Major, &v.Minor, &v.Micro}
	for i, p := range parts {
		if i == 3 {
			if p == "" {
				return Version{}, fmt.Errorf("invalid version %q: empty qualifier", s)
			}
			for _, r := range p {
				if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '-') {
					return Version{}, fmt.Errorf("invalid version %q: bad qualifier", s)
				}
			}
			v.Qualifier = p
			break
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || strings.HasPrefix(p, "+") {
			return Version{}, fmt.Errorf("invalid version %q", s)
		}
		*nums[i] = n
	}
	return v, nil
}

// String returns the canonical form, always with three numeric parts.
func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Micro)
	if v.Qualifier != "" {
		s += "." + v.Qualifier
	}
	return s
}

// Compare returns -1, 0 or 1. Qualifiers compare lexically.
func (v Version) Compare(o Version) int {
	for _, d := range []int{v.Major - o.Major, v.Minor - o.Minor, v.Micro - o.Micro} {
		if d < 0 {
			return -1
		}
		if d > 0 {
			return 1
		}
	}
	return strings.Compare(v.Qualifier, o.Qualifier)
}

// Canonical normalizes s when it parses as an OSGi version and returns it
// unchanged otherwise.
func Canonical(s string) string {
	v, err := ParseVersion(s)
	if err != nil {
		return s
	}
	return v.String()
}
