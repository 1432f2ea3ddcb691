// Package manifest reads and validates OSGi manifest headers.
//
// Bundles carry their headers in META-INF/MANIFEST.MF, subsystem archives
// (.esa) in OSGI-INF/SUBSYSTEM.MF. Both use the JAR manifest syntax: one
// "Name: value" header per line, values continued on following lines that
// start with a single space, and the main section ending at the first blank
// line.
package manifest

import (
	"bufio"
	"io"
	"strings"

	"github.com/matzehuels/osgirepo/pkg/artifact"
	"github.com/matzehuels/osgirepo/pkg/errors"
)

// Well-known manifest locations inside an archive.
const (
	BundleManifestPath    = "META-INF/MANIFEST.MF"
	SubsystemManifestPath = "OSGI-INF/SUBSYSTEM.MF"
)

// Headers maps manifest header names to their values.
type Headers map[string]string

// Parse reads the main section of a manifest.
func Parse(r io.Reader) (Headers, error) {
	h := make(Headers)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var name string
	var value strings.Builder
	flush := func() {
		if name != "" {
			h[name] = value.String()
		}
		name = ""
		value.Reset()
	}

	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			break
		}
		if line[0] == ' ' {
			if name == "" {
				return nil, errors.New(errors.ErrCodeInvalidManifest, "continuation line without header")
			}
			value.WriteString(line[1:])
			continue
		}
		flush()
		i := strings.Index(line, ":")
		if i <= 0 {
			return nil, errors.New(errors.ErrCodeInvalidManifest, "malformed header line %q", line)
		}
		name = line[:i]
		value.WriteString(strings.TrimPrefix(line[i+1:], " "))
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "read manifest")
	}
	flush()
	return h, nil
}

// SymbolicName returns the bundle or subsystem symbolic name without
// directives.
func (h Headers) SymbolicName() string {
	if v := h[artifact.HeaderBundleSymbolicName]; v != "" {
		return artifact.StripDirectives(v)
	}
	return artifact.StripDirectives(h[artifact.HeaderSubsystemSymbolicName])
}

// Version returns the raw bundle or subsystem version.
func (h Headers) Version() string {
	if v := strings.TrimSpace(h[artifact.HeaderBundleVersion]); v != "" {
		return v
	}
	return strings.TrimSpace(h[artifact.HeaderSubsystemVersion])
}

// IsSubsystem reports whether the headers describe a subsystem.
func (h Headers) IsSubsystem() bool {
	return h[artifact.HeaderSubsystemSymbolicName] != ""
}

// Validate returns an INVALID_MANIFEST error if the identity headers are
// missing or malformed.
func Validate(h Headers) error {
	sn := h.SymbolicName()
	if sn == "" {
		return errors.New(errors.ErrCodeInvalidManifest, "missing symbolic name header")
	}
	if strings.ContainsAny(sn, " \t,") {
		return errors.New(errors.ErrCodeInvalidManifest, "malformed symbolic name %q", sn)
	}
	v := h.Version()
	if v == "" {
		return errors.New(errors.ErrCodeInvalidManifest, "missing version header for %s", sn)
	}
	if _, err := ParseVersion(v); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidManifest, err, "malformed version for %s", sn)
	}
	return nil
}

// IsValid reports whether h carries well-formed identity headers.
func IsValid(h Headers) bool {
	return Validate(h) == nil
}
