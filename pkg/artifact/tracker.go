package artifact

import "strings"

// Manifest header names used for identity.
const (
	HeaderBundleSymbolicName    = "Bundle-SymbolicName"
	HeaderBundleVersion         = "Bundle-Version"
	HeaderSubsystemSymbolicName = "Subsystem-SymbolicName"
	HeaderSubsystemVersion      = "Subsystem-Version"
)

// Tracker is the registry's per-artifact record for one run.
type Tracker struct {
	Descriptor
	Category Category

	// CachedPath is the materialized file: a path inside the cache when
	// Embedded, otherwise the original origin.
	CachedPath string
	Cached     bool
	Embedded   bool

	// Headers holds the manifest headers once validation has run.
	Headers   map[string]string
	Validated bool
	Valid     bool
}

// NewTracker creates a tracker for d in category c.
func NewTracker(d Descriptor, c Category) *Tracker {
	return &Tracker{Descriptor: d, Category: c}
}

// MarkCached records where the artifact was materialized.
func (t *Tracker) MarkCached(path string, embedded bool) {
	t.CachedPath = path
	t.Cached = true
	t.Embedded = embedded
}

// MarkValidated records manifest headers and the validation outcome.
func (t *Tracker) MarkValidated(headers map[string]string, valid bool) {
	t.Headers = headers
	t.Validated = true
	t.Valid = valid
}

// Indexable reports whether the tracker may appear in the index.
// Artifacts whose category does not require a manifest are indexable once
// cached; all others must also have passed validation.
func (t *Tracker) Indexable() bool {
	if !t.Cached {
		return false
	}
	if !t.Category.RequiresManifest() {
		return t.Category != CategoryProperties
	}
	return t.Valid
}

// SymbolicName returns the manifest symbolic name without directives, or the
// artifact name when no manifest has been read.
func (t *Tracker) SymbolicName() string {
	for _, h := range []string{HeaderBundleSymbolicName, HeaderSubsystemSymbolicName} {
		if v := t.Headers[h]; v != "" {
			return StripDirectives(v)
		}
	}
	return t.Name
}

// BundleVersion returns the manifest version, or the descriptor version.
func (t *Tracker) BundleVersion() string {
	for _, h := range []string{HeaderBundleVersion, HeaderSubsystemVersion} {
		if v := strings.TrimSpace(t.Headers[h]); v != "" {
			return v
		}
	}
	return t.Version
}

// StripDirectives drops everything after the first ';' of a header value.
func StripDirectives(v string) string {
	if i := strings.IndexByte(v, ';'); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}
