package artifact

import (
	"path"
	"slices"
	"strings"
)

// Category is the type-derived subdirectory an artifact is cached under.
type Category string

const (
	CategoryBundle     Category = "plugins"
	CategorySubsystem  Category = "subsystems"
	CategoryProperties Category = "properties"
	CategoryOther      Category = "other"
)

// RequiresManifest reports whether artifacts of this category must carry
// identity headers to be indexed.
func (c Category) RequiresManifest() bool {
	return c == CategoryBundle || c == CategorySubsystem
}

// Types holds the allow-lists that distinguish bundle-like from
// subsystem-like packaging types.
type Types struct {
	Bundle    []string
	Subsystem []string
}

// DefaultTypes returns the packaging types accepted when none are configured.
func DefaultTypes() Types {
	return Types{
		Bundle:    []string{"jar", "bundle"},
		Subsystem: []string{"osgi.subsystem.composite", "osgi.subsystem.application", "osgi.subsystem.feature"},
	}
}

// Allowed reports whether typ is in either allow-list.
func (t Types) Allowed(typ string) bool {
	return slices.Contains(t.Bundle, typ) || slices.Contains(t.Subsystem, typ)
}

// Category classifies d. Properties sources always land in
// [CategoryProperties]; fileset artifacts are classified by file extension.
func (t Types) Category(d Descriptor) Category {
	if d.Source == SourceProperties || d.Type == "properties" {
		return CategoryProperties
	}
	switch {
	case slices.Contains(t.Subsystem, d.Type):
		return CategorySubsystem
	case slices.Contains(t.Bundle, d.Type):
		return CategoryBundle
	}
	switch strings.ToLower(strings.TrimPrefix(path.Ext(d.Origin), ".")) {
	case "esa":
		return CategorySubsystem
	case "jar":
		return CategoryBundle
	}
	switch d.Ext() {
	case "esa":
		return CategorySubsystem
	case "jar":
		return CategoryBundle
	}
	return CategoryOther
}
