// Package artifact defines the data model shared by every pipeline stage.
//
// A [Descriptor] carries the coordinates and resolution metadata of one
// artifact, independent of the source that produced it. A [Tracker] wraps a
// descriptor with the state the pipeline accumulates for it during a single
// run: where it was cached, which manifest headers it carries and whether it
// passed validation. Trackers are never persisted.
//
// Identity is the [Key] (group, name, classifier, type). The version is payload,
// so a rerun that picks up a newer version still maps onto the same tracker.
package artifact

import (
	"fmt"
	"strings"

	"github.com/matzehuels/osgirepo/pkg/errors"
)

// SourceKind is the discriminant of the closed set of artifact sources.
type SourceKind string

const (
	SourceBuildDependency SourceKind = "build-dependency"
	SourceRemoteMetadata  SourceKind = "remote-metadata"
	SourceFileset         SourceKind = "fileset"
	SourceProperties      SourceKind = "properties-file"
)

// Valid reports whether k is one of the known source kinds.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceBuildDependency, SourceRemoteMetadata, SourceFileset, SourceProperties:
		return true
	}
	return false
}

// Key is the identity of an artifact within one registry.
type Key struct {
	GroupID    string
	Name       string
	Classifier string
	Type       string
}

// String renders the key as group:name:type[:classifier].
func (k Key) String() string {
	s := k.GroupID + ":" + k.Name + ":" + k.Type
	if k.Classifier != "" {
		s += ":" + k.Classifier
	}
	return s
}

// Descriptor holds immutable coordinates and resolution metadata for one
// artifact.
type Descriptor struct {
	GroupID    string
	Name       string
	Version    string
	Classifier string
	Type       string
	Extension  string // file extension; derived from Type when empty
	Scope      string
	Optional   bool
	Direct     bool
	Source     SourceKind
	Origin     string // local path or remote URL

	// Override marks descriptors declared explicitly by the user. They take
	// precedence over anything discovered implicitly.
	Override bool

	// Workspace marks artifacts resolved from an in-progress local build.
	Workspace bool
}

// Key returns the identity key of d.
func (d Descriptor) Key() Key {
	return Key{GroupID: d.GroupID, Name: d.Name, Classifier: d.Classifier, Type: d.Type}
}

// Precedence ranks d against another descriptor with the same key.
// Higher wins; equal precedence keeps the first registered.
func (d Descriptor) Precedence() int {
	if d.Override {
		return 1
	}
	return 0
}

// Ext returns the file extension used when caching d.
func (d Descriptor) Ext() string {
	if d.Extension != "" {
		return d.Extension
	}
	switch {
	case d.Type == "" || d.Type == "bundle" || d.Type == "jar":
		return "jar"
	case strings.HasPrefix(d.Type, "osgi.subsystem"), d.Type == "esa":
		return "esa"
	}
	return d.Type
}

// IsRemote reports whether the origin is a network URL.
func (d Descriptor) IsRemote() bool {
	return strings.HasPrefix(d.Origin, "http://") || strings.HasPrefix(d.Origin, "https://")
}

// String returns the full coordinate including the version.
func (d Descriptor) String() string {
	s := d.GroupID + ":" + d.Name + ":" + d.Type
	if d.Classifier != "" {
		s += ":" + d.Classifier
	}
	if d.Version != "" {
		s += ":" + d.Version
	}
	return s
}

// ParseCoordinate parses group:artifact:type:version or
// group:artifact:type:classifier:version into an override descriptor.
func ParseCoordinate(coord string) (Descriptor, error) {
	parts := strings.Split(strings.TrimSpace(coord), ":")
	for _, p := range parts {
		if p == "" {
			return Descriptor{}, errors.New(errors.ErrCodeInvalidConfig,
				"invalid artifact coordinate %q (empty segment)", coord)
		}
	}
	d := Descriptor{Override: true, Direct: true}
	switch len(parts) {
	case 4:
		d.GroupID, d.Name, d.Type, d.Version = parts[0], parts[1], parts[2], parts[3]
	case 5:
		d.GroupID, d.Name, d.Type, d.Classifier, d.Version = parts[0], parts[1], parts[2], parts[3], parts[4]
	default:
		return Descriptor{}, errors.New(errors.ErrCodeInvalidConfig,
			"invalid artifact coordinate %q (expected group:artifact:type[:classifier]:version)", coord)
	}
	return d, nil
}

// MustParseCoordinate is like ParseCoordinate but panics on error.
// Intended for tests and static tables.
func MustParseCoordinate(coord string) Descriptor {
	d, err := ParseCoordinate(coord)
	if err != nil {
		panic(fmt.Sprintf("artifact: %v", err))
	}
	return d
}
