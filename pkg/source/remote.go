package source

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/osgirepo/pkg/artifact"
	"github.com/matzehuels/osgirepo/pkg/errors"
	"github.com/matzehuels/osgirepo/pkg/integrations"
	"github.com/matzehuels/osgirepo/pkg/manifest"
)

// RemoteSpec lists the units wanted from remote metadata repositories.
type RemoteSpec struct {
	// DefaultGroupID is used for sets that carry no group of their own.
	DefaultGroupID string
	Sets           []RemoteSet
}

// RemoteSet is one repository location and the units taken from it.
type RemoteSet struct {
	Location string
	GroupID  string
	// Units are "id:version" or bare "id" entries.
	Units []string
}

type remoteResolver struct {
	spec   RemoteSpec
	units  UnitLister
	logger *log.Logger
}

func (r *remoteResolver) Kind() artifact.SourceKind { return artifact.SourceRemoteMetadata }

func (r *remoteResolver) Resolve(ctx context.Context) ([]artifact.Descriptor, error) {
	var out []artifact.Descriptor
	for _, set := range r.spec.Sets {
		if len(set.Units) == 0 {
			continue
		}
		if set.Location == "" {
			return nil, errors.New(errors.ErrCodeInvalidConfig, "remote artifact set has no repository location")
		}
		groupID := set.GroupID
		if groupID == "" {
			groupID = r.spec.DefaultGroupID
		}

		units, err := r.units.ListUnits(ctx, set.Location, set.Units)
		if err != nil {
			return nil, integrations.Classify(err, "list units of %s", set.Location)
		}

		for _, want := range set.Units {
			id, version, _ := strings.Cut(strings.TrimSpace(want), ":")
			found := false
			for _, u := range units {
				if u.ID != id || (version != "" && manifest.Canonical(u.Version) != manifest.Canonical(version)) {
					continue
				}
				found = true
				out = append(out, artifact.Descriptor{
					GroupID:  groupID,
					Name:     u.ID,
					Version:  u.Version,
					Type:     "jar",
					Direct:   true,
					Override: true,
					Source:   artifact.SourceRemoteMetadata,
					Origin:   u.Location,
				})
				break
			}
			if !found {
				return nil, errors.New(errors.ErrCodeUnresolved, "unit %s not found in %s", want, set.Location)
			}
		}
		r.logger.Debug("resolved remote units", "location", set.Location, "count", len(set.Units))
	}
	return out, nil
}
