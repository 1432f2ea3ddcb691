package index

import (
	"encoding/xml"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/matzehuels/osgirepo/pkg/artifact"
	"github.com/matzehuels/osgirepo/pkg/errors"
)

type targetDefinition struct {
	XMLName        xml.Name         `xml:"target"`
	Name           string           `xml:"name,attr"`
	SequenceNumber int              `xml:"sequenceNumber,attr"`
	Locations      []targetLocation `xml:"locations>location"`
}

type targetLocation struct {
	IncludeAllPlatforms   bool         `xml:"includeAllPlatforms,attr"`
	IncludeConfigurePhase bool         `xml:"includeConfigurePhase,attr"`
	IncludeMode           string       `xml:"includeMode,attr"`
	IncludeSource         bool         `xml:"includeSource,attr"`
	Type                  string       `xml:"type,attr"`
	Repository            targetRepo   `xml:"repository"`
	Units                 []targetUnit `xml:"unit"`
}

type targetRepo struct {
	Location string `xml:"location,attr"`
}

type targetUnit struct {
	ID      string `xml:"id,attr"`
	Version string `xml:"version,attr"`
}

// TargetUnits returns the id/version pairs a target definition lists: one
// per valid jar tracker carrying both manifest identity headers.
func TargetUnits(trackers []*artifact.Tracker) [][2]string {
	var out [][2]string
	for _, t := range trackers {
		if !t.Valid || t.Ext() != "jar" {
			continue
		}
		id := artifact.StripDirectives(t.Headers[artifact.HeaderBundleSymbolicName])
		version := t.Headers[artifact.HeaderBundleVersion]
		if id == "" || version == "" {
			continue
		}
		out = append(out, [2]string{id, version})
	}
	return out
}

// WriteTarget writes a PDE target definition that points at archive and
// lists the valid jar trackers as installable units.
func WriteTarget(path, name, archive string, trackers []*artifact.Tracker) error {
	abs, err := filepath.Abs(archive)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPath, err, "absolute path of %s", archive)
	}
	loc := targetLocation{
		IncludeMode: "slicer",
		Type:        "InstallableUnit",
		Repository:  targetRepo{Location: "jar:file:" + filepath.ToSlash(abs) + "!/"},
	}
	for _, u := range TargetUnits(trackers) {
		loc.Units = append(loc.Units, targetUnit{ID: u[0], Version: u[1]})
	}
	def := targetDefinition{Name: name, Locations: []targetLocation{loc}}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.IO(err, "create directory", filepath.Dir(path), "")
	}
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	f, err := os.Create(tmp)
	if err != nil {
		return errors.IO(err, "create", tmp, "")
	}
	defer os.Remove(tmp)
	if err := encodeTarget(f, def); err != nil {
		f.Close()
		return errors.IO(err, "write", tmp, "")
	}
	if err := f.Close(); err != nil {
		return errors.IO(err, "write", tmp, "")
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.IO(err, "rename", tmp, path)
	}
	return nil
}

func encodeTarget(w io.Writer, def targetDefinition) error {
	if _, err := io.WriteString(w, `<?xml version="1.0" encoding="UTF-8" standalone="no"?>`+"\n"); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.EncodeToken(xml.ProcInst{Target: "pde", Inst: []byte(`version="3.8"`)}); err != nil {
		return err
	}
	if err := enc.Encode(def); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}
