package p2

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zip"
)

const (
	classifierBundle = "osgi.bundle"
	defaultRule      = "${repoUrl}/plugins/${id}_${version}.jar"
)

// Unit is one downloadable artifact of a p2 repository.
type Unit struct {
	ID         string `json:"id"`
	Version    string `json:"version"`
	Classifier string `json:"classifier"`
	Location   string `json:"location"` // URL, or a local path for file: repositories and pool hits
	Size       int64  `json:"size,omitempty"`
}

// Coordinate returns "id:version".
func (u Unit) Coordinate() string {
	return u.ID + ":" + u.Version
}

// Rule is one entry of a repository's <mappings>.
type Rule struct {
	Filter string `json:"filter"`
	Output string `json:"output"`
}

// repository is the cached form of one simple or composite repository.
type repository struct {
	Location string   `json:"location"`
	Rules    []Rule   `json:"rules,omitempty"`
	Units    []Unit   `json:"units,omitempty"`
	Children []string `json:"children,omitempty"`
}

type xmlArtifacts struct {
	Rules     []Rule        `xml:"mappings>rule"`
	Artifacts []xmlArtifact `xml:"artifacts>artifact"`
}

type xmlArtifact struct {
	Classifier string        `xml:"classifier,attr"`
	ID         string        `xml:"id,attr"`
	Version    string        `xml:"version,attr"`
	Properties []xmlProperty `xml:"properties>property"`
}

type xmlProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type xmlComposite struct {
	Children []struct {
		Location string `xml:"location,attr"`
	} `xml:"children>child"`
}

// UnmarshalXML reads the attribute form used in artifacts.xml.
func (r *Rule) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, a := range start.Attr {
		switch a.Name.Local {
		case "filter":
			r.Filter = a.Value
		case "output":
			r.Output = a.Value
		}
	}
	return d.Skip()
}

func (a xmlArtifact) property(name string) string {
	for _, p := range a.Properties {
		if p.Name == name {
			return p.Value
		}
	}
	return ""
}

func parseArtifacts(r io.Reader, location string) (*repository, error) {
	var doc xmlArtifacts
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, err
	}
	repo := &repository{Location: location, Rules: doc.Rules}
	for _, a := range doc.Artifacts {
		format := a.property("format")
		if a.Classifier != classifierBundle || format == "packed" {
			continue
		}
		attrs := map[string]string{"classifier": a.Classifier, "id": a.ID, "version": a.Version, "format": format}
		u := Unit{
			ID:         a.ID,
			Version:    a.Version,
			Classifier: a.Classifier,
			Location:   output(doc.Rules, attrs, location),
		}
		if size, err := strconv.ParseInt(a.property("download.size"), 10, 64); err == nil {
			u.Size = size
		}
		repo.Units = append(repo.Units, u)
	}
	return repo, nil
}

func parseComposite(r io.Reader, location string) (*repository, error) {
	var doc xmlComposite
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, err
	}
	repo := &repository{Location: location}
	for _, c := range doc.Children {
		if c.Location != "" {
			repo.Children = append(repo.Children, resolveChild(location, c.Location))
		}
	}
	return repo, nil
}

// output evaluates the first matching rule for attrs.
func output(rules []Rule, attrs map[string]string, repoURL string) string {
	tmpl := defaultRule
	for _, r := range rules {
		if matchFilter(r.Filter, attrs) {
			tmpl = r.Output
			break
		}
	}
	return strings.NewReplacer(
		"${repoUrl}", strings.TrimRight(repoURL, "/"),
		"${id}", attrs["id"],
		"${version}", attrs["version"],
		"${classifier}", attrs["classifier"],
	).Replace(tmpl)
}

// resolveChild resolves a composite child location against its parent.
func resolveChild(parent, child string) string {
	if strings.Contains(child, "://") || strings.HasPrefix(child, "file:") {
		return strings.TrimRight(child, "/")
	}
	base := strings.TrimRight(parent, "/")
	if i := strings.Index(base, "://"); i >= 0 {
		scheme, rest := base[:i+3], base[i+3:]
		return scheme + strings.TrimRight(path.Clean(rest+"/"+child), "/")
	}
	return strings.TrimRight(path.Clean(base+"/"+child), "/")
}

// unzipEntry returns the named entry of the zip archive in data.
func unzipEntry(data []byte, name string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s not found in archive", name)
}
