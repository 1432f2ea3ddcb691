package maven

import (
	"encoding/xml"
	"io"
	"os"
	"strings"

	"github.com/matzehuels/osgirepo/pkg/errors"
)

type pomProject struct {
	GroupID              string          `xml:"groupId"`
	ArtifactID           string          `xml:"artifactId"`
	Version              string          `xml:"version"`
	Packaging            string          `xml:"packaging"`
	Parent               *pomParent      `xml:"parent"`
	Properties           pomProperties   `xml:"properties"`
	DependencyManagement []pomDependency `xml:"dependencyManagement>dependencies>dependency"`
	Dependencies         []pomDependency `xml:"dependencies>dependency"`
}

type pomParent struct {
	GroupID      string `xml:"groupId"`
	ArtifactID   string `xml:"artifactId"`
	Version      string `xml:"version"`
	RelativePath string `xml:"relativePath"`
}

type pomDependency struct {
	GroupID    string         `xml:"groupId"`
	ArtifactID string         `xml:"artifactId"`
	Version    string         `xml:"version"`
	Type       string         `xml:"type"`
	Classifier string         `xml:"classifier"`
	Scope      string         `xml:"scope"`
	Optional   string         `xml:"optional"`
	Exclusions []pomExclusion `xml:"exclusions>exclusion"`
}

type pomExclusion struct {
	GroupID    string `xml:"groupId"`
	ArtifactID string `xml:"artifactId"`
}

// pomProperties collects the free-form children of <properties>.
type pomProperties map[string]string

func (p *pomProperties) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	*p = pomProperties{}
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var v string
			if err := d.DecodeElement(&v, &t); err != nil {
				return err
			}
			(*p)[t.Name.Local] = strings.TrimSpace(v)
		case xml.EndElement:
			return nil
		}
	}
}

func (d pomDependency) key() string {
	return d.GroupID + ":" + d.ArtifactID
}

// managedKey identifies a dependencyManagement entry. Type and classifier are
// part of it because one artifact may be managed once per attached file.
func (d pomDependency) managedKey() string {
	typ := d.Type
	if typ == "" {
		typ = "jar"
	}
	return d.GroupID + ":" + d.ArtifactID + ":" + typ + ":" + d.Classifier
}

func (d pomDependency) optional() bool {
	return strings.TrimSpace(d.Optional) == "true"
}

func parsePOM(r io.Reader) (*pomProject, error) {
	var pom pomProject
	if err := xml.NewDecoder(r).Decode(&pom); err != nil {
		return nil, err
	}
	return &pom, nil
}

func readPOM(path string) (*pomProject, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	pom, err := parsePOM(f)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse %s", path)
	}
	return pom, nil
}

// interpolate expands ${...} references from props. It reports false if a
// reference is left unresolved.
func interpolate(s string, props map[string]string) (string, bool) {
	s = strings.TrimSpace(s)
	for range 10 {
		start := strings.Index(s, "${")
		if start < 0 {
			return s, true
		}
		end := strings.Index(s[start:], "}")
		if end < 0 {
			return s, false
		}
		name := s[start+2 : start+end]
		v, ok := props[name]
		if !ok {
			return s, false
		}
		s = s[:start] + v + s[start+end+1:]
	}
	return s, !strings.Contains(s, "${")
}
