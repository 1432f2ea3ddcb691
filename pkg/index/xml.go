package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/osgirepo/pkg/artifact"
	"github.com/matzehuels/osgirepo/pkg/errors"
	"github.com/matzehuels/osgirepo/pkg/manifest"
)

// Capability and requirement namespaces.
const (
	nsIdentity = "osgi.identity"
	nsContent  = "osgi.content"
	nsBundle   = "osgi.wiring.bundle"
	nsHost     = "osgi.wiring.host"
	nsPackage  = "osgi.wiring.package"
)

// Mime types of indexed resources.
const (
	MimeBundle    = "application/vnd.osgi.bundle"
	MimeSubsystem = "application/vnd.osgi.subsystem"
	MimeUnknown   = "application/octet-stream"
)

// Repository is the index document root.
type Repository struct {
	XMLName   xml.Name   `xml:"http://www.osgi.org/xmlns/repository/v1.0.0 repository"`
	Name      string     `xml:"name,attr,omitempty"`
	Increment int64      `xml:"increment,attr"`
	Resources []Resource `xml:"resource"`
}

// Resource is one indexed artifact.
type Resource struct {
	Capabilities []Capability `xml:"capability"`
	Requirements []Capability `xml:"requirement"`
}

// Capability is a capability or requirement element.
type Capability struct {
	Namespace  string      `xml:"namespace,attr"`
	Attributes []Attribute `xml:"attribute"`
	Directives []Directive `xml:"directive"`
}

// Attribute is a typed capability attribute.
type Attribute struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
	Type  string `xml:"type,attr,omitempty"`
}

// Directive is a capability or requirement directive.
type Directive struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// Content returns the url attribute of the resource's osgi.content
// capability.
func (r Resource) Content() string {
	for _, c := range r.Capabilities {
		if c.Namespace != nsContent {
			continue
		}
		for _, a := range c.Attributes {
			if a.Name == "url" {
				return a.Value
			}
		}
	}
	return ""
}

// Identity returns the osgi.identity capability value, if any.
func (r Resource) Identity() string {
	for _, c := range r.Capabilities {
		if c.Namespace == nsIdentity && len(c.Attributes) > 0 {
			return c.Attributes[0].Value
		}
	}
	return ""
}

// XMLIndexer writes R5 index XML. Headers missing from an entry are read
// with Extractor.
type XMLIndexer struct {
	Extractor manifest.Extractor
	Logger    *log.Logger
}

// Index implements Indexer.
func (x *XMLIndexer) Index(ctx context.Context, entries []Entry, w io.Writer, opts Options) error {
	name := opts.Name
	if name == "" {
		name = DefaultName
	}
	repo := Repository{Name: name, Increment: opts.Increment}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := x.resource(e, opts)
		if err != nil {
			return err
		}
		repo.Resources = append(repo.Resources, res)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "write index")
	}
	enc := xml.NewEncoder(w)
	if opts.Pretty {
		enc.Indent("", "  ")
	}
	if err := enc.Encode(repo); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "encode index")
	}
	if err := enc.Close(); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "encode index")
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "write index")
	}
	return nil
}

// Decode reads an uncompressed index document.
func Decode(r io.Reader) (*Repository, error) {
	var repo Repository
	if err := xml.NewDecoder(r).Decode(&repo); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "decode index")
	}
	return &repo, nil
}

func (x *XMLIndexer) resource(e Entry, opts Options) (Resource, error) {
	sum, size, err := digest(e.Path)
	if err != nil {
		return Resource{}, err
	}
	h := e.Headers
	if h == nil && e.Category.RequiresManifest() {
		ex := x.Extractor
		if ex == nil {
			ex = manifest.FileExtractor{}
		}
		if h, err = ex.Extract(e.Path); err != nil {
			return Resource{}, err
		}
	}

	var res Resource
	mime := MimeUnknown
	switch {
	case h.IsSubsystem():
		mime = MimeSubsystem
		res.Capabilities = append(res.Capabilities, subsystemIdentity(h, opts))
	case h.SymbolicName() != "":
		mime = MimeBundle
		x.bundle(&res, h, opts)
	}
	res.Capabilities = append(res.Capabilities, Capability{
		Namespace: nsContent,
		Attributes: []Attribute{
			{Name: nsContent, Value: sum},
			{Name: "url", Value: e.URL},
			{Name: "size", Value: strconv.FormatInt(size, 10), Type: "Long"},
			{Name: "mime", Value: mime},
		},
	})
	return res, nil
}

func digest(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, errors.IO(err, "open", path, "")
	}
	defer f.Close()
	hash := sha256.New()
	n, err := io.Copy(hash, f)
	if err != nil {
		return "", 0, errors.IO(err, "read", path, "")
	}
	return hex.EncodeToString(hash.Sum(nil)), n, nil
}

func version(h manifest.Headers) string {
	return manifest.Canonical(h.Version())
}

func identityExtras(c *Capability, h manifest.Headers, opts Options) {
	license := opts.LicenseURL
	if l := firstPath(h["Bundle-License"]); l != "" {
		license = l
	}
	for _, kv := range [][2]string{
		{"description", h["Bundle-Description"]},
		{"copyright", h["Bundle-Copyright"]},
		{"documentation", h["Bundle-DocURL"]},
		{"license", license},
	} {
		if v := strings.TrimSpace(kv[1]); v != "" {
			c.Attributes = append(c.Attributes, Attribute{Name: kv[0], Value: v})
		}
	}
}

func subsystemIdentity(h manifest.Headers, opts Options) Capability {
	typ := artifact.StripDirectives(h["Subsystem-Type"])
	if typ == "" {
		typ = "osgi.subsystem.application"
	}
	c := Capability{
		Namespace: nsIdentity,
		Attributes: []Attribute{
			{Name: nsIdentity, Value: h.SymbolicName()},
			{Name: "type", Value: typ},
			{Name: "version", Value: version(h), Type: "Version"},
		},
	}
	identityExtras(&c, h, opts)
	return c
}

func (x *XMLIndexer) bundle(res *Resource, h manifest.Headers, opts Options) {
	bsn, ver := h.SymbolicName(), version(h)
	host, fragment := h["Fragment-Host"], false
	if strings.TrimSpace(host) != "" {
		fragment = true
	}

	typ := "osgi.bundle"
	if fragment {
		typ = "osgi.fragment"
	}
	identity := Capability{
		Namespace: nsIdentity,
		Attributes: []Attribute{
			{Name: nsIdentity, Value: bsn},
			{Name: "type", Value: typ},
			{Name: "version", Value: ver, Type: "Version"},
		},
	}
	if singleton, ok := firstClause(h["Bundle-SymbolicName"]).directive("singleton"); ok && singleton == "true" {
		identity.Directives = append(identity.Directives, Directive{Name: "singleton", Value: "true"})
	}
	identityExtras(&identity, h, opts)
	res.Capabilities = append(res.Capabilities, identity)

	if !fragment {
		res.Capabilities = append(res.Capabilities,
			Capability{Namespace: nsBundle, Attributes: []Attribute{
				{Name: nsBundle, Value: bsn},
				{Name: "bundle-version", Value: ver, Type: "Version"},
			}},
			Capability{Namespace: nsHost, Attributes: []Attribute{
				{Name: nsHost, Value: bsn},
				{Name: "bundle-version", Value: ver, Type: "Version"},
			}},
		)
	}

	for _, c := range parseClauses(h["Export-Package"]) {
		for _, pkg := range c.Paths {
			pc := Capability{Namespace: nsPackage, Attributes: []Attribute{{Name: nsPackage, Value: pkg}}}
			v, _ := c.attr("version")
			if v == "" {
				v, _ = c.attr("specification-version")
			}
			pc.Attributes = append(pc.Attributes,
				Attribute{Name: "version", Value: manifest.Canonical(orDefault(v, "0.0.0")), Type: "Version"},
				Attribute{Name: "bundle-symbolic-name", Value: bsn},
				Attribute{Name: "bundle-version", Value: ver, Type: "Version"},
			)
			for _, p := range c.Params {
				switch {
				case p.Directive:
					pc.Directives = append(pc.Directives, Directive{Name: p.Name, Value: p.Value})
				case p.Name != "version" && p.Name != "specification-version":
					pc.Attributes = append(pc.Attributes, Attribute{Name: p.Name, Value: p.Value, Type: p.Type})
				}
			}
			res.Capabilities = append(res.Capabilities, pc)
		}
	}
	res.Capabilities = append(res.Capabilities, generic(h["Provide-Capability"])...)

	res.Requirements = append(res.Requirements, x.imports(bsn, h["Import-Package"])...)
	res.Requirements = append(res.Requirements, x.wiring(bsn, nsBundle, h["Require-Bundle"])...)
	if fragment {
		res.Requirements = append(res.Requirements, x.wiring(bsn, nsHost, host)...)
	}
	res.Requirements = append(res.Requirements, generic(h["Require-Capability"])...)
}

func (x *XMLIndexer) imports(bsn, header string) []Capability {
	var out []Capability
	for _, c := range parseClauses(header) {
		rng, _ := c.attr("version")
		if rng == "" {
			rng, _ = c.attr("specification-version")
		}
		for _, pkg := range c.Paths {
			filter := "(" + nsPackage + "=" + pkg + ")"
			vf, err := rangeFilter("version", rng)
			if err != nil {
				x.logger().Warn("ignoring malformed version range", "bundle", bsn, "package", pkg, "err", err)
			}
			if vf != "" {
				filter = "(&" + filter + vf + ")"
			}
			req := Capability{Namespace: nsPackage, Directives: []Directive{{Name: "filter", Value: filter}}}
			if res, _ := c.directive("resolution"); res == "optional" {
				req.Directives = append(req.Directives, Directive{Name: "resolution", Value: "optional"})
			}
			out = append(out, req)
		}
	}
	return out
}

func (x *XMLIndexer) wiring(bsn, ns, header string) []Capability {
	var out []Capability
	for _, c := range parseClauses(header) {
		rng, _ := c.attr("bundle-version")
		for _, name := range c.Paths {
			filter := "(" + ns + "=" + name + ")"
			vf, err := rangeFilter("bundle-version", rng)
			if err != nil {
				x.logger().Warn("ignoring malformed version range", "bundle", bsn, "requirement", name, "err", err)
			}
			if vf != "" {
				filter = "(&" + filter + vf + ")"
			}
			req := Capability{Namespace: ns, Directives: []Directive{{Name: "filter", Value: filter}}}
			if res, _ := c.directive("resolution"); res == "optional" {
				req.Directives = append(req.Directives, Directive{Name: "resolution", Value: "optional"})
			}
			out = append(out, req)
		}
	}
	return out
}

// generic converts Provide-Capability and Require-Capability clauses, whose
// paths are namespaces.
func generic(header string) []Capability {
	var out []Capability
	for _, c := range parseClauses(header) {
		for _, ns := range c.Paths {
			pc := Capability{Namespace: ns}
			for _, p := range c.Params {
				if p.Directive {
					pc.Directives = append(pc.Directives, Directive{Name: p.Name, Value: p.Value})
					continue
				}
				pc.Attributes = append(pc.Attributes, Attribute{Name: p.Name, Value: p.Value, Type: p.Type})
			}
			out = append(out, pc)
		}
	}
	return out
}

func (x *XMLIndexer) logger() *log.Logger {
	if x.Logger == nil {
		return log.NewWithOptions(io.Discard, log.Options{})
	}
	return x.Logger
}

func firstClause(header string) clause {
	if cs := parseClauses(header); len(cs) > 0 {
		return cs[0]
	}
	return clause{}
}

func firstPath(header string) string {
	if c := firstClause(header); len(c.Paths) > 0 {
		return c.Paths[0]
	}
	return ""
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].URL < entries[j].URL })
}
