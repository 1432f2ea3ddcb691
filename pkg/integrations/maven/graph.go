package maven

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/osgirepo/pkg/artifact"
	"github.com/matzehuels/osgirepo/pkg/errors"
)

// maxParentDepth bounds parent and BOM chains so a cycle cannot recurse forever.
const maxParentDepth = 16

// model is a POM with inheritance and interpolation applied.
type model struct {
	groupID    string
	artifactID string
	version    string
	props      map[string]string
	managed    map[string]pomDependency
	deps       []pomDependency
}

// Graph resolves the dependency graph of a project POM.
type Graph struct {
	Repo *Repository
	POM  string

	// Workspace maps "group:artifact" to the base directory of a module that
	// is part of the current build.
	Workspace map[string]string

	logger *log.Logger

	mu     sync.Mutex
	models map[string]*model
}

// NewGraph creates a Graph for the project POM at pomPath.
func NewGraph(repo *Repository, pomPath string, logger *log.Logger) *Graph {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Graph{Repo: repo, POM: pomPath, Workspace: map[string]string{}, logger: logger, models: map[string]*model{}}
}

// ResolveDependencies returns the project's dependencies. Direct
// dependencies come first in declaration order, followed by transitive ones
// in breadth-first order when transitive is true.
//
// Descriptor origins point at the local repository path; call [Graph.Lookup]
// to make sure the file is present.
func (g *Graph) ResolveDependencies(ctx context.Context, transitive bool) ([]artifact.Descriptor, error) {
	root, err := g.projectModel(ctx)
	if err != nil {
		return nil, err
	}

	type node struct {
		dep        pomDependency
		scope      string
		direct     bool
		exclusions []pomExclusion
	}

	var queue []node
	for _, d := range root.deps {
		queue = append(queue, node{dep: d, scope: d.Scope, direct: true, exclusions: d.Exclusions})
	}

	var out []artifact.Descriptor
	seen := make(map[string]bool)
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n := queue[0]
		queue = queue[1:]

		desc := g.descriptor(n.dep, n.scope, n.direct)
		id := desc.Key().String()
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, desc)

		if !transitive || n.dep.optional() || (n.scope != "compile" && n.scope != "runtime") {
			continue
		}
		m, err := g.dependencyModel(ctx, desc)
		if err != nil {
			g.logger.Debug("no pom for dependency, treating it as a leaf", "artifact", desc, "err", err)
			continue
		}
		for _, child := range m.deps {
			if child.optional() || excluded(n.exclusions, child) {
				continue
			}
			switch child.Scope {
			case "test", "provided", "system", "import":
				continue
			}
			if managed, ok := root.managed[child.managedKey()]; ok && managed.Version != "" {
				child.Version = managed.Version
			}
			if child.Version == "" {
				g.logger.Warn("dependency has no version, skipping", "artifact", child.key(), "from", desc)
				continue
			}
			scope := "compile"
			if child.Scope == "runtime" || n.scope == "runtime" {
				scope = "runtime"
			}
			queue = append(queue, node{
				dep:        child,
				scope:      scope,
				exclusions: append(append([]pomExclusion(nil), n.exclusions...), child.Exclusions...),
			})
		}
	}
	return out, nil
}

// Lookup resolves d to a file, preferring workspace modules over the
// repository.
func (g *Graph) Lookup(ctx context.Context, d artifact.Descriptor) (artifact.Descriptor, error) {
	if dir, ok := g.Workspace[d.GroupID+":"+d.Name]; ok {
		d.Origin = workspaceOutput(dir, d)
		d.Workspace = true
		return d, nil
	}
	p, err := g.Repo.Fetch(ctx, d)
	if err != nil {
		return d, err
	}
	d.Origin = p
	return d, nil
}

func (g *Graph) descriptor(dep pomDependency, scope string, direct bool) artifact.Descriptor {
	typ := dep.Type
	if typ == "" {
		typ = "jar"
	}
	d := artifact.Descriptor{
		GroupID:    dep.GroupID,
		Name:       dep.ArtifactID,
		Version:    dep.Version,
		Classifier: dep.Classifier,
		Type:       typ,
		Scope:      scope,
		Optional:   dep.optional(),
		Direct:     direct,
		Source:     artifact.SourceBuildDependency,
	}
	if dir, ok := g.Workspace[d.GroupID+":"+d.Name]; ok {
		d.Origin = workspaceOutput(dir, d)
		d.Workspace = true
	} else {
		d.Origin = g.Repo.Path(d)
	}
	return d
}

// workspaceOutput picks the module's packaged jar if it was built, then its
// class output directory, then the module directory itself.
func workspaceOutput(dir string, d artifact.Descriptor) string {
	name := d.Name + "-" + d.Version
	if d.Classifier != "" {
		name += "-" + d.Classifier
	}
	for _, p := range []string{
		filepath.Join(dir, "target", name+"."+d.Ext()),
		filepath.Join(dir, "target", "classes"),
	} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return dir
}

func excluded(exclusions []pomExclusion, d pomDependency) bool {
	for _, e := range exclusions {
		if (e.GroupID == "*" || e.GroupID == d.GroupID) && (e.ArtifactID == "*" || e.ArtifactID == d.ArtifactID) {
			return true
		}
	}
	return false
}

func (g *Graph) projectModel(ctx context.Context) (*model, error) {
	pom, err := readPOM(g.POM)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "project pom %s not found", g.POM)
		}
		return nil, err
	}
	return g.build(ctx, pom, filepath.Dir(g.POM), 0)
}

func (g *Graph) dependencyModel(ctx context.Context, d artifact.Descriptor) (*model, error) {
	if dir, ok := g.Workspace[d.GroupID+":"+d.Name]; ok {
		pom, err := readPOM(filepath.Join(dir, "pom.xml"))
		if err != nil {
			return nil, err
		}
		return g.build(ctx, pom, dir, 0)
	}
	return g.repositoryModel(ctx, d.GroupID, d.Name, d.Version, 0)
}

func (g *Graph) repositoryModel(ctx context.Context, groupID, artifactID, version string, depth int) (*model, error) {
	id := groupID + ":" + artifactID + ":" + version
	g.mu.Lock()
	m, ok := g.models[id]
	g.mu.Unlock()
	if ok {
		return m, nil
	}

	p, err := g.Repo.Fetch(ctx, pomDescriptor(groupID, artifactID, version))
	if err != nil {
		return nil, err
	}
	pom, err := readPOM(p)
	if err != nil {
		return nil, err
	}
	m, err = g.build(ctx, pom, "", depth)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.models[id] = m
	g.mu.Unlock()
	return m, nil
}

// build applies parent inheritance, property interpolation and managed
// versions to pom. dir is the POM's directory for relative parent lookup and
// is empty for repository POMs.
func (g *Graph) build(ctx context.Context, pom *pomProject, dir string, depth int) (*model, error) {
	if depth > maxParentDepth {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "pom inheritance of %s:%s is too deep", pom.GroupID, pom.ArtifactID)
	}

	m := &model{props: map[string]string{}, managed: map[string]pomDependency{}}
	if pom.Parent != nil {
		parent, err := g.parentModel(ctx, pom.Parent, dir, depth)
		if err != nil {
			g.logger.Debug("parent pom unavailable", "parent", pom.Parent.GroupID+":"+pom.Parent.ArtifactID, "err", err)
		} else {
			for k, v := range parent.props {
				m.props[k] = v
			}
			for k, v := range parent.managed {
				m.managed[k] = v
			}
			m.deps = append(m.deps, parent.deps...)
		}
		m.groupID, m.version = pom.Parent.GroupID, pom.Parent.Version
		m.props["project.parent.groupId"] = pom.Parent.GroupID
		m.props["project.parent.version"] = pom.Parent.Version
	}
	if pom.GroupID != "" {
		m.groupID = pom.GroupID
	}
	if pom.Version != "" {
		m.version = pom.Version
	}
	m.artifactID = pom.ArtifactID

	for k, v := range pom.Properties {
		m.props[k] = v
	}
	for _, prefix := range []string{"project.", "pom.", ""} {
		m.props[prefix+"groupId"] = m.groupID
		m.props[prefix+"artifactId"] = m.artifactID
		m.props[prefix+"version"] = m.version
	}
	if v, ok := interpolate(m.version, m.props); ok {
		m.version = v
		m.props["project.version"], m.props["pom.version"], m.props["version"] = v, v, v
	}

	for _, d := range pom.DependencyManagement {
		d, ok := m.resolve(d)
		if !ok {
			g.logger.Debug("unresolved managed dependency", "pom", m.groupID+":"+m.artifactID, "dependency", d.key())
			continue
		}
		if d.Scope == "import" && d.Type == "pom" {
			bom, err := g.repositoryModel(ctx, d.GroupID, d.ArtifactID, d.Version, depth+1)
			if err != nil {
				g.logger.Warn("cannot import bom", "bom", d.key()+":"+d.Version, "err", err)
				continue
			}
			for k, v := range bom.managed {
				if _, exists := m.managed[k]; !exists {
					m.managed[k] = v
				}
			}
			continue
		}
		m.managed[d.managedKey()] = d
	}

	for _, d := range pom.Dependencies {
		d, ok := m.resolve(d)
		if !ok {
			g.logger.Warn("skipping dependency with unresolved properties", "pom", m.groupID+":"+m.artifactID, "dependency", d.key())
			continue
		}
		if managed, ok := m.managed[d.managedKey()]; ok {
			if d.Version == "" {
				d.Version = managed.Version
			}
			if d.Scope == "" {
				d.Scope = managed.Scope
			}
			if len(d.Exclusions) == 0 {
				d.Exclusions = managed.Exclusions
			}
		}
		if d.Version == "" {
			g.logger.Warn("skipping dependency without a version", "pom", m.groupID+":"+m.artifactID, "dependency", d.key())
			continue
		}
		if d.Scope == "" {
			d.Scope = "compile"
		}
		m.deps = append(m.deps, d)
	}
	return m, nil
}

func (g *Graph) parentModel(ctx context.Context, parent *pomParent, dir string, depth int) (*model, error) {
	if dir != "" {
		rel := parent.RelativePath
		if rel == "" {
			rel = "../pom.xml"
		}
		p := filepath.Join(dir, filepath.FromSlash(rel))
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			p = filepath.Join(p, "pom.xml")
		}
		if pom, err := readPOM(p); err == nil && pom.ArtifactID == parent.ArtifactID {
			return g.build(ctx, pom, filepath.Dir(p), depth+1)
		}
	}
	return g.repositoryModel(ctx, parent.GroupID, parent.ArtifactID, parent.Version, depth+1)
}

// resolve interpolates every coordinate field of d.
func (m *model) resolve(d pomDependency) (pomDependency, bool) {
	fields := []*string{&d.GroupID, &d.ArtifactID, &d.Version, &d.Type, &d.Classifier, &d.Scope, &d.Optional}
	for _, f := range fields {
		v, ok := interpolate(*f, m.props)
		if !ok {
			return d, false
		}
		*f = v
	}
	return d, d.GroupID != "" && d.ArtifactID != ""
}
