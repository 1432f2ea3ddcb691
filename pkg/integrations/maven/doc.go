// Package maven reads Maven repositories and project models.
//
// # Repository layout
//
// A [Repository] maps a descriptor onto the standard layout
//
//	<local>/<group path>/<artifact>/<version>/<artifact>-<version>[-<classifier>].<ext>
//
// and, when the file is missing locally, downloads it from a remote
// repository into the same place. Downloads go through a temporary file and a
// rename, so a concurrent build reading the local repository never sees a
// partial file.
//
// # Dependency graph
//
// [Graph] reads a project POM and produces the flat list of dependencies the
// build declares:
//
//	repo := maven.NewRepository("~/.m2/repository", "https://repo1.maven.org/maven2", client)
//	graph := maven.NewGraph(repo, "pom.xml", logger)
//	deps, err := graph.ResolveDependencies(ctx, true)
//
// Versions are interpolated from <properties>, inherited from parent POMs and
// filled in from <dependencyManagement> (including imported BOMs). The
// transitive walk is breadth-first, so the nearest declaration of an artifact
// wins. Only compile and runtime dependencies are walked; test, provided and
// optional dependencies appear as leaves when declared directly and are never
// followed. Exclusions declared on a dependency apply to its whole subtree.
//
// Modules of the build itself can be mapped with [Graph.Workspace]; their
// descriptors are flagged as workspace artifacts and point at the module's
// build output instead of the repository.
package maven
