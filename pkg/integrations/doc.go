// Package integrations provides clients for the remote systems artifacts are
// acquired from.
//
// # Overview
//
//   - [maven]: local Maven repository layout, remote fetch into it, and the
//     POM-driven dependency graph
//   - [p2]: p2 artifact repository metadata and unit listing
//
// # Shared Infrastructure
//
// [Client] is embedded by both. It handles the per-request timeout, the
// opt-in retry budget, offline mode, file:// URLs and metadata caching through
// [httputil.Cache]. Failures surface as the sentinels [ErrNotFound],
// [ErrNetwork], [ErrTimeout] and [ErrOffline]; [Classify] converts them to
// coded errors at the point where a caller decides the run is over.
//
// [maven]: github.com/matzehuels/osgirepo/pkg/integrations/maven
// [p2]: github.com/matzehuels/osgirepo/pkg/integrations/p2
// [httputil.Cache]: github.com/matzehuels/osgirepo/pkg/httputil.Cache
package integrations
