// Package p2 reads Eclipse p2 artifact repositories.
//
// # Overview
//
// A p2 repository publishes its artifact list in artifacts.xml (or the
// zipped artifacts.jar). Composite repositories publish
// compositeArtifacts.xml (or .jar) listing child repositories instead. This
// package reads both kinds, follows composite children recursively and turns
// each osgi.bundle artifact into a [Unit] with a download location.
//
// # Usage
//
//	c := p2.NewClient(integrations.NewClient(cache.Namespace("p2:"), opts), poolDir, logger)
//	units, err := c.ListUnits(ctx, "https://download.eclipse.org/releases/2024-03", []string{
//	    "org.eclipse.core.runtime:3.31.0.v20240215-1631",
//	    "org.eclipse.equinox.common",
//	})
//
// # Locations
//
// Download locations come from the repository's <mappings> rules, evaluated
// against each artifact's classifier, id, version and format. Without a
// matching rule the default ${repoUrl}/plugins/${id}_${version}.jar applies.
// Packed (pack200) artifacts are ignored.
//
// When a pool directory is configured, <pool>/plugins/<id>_<version>.jar is
// used instead of the network whenever it exists. Repository locations may be
// http(s) URLs, file: URLs or plain directory paths.
//
// # Caching
//
// Parsed metadata is stored through [integrations.Client.Cached], so an
// offline run can still list units it has seen before.
package p2
