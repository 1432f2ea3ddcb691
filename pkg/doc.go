// Package pkg provides the libraries behind osgirepo, which assembles OSGi
// repositories from build dependencies, p2 repositories and local
// directories.
//
// # Overview
//
// The pkg directory is organized by pipeline concern:
//
//  1. [artifact] - Descriptors, identity keys and per-artifact trackers
//  2. [source] - Resolvers for build dependencies, p2 units, filesets and properties
//  3. [registry] - Tracker registry with source precedence and validation
//  4. [store] - Cache materialization with normalized file names
//  5. [ledger] - Incremental fingerprints persisted between runs
//  6. [index] - R5 index XML and PDE target definitions
//  7. [archive] - Deterministic zip archives
//  8. [pipeline] - Orchestration (resolve → cache → validate → stage → index → archive → target)
//
// Supporting packages are [cache] (ledger persistence), [manifest] (header
// extraction), [integrations] (Maven and p2 clients), [httputil],
// [observability], [errors] and [buildinfo].
//
// # Architecture
//
// The typical data flow through a run:
//
//	POM / p2 metadata / directories
//	         ↓
//	    [source] resolvers → [registry]
//	         ↓
//	    [store] cache directory (gated by [ledger])
//	         ↓
//	    [manifest] validation → work directory
//	         ↓
//	    [index] index.xml, [archive] zip, target definition
//
// # Quick Start
//
//	cfg := pipeline.DefaultConfig()
//	cfg.Build.POM = "pom.xml"
//	runner, err := pipeline.NewRunner(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	defer runner.Close()
//	result, err := runner.Execute(ctx)
package pkg
