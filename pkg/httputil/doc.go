// Package httputil provides HTTP utilities for the remote repository clients.
//
// # Overview
//
//   - [Cache]: file-based caching of fetched repository metadata
//   - [Retry]: opt-in retry with exponential backoff
//
// # Caching
//
// [Cache] stores decoded metadata as JSON files with a configurable TTL.
// Expired entries are not returned by [Cache.Get], but [Cache.GetStale] still
// serves them so an offline run can fall back on the last known metadata.
//
//	cache, err := httputil.NewCache(dir, 24*time.Hour)
//	p2 := cache.Namespace("p2:")
//	ok, err := p2.Get(location, &units)
//
// # Retry
//
// Runs are not retried by default: a failed download aborts the run and the
// ledger makes re-invoking it cheap. [Retry] exists for callers that opt into
// a retry budget through configuration. Only errors wrapped in
// [RetryableError] are retried.
package httputil
