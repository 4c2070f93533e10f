// Package cache manages the shared directory of extracted packages.
//
// GetOrFetch returns a Lock on a validated, extracted package. Concurrent
// requests for the same package share a single fetch, and a package that is
// being re-fetched is never handed out half written: fetching holds the
// write side of a per-package lock while every outstanding Lock holds the
// read side until Release.
package cache
