// Package driver holds the shared state of one install: the filesystem
// concurrency budget, the clobber registry, and the steps that run before
// and after packages are linked.
package driver
