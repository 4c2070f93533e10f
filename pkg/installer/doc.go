// Package installer brings a prefix to a desired set of packages.
//
// An Installer is configured once and then asked to Install a list of
// repodata records into a prefix. It computes a transaction against what is
// installed, unlinks removed packages, fetches new ones into the shared
// package cache and links them in, reporting progress along the way.
//
// Removals run concurrently and are fully drained before empty directories
// are cleaned up. Fetches start immediately, largest package first, while
// linking waits until that cleanup is done and then runs on a fixed pool of
// workers. The first failure cancels everything still in flight; Install
// does not return before all of its goroutines have stopped.
package installer
