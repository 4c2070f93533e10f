// Package datastore reads and writes the per-package metadata records kept
// in a prefix's conda-meta directory. Each installed package owns exactly
// one JSON file named {name}-{version}-{build}.json. Writes are atomic and
// directory creation is idempotent, so link tasks for different packages
// can write concurrently without coordination.
package datastore
