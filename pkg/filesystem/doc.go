// Package filesystem provides the low-level primitives used to materialize
// package files in a prefix: reflinks, hard links, symbolic links and plain
// copies, plus the capability probes that decide between them.
package filesystem
