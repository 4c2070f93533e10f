// Package link materializes an extracted package into a prefix and removes
// it again.
//
// For every file listed in info/paths.json the engine claims the path in
// the clobber registry, then creates the file with the cheapest strategy the
// options and the filesystem allow: reflink, hard link, symbolic link, and
// finally a plain copy. Files carrying a prefix placeholder are always
// copied with the placeholder rewritten to the target prefix.
package link
