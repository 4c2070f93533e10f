// Package clobber tracks which package owns each file path in a prefix.
//
// While packages are linked concurrently, the first package to register a
// path writes it in place; every later package writes its copy next to it
// as {path}__clobber-from-{package}. Once linking is done, Resolve picks a
// winner per contended path, the contender with the highest transaction
// order, and swaps files so the winner's copy sits at the original path.
//
// The path table is split into shards with one lock each, so packages
// registering unrelated paths do not contend.
package clobber
