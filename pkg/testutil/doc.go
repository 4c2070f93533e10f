// Package testutil provides helpers shared by prefixer's tests.
//
// Key components:
//   - File helpers: CreateFile, CreateDir, FileExists, SymlinkExists and
//     friends for arranging and inspecting real directories.
//   - PackageBuilder: declares a package's files and metadata and writes it
//     as a .conda, .tar.zst or .tar.gz archive.
//   - PackageServer: an httptest server that serves built archives and
//     counts, delays or fails requests.
//
// Tests touching the prefix use real temporary directories: linking is
// about real filesystem semantics (hard links, symlinks, modes) that an
// in-memory filesystem cannot reproduce.
package testutil
