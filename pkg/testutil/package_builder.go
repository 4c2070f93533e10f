package testutil

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/arthur-debert/prefixer/pkg/types"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
)

// Placeholder is the prefix placeholder conda-build writes into packages.
const Placeholder = "/opt/anaconda1anaconda2anaconda3"

// Format is the archive format a PackageBuilder writes.
type Format int

const (
	FormatConda Format = iota
	FormatTarZst
	FormatTarGz
)

func (f Format) extension() string {
	switch f {
	case FormatTarZst:
		return ".tar.zst"
	case FormatTarGz:
		return ".tar.gz"
	}
	return ".conda"
}

type fixtureFile struct {
	path        string
	content     []byte
	mode        os.FileMode
	symlink     string
	placeholder string
	fileMode    types.FileMode
	noLink      bool
}

// PackageBuilder declares a test package.
type PackageBuilder struct {
	record      types.PackageRecord
	files       []fixtureFile
	format      Format
	skipPaths   bool
	declareSize *uint64
}

// NewPackage starts a package with build string "0".
func NewPackage(name, version string) *PackageBuilder {
	return &PackageBuilder{
		record: types.PackageRecord{
			Name:    name,
			Version: version,
			Build:   "0",
			Subdir:  string(types.CurrentPlatform()),
		},
	}
}

// WithBuild sets the build string and number.
func (b *PackageBuilder) WithBuild(build string, number uint64) *PackageBuilder {
	b.record.Build = build
	b.record.BuildNumber = number
	return b
}

// WithDepends sets the dependency specs.
func (b *PackageBuilder) WithDepends(specs ...string) *PackageBuilder {
	b.record.Depends = specs
	return b
}

// WithNoArch marks the package noarch.
func (b *PackageBuilder) WithNoArch(kind types.NoArchType) *PackageBuilder {
	b.record.Noarch = kind
	b.record.Subdir = string(types.PlatformNoArch)
	return b
}

// WithFormat selects the archive format. The default is .conda.
func (b *PackageBuilder) WithFormat(f Format) *PackageBuilder {
	b.format = f
	return b
}

// WithDeclaredSize overrides the size recorded in the repodata record,
// which otherwise is the archive size.
func (b *PackageBuilder) WithDeclaredSize(size uint64) *PackageBuilder {
	b.declareSize = &size
	return b
}

// WithoutPathsJSON omits info/paths.json so consumers walk the tree.
func (b *PackageBuilder) WithoutPathsJSON() *PackageBuilder {
	b.skipPaths = true
	return b
}

// File adds a regular file.
func (b *PackageBuilder) File(path, content string) *PackageBuilder {
	b.files = append(b.files, fixtureFile{path: path, content: []byte(content), mode: 0644})
	return b
}

// Executable adds an executable file.
func (b *PackageBuilder) Executable(path, content string) *PackageBuilder {
	b.files = append(b.files, fixtureFile{path: path, content: []byte(content), mode: 0755})
	return b
}

// Symlink adds a symbolic link to target.
func (b *PackageBuilder) Symlink(path, target string) *PackageBuilder {
	b.files = append(b.files, fixtureFile{path: path, symlink: target, mode: 0777})
	return b
}

// WithPlaceholder adds a file containing Placeholder to be rewritten at
// link time.
func (b *PackageBuilder) WithPlaceholder(path, content string, mode types.FileMode) *PackageBuilder {
	b.files = append(b.files, fixtureFile{
		path:        path,
		content:     []byte(content),
		mode:        0755,
		placeholder: Placeholder,
		fileMode:    mode,
	})
	return b
}

// NoLink adds a file that must always be copied.
func (b *PackageBuilder) NoLink(path, content string) *PackageBuilder {
	b.files = append(b.files, fixtureFile{path: path, content: []byte(content), mode: 0644, noLink: true})
	return b
}

// BuiltPackage is a package archive on disk.
type BuiltPackage struct {
	Record types.RepoDataRecord
	Path   string
	Files  []string
}

// Write builds the archive into dir. The record's URL is a file:// URL
// until a PackageServer rewrites it.
func (b *PackageBuilder) Write(t *testing.T, dir string) *BuiltPackage {
	t.Helper()

	base := b.record.String()
	fileName := base + b.format.extension()
	archivePath := filepath.Join(dir, fileName)

	info := b.infoEntries(t)
	pkg := b.pkgEntries()

	var buf bytes.Buffer
	switch b.format {
	case FormatConda:
		zw := zip.NewWriter(&buf)
		writeZipMember(t, zw, "metadata.json", []byte(`{"conda_pkg_format_version": 2}`))
		writeZipMember(t, zw, "info-"+base+".tar.zst", zstdTar(t, info))
		writeZipMember(t, zw, "pkg-"+base+".tar.zst", zstdTar(t, pkg))
		require.NoError(t, zw.Close())
	case FormatTarZst:
		buf.Write(zstdTar(t, append(info, pkg...)))
	case FormatTarGz:
		gz := gzip.NewWriter(&buf)
		writeTar(t, gz, append(info, pkg...))
		require.NoError(t, gz.Close())
	}

	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(archivePath, buf.Bytes(), 0644))

	record := b.record
	size := uint64(buf.Len())
	if b.declareSize != nil {
		size = *b.declareSize
	}
	record.Size = &size
	record.Sha256 = Checksum(buf.Bytes())

	files := make([]string, 0, len(b.files))
	for _, f := range b.files {
		files = append(files, f.path)
	}
	sort.Strings(files)

	return &BuiltPackage{
		Record: types.RepoDataRecord{
			PackageRecord: record,
			FileName:      fileName,
			URL:           "file://" + filepath.ToSlash(archivePath),
			Channel:       "test",
		},
		Path:  archivePath,
		Files: files,
	}
}

type tarEntry struct {
	name     string
	content  []byte
	mode     os.FileMode
	linkname string
}

func (b *PackageBuilder) infoEntries(t *testing.T) []tarEntry {
	t.Helper()

	index, err := json.Marshal(map[string]interface{}{
		"name":         b.record.Name,
		"version":      b.record.Version,
		"build":        b.record.Build,
		"build_number": b.record.BuildNumber,
		"depends":      append([]string{}, b.record.Depends...),
		"noarch":       b.record.Noarch,
		"subdir":       b.record.Subdir,
	})
	require.NoError(t, err)
	entries := []tarEntry{{name: "info/index.json", content: index, mode: 0644}}

	if !b.skipPaths {
		type pathEntry struct {
			Path              string         `json:"_path"`
			PathType          string         `json:"path_type"`
			Sha256            string         `json:"sha256,omitempty"`
			SizeInBytes       *uint64        `json:"size_in_bytes,omitempty"`
			PrefixPlaceholder string         `json:"prefix_placeholder,omitempty"`
			FileMode          types.FileMode `json:"file_mode,omitempty"`
			NoLink            bool           `json:"no_link,omitempty"`
		}
		list := make([]pathEntry, 0, len(b.files))
		for _, f := range b.files {
			e := pathEntry{Path: f.path, PathType: "hardlink"}
			if f.symlink != "" {
				e.PathType = "softlink"
			} else {
				size := uint64(len(f.content))
				e.Sha256 = Checksum(f.content)
				e.SizeInBytes = &size
				e.PrefixPlaceholder = f.placeholder
				e.FileMode = f.fileMode
				e.NoLink = f.noLink
			}
			list = append(list, e)
		}
		paths, err := json.Marshal(map[string]interface{}{
			"paths":         list,
			"paths_version": 1,
		})
		require.NoError(t, err)
		entries = append(entries, tarEntry{name: "info/paths.json", content: paths, mode: 0644})
	}
	return entries
}

func (b *PackageBuilder) pkgEntries() []tarEntry {
	entries := make([]tarEntry, 0, len(b.files))
	for _, f := range b.files {
		entries = append(entries, tarEntry{name: f.path, content: f.content, mode: f.mode, linkname: f.symlink})
	}
	return entries
}

func writeTar(t *testing.T, w io.Writer, entries []tarEntry) {
	t.Helper()

	tw := tar.NewWriter(w)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: int64(e.mode), Size: int64(len(e.content)), Typeflag: tar.TypeReg}
		if e.linkname != "" {
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = e.linkname
			hdr.Size = 0
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Typeflag == tar.TypeReg {
			_, err := tw.Write(e.content)
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
}

func zstdTar(t *testing.T, entries []tarEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	writeTar(t, zw, entries)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func writeZipMember(t *testing.T, zw *zip.Writer, name string, content []byte) {
	t.Helper()

	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
	require.NoError(t, err)
	_, err = w.Write(content)
	require.NoError(t, err)
}
