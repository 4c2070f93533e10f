package cache

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/prefixer/pkg/errors"
	"github.com/arthur-debert/prefixer/pkg/paths"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// ArchiveType is a package archive format.
type ArchiveType int

const (
	ArchiveUnknown ArchiveType = iota
	ArchiveTarBz2
	ArchiveTarGz
	ArchiveTarZst
	ArchiveConda
)

// ArchiveTypeOf detects the format from a file name or URL.
func ArchiveTypeOf(name string) ArchiveType {
	name = strings.ToLower(name)
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	switch {
	case strings.HasSuffix(name, ".conda"):
		return ArchiveConda
	case strings.HasSuffix(name, ".tar.bz2"):
		return ArchiveTarBz2
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return ArchiveTarGz
	case strings.HasSuffix(name, ".tar.zst"):
		return ArchiveTarZst
	}
	return ArchiveUnknown
}

// Extract unpacks the archive at src into dest.
func Extract(src string, kind ArchiveType, dest string) error {
	if kind == ArchiveConda {
		return extractConda(src, dest)
	}

	f, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, errors.ErrArchive, "failed to open %s", src)
	}
	defer f.Close()

	return extractCompressedTar(f, kind, dest)
}

func extractCompressedTar(r io.Reader, kind ArchiveType, dest string) error {
	switch kind {
	case ArchiveTarBz2:
		return extractTar(bzip2.NewReader(r), dest)
	case ArchiveTarGz:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return errors.Wrap(err, errors.ErrArchive, "invalid gzip stream")
		}
		defer gz.Close()
		return extractTar(gz, dest)
	case ArchiveTarZst:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return errors.Wrap(err, errors.ErrArchive, "invalid zstd stream")
		}
		defer zr.Close()
		return extractTar(zr, dest)
	}
	return errors.New(errors.ErrArchive, "unsupported archive format")
}

// extractConda unpacks the info-*.tar.zst and pkg-*.tar.zst members of a
// .conda zip into the same directory.
func extractConda(src, dest string) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return errors.Wrapf(err, errors.ErrArchive, "failed to open %s", src)
	}
	defer zr.Close()

	found := 0
	for _, member := range zr.File {
		name := member.Name
		if !strings.HasSuffix(name, ".tar.zst") ||
			!(strings.HasPrefix(name, "info-") || strings.HasPrefix(name, "pkg-")) {
			continue
		}
		found++
		if err := extractMember(member, dest); err != nil {
			return err
		}
	}
	if found == 0 {
		return errors.Newf(errors.ErrArchive, "%s contains no package members", filepath.Base(src))
	}
	return nil
}

func extractMember(member *zip.File, dest string) error {
	rc, err := member.Open()
	if err != nil {
		return errors.Wrapf(err, errors.ErrArchive, "failed to open member %s", member.Name)
	}
	defer rc.Close()
	return extractCompressedTar(rc, ArchiveTarZst, dest)
}

func extractTar(r io.Reader, dest string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrArchive, "corrupt tar stream")
		}

		target := filepath.Join(dest, filepath.FromSlash(hdr.Name))
		if !paths.IsWithin(target, dest) {
			return errors.Newf(errors.ErrArchive, "entry %q escapes the package directory", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return wrapExtract(err, hdr.Name)
			}
		case tar.TypeReg:
			if err := writeEntry(tr, target, os.FileMode(hdr.Mode).Perm()); err != nil {
				return wrapExtract(err, hdr.Name)
			}
		case tar.TypeSymlink:
			linkTarget := hdr.Linkname
			// Absolute targets are kept verbatim and resolved against the prefix
			// at link time.
			if !filepath.IsAbs(linkTarget) &&
				!paths.IsWithin(filepath.Join(filepath.Dir(target), linkTarget), dest) {
				return errors.Newf(errors.ErrArchive, "symlink %q escapes the package directory", hdr.Name)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return wrapExtract(err, hdr.Name)
			}
			_ = os.Remove(target)
			if err := os.Symlink(linkTarget, target); err != nil {
				return wrapExtract(err, hdr.Name)
			}
		case tar.TypeLink:
			source := filepath.Join(dest, filepath.FromSlash(hdr.Linkname))
			if !paths.IsWithin(source, dest) {
				return errors.Newf(errors.ErrArchive, "hard link %q escapes the package directory", hdr.Name)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return wrapExtract(err, hdr.Name)
			}
			_ = os.Remove(target)
			if err := os.Link(source, target); err != nil {
				return wrapExtract(err, hdr.Name)
			}
		default:
			// pax headers and device files carry nothing a prefix needs
		}
	}
}

func writeEntry(r io.Reader, target string, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	if perm == 0 {
		perm = 0644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func wrapExtract(err error, name string) error {
	return errors.Wrapf(err, errors.ErrArchive, "failed to extract %s", name).
		WithDetail(errors.DetailPath, name)
}

func (t ArchiveType) String() string {
	switch t {
	case ArchiveTarBz2:
		return "tar.bz2"
	case ArchiveTarGz:
		return "tar.gz"
	case ArchiveTarZst:
		return "tar.zst"
	case ArchiveConda:
		return "conda"
	}
	return fmt.Sprintf("ArchiveType(%d)", int(t))
}
