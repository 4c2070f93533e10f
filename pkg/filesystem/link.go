package filesystem

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrRefLinkUnsupported is returned when the platform or filesystem cannot
// clone file extents.
var ErrRefLinkUnsupported = errors.New("reflinks are not supported")

// HardLink links dst to src, replacing dst if it exists.
func HardLink(src, dst string) error {
	if err := prepareTarget(dst); err != nil {
		return err
	}
	return os.Link(src, dst)
}

// SymLink creates dst pointing at target, replacing dst if it exists.
func SymLink(target, dst string) error {
	if err := prepareTarget(dst); err != nil {
		return err
	}
	return os.Symlink(target, dst)
}

// RefLink clones src into dst sharing extents, replacing dst if it exists.
func RefLink(src, dst string) error {
	if err := prepareTarget(dst); err != nil {
		return err
	}
	return refLink(src, dst)
}

// Copy copies src to dst keeping the permission bits of src.
func Copy(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	return WriteFile(dst, in, info.Mode().Perm())
}

// WriteFile writes the contents of r to dst with perm, replacing dst.
func WriteFile(dst string, r io.Reader, perm fs.FileMode) error {
	if err := prepareTarget(dst); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(dst, perm)
}

// CanHardLink reports whether files in src can be hard linked into dst by
// linking a probe file across the two directories.
func CanHardLink(srcDir, dstDir string) bool {
	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return false
	}
	probe, err := os.CreateTemp(srcDir, ".prefixer-probe-*")
	if err != nil {
		return false
	}
	probeName := probe.Name()
	probe.Close()
	defer os.Remove(probeName)

	target := filepath.Join(dstDir, filepath.Base(probeName))
	if err := os.Link(probeName, target); err != nil {
		return false
	}
	os.Remove(target)
	return true
}

// CanSymLink reports whether symbolic links can be created in dir.
func CanSymLink(dir string) bool {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false
	}
	name := filepath.Join(dir, fmt.Sprintf(".prefixer-symlink-probe-%d", os.Getpid()))
	os.Remove(name)
	if err := os.Symlink(".", name); err != nil {
		return false
	}
	os.Remove(name)
	return true
}

// prepareTarget creates the parent of dst and removes whatever sits at dst.
func prepareTarget(dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
