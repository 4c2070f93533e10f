package link

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/arthur-debert/prefixer/pkg/clobber"
	"github.com/arthur-debert/prefixer/pkg/errors"
	"github.com/arthur-debert/prefixer/pkg/filesystem"
	"github.com/arthur-debert/prefixer/pkg/logging"
	"github.com/arthur-debert/prefixer/pkg/types"
)

// Result is what linking a package produced.
type Result struct {
	// Paths lists the files created, in paths.json order. RelativePath is
	// where each file was written; OriginalPath is set for clobbered files.
	Paths []types.PathsEntry
	// LinkType is the strategy used for most files.
	LinkType types.LinkType
}

// linker carries per-package state shared by the files of one package.
type linker struct {
	pkgDir string
	prefix string
	opts   InstallOptions

	hardLinkOnce sync.Once
	canHardLink  bool
	symLinkOnce  sync.Once
	canSymLink   bool
	refLinkBroke bool
}

// Package links the extracted package in pkgDir into prefix.
func Package(ctx context.Context, pkgDir, prefix string, registry *clobber.Registry, opts InstallOptions) (*Result, error) {
	logger := logging.GetLogger("link").With().Str("package", opts.PackageName).Logger()
	done := logging.LogOperationStart(logger, "link package")
	defer done()

	entries, err := ReadPaths(pkgDir)
	if err != nil {
		return nil, err
	}

	l := &linker{pkgDir: pkgDir, prefix: prefix, opts: opts}
	result := &Result{Paths: make([]types.PathsEntry, 0, len(entries))}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		target := l.targetPath(entry.RelativePath)
		location := target
		if registry != nil && entry.PathType != types.PathTypeDirectory {
			location = registry.Register(opts.PackageName, opts.Order, target)
		}

		linked, err := l.linkEntry(ctx, entry, location)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrLink, "failed to link %s", entry.RelativePath).
				WithDetail(errors.DetailPath, entry.RelativePath)
		}
		linked.RelativePath = location
		if location != target {
			linked.OriginalPath = target
		}
		result.Paths = append(result.Paths, linked)
	}

	result.LinkType = dominantLinkType(result.Paths)
	logger.Debug().
		Int("files", len(result.Paths)).
		Str("link_type", result.LinkType.String()).
		Msg("Linked package")
	return result, nil
}

func (l *linker) targetPath(rel string) string {
	rel = filepath.ToSlash(rel)
	if l.opts.NoArch == types.NoArchPython && l.opts.PythonInfo != nil {
		return l.opts.PythonInfo.MapNoArchPath(rel)
	}
	return rel
}

func (l *linker) linkEntry(ctx context.Context, entry types.PathsEntry, location string) (types.PathsEntry, error) {
	if l.opts.IO != nil {
		release, err := l.opts.IO.AcquireIO(ctx)
		if err != nil {
			return entry, err
		}
		defer release()
	}

	src := filepath.Join(l.pkgDir, filepath.FromSlash(entry.RelativePath))
	dst := filepath.Join(l.prefix, filepath.FromSlash(location))

	switch {
	case entry.PathType == types.PathTypeDirectory:
		entry.LinkType = types.LinkTypeDirectory
		return entry, os.MkdirAll(dst, 0755)

	case entry.PathType == types.PathTypeSoftLink:
		target, err := os.Readlink(src)
		if err != nil {
			return entry, err
		}
		entry.LinkType = types.LinkTypeSoftLink
		return entry, filesystem.SymLink(target, dst)

	case entry.PrefixPlaceholder != "":
		entry.LinkType = types.LinkTypeCopy
		return entry, l.copyWithPrefix(ctx, entry, src, dst)

	case entry.NoLink:
		entry.LinkType = types.LinkTypeCopy
		return entry, filesystem.Copy(src, dst)
	}

	linkType, err := l.linkFile(src, dst)
	entry.LinkType = linkType
	return entry, err
}

// linkFile tries reflink, hard link, symbolic link and copy in order.
func (l *linker) linkFile(src, dst string) (types.LinkType, error) {
	if allowed(l.opts.AllowRefLinks) && !l.refLinkBroke {
		err := filesystem.RefLink(src, dst)
		if err == nil {
			return types.LinkTypeRefLink, nil
		}
		// One failure means the filesystem pair does not clone; stop trying.
		l.refLinkBroke = true
	}

	if allowed(l.opts.AllowHardLinks) {
		l.hardLinkOnce.Do(func() {
			l.canHardLink = filesystem.CanHardLink(l.pkgDir, l.prefix)
		})
		if l.canHardLink {
			if err := filesystem.HardLink(src, dst); err == nil {
				return types.LinkTypeHardLink, nil
			}
		}
	}

	if allowed(l.opts.AllowSymbolicLinks) {
		l.symLinkOnce.Do(func() {
			l.canSymLink = filesystem.CanSymLink(l.prefix)
		})
		if l.canSymLink {
			if err := filesystem.SymLink(src, dst); err == nil {
				return types.LinkTypeSoftLink, nil
			}
		}
	}

	return types.LinkTypeCopy, filesystem.Copy(src, dst)
}

func (l *linker) copyWithPrefix(ctx context.Context, entry types.PathsEntry, src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}

	newPrefix := l.prefix
	if l.opts.TargetPrefix != "" {
		newPrefix = l.opts.TargetPrefix
	}
	mode := entry.FileMode
	if mode == "" {
		mode = types.FileModeText
	}
	rewritten, err := ReplacePlaceholder(data, entry.PrefixPlaceholder, filepath.ToSlash(newPrefix), mode)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.WriteFile(dst, rewritten, info.Mode().Perm()); err != nil {
		return err
	}

	if mode == types.FileModeBinary && l.opts.Platform == types.PlatformOSXArm64 {
		return signBinary(ctx, dst, l.opts.AppleCodeSign)
	}
	return nil
}

// dominantLinkType returns the link type used for most regular files.
// Packages made only of directories and links count as hard linked.
func dominantLinkType(paths []types.PathsEntry) types.LinkType {
	counts := make(map[types.LinkType]int)
	for _, p := range paths {
		if p.PathType == types.PathTypeHardLink || p.PathType == "" {
			counts[p.LinkType]++
		}
	}
	best := types.LinkTypeHardLink
	bestCount := 0
	for _, lt := range []types.LinkType{types.LinkTypeHardLink, types.LinkTypeRefLink, types.LinkTypeSoftLink, types.LinkTypeCopy} {
		if counts[lt] > bestCount {
			best, bestCount = lt, counts[lt]
		}
	}
	return best
}
