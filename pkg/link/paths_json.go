package link

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/arthur-debert/prefixer/pkg/errors"
	"github.com/arthur-debert/prefixer/pkg/types"
)

type pathsJSON struct {
	PathsVersion int                `json:"paths_version"`
	Paths        []types.PathsEntry `json:"paths"`
}

// ReadPaths returns the file entries of an extracted package. Without an
// info/paths.json the package tree minus info/ is walked instead.
func ReadPaths(pkgDir string) ([]types.PathsEntry, error) {
	data, err := os.ReadFile(filepath.Join(pkgDir, "info", "paths.json"))
	if err == nil {
		var parsed pathsJSON
		if err := json.Unmarshal(data, &parsed); err != nil {
			return nil, errors.Wrap(err, errors.ErrLink, "invalid info/paths.json")
		}
		return parsed.Paths, nil
	}
	if !os.IsNotExist(err) {
		return nil, errors.Wrap(err, errors.ErrLink, "failed to read info/paths.json")
	}
	return walkPackage(pkgDir)
}

func walkPackage(pkgDir string) ([]types.PathsEntry, error) {
	var entries []types.PathsEntry
	err := filepath.WalkDir(pkgDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(pkgDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if rel == "info" || strings.HasPrefix(rel, "info/") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(rel, ".") && !strings.Contains(rel, "/") && !d.IsDir() {
			// cache bookkeeping such as the validation marker
			return nil
		}
		switch {
		case d.Type()&fs.ModeSymlink != 0:
			entries = append(entries, types.PathsEntry{RelativePath: rel, PathType: types.PathTypeSoftLink})
		case d.IsDir():
			empty, err := isEmptyDir(path)
			if err != nil {
				return err
			}
			if empty {
				entries = append(entries, types.PathsEntry{RelativePath: rel, PathType: types.PathTypeDirectory})
			}
		default:
			entries = append(entries, types.PathsEntry{RelativePath: rel, PathType: types.PathTypeHardLink})
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrLink, "failed to walk package")
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].RelativePath < entries[j].RelativePath })
	return entries, nil
}

func isEmptyDir(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}
