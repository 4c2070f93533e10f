package datastore

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/arthur-debert/prefixer/pkg/errors"
	"github.com/arthur-debert/prefixer/pkg/logging"
	"github.com/arthur-debert/prefixer/pkg/paths"
	"github.com/arthur-debert/prefixer/pkg/types"
	"github.com/spf13/afero"
)

// Store is the conda-meta store of a single prefix.
type Store struct {
	fs     afero.Fs
	prefix string
}

// New creates a Store for prefix on fs.
func New(fs afero.Fs, prefix string) *Store {
	return &Store{fs: fs, prefix: prefix}
}

// NewOS creates a Store backed by the real filesystem.
func NewOS(prefix string) *Store {
	return New(afero.NewOsFs(), prefix)
}

// Dir returns the conda-meta directory of the prefix.
func (s *Store) Dir() string {
	return paths.CondaMetaPath(s.prefix)
}

// Path returns the location of the record for r.
func (s *Store) Path(r types.PackageRecord) string {
	return filepath.Join(s.Dir(), types.MetadataFileName(r))
}

// Scan reads every record in conda-meta, sorted by package name. A prefix
// without a conda-meta directory has no installed packages.
func (s *Store) Scan() ([]types.PrefixRecord, error) {
	logger := logging.GetLogger("datastore")

	entries, err := afero.ReadDir(s.fs, s.Dir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, errors.ErrDetectInstalled, "failed to read %s", s.Dir()).
			WithDetail(errors.DetailPath, s.Dir())
	}

	records := make([]types.PrefixRecord, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.Dir(), entry.Name())
		record, err := s.read(path)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Name < records[j].Name
	})

	logger.Debug().
		Str("prefix", s.prefix).
		Int("count", len(records)).
		Msg("Scanned installed packages")
	return records, nil
}

func (s *Store) read(path string) (types.PrefixRecord, error) {
	var record types.PrefixRecord
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return record, errors.Wrapf(err, errors.ErrDetectInstalled, "failed to read %s", path).
			WithDetail(errors.DetailPath, path)
	}
	if err := json.Unmarshal(data, &record); err != nil {
		return record, errors.Wrapf(err, errors.ErrDetectInstalled, "failed to parse %s", path).
			WithDetail(errors.DetailPath, path)
	}
	return record, nil
}

// Write persists record atomically. The conda-meta directory is created if
// needed; concurrent callers creating it at the same time is safe.
func (s *Store) Write(record types.PrefixRecord) error {
	dir := s.Dir()
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, errors.ErrIO, "failed to create %s", dir).
			WithDetail(errors.DetailPath, dir)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return errors.Wrapf(err, errors.ErrIO, "failed to encode record for %s", record.FileName).
			WithDetail(errors.DetailFileName, record.FileName)
	}

	target := s.Path(record.PackageRecord)
	tmp, err := afero.TempFile(s.fs, dir, "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return errors.Wrapf(err, errors.ErrIO, "failed to write %s", target).
			WithDetail(errors.DetailPath, target)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		_ = s.fs.Remove(tmpName)
		return errors.Wrapf(err, errors.ErrIO, "failed to write %s", target).
			WithDetail(errors.DetailPath, target)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return errors.Wrapf(err, errors.ErrIO, "failed to write %s", target).
			WithDetail(errors.DetailPath, target)
	}
	if err := s.fs.Rename(tmpName, target); err != nil {
		_ = s.fs.Remove(tmpName)
		return errors.Wrapf(err, errors.ErrIO, "failed to move record into %s", target).
			WithDetail(errors.DetailPath, target)
	}
	return nil
}

// Remove deletes the record for r. A missing record is not an error.
func (s *Store) Remove(r types.PackageRecord) error {
	path := s.Path(r)
	if err := s.fs.Remove(path); err != nil && !isNotExist(err) {
		return errors.Wrapf(err, errors.ErrUnlink, "failed to remove %s", path).
			WithDetail(errors.DetailPath, path)
	}
	return nil
}

func isNotExist(err error) bool {
	return os.IsNotExist(err) || stderrors.Is(err, fs.ErrNotExist)
}

// String implements fmt.Stringer for log output.
func (s *Store) String() string {
	return fmt.Sprintf("datastore(%s)", s.Dir())
}
