package driver

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/arthur-debert/prefixer/pkg/clobber"
	"github.com/arthur-debert/prefixer/pkg/datastore"
	"github.com/arthur-debert/prefixer/pkg/errors"
	"github.com/arthur-debert/prefixer/pkg/linkscript"
	"github.com/arthur-debert/prefixer/pkg/logging"
	"github.com/arthur-debert/prefixer/pkg/paths"
	"github.com/arthur-debert/prefixer/pkg/transaction"
	"github.com/arthur-debert/prefixer/pkg/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Driver is built once per install.
type Driver struct {
	executeLinkScripts bool
	io                 *semaphore.Weighted
	clobbers           *clobber.Registry
	logger             zerolog.Logger
}

// Builder configures a Driver.
type Builder struct {
	executeLinkScripts bool
	io                 *semaphore.Weighted
	records            []types.PrefixRecord
}

// NewBuilder starts a driver with link scripts off and no IO limit.
func NewBuilder() *Builder {
	return &Builder{}
}

// ExecuteLinkScripts turns package link scripts on or off.
func (b *Builder) ExecuteLinkScripts(enabled bool) *Builder {
	b.executeLinkScripts = enabled
	return b
}

// WithIOConcurrencySemaphore bounds concurrent filesystem operations.
func (b *Builder) WithIOConcurrencySemaphore(sem *semaphore.Weighted) *Builder {
	b.io = sem
	return b
}

// WithIOConcurrencyLimit bounds concurrent filesystem operations to n.
func (b *Builder) WithIOConcurrencyLimit(n int64) *Builder {
	if n > 0 {
		b.io = semaphore.NewWeighted(n)
	}
	return b
}

// WithPrefixRecords seeds the clobber registry with installed packages.
func (b *Builder) WithPrefixRecords(records []types.PrefixRecord) *Builder {
	b.records = records
	return b
}

// Finish builds the Driver.
func (b *Builder) Finish() *Driver {
	return &Driver{
		executeLinkScripts: b.executeLinkScripts,
		io:                 b.io,
		clobbers:           clobber.NewRegistry(b.records),
		logger:             logging.GetLogger("driver"),
	}
}

// ClobberRegistry returns the registry shared by all link tasks.
func (d *Driver) ClobberRegistry() *clobber.Registry {
	return d.clobbers
}

// AcquireIO waits for a slot in the filesystem budget. The returned func
// gives it back.
func (d *Driver) AcquireIO(ctx context.Context) (func(), error) {
	if d.io == nil {
		return func() {}, ctx.Err()
	}
	if err := d.io.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { d.io.Release(1) }, nil
}

// PreProcess runs the pre-unlink scripts of removed packages when link
// scripts are enabled. It returns nil when they are disabled.
func (d *Driver) PreProcess(ctx context.Context, tx *transaction.Transaction, prefix string) (*linkscript.Result, error) {
	if !d.executeLinkScripts {
		return nil, nil
	}
	result, err := linkscript.Run(ctx, linkscript.PreUnlink, tx, prefix)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrPreProcess, "failed to run pre-unlink scripts")
	}
	if result.Failed() {
		d.logger.Warn().Strs("packages", result.FailedPackages).Msg("Pre-unlink scripts failed")
	}
	return result, nil
}

// PostProcessResult is what PostProcess produced.
type PostProcessResult struct {
	PostLinkResult *linkscript.Result
	ClobberedPaths map[string]clobber.ClobberedPath
}

// PostProcess settles clobbered paths, rewriting the metadata records of
// packages whose files moved, then runs post-link scripts when enabled.
func (d *Driver) PostProcess(ctx context.Context, tx *transaction.Transaction, prefix string) (*PostProcessResult, error) {
	clobbered, renames, err := d.clobbers.Resolve(prefix)
	if err != nil {
		return nil, err
	}

	if len(renames) > 0 {
		if err := d.applyRenames(prefix, renames); err != nil {
			return nil, err
		}
	}

	result := &PostProcessResult{ClobberedPaths: clobbered}
	if d.executeLinkScripts {
		postLink, err := linkscript.Run(ctx, linkscript.PostLink, tx, prefix)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrPostProcess, "failed to run post-link scripts")
		}
		if postLink.Failed() {
			d.logger.Warn().Strs("packages", postLink.FailedPackages).Msg("Post-link scripts failed")
		}
		result.PostLinkResult = postLink
	}
	return result, nil
}

func (d *Driver) applyRenames(prefix string, renames []clobber.Rename) error {
	store := datastore.NewOS(prefix)
	records, err := store.Scan()
	if err != nil {
		return errors.Wrap(err, errors.ErrPostProcess, "failed to read records for clobber bookkeeping")
	}
	for i := range records {
		if !clobber.ApplyRenames(&records[i], renames) {
			continue
		}
		if err := store.Write(records[i]); err != nil {
			return errors.Wrapf(err, errors.ErrPostProcess, "failed to update record of %s", records[i].Name).
				WithDetail(errors.DetailPackage, records[i].Name)
		}
	}
	return nil
}

// RemoveEmptyDirectories deletes directories that held files of removed
// packages and are now empty, deepest first. Directories that still hold
// files of remaining packages, the prefix itself and conda-meta are kept.
func (d *Driver) RemoveEmptyDirectories(ops []transaction.Operation, remaining []types.PrefixRecord, prefix string) error {
	keep := map[string]bool{".": true, paths.CondaMetaDir: true}
	for _, rec := range remaining {
		for _, f := range rec.Files {
			for dir := parentDir(f); dir != "."; dir = parentDir(dir) {
				keep[dir] = true
			}
		}
	}

	candidates := map[string]bool{}
	for _, op := range ops {
		rec := op.RecordToRemove()
		if rec == nil {
			continue
		}
		for _, f := range rec.Files {
			for dir := parentDir(f); dir != "."; dir = parentDir(dir) {
				if !keep[dir] {
					candidates[dir] = true
				}
			}
		}
	}

	dirs := make([]string, 0, len(candidates))
	for dir := range candidates {
		dirs = append(dirs, dir)
	}
	// Deepest first so parents are empty by the time they are checked.
	sort.Slice(dirs, func(i, j int) bool {
		di, dj := strings.Count(dirs[i], "/"), strings.Count(dirs[j], "/")
		if di != dj {
			return di > dj
		}
		return dirs[i] < dirs[j]
	})

	for _, dir := range dirs {
		full := filepath.Join(prefix, filepath.FromSlash(dir))
		entries, err := os.ReadDir(full)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return errors.Wrapf(err, errors.ErrIO, "failed to read %s", dir).WithDetail(errors.DetailPath, dir)
		}
		if len(entries) > 0 {
			continue
		}
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, errors.ErrIO, "failed to remove %s", dir).WithDetail(errors.DetailPath, dir)
		}
		d.logger.Trace().Str("dir", dir).Msg("Removed empty directory")
	}
	return nil
}

func parentDir(rel string) string {
	rel = filepath.ToSlash(rel)
	i := strings.LastIndex(rel, "/")
	if i < 0 {
		return "."
	}
	return rel[:i]
}
