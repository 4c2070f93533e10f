package installer

import (
	"context"
	"os"
	"sort"
	"sync"

	"github.com/arthur-debert/prefixer/pkg/blocking"
	"github.com/arthur-debert/prefixer/pkg/cache"
	"github.com/arthur-debert/prefixer/pkg/clobber"
	"github.com/arthur-debert/prefixer/pkg/datastore"
	"github.com/arthur-debert/prefixer/pkg/download"
	"github.com/arthur-debert/prefixer/pkg/driver"
	"github.com/arthur-debert/prefixer/pkg/errors"
	"github.com/arthur-debert/prefixer/pkg/link"
	"github.com/arthur-debert/prefixer/pkg/linkscript"
	"github.com/arthur-debert/prefixer/pkg/logging"
	"github.com/arthur-debert/prefixer/pkg/paths"
	"github.com/arthur-debert/prefixer/pkg/reporter"
	"github.com/arthur-debert/prefixer/pkg/transaction"
	"github.com/arthur-debert/prefixer/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// InstallationResult is what a successful Install did.
type InstallationResult struct {
	Transaction *transaction.Transaction
	// PreLinkScriptResult and PostLinkScriptResult are nil when link
	// scripts are disabled or nothing had to be done.
	PreLinkScriptResult  *linkscript.Result
	PostLinkScriptResult *linkscript.Result
	// ClobberedPaths maps every path shipped by more than one package to
	// the package whose file ended up there.
	ClobberedPaths map[string]clobber.ClobberedPath
}

// outcome is what one goroutine of the pipeline hands back.
type outcome struct {
	err   error
	panic interface{}
}

// Plan computes the transaction Install would carry out without changing
// anything on disk.
func (i Installer) Plan(ctx context.Context, prefix string, desired []types.RepoDataRecord) (*transaction.Transaction, error) {
	current, err := i.currentRecords(prefix)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCancelled, "install cancelled")
	}
	return transaction.FromCurrentAndDesired(current, desired, i.reinstall, i.platform())
}

// Install makes prefix contain exactly the desired packages.
func (i Installer) Install(ctx context.Context, prefix string, desired []types.RepoDataRecord) (*InstallationResult, error) {
	logger := logging.GetLogger("installer").With().
		Str("txid", uuid.NewString()).
		Str("prefix", prefix).
		Logger()
	defer logging.LogOperationStart(logger, "install")()

	downloader := i.downloader
	if downloader == nil {
		downloader = download.DefaultClient()
	}
	packageCache := i.packageCache
	if packageCache == nil {
		packageCache = cache.New(paths.CacheDir())
	}
	policy := i.retryPolicy
	if policy == nil {
		policy = download.DefaultRetryPolicy
	}

	if err := os.MkdirAll(prefix, 0755); err != nil {
		return nil, errors.Wrapf(err, errors.ErrPrefixCreate, "failed to create prefix %s", prefix).
			WithDetail(errors.DetailPath, prefix)
	}

	current, err := i.scanOffPath(prefix)
	if err != nil {
		return nil, err
	}

	drv := driver.NewBuilder().
		ExecuteLinkScripts(i.executeLinkScripts).
		WithIOConcurrencySemaphore(i.semaphore()).
		WithPrefixRecords(current).
		Finish()

	platform := i.platform()
	tx, err := transaction.FromCurrentAndDesired(current, desired, i.reinstall, platform)
	if err != nil {
		return nil, err
	}
	remaining := remainingRecords(current, tx)

	if len(tx.Operations) == 0 {
		logger.Info().Msg("Prefix already up to date")
		return &InstallationResult{Transaction: tx, ClobberedPaths: map[string]clobber.ClobberedPath{}}, nil
	}

	baseOptions := link.InstallOptions{
		TargetPrefix:       i.alternativeTargetPrefix,
		Platform:           platform,
		PythonInfo:         tx.PythonInfo,
		AppleCodeSign:      i.appleCodeSign,
		AllowSymbolicLinks: i.linkOptions.AllowSymbolicLinks,
		AllowHardLinks:     i.linkOptions.AllowHardLinks,
		AllowRefLinks:      i.linkOptions.AllowRefLinks,
		IO:                 drv,
	}

	preResult, err := drv.PreProcess(ctx, tx, prefix)
	if err != nil {
		return nil, err
	}

	rep := i.reporter
	if rep == nil {
		rep = reporter.Nop{}
	}
	rep.OnTransactionStart(tx)

	run := &run{
		prefix:   prefix,
		tx:       tx,
		driver:   drv,
		reporter: rep,
		cache:    packageCache,
		client:   downloader,
		policy:   policy,
		options:  baseOptions,
		pool:     blocking.New(i.linkWorkers),
		gate:     make(chan struct{}),
		logger:   logger,
	}
	defer run.pool.Close()

	runCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	// Every return path first stops and waits for the pipeline.
	defer func() {
		cancel()
		wg.Wait()
	}()

	unlinks := make(chan outcome, len(tx.Operations))
	pendingUnlinks := 0
	for idx, op := range tx.Operations {
		if op.Remove == nil {
			continue
		}
		pendingUnlinks++
		wg.Add(1)
		go func(idx int, op transaction.Operation) {
			defer wg.Done()
			unlinks <- guard(func() error { return run.unlink(runCtx, idx, op) })
		}(idx, op)
	}

	installs := make(chan outcome, len(tx.Operations))
	order := dispatchOrder(tx.Operations)
	admitted := make(chan struct{})
	close(admitted)
	for _, idx := range order {
		next := make(chan struct{})
		wg.Add(1)
		go func(idx int, prev <-chan struct{}, next chan struct{}) {
			defer wg.Done()
			installs <- guard(func() error { return run.install(runCtx, idx, prev, next) })
		}(idx, admitted, next)
		admitted = next
	}

	done := logging.LogOperationStart(logger, "unlink")
	for ; pendingUnlinks > 0; pendingUnlinks-- {
		if err := collect(<-unlinks); err != nil {
			return nil, err
		}
	}
	done()

	if err := drv.RemoveEmptyDirectories(tx.Operations, remaining, prefix); err != nil {
		return nil, err
	}
	close(run.gate)

	done = logging.LogOperationStart(logger, "link")
	for n := len(order); n > 0; n-- {
		if err := collect(<-installs); err != nil {
			return nil, err
		}
	}
	done()

	post, err := drv.PostProcess(ctx, tx, prefix)
	if err != nil {
		return nil, err
	}

	rep.OnTransactionComplete()
	logger.Info().
		Int("removed", len(tx.RemovedPackages())).
		Int("installed", len(tx.InstalledPackages())).
		Int("clobbered", len(post.ClobberedPaths)).
		Msg("Transaction applied")

	return &InstallationResult{
		Transaction:          tx,
		PreLinkScriptResult:  preResult,
		PostLinkScriptResult: post.PostLinkResult,
		ClobberedPaths:       post.ClobberedPaths,
	}, nil
}

// guard runs fn and captures a panic instead of letting it kill the
// goroutine.
func guard(fn func() error) (o outcome) {
	defer func() {
		if r := recover(); r != nil {
			o = outcome{panic: r}
		}
	}()
	return outcome{err: fn()}
}

// collect re-raises a captured panic on the calling goroutine.
func collect(o outcome) error {
	if o.panic != nil {
		panic(o.panic)
	}
	return o.err
}

func (i Installer) platform() types.Platform {
	if i.targetPlatform != "" {
		return i.targetPlatform
	}
	return types.CurrentPlatform()
}

func (i Installer) semaphore() *semaphore.Weighted {
	if i.ioSemaphore != nil {
		return i.ioSemaphore
	}
	limit := i.ioConcurrencyLimit
	if limit <= 0 {
		limit = DefaultIOConcurrencyLimit
	}
	return semaphore.NewWeighted(int64(limit))
}

func (i Installer) currentRecords(prefix string) ([]types.PrefixRecord, error) {
	if i.installedKnown {
		return i.installed, nil
	}
	return datastore.NewOS(prefix).Scan()
}

// scanOffPath reads the installed records on a separate goroutine.
func (i Installer) scanOffPath(prefix string) ([]types.PrefixRecord, error) {
	if i.installedKnown {
		return i.installed, nil
	}
	type scanned struct {
		records []types.PrefixRecord
		err     error
	}
	ch := make(chan scanned, 1)
	go func() {
		records, err := datastore.NewOS(prefix).Scan()
		ch <- scanned{records, err}
	}()
	res := <-ch
	return res.records, res.err
}

// remainingRecords is current minus every record the transaction removes.
func remainingRecords(current []types.PrefixRecord, tx *transaction.Transaction) []types.PrefixRecord {
	removed := make(map[string]struct{})
	for _, r := range tx.RemovedPackages() {
		removed[r.MetadataFileName()] = struct{}{}
	}
	var remaining []types.PrefixRecord
	for _, r := range current {
		if _, ok := removed[r.MetadataFileName()]; !ok {
			remaining = append(remaining, r)
		}
	}
	return remaining
}

// dispatchOrder returns the indices of operations that install something,
// largest declared size first.
func dispatchOrder(ops []transaction.Operation) []int {
	var order []int
	for idx, op := range ops {
		if op.Install != nil {
			order = append(order, idx)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return ops[order[a]].Install.SizeOrZero() > ops[order[b]].Install.SizeOrZero()
	})
	return order
}

// run is the shared state of one Install call.
type run struct {
	prefix   string
	tx       *transaction.Transaction
	driver   *driver.Driver
	reporter reporter.Reporter
	cache    *cache.PackageCache
	client   download.Client
	policy   download.RetryPolicy
	options  link.InstallOptions
	pool     *blocking.Pool
	gate     chan struct{}
	logger   zerolog.Logger
}

func (r *run) unlink(ctx context.Context, idx int, op transaction.Operation) error {
	record := op.Remove
	r.reporter.OnTransactionOperationStart(idx)
	handle := r.reporter.OnUnlinkStart(idx, record)

	r.driver.ClobberRegistry().UnregisterPaths(*record)
	if err := link.UnlinkPackage(ctx, r.prefix, *record); err != nil {
		if ctx.Err() != nil {
			return errors.ForPackage(err, errors.ErrCancelled, record.FileName)
		}
		return errors.ForPackage(err, errors.ErrUnlink, record.FileName)
	}

	r.reporter.OnUnlinkComplete(handle)
	if op.Install == nil {
		r.reporter.OnTransactionOperationComplete(idx)
	}
	return nil
}

// install fetches and links one package. prev is closed once the operation
// dispatched before this one announced its fetch; admitted is closed once
// this one has.
func (r *run) install(ctx context.Context, idx int, prev <-chan struct{}, admitted chan struct{}) error {
	var admitOnce sync.Once
	admit := func() { admitOnce.Do(func() { close(admitted) }) }
	defer admit()

	select {
	case <-prev:
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), errors.ErrCancelled, "install cancelled")
	}

	op := r.tx.Operations[idx]
	record := op.Install
	if op.Remove == nil {
		r.reporter.OnTransactionOperationStart(idx)
	}

	entry := r.reporter.OnPopulateCacheStart(idx, record)
	admit()

	lock, err := r.cache.GetOrFetch(ctx, cache.KeyFromRecord(*record), record.URL, r.client, r.policy,
		&cacheReporter{reporter: r.reporter, entry: entry})
	if err != nil {
		if ctx.Err() != nil {
			return errors.ForPackage(err, errors.ErrCancelled, record.FileName)
		}
		return errors.ForPackage(err, errors.ErrFetch, record.FileName)
	}
	defer lock.Release()
	r.reporter.OnPopulateCacheComplete(entry)

	select {
	case <-r.gate:
	case <-ctx.Done():
		return errors.ForPackage(ctx.Err(), errors.ErrCancelled, record.FileName)
	}

	handle := r.reporter.OnLinkStart(idx, record)
	opts := r.options
	opts.PackageName = record.Name
	opts.Order = idx
	opts.NoArch = record.Noarch
	_, err = blocking.Run(ctx, r.pool, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, linkPackage(ctx, *record, r.prefix, lock.Path(), opts, r.driver)
	})
	if err != nil {
		if ctx.Err() != nil {
			return errors.ForPackage(err, errors.ErrCancelled, record.FileName)
		}
		return err
	}
	r.logger.Debug().Str("package", record.FileName).Msg("Linked package")
	r.reporter.OnLinkComplete(handle)
	r.reporter.OnTransactionOperationComplete(idx)
	return nil
}

// linkPackage links one extracted package and writes its metadata record.
func linkPackage(ctx context.Context, record types.RepoDataRecord, prefix, pkgDir string, opts link.InstallOptions, drv *driver.Driver) error {
	result, err := link.Package(ctx, pkgDir, prefix, drv.ClobberRegistry(), opts)
	if err != nil {
		return errors.ForPackage(err, errors.ErrLink, record.FileName)
	}

	prefixRecord := types.NewPrefixRecord(record, pkgDir, result.Paths, result.LinkType)
	release, err := drv.AcquireIO(ctx)
	if err != nil {
		return err
	}
	defer release()
	if err := datastore.NewOS(prefix).Write(prefixRecord); err != nil {
		return errors.ForPackage(err, errors.ErrIO, record.FileName)
	}
	return nil
}

// cacheReporter forwards cache events to the install reporter under the
// operation's populate-cache index.
type cacheReporter struct {
	reporter reporter.Reporter
	entry    int
}

func (c *cacheReporter) OnValidateStart() int { return c.reporter.OnValidateStart(c.entry) }

func (c *cacheReporter) OnValidateComplete(index int) { c.reporter.OnValidateComplete(index) }

func (c *cacheReporter) OnDownloadStart() int { return c.reporter.OnDownloadStart(c.entry) }

func (c *cacheReporter) OnDownloadProgress(index int, progress uint64, total *uint64) {
	c.reporter.OnDownloadProgress(index, progress, total)
}

func (c *cacheReporter) OnDownloadCompleted(index int) { c.reporter.OnDownloadCompleted(index) }
