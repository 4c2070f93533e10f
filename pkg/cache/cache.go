package cache

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/arthur-debert/prefixer/pkg/download"
	"github.com/arthur-debert/prefixer/pkg/errors"
	"github.com/arthur-debert/prefixer/pkg/internal/hashutil"
	"github.com/arthur-debert/prefixer/pkg/logging"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"
)

// ValidatedMarker is written into an extracted package once it has been
// fully unpacked. It holds the sha256 of the archive it came from.
const ValidatedMarker = ".prefixer-validated"

// PackageCache is a directory of extracted packages shared between prefixes.
type PackageCache struct {
	dir   string
	group singleflight.Group

	mu    sync.Mutex
	locks map[string]*entryLock
}

// entryLock guards one package directory. refs counts holders and waiters
// so the entry can be dropped once nobody uses it.
type entryLock struct {
	mu   sync.RWMutex
	refs int
}

// New returns a cache rooted at dir. The directory is created lazily.
func New(dir string) *PackageCache {
	return &PackageCache{
		dir:   dir,
		locks: make(map[string]*entryLock),
	}
}

// Dir returns the cache root.
func (c *PackageCache) Dir() string {
	return c.dir
}

// PackageDir returns where key is extracted.
func (c *PackageCache) PackageDir(key Key) string {
	return filepath.Join(c.dir, key.String())
}

// Lock is a read hold on an extracted package. The directory stays valid
// until Release is called.
type Lock struct {
	path    string
	release func()
	once    sync.Once
}

// Path returns the extracted package directory.
func (l *Lock) Path() string {
	return l.path
}

// Release drops the hold. It is safe to call more than once.
func (l *Lock) Release() {
	l.once.Do(l.release)
}

// GetOrFetch returns a Lock on the extracted package for key, downloading
// it from url when it is missing or fails validation. Concurrent calls for
// the same key share one fetch. reporter may be nil.
func (c *PackageCache) GetOrFetch(ctx context.Context, key Key, url string, client download.Client, policy download.RetryPolicy, reporter Reporter) (*Lock, error) {
	if reporter == nil {
		reporter = nopReporter{}
	}
	if client == nil {
		client = download.DefaultClient()
	}

	id := key.String()
	if _, err := os.Stat(c.PackageDir(key)); err == nil {
		idx := reporter.OnValidateStart()
		lock := c.readLock(id)
		valid := c.isValid(key)
		reporter.OnValidateComplete(idx)
		if valid {
			return lock, nil
		}
		lock.Release()
	}

	attempt := 0
	for {
		led := false
		ch := c.group.DoChan(id, func() (_ interface{}, err error) {
			led = true
			// singleflight would crash the process on a panic here, so it
			// is carried over to the waiting callers instead.
			defer func() {
				if r := recover(); r != nil {
					err = &fetchPanic{value: r}
				}
			}()
			return nil, c.ensure(ctx, key, url, client, policy, reporter)
		})

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			if p, ok := res.Err.(*fetchPanic); ok {
				panic(p.value)
			}
			if res.Err != nil {
				// A flight led by another caller fails with that caller's
				// context error once it is cancelled. Ours is still live.
				if !led && isContextError(res.Err) && ctx.Err() == nil {
					continue
				}
				return nil, res.Err
			}
		}

		lock := c.readLock(id)
		if c.isValid(key) {
			return lock, nil
		}
		lock.Release()
		attempt++
		if attempt > 2 {
			return nil, errors.Newf(errors.ErrCacheValidate, "%s keeps failing validation", id).
				WithDetail(errors.DetailPath, c.PackageDir(key))
		}
	}
}

func isContextError(err error) bool {
	return stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}

type fetchPanic struct {
	value interface{}
}

func (p *fetchPanic) Error() string {
	return fmt.Sprintf("panic during fetch: %v", p.value)
}

// ensure validates the package under the write lock and fetches it when
// validation fails.
func (c *PackageCache) ensure(ctx context.Context, key Key, url string, client download.Client, policy download.RetryPolicy, reporter Reporter) error {
	logger := logging.GetLogger("cache").With().Str("package", key.String()).Logger()

	unlock := c.writeLock(key.String())
	defer unlock()

	// Another caller may have fetched it while we waited for the lock.
	if c.isValid(key) {
		logger.Debug().Msg("Cache hit")
		return nil
	}

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return errors.Wrapf(err, errors.ErrIO, "failed to create cache directory %s", c.dir).
			WithDetail(errors.DetailPath, c.dir)
	}

	done := logging.LogOperationStart(logger, "fetch")
	defer done()

	return download.Retry(ctx, policy, func() error {
		return c.fetch(ctx, key, url, client, reporter)
	}, func(err error, wait time.Duration) {
		logger.Warn().Err(err).Dur("retry_in", wait).Msg("Fetch failed, retrying")
	})
}

func (c *PackageCache) fetch(ctx context.Context, key Key, url string, client download.Client, reporter Reporter) error {
	kind := ArchiveTypeOf(key.FileName)
	if kind == ArchiveUnknown {
		kind = ArchiveTypeOf(url)
	}
	if kind == ArchiveUnknown {
		return backoff.Permanent(errors.Newf(errors.ErrArchive, "cannot tell archive format of %s", url))
	}

	archive, sha, err := c.downloadArchive(ctx, key, url, client, reporter)
	if err != nil {
		return err
	}
	defer os.Remove(archive)

	if key.Sha256 != "" && !strings.EqualFold(key.Sha256, sha.sha256) {
		return backoff.Permanent(errors.Newf(errors.ErrHashMismatch,
			"sha256 mismatch for %s: expected %s, got %s", key.FileName, key.Sha256, sha.sha256))
	}
	if key.Sha256 == "" && key.Md5 != "" && !strings.EqualFold(key.Md5, sha.md5) {
		return backoff.Permanent(errors.Newf(errors.ErrHashMismatch,
			"md5 mismatch for %s: expected %s, got %s", key.FileName, key.Md5, sha.md5))
	}

	staging, err := os.MkdirTemp(c.dir, "."+key.String()+"-*")
	if err != nil {
		return errors.Wrap(err, errors.ErrIO, "failed to create staging directory")
	}
	if err := Extract(archive, kind, staging); err != nil {
		os.RemoveAll(staging)
		return backoff.Permanent(err)
	}
	if err := os.WriteFile(filepath.Join(staging, ValidatedMarker), []byte(sha.sha256), 0644); err != nil {
		os.RemoveAll(staging)
		return errors.Wrap(err, errors.ErrIO, "failed to write validation marker")
	}

	target := c.PackageDir(key)
	if err := os.RemoveAll(target); err != nil {
		os.RemoveAll(staging)
		return errors.Wrapf(err, errors.ErrIO, "failed to clear %s", target)
	}
	if err := os.Rename(staging, target); err != nil {
		os.RemoveAll(staging)
		return errors.Wrapf(err, errors.ErrIO, "failed to move package into %s", target)
	}
	return nil
}

type digests struct {
	sha256 string
	md5    string
}

func (c *PackageCache) downloadArchive(ctx context.Context, key Key, url string, client download.Client, reporter Reporter) (string, digests, error) {
	resp, err := download.Get(ctx, client, url)
	if err != nil {
		return "", digests{}, errors.Wrapf(err, errors.ErrDownload, "failed to download %s", url)
	}
	defer resp.Body.Close()

	tmp, err := os.CreateTemp(c.dir, "."+key.String()+"-*.download")
	if err != nil {
		return "", digests{}, errors.Wrap(err, errors.ErrIO, "failed to create download file")
	}

	var total *uint64
	if resp.ContentLength > 0 {
		n := uint64(resp.ContentLength)
		total = &n
	}

	idx := reporter.OnDownloadStart()
	digester := hashutil.NewDigester()
	progress := &progressWriter{reporter: reporter, index: idx, total: total}
	_, copyErr := io.Copy(io.MultiWriter(tmp, digester, progress), resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(tmp.Name())
		if copyErr == nil {
			copyErr = closeErr
		}
		return "", digests{}, errors.Wrapf(copyErr, errors.ErrDownload, "failed to download %s", url)
	}
	reporter.OnDownloadCompleted(idx)

	return tmp.Name(), digests{
		sha256: digester.SHA256(),
		md5:    digester.MD5(),
	}, nil
}

// isValid checks the extracted directory is complete and came from the
// archive key describes.
func (c *PackageCache) isValid(key Key) bool {
	dir := c.PackageDir(key)
	if _, err := os.Stat(filepath.Join(dir, "info", "index.json")); err != nil {
		return false
	}
	marker, err := os.ReadFile(filepath.Join(dir, ValidatedMarker))
	if err != nil {
		return false
	}
	if key.Sha256 == "" {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(string(marker)), key.Sha256)
}

func (c *PackageCache) acquire(id string) *entryLock {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock := c.locks[id]
	if lock == nil {
		lock = &entryLock{}
		c.locks[id] = lock
	}
	lock.refs++
	return lock
}

func (c *PackageCache) drop(id string, lock *entryLock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(c.locks, id)
	}
}

func (c *PackageCache) writeLock(id string) func() {
	lock := c.acquire(id)
	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		c.drop(id, lock)
	}
}

func (c *PackageCache) readLock(id string) *Lock {
	lock := c.acquire(id)
	lock.mu.RLock()
	return &Lock{
		path: filepath.Join(c.dir, id),
		release: func() {
			lock.mu.RUnlock()
			c.drop(id, lock)
		},
	}
}
