package installer

import (
	"github.com/arthur-debert/prefixer/pkg/cache"
	"github.com/arthur-debert/prefixer/pkg/download"
	"github.com/arthur-debert/prefixer/pkg/link"
	"github.com/arthur-debert/prefixer/pkg/reporter"
	"github.com/arthur-debert/prefixer/pkg/types"
	"golang.org/x/sync/semaphore"
)

// DefaultIOConcurrencyLimit bounds filesystem operations when no limit or
// semaphore was configured.
const DefaultIOConcurrencyLimit = 100

// LinkOptions are the link strategy preferences. Nil means "when the
// filesystem supports it".
type LinkOptions struct {
	AllowSymbolicLinks *bool
	AllowHardLinks     *bool
	AllowRefLinks      *bool
}

// Installer holds the settings of an install. The zero value is usable;
// every unset field gets a default when Install runs.
//
// With* methods return a configured copy and leave the receiver alone.
// Set* methods change the receiver and return it for chaining.
type Installer struct {
	downloader              download.Client
	packageCache            *cache.PackageCache
	retryPolicy             download.RetryPolicy
	ioConcurrencyLimit      int
	ioSemaphore             *semaphore.Weighted
	executeLinkScripts      bool
	reporter                reporter.Reporter
	targetPlatform          types.Platform
	appleCodeSign           link.AppleCodeSignBehavior
	reinstall               map[string]struct{}
	installed               []types.PrefixRecord
	installedKnown          bool
	linkOptions             LinkOptions
	alternativeTargetPrefix string
	linkWorkers             int
}

// New returns an Installer with every setting at its default.
func New() Installer {
	return Installer{}
}

func (i Installer) clone() Installer {
	if i.reinstall != nil {
		reinstall := make(map[string]struct{}, len(i.reinstall))
		for k := range i.reinstall {
			reinstall[k] = struct{}{}
		}
		i.reinstall = reinstall
	}
	if i.installed != nil {
		i.installed = append([]types.PrefixRecord(nil), i.installed...)
	}
	return i
}

// WithDownloadClient sets the HTTP client used to fetch packages.
func (i Installer) WithDownloadClient(client download.Client) Installer {
	i = i.clone()
	i.SetDownloadClient(client)
	return i
}

// SetDownloadClient sets the HTTP client used to fetch packages.
func (i *Installer) SetDownloadClient(client download.Client) *Installer {
	i.downloader = client
	return i
}

// WithPackageCache sets the cache packages are extracted into.
func (i Installer) WithPackageCache(c *cache.PackageCache) Installer {
	i = i.clone()
	i.SetPackageCache(c)
	return i
}

// SetPackageCache sets the cache packages are extracted into.
func (i *Installer) SetPackageCache(c *cache.PackageCache) *Installer {
	i.packageCache = c
	return i
}

// WithRetryPolicy sets how failed fetches are retried.
func (i Installer) WithRetryPolicy(policy download.RetryPolicy) Installer {
	i = i.clone()
	i.SetRetryPolicy(policy)
	return i
}

// SetRetryPolicy sets how failed fetches are retried.
func (i *Installer) SetRetryPolicy(policy download.RetryPolicy) *Installer {
	i.retryPolicy = policy
	return i
}

// WithIOConcurrencyLimit bounds concurrent filesystem operations to n.
func (i Installer) WithIOConcurrencyLimit(n int) Installer {
	i = i.clone()
	i.SetIOConcurrencyLimit(n)
	return i
}

// SetIOConcurrencyLimit bounds concurrent filesystem operations to n.
func (i *Installer) SetIOConcurrencyLimit(n int) *Installer {
	i.ioConcurrencyLimit = n
	return i
}

// WithIOConcurrencySemaphore shares an existing filesystem budget, for
// example between installs into several prefixes. It takes precedence over
// a numeric limit.
func (i Installer) WithIOConcurrencySemaphore(sem *semaphore.Weighted) Installer {
	i = i.clone()
	i.SetIOConcurrencySemaphore(sem)
	return i
}

// SetIOConcurrencySemaphore shares an existing filesystem budget.
func (i *Installer) SetIOConcurrencySemaphore(sem *semaphore.Weighted) *Installer {
	i.ioSemaphore = sem
	return i
}

// WithExecuteLinkScripts turns package link scripts on or off.
func (i Installer) WithExecuteLinkScripts(enabled bool) Installer {
	i = i.clone()
	i.SetExecuteLinkScripts(enabled)
	return i
}

// SetExecuteLinkScripts turns package link scripts on or off.
func (i *Installer) SetExecuteLinkScripts(enabled bool) *Installer {
	i.executeLinkScripts = enabled
	return i
}

// WithReporter sets the progress reporter.
func (i Installer) WithReporter(r reporter.Reporter) Installer {
	i = i.clone()
	i.SetReporter(r)
	return i
}

// SetReporter sets the progress reporter.
func (i *Installer) SetReporter(r reporter.Reporter) *Installer {
	i.reporter = r
	return i
}

// WithTargetPlatform installs for platform instead of the host.
func (i Installer) WithTargetPlatform(platform types.Platform) Installer {
	i = i.clone()
	i.SetTargetPlatform(platform)
	return i
}

// SetTargetPlatform installs for platform instead of the host.
func (i *Installer) SetTargetPlatform(platform types.Platform) *Installer {
	i.targetPlatform = platform
	return i
}

// WithAppleCodeSignBehavior sets what happens when re-signing a binary on
// osx-arm64 fails.
func (i Installer) WithAppleCodeSignBehavior(b link.AppleCodeSignBehavior) Installer {
	i = i.clone()
	i.SetAppleCodeSignBehavior(b)
	return i
}

// SetAppleCodeSignBehavior sets what happens when re-signing fails.
func (i *Installer) SetAppleCodeSignBehavior(b link.AppleCodeSignBehavior) *Installer {
	i.appleCodeSign = b
	return i
}

// WithReinstallPackages forces the named packages to be reinstalled even
// when the installed build matches.
func (i Installer) WithReinstallPackages(names ...string) Installer {
	i = i.clone()
	i.SetReinstallPackages(names...)
	return i
}

// SetReinstallPackages forces the named packages to be reinstalled.
func (i *Installer) SetReinstallPackages(names ...string) *Installer {
	i.reinstall = make(map[string]struct{}, len(names))
	for _, name := range names {
		i.reinstall[name] = struct{}{}
	}
	return i
}

// WithInstalledPackages supplies the installed records so the prefix is not
// scanned. An empty slice means the prefix is empty.
func (i Installer) WithInstalledPackages(records []types.PrefixRecord) Installer {
	i = i.clone()
	i.SetInstalledPackages(records)
	return i
}

// SetInstalledPackages supplies the installed records. The slice is copied.
func (i *Installer) SetInstalledPackages(records []types.PrefixRecord) *Installer {
	i.installed = append([]types.PrefixRecord(nil), records...)
	i.installedKnown = true
	return i
}

// WithLinkOptions sets the link strategy preferences.
func (i Installer) WithLinkOptions(opts LinkOptions) Installer {
	i = i.clone()
	i.SetLinkOptions(opts)
	return i
}

// SetLinkOptions sets the link strategy preferences.
func (i *Installer) SetLinkOptions(opts LinkOptions) *Installer {
	i.linkOptions = opts
	return i
}

// WithAlternativeTargetPrefix writes prefix into placeholders instead of
// the directory the packages are linked into, for prefixes that are moved
// after installation.
func (i Installer) WithAlternativeTargetPrefix(prefix string) Installer {
	i = i.clone()
	i.SetAlternativeTargetPrefix(prefix)
	return i
}

// SetAlternativeTargetPrefix writes prefix into placeholders.
func (i *Installer) SetAlternativeTargetPrefix(prefix string) *Installer {
	i.alternativeTargetPrefix = prefix
	return i
}

// WithLinkWorkers sets how many goroutines link packages. Zero means one
// per CPU.
func (i Installer) WithLinkWorkers(n int) Installer {
	i = i.clone()
	i.SetLinkWorkers(n)
	return i
}

// SetLinkWorkers sets how many goroutines link packages.
func (i *Installer) SetLinkWorkers(n int) *Installer {
	i.linkWorkers = n
	return i
}
