package installer

import (
	"testing"

	"github.com/arthur-debert/prefixer/pkg/reporter"
	"github.com/arthur-debert/prefixer/pkg/transaction"
	"github.com/arthur-debert/prefixer/pkg/types"
	"github.com/stretchr/testify/assert"
	"golang.org/x/sync/semaphore"
)

func TestWithReturnsCopy(t *testing.T) {
	base := New().WithReinstallPackages("a")
	changed := base.WithReinstallPackages("b").WithExecuteLinkScripts(true).WithTargetPlatform(types.PlatformWin64)

	assert.Contains(t, base.reinstall, "a")
	assert.NotContains(t, base.reinstall, "b")
	assert.False(t, base.executeLinkScripts)
	assert.Equal(t, types.CurrentPlatform(), base.platform())

	assert.Contains(t, changed.reinstall, "b")
	assert.True(t, changed.executeLinkScripts)
	assert.Equal(t, types.PlatformWin64, changed.platform())
}

func TestWithInstalledPackagesOwnsItsRecords(t *testing.T) {
	pr := func(name string) types.PrefixRecord {
		return types.PrefixRecord{RepoDataRecord: types.RepoDataRecord{PackageRecord: types.PackageRecord{Name: name}}}
	}
	records := []types.PrefixRecord{pr("a"), pr("b")}
	base := New().WithInstalledPackages(records)
	records[0].Name = "caller-changed"
	assert.Equal(t, "a", base.installed[0].Name)

	derived := base.WithReinstallPackages("b")
	derived.installed[1].Name = "copy-changed"
	assert.Equal(t, "b", base.installed[1].Name)
	assert.Equal(t, "copy-changed", derived.installed[1].Name)

	empty := New().WithInstalledPackages(nil)
	assert.True(t, empty.installedKnown)
	assert.Empty(t, empty.installed)
}

func TestSetMutatesInPlace(t *testing.T) {
	var i Installer
	ret := i.SetExecuteLinkScripts(true).SetIOConcurrencyLimit(4).SetReporter(reporter.Nop{})
	assert.Same(t, &i, ret)
	assert.True(t, i.executeLinkScripts)
	assert.Equal(t, 4, i.ioConcurrencyLimit)
	assert.NotNil(t, i.reporter)
}

func TestSemaphoreDefaults(t *testing.T) {
	sem := New().semaphore()
	assert.True(t, sem.TryAcquire(DefaultIOConcurrencyLimit))
	assert.False(t, sem.TryAcquire(1))

	shared := semaphore.NewWeighted(1)
	assert.Same(t, shared, New().WithIOConcurrencyLimit(8).WithIOConcurrencySemaphore(shared).semaphore())
}

func TestInstalledPackagesMarksKnown(t *testing.T) {
	i := New().WithInstalledPackages(nil)
	assert.True(t, i.installedKnown)
	records, err := i.currentRecords(t.TempDir())
	assert.NoError(t, err)
	assert.Empty(t, records)
}

func TestDispatchOrder(t *testing.T) {
	size := func(n uint64) *uint64 { return &n }
	rec := func(name string, s *uint64) *types.RepoDataRecord {
		return &types.RepoDataRecord{PackageRecord: types.PackageRecord{Name: name, Size: s}}
	}
	ops := []transaction.Operation{
		{Install: rec("a", size(10))},
		{Remove: &types.PrefixRecord{}},
		{Install: rec("b", nil)},
		{Install: rec("c", size(30))},
		{Install: rec("d", size(10))},
	}
	assert.Equal(t, []int{3, 0, 4, 2}, dispatchOrder(ops))
}

func TestRemainingRecords(t *testing.T) {
	pr := func(name string) types.PrefixRecord {
		return types.PrefixRecord{RepoDataRecord: types.RepoDataRecord{PackageRecord: types.PackageRecord{Name: name, Version: "1", Build: "0"}}}
	}
	gone := pr("gone")
	tx := &transaction.Transaction{Operations: []transaction.Operation{{Remove: &gone}}}
	remaining := remainingRecords([]types.PrefixRecord{pr("kept"), gone}, tx)
	assert.Len(t, remaining, 1)
	assert.Equal(t, "kept", remaining[0].Name)
}
