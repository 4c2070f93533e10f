package driver

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/arthur-debert/prefixer/pkg/datastore"
	"github.com/arthur-debert/prefixer/pkg/linkscript"
	"github.com/arthur-debert/prefixer/pkg/testutil"
	"github.com/arthur-debert/prefixer/pkg/transaction"
	"github.com/arthur-debert/prefixer/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"
)

func record(name string, files ...string) types.PrefixRecord {
	entries := make([]types.PathsEntry, 0, len(files))
	for _, f := range files {
		entries = append(entries, types.PathsEntry{RelativePath: f, PathType: types.PathTypeHardLink})
	}
	return types.PrefixRecord{
		RepoDataRecord: types.RepoDataRecord{
			PackageRecord: types.PackageRecord{Name: name, Version: "1.0", Build: "0"},
		},
		Files:     files,
		PathsData: types.PrefixPaths{PathsVersion: 1, Paths: entries},
	}
}

func removal(rec types.PrefixRecord) transaction.Operation {
	r := rec
	return transaction.Operation{Remove: &r}
}

func TestAcquireIOBoundsConcurrency(t *testing.T) {
	d := NewBuilder().WithIOConcurrencySemaphore(semaphore.NewWeighted(1)).Finish()

	release, err := d.AcquireIO(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = d.AcquireIO(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	again, err := d.AcquireIO(context.Background())
	require.NoError(t, err)
	again()
}

func TestAcquireIOUnlimited(t *testing.T) {
	d := NewBuilder().Finish()
	for i := 0; i < 10; i++ {
		release, err := d.AcquireIO(context.Background())
		require.NoError(t, err)
		defer release()
	}
}

func TestPreProcessDisabled(t *testing.T) {
	d := NewBuilder().Finish()
	result, err := d.PreProcess(context.Background(), &transaction.Transaction{}, t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestPreProcessRunsPreUnlinkScripts(t *testing.T) {
	testutil.SkipOnWindows(t)
	prefix := t.TempDir()
	testutil.CreateFile(t, prefix, "bin/.old-pre-unlink.sh", "echo \"bye $PKG_NAME\" > \"$PREFIX/.messages.txt\"\n")

	tx := &transaction.Transaction{
		Operations: []transaction.Operation{removal(record("old", "bin/.old-pre-unlink.sh"))},
		Platform:   types.CurrentPlatform(),
	}
	d := NewBuilder().ExecuteLinkScripts(true).Finish()

	result, err := d.PreProcess(context.Background(), tx, prefix)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Failed())
	assert.Equal(t, "bye old\n", result.Messages["old"])
}

func TestRemoveEmptyDirectories(t *testing.T) {
	prefix := t.TempDir()
	gone := record("gone", "share/gone/deep/a.txt", "share/common/b.txt", "lib/x.so")
	kept := record("kept", "share/common/c.txt")
	testutil.CreateFile(t, prefix, "share/common/c.txt", "c")
	testutil.CreateDir(t, prefix, "share/gone/deep")
	testutil.CreateDir(t, prefix, "lib")
	testutil.CreateFile(t, prefix, "lib/unowned.txt", "user data")
	testutil.CreateDir(t, prefix, "conda-meta")

	d := NewBuilder().Finish()
	err := d.RemoveEmptyDirectories([]transaction.Operation{removal(gone)}, []types.PrefixRecord{kept}, prefix)
	require.NoError(t, err)

	assert.False(t, testutil.PathExists(t, filepath.Join(prefix, "share/gone")))
	assert.True(t, testutil.DirExists(t, filepath.Join(prefix, "share/common")))
	assert.True(t, testutil.DirExists(t, filepath.Join(prefix, "lib")), "non-empty directories stay")
	assert.True(t, testutil.DirExists(t, filepath.Join(prefix, "conda-meta")))
	assert.True(t, testutil.DirExists(t, prefix))
}

func TestRemoveEmptyDirectoriesIgnoresInstalls(t *testing.T) {
	prefix := t.TempDir()
	testutil.CreateDir(t, prefix, "share/empty")
	install := transaction.Operation{Install: &types.RepoDataRecord{
		PackageRecord: types.PackageRecord{Name: "new", Version: "1", Build: "0"},
	}}

	err := NewBuilder().Finish().RemoveEmptyDirectories([]transaction.Operation{install}, nil, prefix)
	require.NoError(t, err)
	assert.True(t, testutil.DirExists(t, filepath.Join(prefix, "share/empty")))
}

func TestPostProcessRewritesClobberedRecords(t *testing.T) {
	prefix := t.TempDir()
	d := NewBuilder().Finish()
	registry := d.ClobberRegistry()
	store := datastore.NewOS(prefix)

	locA := registry.Register("a", 0, "etc/conf")
	locB := registry.Register("b", 1, "etc/conf")
	require.Equal(t, "etc/conf__clobber-from-b", locB)
	testutil.CreateFile(t, prefix, locA, "from a")
	testutil.CreateFile(t, prefix, locB, "from b")

	recB := record("b", locB)
	recB.PathsData.Paths[0].OriginalPath = "etc/conf"
	require.NoError(t, store.Write(record("a", locA)))
	require.NoError(t, store.Write(recB))

	result, err := d.PostProcess(context.Background(), &transaction.Transaction{}, prefix)
	require.NoError(t, err)
	require.Contains(t, result.ClobberedPaths, "etc/conf")
	assert.Equal(t, "b", result.ClobberedPaths["etc/conf"].Package)
	assert.Nil(t, result.PostLinkResult)

	assert.Equal(t, "from b", testutil.ReadFile(t, filepath.Join(prefix, "etc/conf")))

	records, err := store.Scan()
	require.NoError(t, err)
	require.Len(t, records, 2)
	byName := map[string]types.PrefixRecord{}
	for _, r := range records {
		byName[r.Name] = r
	}
	assert.Equal(t, []string{"etc/conf__clobber-from-a"}, byName["a"].Files)
	assert.Equal(t, "etc/conf", byName["a"].PathsData.Paths[0].OriginalPath)
	assert.Equal(t, []string{"etc/conf"}, byName["b"].Files)
	assert.Empty(t, byName["b"].PathsData.Paths[0].OriginalPath)
}

func TestPostProcessRunsPostLinkScripts(t *testing.T) {
	testutil.SkipOnWindows(t)
	prefix := t.TempDir()
	testutil.CreateFile(t, prefix, "bin/.tool-post-link.sh", "exit 3\n")

	tx := &transaction.Transaction{
		Operations: []transaction.Operation{{Install: &types.RepoDataRecord{
			PackageRecord: types.PackageRecord{Name: "tool", Version: "1", Build: "0"},
		}}},
		Platform: types.CurrentPlatform(),
	}
	d := NewBuilder().ExecuteLinkScripts(true).Finish()

	result, err := d.PostProcess(context.Background(), tx, prefix)
	require.NoError(t, err, "a failing script is not fatal")
	require.NotNil(t, result.PostLinkResult)
	assert.Equal(t, []string{"tool"}, result.PostLinkResult.FailedPackages)
	assert.IsType(t, &linkscript.Result{}, result.PostLinkResult)
}
