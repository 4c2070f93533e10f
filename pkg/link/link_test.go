package link

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/arthur-debert/prefixer/pkg/cache"
	"github.com/arthur-debert/prefixer/pkg/clobber"
	"github.com/arthur-debert/prefixer/pkg/datastore"
	"github.com/arthur-debert/prefixer/pkg/download"
	"github.com/arthur-debert/prefixer/pkg/testutil"
	"github.com/arthur-debert/prefixer/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

// extract builds pkg and unpacks it into a fresh cache.
func extract(t *testing.T, b *testutil.PackageBuilder) (string, *testutil.BuiltPackage) {
	t.Helper()
	pkg := b.Write(t, t.TempDir())
	c := cache.New(t.TempDir())
	lock, err := c.GetOrFetch(context.Background(), cache.KeyFromRecord(pkg.Record), pkg.Record.URL, download.DefaultClient(), download.NoRetry, nil)
	require.NoError(t, err)
	t.Cleanup(lock.Release)
	return lock.Path(), pkg
}

func noRefLinks(name string) InstallOptions {
	return InstallOptions{PackageName: name, AllowRefLinks: boolPtr(false), Platform: types.CurrentPlatform()}
}

func TestPackageHardLinksByDefault(t *testing.T) {
	testutil.SkipOnWindows(t)
	dir, _ := extract(t, testutil.NewPackage("hl", "1").
		File("lib/libhl.so", "elf").
		Executable("bin/hl", "#!/bin/sh\n").
		Symlink("lib/libhl.so.1", "libhl.so"))
	prefix := t.TempDir()

	result, err := Package(context.Background(), dir, prefix, clobber.NewRegistry(nil), noRefLinks("hl"))
	require.NoError(t, err)

	assert.Equal(t, types.LinkTypeHardLink, result.LinkType)
	require.Len(t, result.Paths, 3)
	assert.True(t, testutil.SameFile(t, filepath.Join(dir, "lib/libhl.so"), filepath.Join(prefix, "lib/libhl.so")))
	assert.Equal(t, "libhl.so", testutil.ReadSymlinkTarget(t, filepath.Join(prefix, "lib/libhl.so.1")))

	byPath := map[string]types.PathsEntry{}
	for _, p := range result.Paths {
		byPath[p.RelativePath] = p
	}
	assert.Equal(t, types.LinkTypeSoftLink, byPath["lib/libhl.so.1"].LinkType)
	assert.Equal(t, types.LinkTypeHardLink, byPath["bin/hl"].LinkType)
	assert.NotEmpty(t, byPath["bin/hl"].Sha256)
}

func TestPackageCopiesWhenLinksDisallowed(t *testing.T) {
	dir, _ := extract(t, testutil.NewPackage("cp", "1").File("share/cp.txt", "copy me"))
	prefix := t.TempDir()

	opts := noRefLinks("cp")
	opts.AllowHardLinks = boolPtr(false)
	opts.AllowSymbolicLinks = boolPtr(false)

	result, err := Package(context.Background(), dir, prefix, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, types.LinkTypeCopy, result.LinkType)
	assert.False(t, testutil.SameFile(t, filepath.Join(dir, "share/cp.txt"), filepath.Join(prefix, "share/cp.txt")))
	assert.Equal(t, "copy me", testutil.ReadFile(t, filepath.Join(prefix, "share/cp.txt")))
}

func TestPackageSymlinksWhenHardLinksDisallowed(t *testing.T) {
	testutil.SkipOnWindows(t)
	dir, _ := extract(t, testutil.NewPackage("sl", "1").File("share/sl.txt", "x"))
	prefix := t.TempDir()

	opts := noRefLinks("sl")
	opts.AllowHardLinks = boolPtr(false)

	result, err := Package(context.Background(), dir, prefix, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, types.LinkTypeSoftLink, result.LinkType)
	assert.Equal(t, filepath.Join(dir, "share/sl.txt"), testutil.ReadSymlinkTarget(t, filepath.Join(prefix, "share/sl.txt")))
}

func TestPackageRewritesTextPlaceholder(t *testing.T) {
	dir, _ := extract(t, testutil.NewPackage("ph", "1").
		WithPlaceholder("bin/launcher", "#!"+testutil.Placeholder+"/bin/python\n", types.FileModeText))
	prefix := t.TempDir()

	result, err := Package(context.Background(), dir, prefix, nil, noRefLinks("ph"))
	require.NoError(t, err)
	assert.Equal(t, "#!"+filepath.ToSlash(prefix)+"/bin/python\n", testutil.ReadFile(t, filepath.Join(prefix, "bin/launcher")))
	assert.Equal(t, types.LinkTypeCopy, result.Paths[0].LinkType)

	info, err := os.Stat(filepath.Join(prefix, "bin/launcher"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm())
}

func TestPackageUsesTargetPrefix(t *testing.T) {
	dir, _ := extract(t, testutil.NewPackage("tp", "1").
		WithPlaceholder("etc/tp.conf", "root="+testutil.Placeholder, types.FileModeText))
	prefix := t.TempDir()

	opts := noRefLinks("tp")
	opts.TargetPrefix = "/opt/final"
	_, err := Package(context.Background(), dir, prefix, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, "root=/opt/final", testutil.ReadFile(t, filepath.Join(prefix, "etc/tp.conf")))
}

func TestPackageNoArchPythonRemapping(t *testing.T) {
	dir, _ := extract(t, testutil.NewPackage("purepy", "1").
		WithNoArch(types.NoArchPython).
		File("site-packages/purepy/__init__.py", "x = 1\n").
		Executable("python-scripts/purepy-cli", "#!/bin/sh\n"))
	prefix := t.TempDir()

	info, ok := types.NewPythonInfo("3.12.1", types.PlatformLinux64)
	require.True(t, ok)
	opts := noRefLinks("purepy")
	opts.NoArch = types.NoArchPython
	opts.PythonInfo = info

	result, err := Package(context.Background(), dir, prefix, nil, opts)
	require.NoError(t, err)
	assert.True(t, testutil.FileExists(t, filepath.Join(prefix, "lib/python3.12/site-packages/purepy/__init__.py")))
	assert.True(t, testutil.FileExists(t, filepath.Join(prefix, "bin/purepy-cli")))

	var rels []string
	for _, p := range result.Paths {
		rels = append(rels, p.RelativePath)
	}
	assert.ElementsMatch(t, []string{"lib/python3.12/site-packages/purepy/__init__.py", "bin/purepy-cli"}, rels)
}

func TestPackageWithoutPathsJSON(t *testing.T) {
	dir, _ := extract(t, testutil.NewPackage("bare", "1").
		WithoutPathsJSON().
		File("a/b.txt", "b").
		File("c.txt", "c"))
	prefix := t.TempDir()

	result, err := Package(context.Background(), dir, prefix, nil, noRefLinks("bare"))
	require.NoError(t, err)

	var rels []string
	for _, p := range result.Paths {
		rels = append(rels, p.RelativePath)
	}
	assert.Equal(t, []string{"a/b.txt", "c.txt"}, rels)
	assert.False(t, testutil.PathExists(t, filepath.Join(prefix, cache.ValidatedMarker)))
}

func TestPackageClobberedFile(t *testing.T) {
	dirA, _ := extract(t, testutil.NewPackage("a", "1").File("share/common.txt", "a"))
	dirB, _ := extract(t, testutil.NewPackage("b", "1").File("share/common.txt", "b"))
	prefix := t.TempDir()
	registry := clobber.NewRegistry(nil)

	_, err := Package(context.Background(), dirA, prefix, registry, noRefLinks("a"))
	require.NoError(t, err)
	optsB := noRefLinks("b")
	optsB.Order = 1
	result, err := Package(context.Background(), dirB, prefix, registry, optsB)
	require.NoError(t, err)

	require.Len(t, result.Paths, 1)
	assert.Equal(t, "share/common.txt__clobber-from-b", result.Paths[0].RelativePath)
	assert.Equal(t, "share/common.txt", result.Paths[0].OriginalPath)
	assert.Equal(t, "a", testutil.ReadFile(t, filepath.Join(prefix, "share/common.txt")))
	assert.Equal(t, "b", testutil.ReadFile(t, filepath.Join(prefix, "share/common.txt__clobber-from-b")))
}

func TestPackageStopsWhenCancelled(t *testing.T) {
	dir, _ := extract(t, testutil.NewPackage("stop", "1").File("a", "a").File("b", "b"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Package(ctx, dir, t.TempDir(), nil, noRefLinks("stop"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSignBinaryBehaviors(t *testing.T) {
	origRun, origAvail := runCodesign, codesignAvailable
	t.Cleanup(func() { runCodesign, codesignAvailable = origRun, origAvail })

	codesignAvailable = func() bool { return true }
	calls := 0
	runCodesign = func(ctx context.Context, path string) error {
		calls++
		return errors.New("not signed")
	}

	assert.NoError(t, signBinary(context.Background(), "/x", CodeSignDoNothing))
	assert.Equal(t, 0, calls)
	assert.NoError(t, signBinary(context.Background(), "/x", CodeSignIgnore))
	assert.Error(t, signBinary(context.Background(), "/x", CodeSignFail))
	assert.Equal(t, 2, calls)
}

func TestPackageSignsRewrittenArmBinaries(t *testing.T) {
	origRun, origAvail := runCodesign, codesignAvailable
	t.Cleanup(func() { runCodesign, codesignAvailable = origRun, origAvail })
	codesignAvailable = func() bool { return true }
	var signed []string
	runCodesign = func(ctx context.Context, path string) error {
		signed = append(signed, path)
		return nil
	}

	dir, _ := extract(t, testutil.NewPackage("mach", "1").
		WithPlaceholder("lib/libmach.dylib", "\x00"+testutil.Placeholder+"/lib\x00tail", types.FileModeBinary).
		WithPlaceholder("bin/script", testutil.Placeholder, types.FileModeText))
	prefix := "/p"
	target := t.TempDir()

	opts := noRefLinks("mach")
	opts.Platform = types.PlatformOSXArm64
	opts.AppleCodeSign = CodeSignFail
	opts.TargetPrefix = prefix
	_, err := Package(context.Background(), dir, target, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(target, "lib/libmach.dylib")}, signed)
}

func TestUnlinkPackage(t *testing.T) {
	dir, pkg := extract(t, testutil.NewPackage("rm", "1").File("lib/a", "a").File("lib/b", "b"))
	prefix := t.TempDir()

	result, err := Package(context.Background(), dir, prefix, nil, noRefLinks("rm"))
	require.NoError(t, err)
	record := types.NewPrefixRecord(pkg.Record, dir, result.Paths, result.LinkType)
	store := datastore.NewOS(prefix)
	require.NoError(t, store.Write(record))

	// One file already vanished.
	require.NoError(t, os.Remove(filepath.Join(prefix, "lib/b")))

	require.NoError(t, UnlinkPackage(context.Background(), prefix, record))
	assert.False(t, testutil.PathExists(t, filepath.Join(prefix, "lib/a")))
	assert.NoFileExists(t, store.Path(record.PackageRecord))
}
