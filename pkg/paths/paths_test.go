package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvCacheDir, dir)
	assert.Equal(t, dir, CacheDir())
}

func TestCacheDirDefault(t *testing.T) {
	t.Setenv(EnvCacheDir, "")
	got := CacheDir()
	assert.Equal(t, filepath.Join(AppDirName, PackageCacheDir), filepath.Join(filepath.Base(filepath.Dir(got)), filepath.Base(got)))
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	t.Setenv(EnvStateDir, "~/state")
	assert.Equal(t, filepath.Join(home, "state"), StateDir())
	assert.Equal(t, filepath.Join(home, "state", LogFileName), LogFilePath())
}

func TestIsWithin(t *testing.T) {
	tests := []struct {
		path, parent string
		want         bool
	}{
		{"/prefix/lib/a.so", "/prefix", true},
		{"/prefix", "/prefix", true},
		{"/prefix2/a", "/prefix", false},
		{"/other", "/prefix", false},
		{"/prefix/../etc", "/prefix", false},
		{"/prefix/..data/x", "/prefix", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsWithin(tt.path, tt.parent), "%s in %s", tt.path, tt.parent)
	}
}

func TestCondaMetaPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/opt/env", "conda-meta"), CondaMetaPath("/opt/env"))
}
