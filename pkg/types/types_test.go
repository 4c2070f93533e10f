package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlatformFor(t *testing.T) {
	tests := []struct {
		goos, goarch string
		want         Platform
	}{
		{"linux", "amd64", PlatformLinux64},
		{"linux", "arm64", PlatformLinuxAarch64},
		{"darwin", "arm64", PlatformOSXArm64},
		{"darwin", "amd64", PlatformOSX64},
		{"windows", "amd64", PlatformWin64},
		{"plan9", "amd64", PlatformNoArch},
	}
	for _, tt := range tests {
		t.Run(tt.goos+"/"+tt.goarch, func(t *testing.T) {
			assert.Equal(t, tt.want, platformFor(tt.goos, tt.goarch))
		})
	}

	assert.True(t, PlatformWin64.IsWindows())
	assert.True(t, PlatformOSXArm64.IsOSX())
	assert.True(t, PlatformLinux64.IsUnix())
	assert.False(t, PlatformNoArch.IsUnix())
}

func TestDependencyNames(t *testing.T) {
	rec := PackageRecord{Depends: []string{"python >=3.9,<3.13", "numpy>=1.20", "libzlib 1.2.*", "  "}}
	assert.Equal(t, []string{"python", "numpy", "libzlib"}, rec.DependencyNames())
}

func TestSameArtifact(t *testing.T) {
	a := RepoDataRecord{PackageRecord: PackageRecord{Name: "zlib", Version: "1.3", Build: "h0", Sha256: "aa"}, URL: "https://a/zlib.conda"}
	b := a
	b.URL = "https://mirror/zlib.conda"
	assert.True(t, a.SameArtifact(b), "matching hashes win over differing urls")

	b.Sha256 = "bb"
	assert.False(t, a.SameArtifact(b))

	c := a
	c.Sha256 = ""
	assert.True(t, a.SameArtifact(c), "falls back to url when a hash is missing")

	d := a
	d.Build = "h1"
	assert.False(t, a.SameArtifact(d))
}

func TestPrefixRecordJSON(t *testing.T) {
	size := uint64(42)
	rec := NewPrefixRecord(RepoDataRecord{
		PackageRecord: PackageRecord{Name: "zlib", Version: "1.3.1", Build: "h4ab18f5_1", Size: &size},
		FileName:      "zlib-1.3.1-h4ab18f5_1.conda",
		URL:           "https://conda.anaconda.org/conda-forge/linux-64/zlib-1.3.1-h4ab18f5_1.conda",
	}, "/cache/zlib-1.3.1-h4ab18f5_1", []PathsEntry{
		{RelativePath: "lib/libz.so", PathType: PathTypeHardLink},
		{RelativePath: "include/zlib.h", PathType: PathTypeHardLink},
	}, LinkTypeHardLink)

	assert.Equal(t, "zlib-1.3.1-h4ab18f5_1.json", rec.MetadataFileName())
	assert.Equal(t, []string{"lib/libz.so", "include/zlib.h"}, rec.Files)

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "zlib", raw["name"], "package fields are flattened")
	assert.Equal(t, "zlib-1.3.1-h4ab18f5_1.conda", raw["fn"])

	var back PrefixRecord
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, rec, back)
}

func TestPythonInfo(t *testing.T) {
	info, ok := NewPythonInfo("3.12.1", PlatformLinux64)
	require.True(t, ok)
	assert.Equal(t, "3.12", info.ShortVersion)
	assert.Equal(t, "lib/python3.12/site-packages/requests/__init__.py", info.MapNoArchPath("site-packages/requests/__init__.py"))
	assert.Equal(t, "bin/pip", info.MapNoArchPath("python-scripts/pip"))
	assert.Equal(t, "share/doc/x", info.MapNoArchPath("share/doc/x"))

	win, ok := NewPythonInfo("3.11", PlatformWin64)
	require.True(t, ok)
	assert.Equal(t, "Lib/site-packages/a.py", win.MapNoArchPath("site-packages/a.py"))

	_, ok = NewPythonInfo("3", PlatformLinux64)
	assert.False(t, ok)
}
