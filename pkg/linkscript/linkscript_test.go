package linkscript

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/arthur-debert/prefixer/pkg/testutil"
	"github.com/arthur-debert/prefixer/pkg/transaction"
	"github.com/arthur-debert/prefixer/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(name string) types.RepoDataRecord {
	return types.RepoDataRecord{PackageRecord: types.PackageRecord{Name: name, Version: "1.2", Build: "0", BuildNumber: 4}}
}

func TestScriptPath(t *testing.T) {
	assert.Equal(t, filepath.Join("bin", ".foo-post-link.sh"), ScriptPath("foo", PostLink, types.PlatformLinux64))
	assert.Equal(t, filepath.Join("Scripts", ".foo-pre-unlink.bat"), ScriptPath("foo", PreUnlink, types.PlatformWin64))
}

func TestRunPostLink(t *testing.T) {
	testutil.SkipOnWindows(t)
	prefix := t.TempDir()
	testutil.CreateFile(t, prefix, "bin/.ok-post-link.sh",
		`echo "$PKG_NAME $PKG_VERSION $PKG_BUILDNUM" > "$PREFIX/.messages.txt"`+"\n")
	testutil.CreateFile(t, prefix, "bin/.bad-post-link.sh", "exit 3\n")

	ok, bad, none := record("ok"), record("bad"), record("none")
	tx := &transaction.Transaction{
		Platform: types.PlatformLinux64,
		Operations: []transaction.Operation{
			{Install: &ok}, {Install: &bad}, {Install: &none},
		},
	}

	result, err := Run(context.Background(), PostLink, tx, prefix)
	require.NoError(t, err)
	assert.Equal(t, "ok 1.2 4\n", result.Messages["ok"])
	assert.Equal(t, []string{"bad"}, result.FailedPackages)
	assert.True(t, result.Failed())
	assert.False(t, testutil.PathExists(t, filepath.Join(prefix, ".messages.txt")))
}

func TestRunPreUnlinkUsesRemovedPackages(t *testing.T) {
	testutil.SkipOnWindows(t)
	prefix := t.TempDir()
	testutil.CreateFile(t, prefix, "bin/.old-pre-unlink.sh", `echo bye > "$PREFIX/.messages.txt"`+"\n")
	testutil.CreateFile(t, prefix, "bin/.new-pre-unlink.sh", "exit 1\n")

	old := types.PrefixRecord{RepoDataRecord: record("old")}
	fresh := record("new")
	tx := &transaction.Transaction{
		Platform:   types.PlatformLinux64,
		Operations: []transaction.Operation{{Remove: &old}, {Install: &fresh}},
	}

	result, err := Run(context.Background(), PreUnlink, tx, prefix)
	require.NoError(t, err)
	assert.Equal(t, "bye\n", result.Messages["old"])
	assert.Empty(t, result.FailedPackages)
}
