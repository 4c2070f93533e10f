package link

import (
	"context"
	"os"
	"path/filepath"

	"github.com/arthur-debert/prefixer/pkg/datastore"
	"github.com/arthur-debert/prefixer/pkg/errors"
	"github.com/arthur-debert/prefixer/pkg/logging"
	"github.com/arthur-debert/prefixer/pkg/types"
)

// UnlinkPackage deletes every file of record from prefix and then its
// metadata record. Files that are already gone are skipped.
func UnlinkPackage(ctx context.Context, prefix string, record types.PrefixRecord) error {
	logger := logging.GetLogger("link").With().Str("package", record.Name).Logger()

	for _, rel := range installedFiles(record) {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(prefix, filepath.FromSlash(rel))
		info, err := os.Lstat(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return errors.Wrapf(err, errors.ErrUnlink, "failed to inspect %s", rel).
				WithDetail(errors.DetailPath, rel)
		}
		if info.IsDir() {
			// Directory entries are cleaned up once every package is unlinked.
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, errors.ErrUnlink, "failed to remove %s", rel).
				WithDetail(errors.DetailPath, rel)
		}
	}

	if err := datastore.NewOS(prefix).Remove(record.PackageRecord); err != nil {
		return err
	}
	logger.Debug().Int("files", len(record.Files)).Msg("Unlinked package")
	return nil
}

func installedFiles(record types.PrefixRecord) []string {
	if len(record.PathsData.Paths) == 0 {
		return record.Files
	}
	files := make([]string, 0, len(record.PathsData.Paths))
	for _, p := range record.PathsData.Paths {
		files = append(files, p.RelativePath)
	}
	return files
}
