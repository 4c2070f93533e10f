package cache

import (
	"fmt"
	"strings"

	"github.com/arthur-debert/prefixer/pkg/types"
)

// Key identifies a package in the cache.
type Key struct {
	Name     string
	Version  string
	Build    string
	FileName string
	Sha256   string
	Md5      string
}

// KeyFromRecord builds the cache key of a desired record.
func KeyFromRecord(r types.RepoDataRecord) Key {
	return Key{
		Name:     strings.ToLower(r.Name),
		Version:  r.Version,
		Build:    r.Build,
		FileName: r.FileName,
		Sha256:   r.Sha256,
		Md5:      r.Md5,
	}
}

// String returns name-version-build, the directory name inside the cache.
func (k Key) String() string {
	return fmt.Sprintf("%s-%s-%s", k.Name, k.Version, k.Build)
}
