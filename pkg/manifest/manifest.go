// Package manifest reads the list of packages a prefix should contain.
//
// A manifest holds a single "packages" list of repodata records and can be
// written as TOML, YAML or JSON; the file extension decides which.
//
//	[[packages]]
//	name = "zlib"
//	version = "1.3"
//	build = "h0_0"
//	url = "https://conda.example.org/linux-64/zlib-1.3-h0_0.conda"
//	sha256 = "..."
package manifest

import (
	"bytes"
	"encoding/json"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/prefixer/pkg/errors"
	"github.com/arthur-debert/prefixer/pkg/types"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Manifest is the on-disk document.
type Manifest struct {
	Packages []types.RepoDataRecord `json:"packages" toml:"packages" yaml:"packages"`
}

// Load reads the manifest at path and returns its records.
func Load(path string) ([]types.RepoDataRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrNotFound, "failed to read manifest %s", path).
			WithDetail(errors.DetailPath, path)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes data in the format named by ext (".toml", ".yaml", ".yml"
// or ".json") and validates the records.
func Parse(data []byte, ext string) ([]types.RepoDataRecord, error) {
	var m Manifest
	var err error
	switch strings.ToLower(ext) {
	case ".toml":
		err = toml.Unmarshal(data, &m)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &m)
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&m)
	default:
		return nil, errors.Newf(errors.ErrInvalidInput, "unsupported manifest format %q", ext)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigParse, "failed to parse manifest")
	}

	for i := range m.Packages {
		if err := normalize(&m.Packages[i], i); err != nil {
			return nil, err
		}
	}
	return m.Packages, nil
}

func normalize(r *types.RepoDataRecord, i int) error {
	switch {
	case r.Name == "":
		return errors.Newf(errors.ErrInvalidInput, "package #%d has no name", i+1)
	case r.Version == "" || r.Build == "":
		return errors.Newf(errors.ErrInvalidInput, "package %s needs a version and a build", r.Name)
	case r.URL == "":
		return errors.Newf(errors.ErrInvalidInput, "package %s has no url", r.Name)
	}
	if r.FileName == "" {
		r.FileName = path.Base(r.URL)
	}
	return nil
}
