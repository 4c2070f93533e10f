package types

import (
	"fmt"
	"strings"
)

// NoArchType tells how a noarch package is laid out.
type NoArchType string

const (
	NoArchNone    NoArchType = ""
	NoArchGeneric NoArchType = "generic"
	NoArchPython  NoArchType = "python"
)

// PackageRecord is the metadata of a single package build.
type PackageRecord struct {
	Name        string     `json:"name" toml:"name" yaml:"name"`
	Version     string     `json:"version" toml:"version" yaml:"version"`
	Build       string     `json:"build" toml:"build" yaml:"build"`
	BuildNumber uint64     `json:"build_number" toml:"build_number" yaml:"build_number"`
	Subdir      string     `json:"subdir,omitempty" toml:"subdir,omitempty" yaml:"subdir,omitempty"`
	Depends     []string   `json:"depends,omitempty" toml:"depends,omitempty" yaml:"depends,omitempty"`
	Noarch      NoArchType `json:"noarch,omitempty" toml:"noarch,omitempty" yaml:"noarch,omitempty"`
	Size        *uint64    `json:"size,omitempty" toml:"size,omitempty" yaml:"size,omitempty"`
	Sha256      string     `json:"sha256,omitempty" toml:"sha256,omitempty" yaml:"sha256,omitempty"`
	Md5         string     `json:"md5,omitempty" toml:"md5,omitempty" yaml:"md5,omitempty"`
}

// String renders the record as name-version-build.
func (p PackageRecord) String() string {
	return fmt.Sprintf("%s-%s-%s", p.Name, p.Version, p.Build)
}

// DependencyNames returns the package names of Depends, dropping version
// constraints.
func (p PackageRecord) DependencyNames() []string {
	names := make([]string, 0, len(p.Depends))
	for _, spec := range p.Depends {
		fields := strings.Fields(spec)
		if len(fields) == 0 {
			continue
		}
		name := fields[0]
		if i := strings.IndexAny(name, "=<>!~["); i >= 0 {
			name = name[:i]
		}
		if name != "" {
			names = append(names, strings.ToLower(name))
		}
	}
	return names
}

// SizeOrZero returns the declared archive size or 0 when unknown.
func (p PackageRecord) SizeOrZero() uint64 {
	if p.Size == nil {
		return 0
	}
	return *p.Size
}

// RepoDataRecord is a package record together with where to download it.
type RepoDataRecord struct {
	PackageRecord `yaml:",inline"`
	FileName      string `json:"fn" toml:"fn" yaml:"fn"`
	URL           string `json:"url" toml:"url" yaml:"url"`
	Channel       string `json:"channel,omitempty" toml:"channel,omitempty" yaml:"channel,omitempty"`
}

// NormalizedName returns the lower-cased package name used as identity.
func (r RepoDataRecord) NormalizedName() string {
	return strings.ToLower(r.Name)
}

// SameArtifact reports whether two records point at the same package build.
func (r RepoDataRecord) SameArtifact(other RepoDataRecord) bool {
	if r.NormalizedName() != other.NormalizedName() ||
		r.Version != other.Version || r.Build != other.Build {
		return false
	}
	if r.Sha256 != "" && other.Sha256 != "" {
		return r.Sha256 == other.Sha256
	}
	if r.Md5 != "" && other.Md5 != "" {
		return r.Md5 == other.Md5
	}
	return r.URL == other.URL
}
