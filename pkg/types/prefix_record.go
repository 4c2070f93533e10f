package types

import (
	"fmt"
)

// PathType is how a file is stored inside a package archive.
type PathType string

const (
	PathTypeHardLink  PathType = "hardlink"
	PathTypeSoftLink  PathType = "softlink"
	PathTypeDirectory PathType = "directory"
)

// FileMode tells how a prefix placeholder is replaced in a file.
type FileMode string

const (
	FileModeText   FileMode = "text"
	FileModeBinary FileMode = "binary"
)

// LinkType is how a file ended up in the prefix. Values follow the numbers
// conda writes into conda-meta.
type LinkType int

const (
	LinkTypeHardLink  LinkType = 1
	LinkTypeSoftLink  LinkType = 2
	LinkTypeCopy      LinkType = 3
	LinkTypeDirectory LinkType = 4
	LinkTypeRefLink   LinkType = 5
)

func (l LinkType) String() string {
	switch l {
	case LinkTypeHardLink:
		return "hardlink"
	case LinkTypeSoftLink:
		return "softlink"
	case LinkTypeCopy:
		return "copy"
	case LinkTypeDirectory:
		return "directory"
	case LinkTypeRefLink:
		return "reflink"
	}
	return fmt.Sprintf("LinkType(%d)", int(l))
}

// PathsEntry describes one file a package put into the prefix.
type PathsEntry struct {
	RelativePath      string    `json:"_path"`
	OriginalPath      string    `json:"original_path,omitempty"`
	PathType          PathType  `json:"path_type"`
	LinkType          LinkType  `json:"link_type,omitempty"`
	PrefixPlaceholder string    `json:"prefix_placeholder,omitempty"`
	FileMode          FileMode  `json:"file_mode,omitempty"`
	NoLink            bool      `json:"no_link,omitempty"`
	Sha256            string    `json:"sha256,omitempty"`
	SizeInBytes       *uint64   `json:"size_in_bytes,omitempty"`
}

// PrefixPaths is the paths data persisted in a prefix record.
type PrefixPaths struct {
	PathsVersion int          `json:"paths_version"`
	Paths        []PathsEntry `json:"paths"`
}

// Link records where a package was linked from and how.
type Link struct {
	Source string   `json:"source"`
	Type   LinkType `json:"type"`
}

// PrefixRecord is the durable record of a package installed in a prefix,
// stored as conda-meta/{name}-{version}-{build}.json.
type PrefixRecord struct {
	RepoDataRecord
	PackageTarballFullPath string      `json:"package_tarball_full_path,omitempty"`
	ExtractedPackageDir    string      `json:"extracted_package_dir,omitempty"`
	Files                  []string    `json:"files"`
	PathsData              PrefixPaths `json:"paths_data"`
	RequestedSpec          string      `json:"requested_spec,omitempty"`
	Link                   *Link       `json:"link,omitempty"`
}

// MetadataFileName returns the deterministic conda-meta file name.
func (r PrefixRecord) MetadataFileName() string {
	return MetadataFileName(r.PackageRecord)
}

// MetadataFileName returns {name}-{version}-{build}.json for a record.
func MetadataFileName(p PackageRecord) string {
	return fmt.Sprintf("%s-%s-%s.json", p.Name, p.Version, p.Build)
}

// NewPrefixRecord builds the record written after a package was linked.
func NewPrefixRecord(record RepoDataRecord, extractedDir string, paths []PathsEntry, linkType LinkType) PrefixRecord {
	files := make([]string, 0, len(paths))
	for _, p := range paths {
		files = append(files, p.RelativePath)
	}
	return PrefixRecord{
		RepoDataRecord:      record,
		ExtractedPackageDir: extractedDir,
		Files:               files,
		PathsData: PrefixPaths{
			PathsVersion: 1,
			Paths:        paths,
		},
		Link: &Link{
			Source: extractedDir,
			Type:   linkType,
		},
	}
}
