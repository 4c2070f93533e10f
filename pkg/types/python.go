package types

import (
	"path"
	"strings"
)

// PythonInfo holds the interpreter facts needed to lay out noarch python
// packages.
type PythonInfo struct {
	ShortVersion     string
	SitePackagesPath string
	BinPath          string
}

// NewPythonInfo derives layout paths from a python version such as "3.12.1".
func NewPythonInfo(version string, platform Platform) (*PythonInfo, bool) {
	parts := strings.SplitN(version, ".", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil, false
	}
	short := parts[0] + "." + parts[1]
	if platform.IsWindows() {
		return &PythonInfo{
			ShortVersion:     short,
			SitePackagesPath: "Lib/site-packages",
			BinPath:          "Scripts",
		}, true
	}
	return &PythonInfo{
		ShortVersion:     short,
		SitePackagesPath: path.Join("lib", "python"+short, "site-packages"),
		BinPath:          "bin",
	}, true
}

// MapNoArchPath relocates a path from a noarch python package to where it
// belongs for this interpreter.
func (p *PythonInfo) MapNoArchPath(rel string) string {
	rel = path.Clean(strings.ReplaceAll(rel, "\\", "/"))
	switch {
	case rel == "site-packages" || strings.HasPrefix(rel, "site-packages/"):
		return path.Join(p.SitePackagesPath, strings.TrimPrefix(rel, "site-packages"))
	case strings.HasPrefix(rel, "python-scripts/"):
		return path.Join(p.BinPath, strings.TrimPrefix(rel, "python-scripts/"))
	}
	return rel
}
