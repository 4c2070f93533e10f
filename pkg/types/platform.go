package types

import (
	"runtime"
	"strings"
)

// Platform is a conda subdir name such as "linux-64" or "osx-arm64".
type Platform string

const (
	PlatformNoArch       Platform = "noarch"
	PlatformLinux64      Platform = "linux-64"
	PlatformLinuxAarch64 Platform = "linux-aarch64"
	PlatformLinuxPpc64le Platform = "linux-ppc64le"
	PlatformOSX64        Platform = "osx-64"
	PlatformOSXArm64     Platform = "osx-arm64"
	PlatformWin64        Platform = "win-64"
	PlatformWinArm64     Platform = "win-arm64"
)

// CurrentPlatform returns the platform of the running process.
func CurrentPlatform() Platform {
	return platformFor(runtime.GOOS, runtime.GOARCH)
}

func platformFor(goos, goarch string) Platform {
	switch goos {
	case "linux":
		switch goarch {
		case "arm64":
			return PlatformLinuxAarch64
		case "ppc64le":
			return PlatformLinuxPpc64le
		default:
			return PlatformLinux64
		}
	case "darwin":
		if goarch == "arm64" {
			return PlatformOSXArm64
		}
		return PlatformOSX64
	case "windows":
		if goarch == "arm64" {
			return PlatformWinArm64
		}
		return PlatformWin64
	}
	return PlatformNoArch
}

// IsWindows reports whether the platform is a Windows subdir.
func (p Platform) IsWindows() bool {
	return strings.HasPrefix(string(p), "win-")
}

// IsOSX reports whether the platform is a macOS subdir.
func (p Platform) IsOSX() bool {
	return strings.HasPrefix(string(p), "osx-")
}

// IsUnix reports whether the platform is neither Windows nor noarch.
func (p Platform) IsUnix() bool {
	return p != PlatformNoArch && !p.IsWindows()
}

func (p Platform) String() string {
	return string(p)
}
