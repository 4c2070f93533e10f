package link

import (
	"context"
	"fmt"

	"github.com/arthur-debert/prefixer/pkg/types"
)

// AppleCodeSignBehavior decides what happens when a rewritten osx-arm64
// binary has to be signed again.
type AppleCodeSignBehavior string

const (
	// CodeSignDoNothing skips re-signing.
	CodeSignDoNothing AppleCodeSignBehavior = "do-nothing"
	// CodeSignIgnore re-signs and ignores failures.
	CodeSignIgnore AppleCodeSignBehavior = "ignore"
	// CodeSignFail re-signs and fails the link on error.
	CodeSignFail AppleCodeSignBehavior = "fail"
)

// ParseAppleCodeSignBehavior parses a config value.
func ParseAppleCodeSignBehavior(s string) (AppleCodeSignBehavior, error) {
	switch b := AppleCodeSignBehavior(s); b {
	case CodeSignDoNothing, CodeSignIgnore, CodeSignFail:
		return b, nil
	case "":
		return CodeSignFail, nil
	}
	return "", fmt.Errorf("unknown apple code-sign behavior %q", s)
}

// IOLimiter bounds concurrent filesystem work.
type IOLimiter interface {
	AcquireIO(ctx context.Context) (release func(), err error)
}

// InstallOptions controls how one package is linked.
type InstallOptions struct {
	// PackageName and Order identify the package in the clobber registry.
	PackageName string
	Order       int

	// TargetPrefix is written into placeholders instead of the real prefix
	// when the prefix will be moved after installation.
	TargetPrefix string
	Platform     types.Platform
	PythonInfo   *types.PythonInfo
	NoArch       types.NoArchType

	AppleCodeSign AppleCodeSignBehavior

	// Nil means "use when the filesystem supports it".
	AllowSymbolicLinks *bool
	AllowHardLinks     *bool
	AllowRefLinks      *bool

	// IO, when set, is held around each file operation.
	IO IOLimiter
}

func allowed(b *bool) bool {
	return b == nil || *b
}
