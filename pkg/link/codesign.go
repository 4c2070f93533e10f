package link

import (
	"context"
	"os/exec"
	"runtime"

	"github.com/arthur-debert/prefixer/pkg/errors"
	"github.com/arthur-debert/prefixer/pkg/logging"
)

// runCodesign signs path ad hoc. Replaced in tests.
var runCodesign = func(ctx context.Context, path string) error {
	out, err := exec.CommandContext(ctx, "codesign", "-f", "-s", "-", path).CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, errors.ErrLink, "codesign failed: %s", string(out))
	}
	return nil
}

// codesignAvailable reports whether this host can sign Mach-O binaries.
var codesignAvailable = func() bool {
	return runtime.GOOS == "darwin"
}

func signBinary(ctx context.Context, path string, behavior AppleCodeSignBehavior) error {
	if behavior == CodeSignDoNothing {
		return nil
	}
	logger := logging.GetLogger("link")
	if !codesignAvailable() {
		logger.Debug().Str("path", path).Msg("Skipping codesign on a non-macOS host")
		return nil
	}
	err := runCodesign(ctx, path)
	if err != nil && behavior == CodeSignIgnore {
		logger.Warn().Err(err).Str("path", path).Msg("Ignoring codesign failure")
		return nil
	}
	return err
}
