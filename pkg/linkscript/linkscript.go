package linkscript

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/prefixer/pkg/logging"
	"github.com/arthur-debert/prefixer/pkg/transaction"
	"github.com/arthur-debert/prefixer/pkg/types"
)

// Phase is a point in the install at which scripts run.
type Phase string

const (
	PostLink  Phase = "post-link"
	PreUnlink Phase = "pre-unlink"
)

// Result collects what the scripts of one phase did.
type Result struct {
	// Messages holds the contents of $PREFIX/.messages.txt written by each
	// package's script, keyed by package name.
	Messages map[string]string
	// FailedPackages lists packages whose script exited non-zero.
	FailedPackages []string
}

// Failed reports whether any script failed.
func (r *Result) Failed() bool {
	return r != nil && len(r.FailedPackages) > 0
}

// ScriptPath returns where a package keeps its script for phase, relative
// to the prefix.
func ScriptPath(name string, phase Phase, platform types.Platform) string {
	if platform.IsWindows() {
		return filepath.Join("Scripts", fmt.Sprintf(".%s-%s.bat", name, phase))
	}
	return filepath.Join("bin", fmt.Sprintf(".%s-%s.sh", name, phase))
}

// Run executes the phase's scripts of every package the phase concerns:
// removed packages for pre-unlink, installed packages otherwise. Packages
// without a script are skipped. A failing script is recorded and the
// remaining scripts still run.
func Run(ctx context.Context, phase Phase, tx *transaction.Transaction, prefix string) (*Result, error) {
	logger := logging.GetLogger("linkscript")
	result := &Result{Messages: make(map[string]string)}

	for _, rec := range packagesFor(phase, tx) {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		script := filepath.Join(prefix, ScriptPath(rec.Name, phase, tx.Platform))
		if _, err := os.Stat(script); err != nil {
			continue
		}

		messages := filepath.Join(prefix, ".messages.txt")
		_ = os.Remove(messages)

		output, err := execute(ctx, script, prefix, rec, tx.Platform)
		if err != nil {
			logger.Warn().
				Err(err).
				Str("package", rec.Name).
				Str("phase", string(phase)).
				Str("output", output).
				Msg("Link script failed")
			result.FailedPackages = append(result.FailedPackages, rec.Name)
		} else {
			logger.Debug().Str("package", rec.Name).Str("phase", string(phase)).Msg("Ran link script")
		}

		if data, err := os.ReadFile(messages); err == nil {
			result.Messages[rec.Name] = string(data)
			_ = os.Remove(messages)
		}
	}
	return result, nil
}

func packagesFor(phase Phase, tx *transaction.Transaction) []types.PackageRecord {
	var out []types.PackageRecord
	for _, op := range tx.Operations {
		switch phase {
		case PreUnlink:
			if r := op.RecordToRemove(); r != nil {
				out = append(out, r.PackageRecord)
			}
		default:
			if r := op.RecordToInstall(); r != nil {
				out = append(out, r.PackageRecord)
			}
		}
	}
	return out
}

func execute(ctx context.Context, script, prefix string, rec types.PackageRecord, platform types.Platform) (string, error) {
	var cmd *exec.Cmd
	if platform.IsWindows() {
		cmd = exec.CommandContext(ctx, "cmd.exe", "/d", "/c", script)
	} else {
		cmd = exec.CommandContext(ctx, "/bin/sh", script)
	}
	cmd.Dir = prefix
	cmd.Env = append(os.Environ(),
		"PREFIX="+prefix,
		"PKG_NAME="+rec.Name,
		"PKG_VERSION="+rec.Version,
		fmt.Sprintf("PKG_BUILDNUM=%d", rec.BuildNumber),
	)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return strings.TrimSpace(out.String()), err
}
