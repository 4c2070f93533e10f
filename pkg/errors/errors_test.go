package errors_test

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"testing"

	"github.com/arthur-debert/prefixer/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "bare",
			err:  errors.New(errors.ErrTransaction, "duplicate package name a"),
			want: "[TRANSACTION] duplicate package name a",
		},
		{
			name: "formatted",
			err:  errors.Newf(errors.ErrHashMismatch, "sha256 mismatch for %s", "a-1.0-0.conda"),
			want: "[HASH_MISMATCH] sha256 mismatch for a-1.0-0.conda",
		},
		{
			name: "wrapped",
			err:  errors.Wrap(os.ErrPermission, errors.ErrPrefixCreate, "failed to create prefix /p"),
			want: "[PREFIX_CREATE] failed to create prefix /p: permission denied",
		},
		{
			name: "per package",
			err:  errors.ForPackage(errors.New(errors.ErrDownload, "boom"), errors.ErrFetch, "a-1.0-0.conda"),
			want: "[FETCH] a-1.0-0.conda: [DOWNLOAD] boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestForPackage(t *testing.T) {
	for _, code := range []errors.ErrorCode{errors.ErrFetch, errors.ErrLink, errors.ErrUnlink, errors.ErrIO, errors.ErrCancelled} {
		t.Run(string(code), func(t *testing.T) {
			cause := errors.Wrapf(os.ErrNotExist, errors.ErrUnlink, "failed to remove %s", "lib/a.txt").
				WithDetail(errors.DetailPath, "lib/a.txt")
			err := errors.ForPackage(cause, code, "a-1.0-0.conda")
			require.NotNil(t, err)

			assert.Equal(t, code, err.Code)
			assert.True(t, errors.IsErrorCode(err, code))
			assert.Equal(t, code, errors.GetErrorCode(err))
			assert.Equal(t, "a-1.0-0.conda", errors.FileName(err))
			assert.Same(t, cause, stderrors.Unwrap(err))
			assert.ErrorIs(t, err, os.ErrNotExist)

			// The outer code wins; the inner one stays reachable.
			var inner *errors.Error
			require.True(t, stderrors.As(stderrors.Unwrap(err), &inner))
			assert.Equal(t, errors.ErrUnlink, inner.Code)
			assert.Equal(t, "lib/a.txt", inner.Details[errors.DetailPath])
		})
	}

	assert.Nil(t, errors.ForPackage(nil, errors.ErrFetch, "a-1.0-0.conda"))
}

func TestCancelledPackageKeepsContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := errors.ForPackage(errors.Wrapf(ctx.Err(), errors.ErrDownload, "failed to download %s", "http://x/a.conda"),
		errors.ErrCancelled, "a-1.0-0.conda")
	assert.True(t, errors.IsErrorCode(err, errors.ErrCancelled))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "a-1.0-0.conda", errors.FileName(err))
}

func TestDetails(t *testing.T) {
	err := errors.Newf(errors.ErrCacheValidate, "%s keeps failing validation", "a-1.0-0").
		WithDetail(errors.DetailPath, "/pkgs/a-1.0-0").
		WithDetails(map[string]interface{}{
			errors.DetailPackage:  "a",
			errors.DetailFileName: "a-1.0-0.conda",
		})

	details := errors.GetErrorDetails(err)
	assert.Equal(t, "/pkgs/a-1.0-0", details[errors.DetailPath])
	assert.Equal(t, "a", details[errors.DetailPackage])
	assert.Equal(t, "a-1.0-0.conda", errors.FileName(err))

	// A literal Error has no map until a detail is added.
	bare := &errors.Error{Code: errors.ErrNotFound, Message: "ghost"}
	bare.WithDetail(errors.DetailPackage, "ghost")
	assert.Equal(t, "ghost", bare.Details[errors.DetailPackage])
}

func TestFileNameOutsideTheTaxonomy(t *testing.T) {
	assert.Empty(t, errors.FileName(nil))
	assert.Empty(t, errors.FileName(fmt.Errorf("plain")))
	assert.Empty(t, errors.FileName(errors.New(errors.ErrIO, "no file")))
	assert.Empty(t, errors.FileName(errors.New(errors.ErrIO, "wrong type").WithDetail(errors.DetailFileName, 7)))
}

func TestCodesThroughForeignWrapping(t *testing.T) {
	err := fmt.Errorf("install: %w", errors.ForPackage(
		errors.New(errors.ErrArchive, "entry escapes destination"), errors.ErrFetch, "a-1.0-0.conda"))

	assert.True(t, errors.IsErrorCode(err, errors.ErrFetch))
	assert.False(t, errors.IsErrorCode(err, errors.ErrArchive))
	assert.Equal(t, errors.ErrFetch, errors.GetErrorCode(err))
	assert.Equal(t, "a-1.0-0.conda", errors.FileName(err))

	assert.Equal(t, errors.ErrUnknown, errors.GetErrorCode(fmt.Errorf("plain")))
	assert.Nil(t, errors.GetErrorDetails(fmt.Errorf("plain")))
	assert.False(t, errors.IsErrorCode(nil, errors.ErrFetch))
}

func TestIsMatchesByCode(t *testing.T) {
	err := errors.ForPackage(errors.New(errors.ErrDownload, "503"), errors.ErrFetch, "a-1.0-0.conda")

	assert.ErrorIs(t, err, errors.New(errors.ErrFetch, ""))
	assert.ErrorIs(t, err, errors.New(errors.ErrDownload, ""))
	assert.NotErrorIs(t, err, errors.New(errors.ErrLink, ""))
	assert.NotErrorIs(t, err, os.ErrNotExist)
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, errors.Wrap(nil, errors.ErrIO, "nothing"))
	assert.Nil(t, errors.Wrapf(nil, errors.ErrIO, "nothing %d", 1))
}
