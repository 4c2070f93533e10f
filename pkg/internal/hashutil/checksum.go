// Package hashutil computes the digests conda records carry for archives.
package hashutil

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"os"
)

// Digester is an io.Writer computing the sha256 and md5 of everything
// written to it.
type Digester struct {
	sha256 hash.Hash
	md5    hash.Hash
}

// NewDigester returns an empty Digester.
func NewDigester() *Digester {
	return &Digester{sha256: sha256.New(), md5: md5.New()}
}

func (d *Digester) Write(p []byte) (int, error) {
	d.sha256.Write(p)
	d.md5.Write(p)
	return len(p), nil
}

// SHA256 returns the lower-case hex sha256 so far.
func (d *Digester) SHA256() string {
	return hex.EncodeToString(d.sha256.Sum(nil))
}

// MD5 returns the lower-case hex md5 so far.
func (d *Digester) MD5() string {
	return hex.EncodeToString(d.md5.Sum(nil))
}

// FileSHA256 returns the lower-case hex sha256 of a file.
func FileSHA256(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = file.Close()
	}()

	d := NewDigester()
	if _, err := io.Copy(d, file); err != nil {
		return "", err
	}
	return d.SHA256(), nil
}
