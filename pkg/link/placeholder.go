package link

import (
	"bytes"
	"fmt"

	"github.com/arthur-debert/prefixer/pkg/types"
)

// ReplacePlaceholder rewrites every occurrence of placeholder in data.
//
// Text files get a plain replacement. In binary files each occurrence sits
// in a NUL terminated string whose length must not change, so the new
// prefix may not be longer than the placeholder and the string is padded
// with NUL bytes.
func ReplacePlaceholder(data []byte, placeholder, prefix string, mode types.FileMode) ([]byte, error) {
	if placeholder == "" {
		return data, nil
	}
	if mode != types.FileModeBinary {
		return bytes.ReplaceAll(data, []byte(placeholder), []byte(prefix)), nil
	}
	if len(prefix) > len(placeholder) {
		return nil, fmt.Errorf("prefix %q is longer than the binary placeholder (%d bytes)", prefix, len(placeholder))
	}

	out := make([]byte, len(data))
	copy(out, data)
	old := []byte(placeholder)
	repl := []byte(prefix)

	pos := 0
	for {
		i := bytes.Index(out[pos:], old)
		if i < 0 {
			return out, nil
		}
		start := pos + i
		end := len(out)
		if nul := bytes.IndexByte(out[start:], 0); nul >= 0 {
			end = start + nul
		}
		segment := bytes.ReplaceAll(out[start:end], old, repl)
		n := copy(out[start:end], segment)
		for j := start + n; j < end; j++ {
			out[j] = 0
		}
		pos = end
	}
}
