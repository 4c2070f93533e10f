//go:build !linux

package filesystem

func refLink(src, dst string) error {
	return ErrRefLinkUnsupported
}
