// Package linkscript runs the post-link and pre-unlink scripts packages may
// ship.
package linkscript
