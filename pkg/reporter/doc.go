// Package reporter defines the progress events an install emits.
//
// Every Start event returns an index that the caller hands back to the
// matching Complete event. Cache sub-phases (validate, download) receive the
// index of their populate-cache event and allocate their own.
//
// Reporters are called from whichever goroutine reaches the event, so
// implementations must be safe for concurrent use.
package reporter
