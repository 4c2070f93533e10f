package cache

// Reporter receives progress of a single GetOrFetch. Start methods return
// an index that is passed back to the matching completion.
type Reporter interface {
	OnValidateStart() int
	OnValidateComplete(index int)
	OnDownloadStart() int
	OnDownloadProgress(index int, progress uint64, total *uint64)
	OnDownloadCompleted(index int)
}

type nopReporter struct{}

func (nopReporter) OnValidateStart() int { return 0 }
func (nopReporter) OnValidateComplete(int) {}
func (nopReporter) OnDownloadStart() int { return 0 }
func (nopReporter) OnDownloadProgress(int, uint64, *uint64) {}
func (nopReporter) OnDownloadCompleted(int) {}

// progressWriter forwards the number of bytes written so far.
type progressWriter struct {
	reporter Reporter
	index    int
	total    *uint64
	written  uint64
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.written += uint64(len(p))
	w.reporter.OnDownloadProgress(w.index, w.written, w.total)
	return len(p), nil
}
