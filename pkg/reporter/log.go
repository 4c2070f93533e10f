package reporter

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/arthur-debert/prefixer/pkg/transaction"
	"github.com/arthur-debert/prefixer/pkg/types"
	"github.com/rs/zerolog"
)

// LogReporter writes every event to a zerolog logger. Completion events
// carry the name of the package and the time since the matching start.
type LogReporter struct {
	logger zerolog.Logger
	next   int64

	mu      sync.Mutex
	pending map[int]pendingEvent
}

type pendingEvent struct {
	name    string
	started time.Time
}

// NewLogReporter returns a reporter that logs to logger.
func NewLogReporter(logger zerolog.Logger) *LogReporter {
	return &LogReporter{logger: logger, pending: make(map[int]pendingEvent)}
}

func (r *LogReporter) begin(name string) int {
	idx := int(atomic.AddInt64(&r.next, 1) - 1)
	r.mu.Lock()
	r.pending[idx] = pendingEvent{name: name, started: time.Now()}
	r.mu.Unlock()
	return idx
}

func (r *LogReporter) end(idx int) (pendingEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, ok := r.pending[idx]
	delete(r.pending, idx)
	return ev, ok
}

func (r *LogReporter) lookup(idx int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending[idx].name
}

func (r *LogReporter) complete(idx int, msg string) {
	ev, ok := r.end(idx)
	e := r.logger.Debug().Int("index", idx)
	if ok {
		e = e.Str("package", ev.name).Dur("duration", time.Since(ev.started))
	}
	e.Msg(msg)
}

func (r *LogReporter) OnTransactionStart(tx *transaction.Transaction) {
	r.logger.Info().
		Int("operations", len(tx.Operations)).
		Int("removals", len(tx.RemovedPackages())).
		Int("installs", len(tx.InstalledPackages())).
		Msg("Transaction started")
}

func (r *LogReporter) OnTransactionOperationStart(operation int) {
	r.logger.Trace().Int("operation", operation).Msg("Operation started")
}

func (r *LogReporter) OnTransactionOperationComplete(operation int) {
	r.logger.Trace().Int("operation", operation).Msg("Operation complete")
}

func (r *LogReporter) OnPopulateCacheStart(operation int, record *types.RepoDataRecord) int {
	idx := r.begin(record.FileName)
	r.logger.Debug().Int("operation", operation).Int("index", idx).Str("package", record.FileName).Msg("Populating cache")
	return idx
}

func (r *LogReporter) OnValidateStart(cacheEntry int) int {
	idx := r.begin(r.lookup(cacheEntry))
	r.logger.Trace().Int("cache_entry", cacheEntry).Int("index", idx).Msg("Validating cache entry")
	return idx
}

func (r *LogReporter) OnValidateComplete(validate int) {
	r.complete(validate, "Validated cache entry")
}

func (r *LogReporter) OnDownloadStart(cacheEntry int) int {
	idx := r.begin(r.lookup(cacheEntry))
	r.logger.Debug().Int("cache_entry", cacheEntry).Int("index", idx).Msg("Downloading")
	return idx
}

func (r *LogReporter) OnDownloadProgress(download int, progress uint64, total *uint64) {
	e := r.logger.Trace().Int("index", download).Uint64("bytes", progress)
	if total != nil {
		e = e.Uint64("total", *total)
	}
	e.Msg("Download progress")
}

func (r *LogReporter) OnDownloadCompleted(download int) {
	r.complete(download, "Download complete")
}

func (r *LogReporter) OnPopulateCacheComplete(cacheEntry int) {
	r.complete(cacheEntry, "Cache populated")
}

func (r *LogReporter) OnUnlinkStart(operation int, record *types.PrefixRecord) int {
	idx := r.begin(record.FileName)
	r.logger.Debug().Int("operation", operation).Int("index", idx).Str("package", record.FileName).Msg("Unlinking")
	return idx
}

func (r *LogReporter) OnUnlinkComplete(index int) {
	r.complete(index, "Unlinked")
}

func (r *LogReporter) OnLinkStart(operation int, record *types.RepoDataRecord) int {
	idx := r.begin(record.FileName)
	r.logger.Debug().Int("operation", operation).Int("index", idx).Str("package", record.FileName).Msg("Linking")
	return idx
}

func (r *LogReporter) OnLinkComplete(index int) {
	r.complete(index, "Linked")
}

func (r *LogReporter) OnTransactionComplete() {
	r.logger.Info().Msg("Transaction complete")
}
