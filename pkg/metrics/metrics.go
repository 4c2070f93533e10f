// Package metrics exposes install progress as Prometheus metrics.
package metrics

import (
	"sync"
	"time"

	"github.com/arthur-debert/prefixer/pkg/reporter"
	"github.com/arthur-debert/prefixer/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "prefixer"

// Stage labels.
const (
	StageUnlink   = "unlink"
	StageLink     = "link"
	StageFetch    = "populate_cache"
	StageDownload = "download"
	StageValidate = "validate"
)

// Reporter records install events as metrics.
type Reporter struct {
	reporter.Nop

	transactions prometheus.Counter
	operations   *prometheus.CounterVec
	bytes        prometheus.Counter
	durations    *prometheus.HistogramVec

	mu       sync.Mutex
	next     int
	inflight map[int]*span
}

type span struct {
	stage      string
	started    time.Time
	downloaded uint64
}

// NewReporter registers the install metrics with reg.
func NewReporter(reg prometheus.Registerer) (*Reporter, error) {
	r := &Reporter{
		transactions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Transactions that completed.",
		}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Completed install stages by stage.",
		}, []string{"stage"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloaded_bytes_total",
			Help:      "Bytes downloaded into the package cache.",
		}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent per install stage.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"stage"}),
		inflight: make(map[int]*span),
	}
	for _, c := range []prometheus.Collector{r.transactions, r.operations, r.bytes, r.durations} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Reporter) start(stage string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.next
	r.next++
	r.inflight[idx] = &span{stage: stage, started: time.Now()}
	return idx
}

func (r *Reporter) finish(idx int) {
	r.mu.Lock()
	s, ok := r.inflight[idx]
	delete(r.inflight, idx)
	r.mu.Unlock()
	if !ok {
		return
	}
	r.operations.WithLabelValues(s.stage).Inc()
	r.durations.WithLabelValues(s.stage).Observe(time.Since(s.started).Seconds())
}

func (r *Reporter) OnTransactionComplete() {
	r.transactions.Inc()
}

func (r *Reporter) OnPopulateCacheStart(int, *types.RepoDataRecord) int {
	return r.start(StageFetch)
}

func (r *Reporter) OnPopulateCacheComplete(idx int) { r.finish(idx) }

func (r *Reporter) OnValidateStart(int) int { return r.start(StageValidate) }

func (r *Reporter) OnValidateComplete(idx int) { r.finish(idx) }

func (r *Reporter) OnDownloadStart(int) int { return r.start(StageDownload) }

// OnDownloadProgress adds the bytes received since the previous call.
func (r *Reporter) OnDownloadProgress(idx int, progress uint64, _ *uint64) {
	r.mu.Lock()
	s, ok := r.inflight[idx]
	var delta uint64
	if ok && progress > s.downloaded {
		delta = progress - s.downloaded
		s.downloaded = progress
	}
	r.mu.Unlock()
	if delta > 0 {
		r.bytes.Add(float64(delta))
	}
}

func (r *Reporter) OnDownloadCompleted(idx int) { r.finish(idx) }

func (r *Reporter) OnUnlinkStart(int, *types.PrefixRecord) int { return r.start(StageUnlink) }

func (r *Reporter) OnUnlinkComplete(idx int) { r.finish(idx) }

func (r *Reporter) OnLinkStart(int, *types.RepoDataRecord) int { return r.start(StageLink) }

func (r *Reporter) OnLinkComplete(idx int) { r.finish(idx) }

// WriteTextfile writes everything gathered by g to path in the text
// exposition format, for node_exporter's textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
