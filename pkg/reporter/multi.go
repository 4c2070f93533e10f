package reporter

import (
	"sync"

	"github.com/arthur-debert/prefixer/pkg/transaction"
	"github.com/arthur-debert/prefixer/pkg/types"
)

type multi struct {
	children []Reporter

	mu      sync.Mutex
	next    int
	indices map[int][]int
}

// Multi fans events out to every reporter. Each child keeps its own index
// space; Multi maps its indices onto theirs.
func Multi(reporters ...Reporter) Reporter {
	children := make([]Reporter, 0, len(reporters))
	for _, r := range reporters {
		if r != nil {
			children = append(children, r)
		}
	}
	return &multi{children: children, indices: make(map[int][]int)}
}

func (m *multi) start(fn func(Reporter) int) int {
	child := make([]int, len(m.children))
	for i, r := range m.children {
		child[i] = fn(r)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.next
	m.next++
	m.indices[idx] = child
	return idx
}

func (m *multi) childIndices(idx int) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.indices[idx]
}

func (m *multi) finish(idx int, fn func(Reporter, int)) {
	m.mu.Lock()
	child := m.indices[idx]
	delete(m.indices, idx)
	m.mu.Unlock()
	for i, r := range m.children {
		if i < len(child) {
			fn(r, child[i])
		}
	}
}

func (m *multi) each(fn func(Reporter)) {
	for _, r := range m.children {
		fn(r)
	}
}

func (m *multi) OnTransactionStart(tx *transaction.Transaction) {
	m.each(func(r Reporter) { r.OnTransactionStart(tx) })
}

func (m *multi) OnTransactionOperationStart(operation int) {
	m.each(func(r Reporter) { r.OnTransactionOperationStart(operation) })
}

func (m *multi) OnTransactionOperationComplete(operation int) {
	m.each(func(r Reporter) { r.OnTransactionOperationComplete(operation) })
}

func (m *multi) OnPopulateCacheStart(operation int, record *types.RepoDataRecord) int {
	return m.start(func(r Reporter) int { return r.OnPopulateCacheStart(operation, record) })
}

func (m *multi) OnValidateStart(cacheEntry int) int {
	parent := m.childIndices(cacheEntry)
	return m.startNested(parent, func(r Reporter, p int) int { return r.OnValidateStart(p) })
}

func (m *multi) OnValidateComplete(validate int) {
	m.finish(validate, func(r Reporter, i int) { r.OnValidateComplete(i) })
}

func (m *multi) OnDownloadStart(cacheEntry int) int {
	parent := m.childIndices(cacheEntry)
	return m.startNested(parent, func(r Reporter, p int) int { return r.OnDownloadStart(p) })
}

func (m *multi) OnDownloadProgress(download int, progress uint64, total *uint64) {
	child := m.childIndices(download)
	for i, r := range m.children {
		if i < len(child) {
			r.OnDownloadProgress(child[i], progress, total)
		}
	}
}

func (m *multi) OnDownloadCompleted(download int) {
	m.finish(download, func(r Reporter, i int) { r.OnDownloadCompleted(i) })
}

func (m *multi) OnPopulateCacheComplete(cacheEntry int) {
	m.finish(cacheEntry, func(r Reporter, i int) { r.OnPopulateCacheComplete(i) })
}

func (m *multi) OnUnlinkStart(operation int, record *types.PrefixRecord) int {
	return m.start(func(r Reporter) int { return r.OnUnlinkStart(operation, record) })
}

func (m *multi) OnUnlinkComplete(index int) {
	m.finish(index, func(r Reporter, i int) { r.OnUnlinkComplete(i) })
}

func (m *multi) OnLinkStart(operation int, record *types.RepoDataRecord) int {
	return m.start(func(r Reporter) int { return r.OnLinkStart(operation, record) })
}

func (m *multi) OnLinkComplete(index int) {
	m.finish(index, func(r Reporter, i int) { r.OnLinkComplete(i) })
}

func (m *multi) OnTransactionComplete() {
	m.each(func(r Reporter) { r.OnTransactionComplete() })
}

// startNested starts a sub-phase in each child under that child's own
// parent index.
func (m *multi) startNested(parent []int, fn func(Reporter, int) int) int {
	i := 0
	return m.start(func(r Reporter) int {
		p := 0
		if i < len(parent) {
			p = parent[i]
		}
		i++
		return fn(r, p)
	})
}
