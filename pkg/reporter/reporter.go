package reporter

import (
	"github.com/arthur-debert/prefixer/pkg/transaction"
	"github.com/arthur-debert/prefixer/pkg/types"
)

// Reporter receives install progress events.
type Reporter interface {
	OnTransactionStart(tx *transaction.Transaction)
	OnTransactionOperationStart(operation int)
	OnTransactionOperationComplete(operation int)

	OnPopulateCacheStart(operation int, record *types.RepoDataRecord) int
	OnValidateStart(cacheEntry int) int
	OnValidateComplete(validate int)
	OnDownloadStart(cacheEntry int) int
	OnDownloadProgress(download int, progress uint64, total *uint64)
	OnDownloadCompleted(download int)
	OnPopulateCacheComplete(cacheEntry int)

	OnUnlinkStart(operation int, record *types.PrefixRecord) int
	OnUnlinkComplete(index int)
	OnLinkStart(operation int, record *types.RepoDataRecord) int
	OnLinkComplete(index int)

	OnTransactionComplete()
}

// Nop ignores every event. Embed it to implement only some events.
type Nop struct{}

var _ Reporter = Nop{}

func (Nop) OnTransactionStart(*transaction.Transaction) {}
func (Nop) OnTransactionOperationStart(int) {}
func (Nop) OnTransactionOperationComplete(int) {}
func (Nop) OnPopulateCacheStart(operation int, _ *types.RepoDataRecord) int { return operation }
func (Nop) OnValidateStart(cacheEntry int) int { return cacheEntry }
func (Nop) OnValidateComplete(int) {}
func (Nop) OnDownloadStart(cacheEntry int) int { return cacheEntry }
func (Nop) OnDownloadProgress(int, uint64, *uint64) {}
func (Nop) OnDownloadCompleted(int) {}
func (Nop) OnPopulateCacheComplete(int) {}
func (Nop) OnUnlinkStart(operation int, _ *types.PrefixRecord) int { return operation }
func (Nop) OnUnlinkComplete(int) {}
func (Nop) OnLinkStart(operation int, _ *types.RepoDataRecord) int { return operation }
func (Nop) OnLinkComplete(int) {}
func (Nop) OnTransactionComplete() {}
