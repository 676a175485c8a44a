// Package mempool maintains the set of admitted, not-yet-included
// transactions for a ledger instance.
package mempool

import (
	"errors"
	"sync"
	"time"

	"github.com/meridianlabs/ledgerd/foundation/blockchain/mempool/selector"
	"github.com/meridianlabs/ledgerd/foundation/blockchain/transaction"
)

// ErrDuplicate is returned when a transaction with the same id is already
// admitted to the pool.
var ErrDuplicate = errors.New("transaction already in mempool")

// ErrFull is returned when the pool is at capacity and the candidate's fee
// does not beat the current lowest admitted fee.
var ErrFull = errors.New("mempool at capacity")

// Mempool is a capacity-bounded, id-keyed cache of admitted transactions.
type Mempool struct {
	mu       sync.RWMutex
	pool     map[string]selector.Entry
	capacity int
	selectFn selector.Func
}

// New constructs a Mempool bounded to capacity entries using the default
// fee-ordering strategy. A capacity of 0 means unbounded.
func New(capacity int) (*Mempool, error) {
	return NewWithStrategy(capacity, selector.StrategyFee)
}

// NewWithStrategy constructs a Mempool using a named ordering strategy.
func NewWithStrategy(capacity int, strategy string) (*Mempool, error) {
	selectFn, err := selector.Retrieve(strategy)
	if err != nil {
		return nil, err
	}

	mp := Mempool{
		pool:     make(map[string]selector.Entry),
		capacity: capacity,
		selectFn: selectFn,
	}

	return &mp, nil
}

// Count returns the number of transactions currently admitted.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Contains reports whether id is already admitted.
func (mp *Mempool) Contains(id string) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	_, exists := mp.pool[id]
	return exists
}

// Admit adds tx to the pool. It rejects a duplicate id outright. When the
// pool is at capacity, the incoming transaction is admitted only if its
// fee exceeds the current lowest admitted fee, in which case that
// lowest-fee entry is evicted to make room.
func (mp *Mempool) Admit(tx transaction.Transaction) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, exists := mp.pool[tx.ID]; exists {
		return ErrDuplicate
	}

	if mp.capacity > 0 && len(mp.pool) >= mp.capacity {
		lowestID, lowestFee := "", uint64(0)
		first := true
		for id, entry := range mp.pool {
			if first || entry.Tx.Fee < lowestFee {
				lowestID, lowestFee = id, entry.Tx.Fee
				first = false
			}
		}

		if tx.Fee <= lowestFee {
			return ErrFull
		}

		delete(mp.pool, lowestID)
	}

	mp.pool[tx.ID] = selector.Entry{Tx: tx, AdmittedAt: time.Now().UTC()}

	return nil
}

// Remove drops id from the pool, for example once its transaction has
// been included in an accepted block.
func (mp *Mempool) Remove(id string) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	delete(mp.pool, id)
}

// Truncate empties the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[string]selector.Entry)
}

// Snapshot returns every admitted transaction in the pool's default
// ordering, regardless of per-variant eligibility.
func (mp *Mempool) Snapshot() []transaction.Transaction {
	mp.mu.RLock()
	entries := make([]selector.Entry, 0, len(mp.pool))
	for _, entry := range mp.pool {
		entries = append(entries, entry)
	}
	mp.mu.RUnlock()

	return mp.selectFn(entries, -1)
}

// PickEligible selects up to howMany transactions in fee/admission-time
// order, without removing them from the pool, skipping any not eligible for inclusion at now (an unlocked
// TimeLocked, a fully-signed MultiSig, a resolvable SmartContract
// code_ref). Pass -1 for howMany to consider every eligible entry.
func (mp *Mempool) PickEligible(howMany int, now time.Time, resolveCode func(ref string) bool) []transaction.Transaction {
	mp.mu.RLock()
	entries := make([]selector.Entry, 0, len(mp.pool))
	for _, entry := range mp.pool {
		if transaction.IsEligibleForInclusion(entry.Tx, now, resolveCode) {
			entries = append(entries, entry)
		}
	}
	mp.mu.RUnlock()

	return mp.selectFn(entries, howMany)
}
