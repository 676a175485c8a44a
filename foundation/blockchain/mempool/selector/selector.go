// Package selector provides different transaction ordering strategies for
// assembling a block from an eligible mempool snapshot.
package selector

import (
	"fmt"
	"sort"
	"time"

	"github.com/meridianlabs/ledgerd/foundation/blockchain/transaction"
)

// StrategyFee is the only ordering strategy currently registered: by
// descending fee, ties broken by ascending admission time.
const StrategyFee = "fee"

// Entry pairs a transaction with the time it was admitted to the mempool.
// Ordering strategies read AdmittedAt to break fee ties; nothing else in
// the mempool depends on wall-clock time.
type Entry struct {
	Tx         transaction.Transaction
	AdmittedAt time.Time
}

// Func orders entries and returns at most howMany of them. Passing -1 for
// howMany returns every entry in the strategy's order.
type Func func(entries []Entry, howMany int) []transaction.Transaction

var strategies = map[string]Func{
	StrategyFee: feeSelect,
}

// Retrieve returns the named ordering strategy.
func Retrieve(strategy string) (Func, error) {
	fn, exists := strategies[strategy]
	if !exists {
		return nil, fmt.Errorf("selection strategy %q does not exist", strategy)
	}
	return fn, nil
}

// feeSelect orders by descending fee, ties broken by ascending admission
// time, then truncates to howMany.
var feeSelect Func = func(entries []Entry, howMany int) []transaction.Transaction {
	if howMany < 0 || howMany > len(entries) {
		howMany = len(entries)
	}

	ordered := make([]Entry, len(entries))
	copy(ordered, entries)

	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Tx.Fee != ordered[j].Tx.Fee {
			return ordered[i].Tx.Fee > ordered[j].Tx.Fee
		}
		return ordered[i].AdmittedAt.Before(ordered[j].AdmittedAt)
	})

	final := make([]transaction.Transaction, howMany)
	for i := 0; i < howMany; i++ {
		final[i] = ordered[i].Tx
	}

	return final
}
