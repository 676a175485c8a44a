package public

import (
	"github.com/meridianlabs/ledgerd/foundation/blockchain/ledger"
	"github.com/meridianlabs/ledgerd/foundation/blockchain/transaction"
)

// block is the wire shape returned for a single block. ledger.Block carries
// its transactions in a merkle tree, which is not itself a useful public
// representation, so this flattens it to a hash plus a transaction slice.
type block struct {
	Header       ledger.BlockHeader        `json:"header"`
	Hash         string                    `json:"hash"`
	Transactions []transaction.Transaction `json:"transactions"`
}
