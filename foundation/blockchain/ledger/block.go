package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/meridianlabs/ledgerd/foundation/blockchain/merkle"
	"github.com/meridianlabs/ledgerd/foundation/blockchain/signature"
	"github.com/meridianlabs/ledgerd/foundation/blockchain/transaction"
)

// ErrChainForked is returned when a candidate block claims an index two or
// more past the next expected one (three or more ahead of the local
// head's), signalling the local chain is behind and needs to resync.
var ErrChainForked = errors.New("ledger forked, resync required")

// BlockHeader carries every field that participates in a block's hash.
// Nonce is meaningful only for a pow-sealed header; Proposer identifies
// who is credited the block reward and, for a pos-sealed header, who
// staked the right to seal it.
type BlockHeader struct {
	Index        uint64 `json:"index"`
	Timestamp    int64  `json:"timestamp"`
	PrevHash     string `json:"previous_hash"`
	Nonce        uint64 `json:"nonce"`
	Difficulty   uint16 `json:"difficulty"`
	MerkleRoot   string `json:"merkle_root"`
	Proposer     string `json:"proposer"`
	ConsensusTag string `json:"consensus_tag"`
	Reward       uint64 `json:"reward"`
}

// Block is a sealed or unsealed group of transactions. Trans is nil only
// for the genesis block, which carries no transactions of its own.
type Block struct {
	Header BlockHeader
	Trans  *merkle.Tree[transaction.Transaction]
}

// Assemble constructs an unsealed block: it fixes previous_hash, index,
// merkle_root and difficulty, but leaves ConsensusTag, Nonce and Reward
// for the consensus engine to fill in when it seals the block. Assemble
// itself never seals — that is spec'd as the consensus engine's job.
func Assemble(proposer string, parent Block, difficulty uint16, txs []transaction.Transaction) (Block, error) {
	if len(txs) == 0 {
		return Block{}, errors.New("cannot assemble a block with no transactions")
	}

	tree, err := merkle.NewTree(txs)
	if err != nil {
		return Block{}, err
	}

	b := Block{
		Header: BlockHeader{
			Index:      parent.Header.Index + 1,
			Timestamp:  time.Now().UTC().UnixNano(),
			PrevHash:   parent.Hash(),
			Difficulty: difficulty,
			MerkleRoot: tree.RootHex(),
			Proposer:   proposer,
		},
		Trans: tree,
	}

	return b, nil
}

// Genesis returns block 0: no transactions, a zero previous hash, whose
// own Hash is defined to be the zero hash rather than a hash of its
// header, so every chain's block 1 has a stable, well-known parent.
func Genesis(chainDifficulty uint16) Block {
	return Block{
		Header: BlockHeader{
			Index:      0,
			Difficulty: chainDifficulty,
		},
	}
}

// Hash returns the block's content-addressed hash: the zero hash for
// genesis, otherwise the hash of the header (transactions are covered
// indirectly through MerkleRoot).
func (b Block) Hash() string {
	if b.Header.Index == 0 {
		return signature.ZeroHash
	}

	return signature.Hash(b.Header)
}

// Transactions returns the block's transactions in merkle-leaf order, or
// nil for genesis.
func (b Block) Transactions() []transaction.Transaction {
	if b.Trans == nil {
		return nil
	}
	return b.Trans.Values()
}

// validateStructure checks the invariants that do not depend on a
// consensus seal: index sequencing, parent linkage, and merkle root
// agreement. Seal validity (difficulty proof or validator eligibility) is
// checked separately via the injected ConsensusVerifier.
func validateStructure(candidate, parent Block) error {
	nextIndex := parent.Header.Index + 1

	if candidate.Header.Index >= nextIndex+2 {
		return ErrChainForked
	}

	if candidate.Header.Index != nextIndex {
		return fmt.Errorf("block is not the next index, got %d, exp %d", candidate.Header.Index, nextIndex)
	}

	if candidate.Header.PrevHash != parent.Hash() {
		return fmt.Errorf("previous_hash does not match parent, got %s, exp %s", candidate.Header.PrevHash, parent.Hash())
	}

	if candidate.Header.Difficulty+1 < parent.Header.Difficulty {
		return fmt.Errorf("difficulty %d drops more than one step below parent difficulty %d", candidate.Header.Difficulty, parent.Header.Difficulty)
	}

	if parent.Header.Timestamp > 0 && candidate.Header.Timestamp <= parent.Header.Timestamp {
		return errors.New("block timestamp does not advance past parent")
	}

	if candidate.Trans == nil {
		return errors.New("block carries no transactions")
	}

	if candidate.Header.MerkleRoot != candidate.Trans.RootHex() {
		return fmt.Errorf("merkle root does not match transactions, got %s, exp %s", candidate.Trans.RootHex(), candidate.Header.MerkleRoot)
	}

	return nil
}
