package consensus

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"

	"github.com/meridianlabs/ledgerd/foundation/blockchain/ledger"
)

// zeroNibbleMatch is long enough to cover any difficulty this chain will
// configure (clamped to [1, 10] by the ledger's adjustment rule).
const zeroNibbleMatch = "0000000000000000"

// EvHandler receives progress narration during sealing, mirroring the
// event-log style used throughout this codebase.
type EvHandler func(format string, args ...any)

// PowEngine seals blocks by proof-of-work: incrementing a nonce until the
// block's hash carries at least Difficulty leading zero hex nibbles.
type PowEngine struct {
	reward uint64
	ev     EvHandler
}

// NewPow constructs a PowEngine crediting reward (genesis.MiningReward) to
// whoever seals a block. ev may be nil.
func NewPow(reward uint64, ev EvHandler) *PowEngine {
	if ev == nil {
		ev = func(string, ...any) {}
	}
	return &PowEngine{reward: reward, ev: ev}
}

// Seal searches for a nonce solving block's difficulty, checking ctx
// between attempts so the caller can cancel mid-search when a peer block
// advances the chain first.
func (e *PowEngine) Seal(ctx context.Context, block ledger.Block) (ledger.Block, error) {
	block.Header.ConsensusTag = TagPow
	block.Header.Reward = e.reward

	start, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	if err != nil {
		return ledger.Block{}, err
	}
	block.Header.Nonce = start.Uint64()

	e.ev("consensus: pow: sealing: started")
	defer e.ev("consensus: pow: sealing: stopped")

	var attempts uint64
	for {
		attempts++
		if attempts%1_000_000 == 0 {
			e.ev("consensus: pow: sealing: attempts[%d]", attempts)
		}

		if err := ctx.Err(); err != nil {
			return ledger.Block{}, err
		}

		if hashSolved(block.Header.Difficulty, block.Hash()) {
			e.ev("consensus: pow: sealing: solved: attempts[%d] nonce[%d]", attempts, block.Header.Nonce)
			return block, nil
		}

		block.Header.Nonce++
	}
}

// Verify recomputes the hash and checks the zero-prefix.
func (e *PowEngine) Verify(header ledger.BlockHeader) error {
	if header.ConsensusTag != TagPow {
		return fmt.Errorf("consensus tag %q is not pow", header.ConsensusTag)
	}

	block := ledger.Block{Header: header}
	if !hashSolved(header.Difficulty, block.Hash()) {
		return fmt.Errorf("block hash does not satisfy difficulty %d", header.Difficulty)
	}
	if header.Reward != e.reward {
		return fmt.Errorf("reward %d does not match the configured base reward %d", header.Reward, e.reward)
	}
	return nil
}

// hashSolved reports whether hash carries at least difficulty leading zero
// hex nibbles, ignoring the "0x" prefix signature.Hash always emits.
func hashSolved(difficulty uint16, hash string) bool {
	const prefixLen = 2 // "0x"

	body := hash
	if len(body) >= prefixLen && body[:prefixLen] == "0x" {
		body = body[prefixLen:]
	}

	d := int(difficulty)
	if d > len(zeroNibbleMatch) {
		d = len(zeroNibbleMatch)
	}
	if len(body) < d {
		return false
	}

	return body[:d] == zeroNibbleMatch[:d]
}
