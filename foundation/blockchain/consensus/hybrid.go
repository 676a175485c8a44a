package consensus

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/meridianlabs/ledgerd/foundation/blockchain/ledger"
)

// hybridEngine picks pow or pos per sealing attempt with probability
// proportional to the configured weights, and dispatches Verify by the
// tag already recorded on the header.
type hybridEngine struct {
	pow, pos             Engine
	powWeight, posWeight float64
}

func newHybrid(pow, pos Engine, powWeight, posWeight float64) *hybridEngine {
	if powWeight == 0 && posWeight == 0 {
		powWeight, posWeight = 0.3, 0.7
	}
	return &hybridEngine{pow: pow, pos: pos, powWeight: powWeight, posWeight: posWeight}
}

func (h *hybridEngine) Seal(ctx context.Context, block ledger.Block) (ledger.Block, error) {
	total := h.powWeight + h.posWeight
	if rand.Float64()*total < h.powWeight {
		return h.pow.Seal(ctx, block)
	}
	return h.pos.Seal(ctx, block)
}

// SelectProposer defers to the pos engine's validator draw. The proposer
// has to be picked before Seal knows whether this round will land on pow
// or pos, so hybrid always assembles against the pos-selected validator;
// if the round ends up sealing with pow, that validator simply receives
// the flat pow reward instead of a stake-proportional one.
func (h *hybridEngine) SelectProposer() (string, error) {
	selector, ok := h.pos.(interface{ SelectProposer() (string, error) })
	if !ok {
		return "", fmt.Errorf("hybrid: pos engine does not support proposer selection")
	}
	return selector.SelectProposer()
}

func (h *hybridEngine) Verify(header ledger.BlockHeader) error {
	switch header.ConsensusTag {
	case TagPow:
		return h.pow.Verify(header)
	case TagPos:
		return h.pos.Verify(header)
	default:
		return fmt.Errorf("unknown consensus tag %q", header.ConsensusTag)
	}
}
