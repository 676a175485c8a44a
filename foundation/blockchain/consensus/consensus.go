// Package consensus produces sealed blocks from assembled ones and verifies
// the seal on blocks arriving from peers. It supports proof-of-work,
// proof-of-stake, and a hybrid dispatcher between the two, selected by
// genesis configuration.
package consensus

import (
	"context"
	"fmt"

	"github.com/meridianlabs/ledgerd/foundation/blockchain/ledger"
)

// Tag values recorded in a sealed block's ConsensusTag field.
const (
	TagPow = "pow"
	TagPos = "pos"
)

// Engine seals an assembled block and verifies the seal on an incoming
// one. It satisfies ledger.ConsensusVerifier so a *ledger.Ledger can be
// wired directly to an Engine via SetVerifier.
type Engine interface {
	Seal(ctx context.Context, block ledger.Block) (ledger.Block, error)
	Verify(header ledger.BlockHeader) error
}

// New builds the Engine named by mode. powWeight/posWeight are only
// consulted for "hybrid".
func New(mode string, pow, pos Engine, powWeight, posWeight float64) (Engine, error) {
	switch mode {
	case "", TagPow:
		return pow, nil
	case TagPos:
		return pos, nil
	case "hybrid":
		return newHybrid(pow, pos, powWeight, posWeight), nil
	default:
		return nil, fmt.Errorf("unknown consensus mode %q", mode)
	}
}
