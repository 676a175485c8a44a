package consensus

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"github.com/meridianlabs/ledgerd/foundation/blockchain/ledger"
	"github.com/meridianlabs/ledgerd/foundation/blockchain/validator"
)

// PosEngine seals blocks by proof-of-stake: the proposer must hold an
// active stake, and its reward is proportional to that stake's share of
// the total active stake.
type PosEngine struct {
	registry   *validator.Registry
	rewardPool uint64
}

// NewPos constructs a PosEngine backed by registry. rewardPool is the
// total reward issued per block, split proportionally to stake.
func NewPos(registry *validator.Registry, rewardPool uint64) *PosEngine {
	return &PosEngine{registry: registry, rewardPool: rewardPool}
}

// SelectProposer performs the weighted-random draw over active validators
// required when this node itself is proposing a block, weight equal to
// stake and ties broken by address order for determinism.
func (e *PosEngine) SelectProposer() (string, error) {
	stakes := e.registry.ActiveStakes()
	if len(stakes) == 0 {
		return "", fmt.Errorf("no active validators to select a proposer from")
	}

	addrs := make([]string, 0, len(stakes))
	for addr := range stakes {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	total := e.registry.TotalActiveStake()
	pick := rand.Uint64() % total

	var cursor uint64
	for _, addr := range addrs {
		cursor += stakes[addr]
		if pick < cursor {
			return addr, nil
		}
	}

	return addrs[len(addrs)-1], nil
}

// Seal stamps the block as pos-sealed and credits its proposer a reward
// proportional to their share of active stake. It does not block: staking
// eligibility is a lookup, not a search.
func (e *PosEngine) Seal(ctx context.Context, block ledger.Block) (ledger.Block, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Block{}, err
	}

	if !e.registry.IsActive(block.Header.Proposer) {
		return ledger.Block{}, fmt.Errorf("proposer %s is not an active validator", block.Header.Proposer)
	}

	block.Header.ConsensusTag = TagPos
	block.Header.Reward = e.reward(block.Header.Proposer)
	return block, nil
}

// Verify checks the proposer was, at verification time, an active
// validator and that the recorded reward matches its current share.
func (e *PosEngine) Verify(header ledger.BlockHeader) error {
	if header.ConsensusTag != TagPos {
		return fmt.Errorf("consensus tag %q is not pos", header.ConsensusTag)
	}
	if !e.registry.IsActive(header.Proposer) {
		return fmt.Errorf("proposer %s is not an active validator", header.Proposer)
	}
	if want := e.reward(header.Proposer); header.Reward != want {
		return fmt.Errorf("reward %d does not match stake-proportional share %d", header.Reward, want)
	}
	return nil
}

func (e *PosEngine) reward(proposer string) uint64 {
	total := e.registry.TotalActiveStake()
	if total == 0 {
		return 0
	}
	stake := e.registry.Stake(proposer)
	return (e.rewardPool * stake) / total
}
