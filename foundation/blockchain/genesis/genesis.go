// Package genesis maintains access to the genesis file. The genesis file
// establishes the on-chain constants for a running instance: the starting
// balances, the consensus configuration, and the initial validator set.
package genesis

import (
	"encoding/json"
	"os"
	"time"
)

// Genesis represents the genesis file.
type Genesis struct {
	Date          time.Time         `json:"date"`
	ChainID       uint16            `json:"chain_id"`        // The chain id represents an unique id for this running instance.
	TransPerBlock uint16            `json:"trans_per_block"` // The maximum number of transactions that can be in a block.
	Difficulty    uint16            `json:"difficulty"`      // Starting pow difficulty.
	MiningReward  uint64            `json:"mining_reward"`   // Fixed base reward credited for a pow-sealed block.
	GasPrice      uint64            `json:"gas_price"`       // Loaded from the genesis file; not read by the ledger or consensus code.
	Balances      map[string]uint64 `json:"balances"`

	// Consensus configuration. ConsensusMode selects which sub-engine
	// seals new blocks; PowWeight/PosWeight only matter when it is
	// "hybrid" and are expected to sum to 1.
	ConsensusMode      string            `json:"consensus_mode"` // pow | pos | hybrid
	PowWeight          float64           `json:"pow_weight"`
	PosWeight          float64           `json:"pos_weight"`
	TargetBlockSeconds uint64            `json:"target_block_seconds"`
	DifficultyWindow   uint64            `json:"difficulty_window"`
	MinValidatorStake  uint64            `json:"min_validator_stake"`
	Validators         map[string]uint64 `json:"validators"` // address -> stake, seeded at genesis
}

// =============================================================================

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	if path == "" {
		path = "zblock/genesis.json"
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, err
	}

	if genesis.TargetBlockSeconds == 0 {
		genesis.TargetBlockSeconds = 30
	}
	if genesis.DifficultyWindow == 0 {
		genesis.DifficultyWindow = 100
	}
	if genesis.ConsensusMode == "" {
		genesis.ConsensusMode = "pow"
	}

	return genesis, nil
}
