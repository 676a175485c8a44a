// Package validator maintains the registry of addresses eligible to seal
// blocks under proof-of-stake, and the stake weight each carries.
//
// The shape mirrors the account balance sheet used elsewhere in the chain
// (a mutex-guarded map of address to a uint64 amount) because a stake
// registry is, mechanically, the same problem: a set of address-keyed
// quantities that grows and shrinks as the chain state changes.
package validator

import (
	"sync"
)

// Registry tracks stake per address and derives active-validator status
// from a minimum stake threshold. Stake is seeded from genesis, and a
// Register call takes effect immediately: there is no window-delayed
// activation. No transaction type calls Register.
type Registry struct {
	mu       sync.RWMutex
	minStake uint64
	stakes   map[string]uint64
}

// New builds a Registry seeded with the given genesis stakes.
func New(minStake uint64, seed map[string]uint64) *Registry {
	stakes := make(map[string]uint64, len(seed))
	for addr, stake := range seed {
		if stake > 0 {
			stakes[addr] = stake
		}
	}

	return &Registry{
		minStake: minStake,
		stakes:   stakes,
	}
}

// Register sets an address's stake to the given amount, replacing any
// prior value. A stake of zero removes the entry entirely.
func (r *Registry) Register(address string, stake uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if stake == 0 {
		delete(r.stakes, address)
		return
	}
	r.stakes[address] = stake
}

// Deregister removes an address from the registry regardless of its
// current stake.
func (r *Registry) Deregister(address string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.stakes, address)
}

// Stake returns the address's current stake, or zero if it has none.
func (r *Registry) Stake(address string) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.stakes[address]
}

// IsActive reports whether the address holds at least the minimum stake
// required to seal a block under proof-of-stake.
func (r *Registry) IsActive(address string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.stakes[address] >= r.minStake
}

// ActiveStakes returns a snapshot of address to stake for every address
// currently meeting the minimum stake threshold. The map is safe for the
// caller to mutate; it does not alias internal state.
func (r *Registry) ActiveStakes() map[string]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	active := make(map[string]uint64)
	for addr, stake := range r.stakes {
		if stake >= r.minStake {
			active[addr] = stake
		}
	}
	return active
}

// TotalActiveStake sums the stake held by active validators, used as the
// denominator for a weighted-random proposer draw.
func (r *Registry) TotalActiveStake() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total uint64
	for _, stake := range r.stakes {
		if stake >= r.minStake {
			total += stake
		}
	}
	return total
}
