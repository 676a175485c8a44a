// Package ledger owns the chain, the mempool, and the balance projection
// for one running instance: admission, assembly, append, and query. It is
// the single-writer boundary every mutation of chain state passes through.
package ledger

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/meridianlabs/ledgerd/foundation/blockchain/genesis"
	"github.com/meridianlabs/ledgerd/foundation/blockchain/mempool"
	"github.com/meridianlabs/ledgerd/foundation/blockchain/transaction"
)

// recentIDLookback bounds how many transaction ids are remembered purely
// to reject a resubmission of something already on chain; it is not a
// substitute for mempool membership, which is checked separately.
const recentIDLookback = 10_000

// ConsensusVerifier is the seam between Ledger and whichever consensus
// engine is configured. Ledger depends only on this interface so the
// consensus package can depend on ledger.Block without an import cycle.
type ConsensusVerifier interface {
	Verify(header BlockHeader) error
}

// Admission is the result of SubmitTransaction.
type Admission struct {
	Admitted bool
	Reason   string
}

// Outcome is the result of AppendBlock or TryReorg.
type Outcome struct {
	Accepted bool
	Reason   string
}

// Ledger is safe for concurrent use. Every exported method that reads or
// changes the chain or the balances takes the same mutex; reads may run
// concurrently with each other but never during a mutation. Mempool
// queries go through the mempool's own lock.
type Ledger struct {
	mu sync.RWMutex

	genesis    genesis.Genesis
	chain      []Block
	balances   map[string]uint64
	mempool    *mempool.Mempool
	verifier   ConsensusVerifier
	serializer Serializer

	seenTx    map[string]struct{}
	seenOrder []string
}

// New constructs a Ledger seeded from gen's balances and replays
// serializer's log, if any, to rebuild the chain and balance projection.
// Passing a nil serializer runs without persistence.
func New(gen genesis.Genesis, serializer Serializer, mempoolCapacity int) (*Ledger, error) {
	mp, err := mempool.New(mempoolCapacity)
	if err != nil {
		return nil, err
	}

	l := Ledger{
		genesis:    gen,
		balances:   make(map[string]uint64),
		mempool:    mp,
		serializer: serializer,
		seenTx:     make(map[string]struct{}),
	}

	for addr, bal := range gen.Balances {
		l.balances[addr] = bal
	}
	l.chain = []Block{Genesis(gen.Difficulty)}

	if serializer == nil {
		return &l, nil
	}

	iter, err := serializer.ForEach()
	if err != nil {
		return nil, err
	}
	for !iter.Done() {
		rec, err := iter.Next()
		if err != nil {
			if iter.Done() {
				break
			}
			return nil, err
		}
		block, err := fromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("replay block %d: %w", rec.Header.Index, err)
		}
		l.applyBlock(block)
	}

	return &l, nil
}

// SetVerifier wires the consensus engine's seal verification into
// AppendBlock and TryReorg. It is separate from New because the consensus
// package depends on ledger types, so ledger cannot import it; the engine
// is wired in after both are constructed.
func (l *Ledger) SetVerifier(v ConsensusVerifier) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.verifier = v
}

// Genesis returns the genesis configuration this ledger was constructed
// with.
func (l *Ledger) Genesis() genesis.Genesis {
	return l.genesis
}

// SubmitTransaction validates and, if admissible, adds tx to the mempool.
func (l *Ledger) SubmitTransaction(tx transaction.Transaction) Admission {
	if err := transaction.VerifyStructure(tx); err != nil {
		return Admission{Reason: err.Error()}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, seen := l.seenTx[tx.ID]; seen {
		return Admission{Reason: "duplicate transaction id"}
	}

	if requiresFunds(tx.Variant) {
		need := tx.Amount + tx.Fee + l.pendingObligationLocked(tx.Sender)
		if l.balances[tx.Sender] < need {
			return Admission{Reason: "insufficient balance"}
		}
	}

	if err := l.mempool.Admit(tx); err != nil {
		return Admission{Reason: err.Error()}
	}

	l.rememberSeenLocked(tx.ID)

	return Admission{Admitted: true}
}

// requiresFunds reports whether variant's Amount+Fee must be covered by
// the sender's projected balance at admission time. MultiSig and
// TimeLocked transactions are exempt per spec: their funds check happens
// implicitly at append time via the block's aggregate double-spend check,
// since a MultiSig sender is a pooled pseudo-account, not a wallet holder
// who consented to the debit until fully signed.
func requiresFunds(v transaction.Variant) bool {
	switch v {
	case transaction.VariantStandard, transaction.VariantDataStorage, transaction.VariantSmartContract:
		return true
	default:
		return false
	}
}

func (l *Ledger) pendingObligationLocked(sender string) uint64 {
	var sum uint64
	for _, tx := range l.mempool.Snapshot() {
		if tx.Sender == sender {
			sum += tx.Amount + tx.Fee
		}
	}
	return sum
}

// AssembleBlock selects up to the configured max transactions from the
// mempool, in fee/admission order, without removing them (AppendBlock
// removes them once the block is accepted), filtering out anything not eligible
// for inclusion right now. It never seals: ConsensusTag and, for a
// pow-sealed block, Nonce, are left for the consensus engine to fill in.
func (l *Ledger) AssembleBlock(proposer string) (Block, error) {
	l.mu.RLock()
	head := l.chain[len(l.chain)-1]
	difficulty := l.currentDifficultyLocked()
	maxTx := int(l.genesis.TransPerBlock)
	l.mu.RUnlock()

	eligible := l.mempool.PickEligible(maxTx, time.Now().UTC(), l.resolveContractCode)
	if len(eligible) == 0 {
		return Block{}, fmt.Errorf("no eligible transactions to assemble")
	}

	return Assemble(proposer, head, difficulty, eligible)
}

// AppendBlock validates block end to end against the current head and, on
// acceptance, updates balances, drains its transactions from the mempool,
// advances the head, and persists it.
func (l *Ledger) AppendBlock(block Block) Outcome {
	l.mu.Lock()
	defer l.mu.Unlock()

	head := l.chain[len(l.chain)-1]

	if err := validateStructure(block, head); err != nil {
		return Outcome{Reason: err.Error()}
	}

	if l.verifier != nil {
		if err := l.verifier.Verify(block.Header); err != nil {
			return Outcome{Reason: err.Error()}
		}
	}

	for _, tx := range block.Transactions() {
		if err := transaction.VerifyStructure(tx); err != nil {
			return Outcome{Reason: err.Error()}
		}
	}

	if err := checkNoDoubleSpend(l.balances, block); err != nil {
		return Outcome{Reason: err.Error()}
	}

	l.applyBlock(block)

	if l.serializer != nil {
		if err := l.serializer.Append(toRecord(block)); err != nil {
			return Outcome{Reason: err.Error()}
		}
	}

	return Outcome{Accepted: true}
}

// TryReorg validates candidate, a peer-supplied fragment sharing a common
// ancestor with the local chain, and adopts it only if it is strictly
// longer than the local chain from the fork point and fully valid.
// Adoption rolls back local-only blocks, returns their non-duplicate
// transactions to the mempool, and applies the fragment.
func (l *Ledger) TryReorg(candidate []Block) Outcome {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(candidate) == 0 {
		return Outcome{Reason: "empty candidate chain"}
	}

	forkIndex := candidate[0].Header.Index
	if forkIndex == 0 || forkIndex > uint64(len(l.chain)) {
		return Outcome{Reason: "candidate does not attach to a known ancestor"}
	}

	forkParent := l.chain[forkIndex-1]
	if candidate[0].Header.PrevHash != forkParent.Hash() {
		return Outcome{Reason: "candidate does not fork from a known ancestor"}
	}

	localRemaining := len(l.chain) - int(forkIndex)
	if len(candidate) <= localRemaining {
		return Outcome{Reason: "candidate is not strictly longer than the local chain from the fork point"}
	}

	balances := projectBalances(l.genesis, l.chain[:forkIndex])
	parent := forkParent
	for _, block := range candidate {
		if err := validateStructure(block, parent); err != nil {
			return Outcome{Reason: err.Error()}
		}
		if l.verifier != nil {
			if err := l.verifier.Verify(block.Header); err != nil {
				return Outcome{Reason: err.Error()}
			}
		}
		for _, tx := range block.Transactions() {
			if err := transaction.VerifyStructure(tx); err != nil {
				return Outcome{Reason: err.Error()}
			}
		}
		if err := checkNoDoubleSpend(balances, block); err != nil {
			return Outcome{Reason: err.Error()}
		}
		applyBlockToBalances(balances, l.genesis, block)
		parent = block
	}

	orphaned := l.chain[forkIndex:]
	adopted := make(map[string]struct{})
	for _, block := range candidate {
		for _, tx := range block.Transactions() {
			adopted[tx.ID] = struct{}{}
		}
	}

	l.chain = append(l.chain[:forkIndex:forkIndex], candidate...)
	l.balances = balances

	for _, block := range orphaned {
		for _, tx := range block.Transactions() {
			if _, reincluded := adopted[tx.ID]; !reincluded {
				l.mempool.Admit(tx)
			}
		}
	}
	for _, block := range candidate {
		for _, tx := range block.Transactions() {
			l.mempool.Remove(tx.ID)
			l.rememberSeenLocked(tx.ID)
		}
	}

	if l.serializer != nil {
		l.serializer.Reset()
		for _, block := range l.chain[1:] {
			l.serializer.Append(toRecord(block))
		}
	}

	return Outcome{Accepted: true}
}

// Balance returns address's current projected balance.
func (l *Ledger) Balance(address string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.balances[address]
}

// Balances returns a copy of the full address-to-balance projection, used
// by administrative tooling that walks the whole set rather than one
// address at a time.
func (l *Ledger) Balances() map[string]uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	cpy := make(map[string]uint64, len(l.balances))
	for address, balance := range l.balances {
		cpy[address] = balance
	}
	return cpy
}

// Head returns the chain's most recently accepted block.
func (l *Ledger) Head() Block {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.chain[len(l.chain)-1]
}

// BlockAt returns the block at index, or an error if index is beyond the
// current head.
func (l *Ledger) BlockAt(index uint64) (Block, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if index >= uint64(len(l.chain)) {
		return Block{}, fmt.Errorf("block %d not found, head is %d", index, len(l.chain)-1)
	}

	return l.chain[index], nil
}

// BlockByHash returns the block matching hash, or an error if none does.
func (l *Ledger) BlockByHash(hash string) (Block, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, block := range l.chain {
		if block.Hash() == hash {
			return block, nil
		}
	}
	return Block{}, fmt.Errorf("block with hash %s not found", hash)
}

// MempoolSnapshot returns every admitted transaction, regardless of
// per-variant eligibility, in the mempool's default ordering.
func (l *Ledger) MempoolSnapshot() []transaction.Transaction {
	return l.mempool.Snapshot()
}

// MempoolCount returns the number of transactions currently admitted.
func (l *Ledger) MempoolCount() int {
	return l.mempool.Count()
}

// =============================================================================

// currentDifficultyLocked implements the deterministic adjustment rule:
// every DifficultyWindow blocks, compare the measured interval to the
// target and step difficulty by one, clamped to [1, 10]. Callers must
// hold at least a read lock.
func (l *Ledger) currentDifficultyLocked() uint16 {
	head := l.chain[len(l.chain)-1]
	window := l.genesis.DifficultyWindow

	height := head.Header.Index
	if window == 0 || height == 0 || height%window != 0 || uint64(len(l.chain)) <= window {
		return head.Header.Difficulty
	}

	start := l.chain[uint64(len(l.chain))-1-window]
	elapsed := time.Duration(head.Header.Timestamp-start.Header.Timestamp) * time.Nanosecond
	target := time.Duration(window) * time.Duration(l.genesis.TargetBlockSeconds) * time.Second

	next := head.Header.Difficulty
	switch {
	case elapsed < target/2 && next < 10:
		next++
	case elapsed > target*2 && next > 1:
		next--
	}

	return next
}

func (l *Ledger) resolveContractCode(ref string) bool {
	_, err := decodeProgram(ref)
	return err == nil
}

func decodeProgram(ref string) (transaction.Program, error) {
	var prog transaction.Program
	if err := json.Unmarshal([]byte(ref), &prog); err != nil {
		return nil, err
	}
	return prog, nil
}

func (l *Ledger) rememberSeenLocked(id string) {
	if _, exists := l.seenTx[id]; exists {
		return
	}
	l.seenTx[id] = struct{}{}
	l.seenOrder = append(l.seenOrder, id)

	if len(l.seenOrder) > recentIDLookback {
		oldest := l.seenOrder[0]
		l.seenOrder = l.seenOrder[1:]
		delete(l.seenTx, oldest)
	}
}

func (l *Ledger) applyBlock(block Block) {
	applyBlockToBalances(l.balances, l.genesis, block)

	for _, tx := range block.Transactions() {
		l.mempool.Remove(tx.ID)
		l.rememberSeenLocked(tx.ID)
	}

	l.chain = append(l.chain, block)
}

// =============================================================================

// projectBalances replays chain from gen's genesis balances. It never
// mutates the ledger; it exists so TryReorg can validate a candidate
// fragment against a scratch projection before committing to it.
func projectBalances(gen genesis.Genesis, chain []Block) map[string]uint64 {
	balances := make(map[string]uint64, len(gen.Balances))
	for addr, bal := range gen.Balances {
		balances[addr] = bal
	}
	for _, block := range chain {
		applyBlockToBalances(balances, gen, block)
	}
	return balances
}

func applyBlockToBalances(balances map[string]uint64, gen genesis.Genesis, block Block) {
	if block.Header.Index == 0 {
		return
	}

	// The reward amount is fixed by the sealing engine (a flat base reward
	// for pow, an amount proportional to stake for pos) and carried on the
	// block itself; the ledger only credits it, it never computes it.
	balances[block.Header.Proposer] += block.Header.Reward

	for _, tx := range block.Transactions() {
		applyTransactionToBalances(balances, block, tx)
	}
}

func applyTransactionToBalances(balances map[string]uint64, block Block, tx transaction.Transaction) {
	switch tx.Variant {
	case transaction.VariantStandard, transaction.VariantMultiSig, transaction.VariantTimeLocked:
		balances[tx.Sender] -= tx.Amount + tx.Fee
		balances[tx.Recipient] += tx.Amount
		balances[block.Header.Proposer] += tx.Fee

	case transaction.VariantDataStorage:
		balances[tx.Sender] -= tx.Fee
		balances[block.Header.Proposer] += tx.Fee

	case transaction.VariantSmartContract:
		balances[tx.Sender] -= tx.Amount + tx.Fee
		balances[block.Header.Proposer] += tx.Fee
		balances[tx.Recipient] += tx.Amount

		prog, err := decodeProgram(tx.CodeRef)
		if err != nil {
			return
		}
		effects, err := transaction.Eval(prog, transaction.EvalContext{
			Sender:    tx.Sender,
			Timestamp: block.Header.Timestamp,
		})
		if err != nil {
			return
		}
		for _, effect := range effects {
			applyEffect(balances, effect)
		}
	}
}

// applyEffect folds a SmartContract's explicit balance delta into
// balances. A debit that would underflow a non-negative balance clamps to
// zero instead of wrapping, since the evaluator's arithmetic is not
// itself checked against ledger state.
func applyEffect(balances map[string]uint64, e transaction.Effect) {
	if e.Delta >= 0 {
		balances[e.Address] += uint64(e.Delta)
		return
	}

	debit := uint64(-e.Delta)
	if balances[e.Address] < debit {
		balances[e.Address] = 0
		return
	}
	balances[e.Address] -= debit
}

// checkNoDoubleSpend verifies the aggregate debit per sender within block
// does not exceed balances, the projected balance at the parent.
func checkNoDoubleSpend(balances map[string]uint64, block Block) error {
	debits := make(map[string]uint64)

	for _, tx := range block.Transactions() {
		var d uint64
		switch tx.Variant {
		case transaction.VariantStandard, transaction.VariantMultiSig, transaction.VariantTimeLocked, transaction.VariantSmartContract:
			d = tx.Amount + tx.Fee
		case transaction.VariantDataStorage:
			d = tx.Fee
		}
		debits[tx.Sender] += d
	}

	for sender, total := range debits {
		if total > balances[sender] {
			return fmt.Errorf("double-spend: %s debits %d exceeds balance %d", sender, total, balances[sender])
		}
	}

	return nil
}
