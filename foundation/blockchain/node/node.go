// Package node runs the concurrent tasks that make up one running instance:
// the miner, peer I/O and dispatch, and the liveness ticker. The API
// servicer that fronts client requests lives one layer up, in the service
// that wires a Node to an HTTP surface; this package owns everything the
// spec calls the node's internal scheduling.
package node

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/meridianlabs/ledgerd/foundation/blockchain/consensus"
	"github.com/meridianlabs/ledgerd/foundation/blockchain/ledger"
	"github.com/meridianlabs/ledgerd/foundation/blockchain/peer"
	"github.com/meridianlabs/ledgerd/foundation/blockchain/transaction"
	"github.com/meridianlabs/ledgerd/foundation/blockchain/wire"
)

// gossipHorizon bounds how many transaction ids and block hashes are
// remembered purely to avoid re-forwarding a duplicate gossip receipt.
const gossipHorizon = 4096

// maxShareRequests bounds the transaction-sharing queue; once full,
// further shares are dropped rather than blocking the submitter.
const maxShareRequests = 256

// EvHandler receives progress narration, mirroring the event-log style
// used throughout this codebase.
type EvHandler func(format string, args ...any)

// Config carries everything a Node needs beyond the Ledger and Engine it
// is built around.
type Config struct {
	NodeID            string
	Version           string
	PingInterval      time.Duration
	ParseFailureLimit int
	MiningEnabled     bool
	Ev                EvHandler
}

// Node owns the concurrent tasks operating against one Ledger: mining,
// peer I/O, peer dispatch, and liveness. Client-facing API handling is not
// part of Node; it calls into the same Ledger from the outside.
type Node struct {
	cfg    Config
	led    *ledger.Ledger
	engine consensus.Engine
	peers  *peer.PeerSet

	connsMu sync.RWMutex
	conns   map[string]*peerConn

	seenTx     *wire.SeenSet
	seenBlocks *wire.SeenSet

	miningEnabled atomic.Bool

	wg           sync.WaitGroup
	shut         chan struct{}
	startMining  chan struct{}
	cancelMining chan struct{}
	shareTx      chan transaction.Transaction
}

// New constructs a Node. It does not start any background tasks; call Run
// for that.
func New(cfg Config, led *ledger.Ledger, engine consensus.Engine) *Node {
	if cfg.PingInterval == 0 {
		cfg.PingInterval = 15 * time.Second
	}
	if cfg.ParseFailureLimit == 0 {
		cfg.ParseFailureLimit = 5
	}
	if cfg.Ev == nil {
		cfg.Ev = func(string, ...any) {}
	}

	n := &Node{
		cfg:          cfg,
		led:          led,
		engine:       engine,
		peers:        peer.NewPeerSet(),
		conns:        make(map[string]*peerConn),
		seenTx:       wire.NewSeenSet(gossipHorizon),
		seenBlocks:   wire.NewSeenSet(gossipHorizon),
		shut:         make(chan struct{}),
		startMining:  make(chan struct{}, 1),
		cancelMining: make(chan struct{}, 1),
		shareTx:      make(chan transaction.Transaction, maxShareRequests),
	}
	n.miningEnabled.Store(cfg.MiningEnabled)
	return n
}

// Run starts the miner, liveness ticker and transaction-sharing tasks and
// blocks until they have all reported running. Peer I/O tasks are started
// individually as connections are accepted or dialed, via AddPeer.
func (n *Node) Run() {
	operations := []func(){
		n.miningOperations,
		n.livenessOperations,
		n.shareTxOperations,
	}

	started := make(chan struct{})
	n.wg.Add(len(operations))
	for _, op := range operations {
		go func(op func()) {
			defer n.wg.Done()
			started <- struct{}{}
			op()
		}(op)
	}
	for range operations {
		<-started
	}
}

// Shutdown stops every background task and waits for them to exit. Peer
// connections are closed before the wait: each readLoop is blocked in
// Conn.Receive with no context to cancel, so closing the socket is what
// unblocks it and lets its goroutine reach the waitgroup.
func (n *Node) Shutdown() {
	n.cfg.Ev("node: shutdown: started")
	defer n.cfg.Ev("node: shutdown: completed")

	n.SignalCancelMining()
	close(n.shut)

	n.connsMu.Lock()
	for _, pc := range n.conns {
		pc.conn.Close()
	}
	n.connsMu.Unlock()

	n.wg.Wait()
}

func (n *Node) isShutdown() bool {
	select {
	case <-n.shut:
		return true
	default:
		return false
	}
}

// SignalStartMining requests a mining attempt. If one is already queued,
// this is a no-op.
func (n *Node) SignalStartMining() {
	select {
	case n.startMining <- struct{}{}:
	default:
	}
}

// SignalCancelMining aborts an in-progress sealing attempt, used when a
// peer block advances the chain past the one currently being sealed.
func (n *Node) SignalCancelMining() {
	select {
	case n.cancelMining <- struct{}{}:
	default:
	}
}

// SignalShareTx queues tx for gossip to connected peers. If the queue is
// full the share is dropped; the transaction is still in the mempool and
// will be picked up by peers that later request GET_MEMPOOL.
func (n *Node) SignalShareTx(tx transaction.Transaction) {
	select {
	case n.shareTx <- tx:
	default:
		n.cfg.Ev("node: SignalShareTx: queue full, dropping share for %s", tx.ID)
	}
}

// Ledger exposes the underlying Ledger for the API layer to call into.
func (n *Node) Ledger() *ledger.Ledger {
	return n.led
}

// Peers exposes the peer registry for the API layer's GET_PEERS handling.
func (n *Node) Peers() *peer.PeerSet {
	return n.peers
}

// NodeID returns this node's identity, as presented in HELLO.
func (n *Node) NodeID() string {
	return n.cfg.NodeID
}

// EnableMining turns on the miner and immediately requests an attempt if
// the mempool already has work.
func (n *Node) EnableMining() {
	n.miningEnabled.Store(true)
	n.SignalStartMining()
}

// DisableMining turns off the miner. An attempt already in flight runs to
// completion; no new attempt is started after it.
func (n *Node) DisableMining() {
	n.miningEnabled.Store(false)
}

// MiningEnabled reports whether the miner is currently turned on.
func (n *Node) MiningEnabled() bool {
	return n.miningEnabled.Load()
}
