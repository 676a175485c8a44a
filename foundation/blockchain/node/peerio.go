package node

import (
	"errors"
	"fmt"
	"time"

	"github.com/meridianlabs/ledgerd/foundation/blockchain/ledger"
	"github.com/meridianlabs/ledgerd/foundation/blockchain/peer"
	"github.com/meridianlabs/ledgerd/foundation/blockchain/transaction"
	"github.com/meridianlabs/ledgerd/foundation/blockchain/wire"
)

// backtrackWindow is the initial number of blocks a chain reconciliation
// request steps back from the local head; it doubles on each retry up to
// maxBacktrackWindow before the peer's claim is given up on.
const (
	backtrackWindow    = 32
	maxBacktrackWindow = backtrackWindow * 8
	chainRequestTimeout = 5 * time.Second
)

// peerConn pairs a peer's channel with the in-flight chain response it may
// be waiting on, so the single reader goroutine per peer can hand a CHAIN
// reply back to whichever call is blocked on it.
type peerConn struct {
	conn         *wire.Conn
	pendingChain chan wire.Chain
}

// DialPeer opens an outbound connection, performs the HELLO handshake, and
// starts reading from it. It returns once the peer is registered.
func (n *Node) DialPeer(address string, port int) error {
	url := fmt.Sprintf("ws://%s:%d/v1/peer", address, port)
	conn, err := wire.Dial(url)
	if err != nil {
		return err
	}

	return n.handshakeOutbound(peer.New(address, port, "", ""), conn)
}

func (n *Node) handshakeOutbound(p peer.Peer, conn *wire.Conn) error {
	head := n.led.Head()
	env, err := wire.Encode(wire.TagHello, wire.Hello{
		NodeID:    n.cfg.NodeID,
		Version:   n.cfg.Version,
		HeadIndex: head.Header.Index,
		HeadHash:  head.Hash(),
	})
	if err != nil {
		return err
	}
	if err := conn.Send(env); err != nil {
		return err
	}

	reply, err := conn.Receive()
	if err != nil {
		return err
	}
	var ack wire.Hello
	if reply.Tag != wire.TagHelloAck {
		conn.Close()
		return fmt.Errorf("expected HELLO_ACK, got %s", reply.Tag)
	}
	if err := wire.Decode(reply, &ack); err != nil {
		conn.Close()
		return err
	}
	if ack.Version != n.cfg.Version {
		conn.Close()
		return fmt.Errorf("incompatible peer version %s", ack.Version)
	}

	p.NodeID = ack.NodeID
	p.Version = ack.Version
	n.registerPeer(p, conn)
	n.reconcileIfBehind(p.NodeID, ack.HeadIndex, ack.HeadHash)

	return nil
}

// AcceptPeer completes the inbound half of the handshake: read the HELLO,
// reply HELLO_ACK, register, and start reading.
func (n *Node) AcceptPeer(conn *wire.Conn, remoteAddress string) error {
	env, err := conn.Receive()
	if err != nil {
		conn.Close()
		return err
	}
	if env.Tag != wire.TagHello {
		conn.Close()
		return fmt.Errorf("expected HELLO, got %s", env.Tag)
	}
	var hello wire.Hello
	if err := wire.Decode(env, &hello); err != nil {
		conn.Close()
		return err
	}
	if hello.Version != n.cfg.Version {
		conn.Close()
		return fmt.Errorf("incompatible peer version %s", hello.Version)
	}

	head := n.led.Head()
	ack, err := wire.Encode(wire.TagHelloAck, wire.Hello{
		NodeID:    n.cfg.NodeID,
		Version:   n.cfg.Version,
		HeadIndex: head.Header.Index,
		HeadHash:  head.Hash(),
	})
	if err != nil {
		conn.Close()
		return err
	}
	if err := conn.Send(ack); err != nil {
		conn.Close()
		return err
	}

	p := peer.New(remoteAddress, 0, hello.NodeID, hello.Version)
	n.registerPeer(p, conn)
	n.reconcileIfBehind(p.NodeID, hello.HeadIndex, hello.HeadHash)

	return nil
}

func (n *Node) registerPeer(p peer.Peer, conn *wire.Conn) {
	n.peers.Add(p)
	n.peers.MarkReady(p.NodeID)

	pc := &peerConn{conn: conn, pendingChain: make(chan wire.Chain, 1)}
	n.connsMu.Lock()
	n.conns[p.NodeID] = pc
	n.connsMu.Unlock()

	n.wg.Add(1)
	go n.readLoop(p.NodeID, pc)
}

func (n *Node) readLoop(nodeID string, pc *peerConn) {
	defer n.wg.Done()
	defer n.dropPeer(nodeID)

	for {
		env, err := pc.conn.Receive()
		if err != nil {
			n.cfg.Ev("node: readLoop: %s: disconnected: %s", nodeID, err)
			return
		}

		if err := n.handleEnvelope(nodeID, pc, env); err != nil {
			n.cfg.Ev("node: readLoop: %s: parse failure: %s", nodeID, err)
			if n.peers.NoteParseFailure(nodeID, n.cfg.ParseFailureLimit) {
				return
			}
		}
	}
}

func (n *Node) dropPeer(nodeID string) {
	n.connsMu.Lock()
	if pc, exists := n.conns[nodeID]; exists {
		pc.conn.Close()
		delete(n.conns, nodeID)
	}
	n.connsMu.Unlock()
	n.peers.Remove(nodeID)
}

// RemovePeer closes the connection to nodeID, if any, and drops it from
// the registry. It is the Client API's remove_peer operation.
func (n *Node) RemovePeer(nodeID string) {
	n.dropPeer(nodeID)
}

func (n *Node) handleEnvelope(fromID string, pc *peerConn, env wire.Envelope) error {
	switch env.Tag {
	case wire.TagPing:
		var ping wire.Ping
		if err := wire.Decode(env, &ping); err != nil {
			return err
		}
		reply, err := wire.Encode(wire.TagPong, wire.Pong{Timestamp: ping.Timestamp})
		if err != nil {
			return err
		}
		return pc.conn.Send(reply)

	case wire.TagPong:
		n.peers.ObservePong(fromID)
		return nil

	case wire.TagGetPeers:
		known := n.peers.Copy(fromID)
		reply, err := wire.Encode(wire.TagPeers, wire.Peers{Peers: known})
		if err != nil {
			return err
		}
		return pc.conn.Send(reply)

	case wire.TagGetChain:
		var req wire.GetChain
		if err := wire.Decode(env, &req); err != nil {
			return err
		}
		return n.replyChain(pc, req)

	case wire.TagChain:
		var chain wire.Chain
		if err := wire.Decode(env, &chain); err != nil {
			return err
		}
		select {
		case pc.pendingChain <- chain:
		default:
		}
		return nil

	case wire.TagGetMempool:
		reply, err := wire.Encode(wire.TagMempool, wire.Mempool{Transactions: n.led.MempoolSnapshot()})
		if err != nil {
			return err
		}
		return pc.conn.Send(reply)

	case wire.TagMempool:
		var mp wire.Mempool
		if err := wire.Decode(env, &mp); err != nil {
			return err
		}
		for _, tx := range mp.Transactions {
			n.led.SubmitTransaction(tx)
		}
		return nil

	case wire.TagNewTx:
		var m wire.NewTx
		if err := wire.Decode(env, &m); err != nil {
			return err
		}
		if n.seenTx.Observe(m.Tx.ID) {
			return nil
		}
		if admission := n.led.SubmitTransaction(m.Tx); admission.Admitted {
			n.SignalStartMining()
			n.broadcastExcept(fromID, env)
		}
		return nil

	case wire.TagNewBlock:
		var m wire.NewBlock
		if err := wire.Decode(env, &m); err != nil {
			return err
		}
		return n.handleNewBlock(fromID, m.Block, env)

	default:
		return fmt.Errorf("unknown message tag %q", env.Tag)
	}
}

func (n *Node) replyChain(pc *peerConn, req wire.GetChain) error {
	head := n.led.Head()
	limit := req.Limit
	if limit <= 0 || limit > int(head.Header.Index)+1 {
		limit = int(head.Header.Index) - int(req.FromIndex) + 1
	}

	var records []ledger.Record
	for i := 0; i < limit; i++ {
		idx := req.FromIndex + uint64(i)
		block, err := n.led.BlockAt(idx)
		if err != nil {
			break
		}
		records = append(records, ledger.ToRecord(block))
	}

	reply, err := wire.Encode(wire.TagChain, wire.Chain{Blocks: records})
	if err != nil {
		return err
	}
	return pc.conn.Send(reply)
}

// handleNewBlock implements the chain reconciliation rule: a block that
// extends the local head is appended directly; a block further ahead with
// an unrecognized parent triggers a backtracking GET_CHAIN/try_reorg
// dance against its source.
func (n *Node) handleNewBlock(fromID string, rec ledger.Record, original wire.Envelope) error {
	if n.seenBlocks.Observe(rec.Hash) {
		return nil
	}

	block, err := ledger.FromRecord(rec)
	if err != nil {
		return err
	}

	head := n.led.Head()
	switch {
	case block.Header.PrevHash == head.Hash():
		outcome := n.led.AppendBlock(block)
		if outcome.Accepted {
			n.SignalCancelMining()
			n.broadcastExcept(fromID, original)
		}
		return nil

	case block.Header.Index > head.Header.Index:
		n.goReconcile(fromID)
		return nil

	default:
		return nil
	}
}

func (n *Node) reconcileIfBehind(fromID string, remoteHeadIndex uint64, remoteHeadHash string) {
	head := n.led.Head()
	if remoteHeadIndex > head.Header.Index {
		n.goReconcile(fromID)
	}
}

// goReconcile runs reconcileWith on its own goroutine so a readLoop never
// blocks itself waiting on its own pendingChain delivery. It is a no-op
// once shutdown has begun, since Shutdown closes connections and waits for
// the waitgroup without tracking newly spawned reconciliation attempts.
func (n *Node) goReconcile(fromID string) {
	if n.isShutdown() {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.reconcileWith(fromID); err != nil {
			n.cfg.Ev("node: reconcile with %s: %s", fromID, err)
		}
	}()
}

// reconcileWith walks backward from an increasing backtrack window until
// try_reorg succeeds or the configured bound is exceeded, at which point
// the peer's claim is dropped. It must never be called from the peer's own
// readLoop goroutine: it blocks on pendingChain, which only that same
// readLoop can fill by continuing its read, so callers run it in a
// separate goroutine.
func (n *Node) reconcileWith(fromID string) error {
	n.connsMu.RLock()
	pc, exists := n.conns[fromID]
	n.connsMu.RUnlock()
	if !exists {
		return errors.New("unknown peer")
	}

	head := n.led.Head()
	for window := uint64(backtrackWindow); window <= maxBacktrackWindow; window *= 2 {
		from := uint64(1)
		if head.Header.Index > window {
			from = head.Header.Index - window
		}

		req, err := wire.Encode(wire.TagGetChain, wire.GetChain{FromIndex: from, Limit: 0})
		if err != nil {
			return err
		}
		if err := pc.conn.Send(req); err != nil {
			return err
		}

		select {
		case chain := <-pc.pendingChain:
			blocks := make([]ledger.Block, 0, len(chain.Blocks))
			for _, rec := range chain.Blocks {
				b, err := ledger.FromRecord(rec)
				if err != nil {
					return err
				}
				blocks = append(blocks, b)
			}
			if outcome := n.led.TryReorg(blocks); outcome.Accepted {
				n.SignalCancelMining()
				return nil
			}
		case <-time.After(chainRequestTimeout):
			return errors.New("chain request timed out")
		}
	}

	n.cfg.Ev("node: reconcileWith: %s: giving up after max backtrack", fromID)
	return nil
}

func (n *Node) broadcastExcept(exceptID string, env wire.Envelope) {
	for _, p := range n.peers.Ready() {
		if p.NodeID == exceptID {
			continue
		}
		n.connsMu.RLock()
		pc, exists := n.conns[p.NodeID]
		n.connsMu.RUnlock()
		if exists {
			pc.conn.Send(env)
		}
	}
}

func (n *Node) broadcastNewBlock(block ledger.Block) {
	env, err := wire.Encode(wire.TagNewBlock, wire.NewBlock{Block: ledger.ToRecord(block)})
	if err != nil {
		return
	}
	n.broadcastExcept("", env)
}

func (n *Node) shareTxOperations() {
	n.cfg.Ev("node: shareTxOperations: started")
	defer n.cfg.Ev("node: shareTxOperations: completed")

	for {
		select {
		case tx := <-n.shareTx:
			n.broadcastNewTx(tx)
		case <-n.shut:
			return
		}
	}
}

func (n *Node) broadcastNewTx(tx transaction.Transaction) {
	if n.seenTx.Observe(tx.ID) {
		return
	}
	env, err := wire.Encode(wire.TagNewTx, wire.NewTx{Tx: tx})
	if err != nil {
		return
	}
	n.broadcastExcept("", env)
}
