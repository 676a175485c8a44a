package node

import (
	"time"

	"github.com/meridianlabs/ledgerd/foundation/blockchain/peer"
	"github.com/meridianlabs/ledgerd/foundation/blockchain/wire"
)

// livenessOperations pings every ready or stale peer once per PingInterval
// and ages out any peer that has not been seen since the PING sent on the
// previous tick. A peer
// answering late simply resets to ready on the next ObservePong; only three
// consecutive misses (tracked inside PeerSet itself) actually drops it.
func (n *Node) livenessOperations() {
	n.cfg.Ev("node: livenessOperations: started")
	defer n.cfg.Ev("node: livenessOperations: completed")

	ticker := time.NewTicker(n.cfg.PingInterval)
	defer ticker.Stop()

	awaiting := make(map[string]time.Time)

	for {
		select {
		case <-ticker.C:
			n.runLivenessTick(awaiting)
		case <-n.shut:
			return
		}
	}
}

func (n *Node) runLivenessTick(awaiting map[string]time.Time) {
	known := n.peers.Copy("")

	seen := make(map[string]bool, len(known))
	for _, p := range known {
		if state, _ := n.peers.State(p.NodeID); state == peer.StateConnecting {
			continue
		}
		seen[p.NodeID] = true

		if sentAt, owed := awaiting[p.NodeID]; owed && p.LastSeen.Before(sentAt) {
			if n.peers.AgeAndDrop(p.NodeID) {
				n.cfg.Ev("node: livenessOperations: %s: dropped after missed pongs", p.NodeID)
				n.disconnect(p.NodeID)
				delete(awaiting, p.NodeID)
				continue
			}
		}

		sentAt := time.Now()
		if n.sendPing(p.NodeID) {
			awaiting[p.NodeID] = sentAt
		}
	}

	for nodeID := range awaiting {
		if !seen[nodeID] {
			delete(awaiting, nodeID)
		}
	}
}

func (n *Node) sendPing(nodeID string) bool {
	n.connsMu.RLock()
	pc, exists := n.conns[nodeID]
	n.connsMu.RUnlock()
	if !exists {
		return false
	}

	env, err := wire.Encode(wire.TagPing, wire.Ping{Timestamp: time.Now().Unix()})
	if err != nil {
		return false
	}
	if err := pc.conn.Send(env); err != nil {
		n.cfg.Ev("node: livenessOperations: %s: ping failed: %s", nodeID, err)
		return false
	}
	return true
}

func (n *Node) disconnect(nodeID string) {
	n.connsMu.Lock()
	pc, exists := n.conns[nodeID]
	if exists {
		delete(n.conns, nodeID)
	}
	n.connsMu.Unlock()
	if exists {
		pc.conn.Close()
	}
}
