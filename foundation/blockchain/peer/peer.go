// Package peer maintains the set of known peers and their liveness state.
package peer

import (
	"fmt"
	"sync"
	"time"
)

// LivenessState represents where a peer sits in the connect/ping/drop
// lifecycle.
type LivenessState string

// Set of known liveness states a peer can be in.
const (
	StateConnecting LivenessState = "connecting"
	StateReady      LivenessState = "ready"
	StateStale      LivenessState = "stale"
	StateDropped    LivenessState = "dropped"
)

// staleDropThreshold is the number of consecutive missed PONGs after which
// a peer is dropped from the registry.
const staleDropThreshold = 3

// Peer represents everything known about a Node in the network.
type Peer struct {
	Address  string    `json:"address"`
	Port     int       `json:"port"`
	NodeID   string    `json:"node_id"`
	Version  string    `json:"version"`
	LastSeen time.Time `json:"last_seen"`
}

// New constructs a new Peer value.
func New(address string, port int, nodeID string, version string) Peer {
	return Peer{
		Address: address,
		Port:    port,
		NodeID:  nodeID,
		Version: version,
	}
}

// Host formats the peer's dial address.
func (p Peer) Host() string {
	return fmt.Sprintf("%s:%d", p.Address, p.Port)
}

// Match validates if the specified node id matches this peer.
func (p Peer) Match(nodeID string) bool {
	return p.NodeID == nodeID
}

// =============================================================================

// Status is the payload exchanged in HELLO/HELLO_ACK: the head this peer
// currently claims, used to decide whether reconciliation is needed.
type Status struct {
	NodeID    string `json:"node_id"`
	Version   string `json:"version"`
	HeadIndex uint64 `json:"head_index"`
	HeadHash  string `json:"head_hash"`
}

// =============================================================================

// record is the mutable liveness tracking wrapped around a Peer.
type record struct {
	peer         Peer
	state        LivenessState
	missedPongs  int
	parseFailure int
}

// PeerSet represents the data representation to maintain a set of known
// peers and their liveness.
type PeerSet struct {
	mu  sync.RWMutex
	set map[string]*record
}

// NewPeerSet constructs a new set to manage node peer information.
func NewPeerSet() *PeerSet {
	return &PeerSet{
		set: make(map[string]*record),
	}
}

// Add registers a new peer in the connecting state. It returns false if the
// node id is already known.
func (ps *PeerSet) Add(p Peer) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if _, exists := ps.set[p.NodeID]; exists {
		return false
	}

	p.LastSeen = time.Now()
	ps.set[p.NodeID] = &record{
		peer:  p,
		state: StateConnecting,
	}
	return true
}

// Remove drops a peer from the set outright.
func (ps *PeerSet) Remove(nodeID string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	delete(ps.set, nodeID)
}

// MarkReady transitions a peer to ready after a completed handshake and
// resets its missed-pong counter.
func (ps *PeerSet) MarkReady(nodeID string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	r, exists := ps.set[nodeID]
	if !exists {
		return
	}
	r.state = StateReady
	r.missedPongs = 0
	r.peer.LastSeen = time.Now()
}

// ObservePong records a PONG from the peer, restoring it to ready.
func (ps *PeerSet) ObservePong(nodeID string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	r, exists := ps.set[nodeID]
	if !exists {
		return
	}
	r.state = StateReady
	r.missedPongs = 0
	r.peer.LastSeen = time.Now()
}

// AgeAndDrop is called by the liveness ticker once per PING interval for a
// peer that did not answer the previous PING with a PONG in time. A third
// consecutive miss drops the peer from the registry; the first two demote
// it to stale. Returns true if the peer was dropped.
func (ps *PeerSet) AgeAndDrop(nodeID string) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	r, exists := ps.set[nodeID]
	if !exists {
		return false
	}

	r.missedPongs++
	if r.missedPongs >= staleDropThreshold {
		delete(ps.set, nodeID)
		return true
	}
	r.state = StateStale
	return false
}

// NoteParseFailure records a malformed message from the peer. Repeated
// parse failures from the same peer drop it from the registry.
func (ps *PeerSet) NoteParseFailure(nodeID string, threshold int) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	r, exists := ps.set[nodeID]
	if !exists {
		return false
	}

	r.parseFailure++
	if r.parseFailure >= threshold {
		delete(ps.set, nodeID)
		return true
	}
	return false
}

// State returns the current liveness state of a peer.
func (ps *PeerSet) State(nodeID string) (LivenessState, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	r, exists := ps.set[nodeID]
	if !exists {
		return "", false
	}
	return r.state, true
}

// Copy returns a list of the known peers, excluding the one matching
// excludeNodeID (pass "" to include everyone).
func (ps *PeerSet) Copy(excludeNodeID string) []Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	var peers []Peer
	for _, r := range ps.set {
		if !r.peer.Match(excludeNodeID) {
			peers = append(peers, r.peer)
		}
	}
	return peers
}

// Ready returns the subset of known peers currently in the ready state,
// the set eligible to receive gossip.
func (ps *PeerSet) Ready() []Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	var peers []Peer
	for _, r := range ps.set {
		if r.state == StateReady {
			peers = append(peers, r.peer)
		}
	}
	return peers
}
