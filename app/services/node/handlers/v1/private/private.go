// Package private maintains the group of handlers for node-to-node and
// administrative access: peer wiring, mining control and status.
package private

import (
	"context"
	"net/http"
	"strings"

	"github.com/meridianlabs/ledgerd/business/web/errs"
	"github.com/meridianlabs/ledgerd/foundation/blockchain/node"
	"github.com/meridianlabs/ledgerd/foundation/blockchain/wire"
	"github.com/meridianlabs/ledgerd/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of node administration endpoints.
type Handlers struct {
	Log  *zap.SugaredLogger
	Node *node.Node
}

// Status reports the node's identity and where it currently sits.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	head := h.Node.Ledger().Head()

	status := struct {
		NodeID        string `json:"node_id"`
		HeadIndex     uint64 `json:"head_index"`
		HeadHash      string `json:"head_hash"`
		MempoolSize   int    `json:"mempool_size"`
		PeerCount     int    `json:"peer_count"`
		MiningEnabled bool   `json:"mining_enabled"`
		ConsensusMode string `json:"consensus_mode"`
	}{
		NodeID:        h.Node.NodeID(),
		HeadIndex:     head.Header.Index,
		HeadHash:      head.Hash(),
		MempoolSize:   h.Node.Ledger().MempoolCount(),
		PeerCount:     len(h.Node.Peers().Copy("")),
		MiningEnabled: h.Node.MiningEnabled(),
		ConsensusMode: h.Node.Ledger().Genesis().ConsensusMode,
	}

	return web.Respond(ctx, w, status, http.StatusOK)
}

// Peers returns the set of known peers.
func (h Handlers) Peers(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.Node.Peers().Copy(""), http.StatusOK)
}

// addPeerRequest is the body accepted by AddPeer.
type addPeerRequest struct {
	Address string `json:"address" validate:"required"`
	Port    int    `json:"port" validate:"required"`
}

// AddPeer dials a peer's websocket endpoint and, on a successful
// handshake, admits it to the peer registry.
func (h Handlers) AddPeer(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req addPeerRequest
	if err := web.Decode(r, &req); err != nil {
		return errs.New(errs.Validation, "unable to decode peer: "+err.Error())
	}

	if err := h.Node.DialPeer(req.Address, req.Port); err != nil {
		return errs.New(errs.Transport, err.Error())
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "connected",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// RemovePeer closes the connection to a peer and drops it from the
// registry.
func (h Handlers) RemovePeer(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	nodeID := web.Param(r, "node_id")
	if nodeID == "" {
		return errs.New(errs.Validation, "node_id is required")
	}

	h.Node.RemovePeer(nodeID)

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "removed",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// StartMining turns the miner on.
func (h Handlers) StartMining(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	h.Node.EnableMining()
	return web.Respond(ctx, w, miningStatus(h.Node), http.StatusOK)
}

// StopMining turns the miner off. An attempt already in flight runs to
// completion.
func (h Handlers) StopMining(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	h.Node.DisableMining()
	return web.Respond(ctx, w, miningStatus(h.Node), http.StatusOK)
}

func miningStatus(n *node.Node) any {
	return struct {
		MiningEnabled bool `json:"mining_enabled"`
	}{
		MiningEnabled: n.MiningEnabled(),
	}
}

// Handshake upgrades an incoming peer connection to the wire protocol and
// hands it to the node for handshaking and dispatch.
func (h Handlers) Handshake(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	remoteAddress := r.RemoteAddr
	if i := strings.LastIndex(remoteAddress, ":"); i != -1 {
		remoteAddress = remoteAddress[:i]
	}

	conn, err := wire.Accept(w, r)
	if err != nil {
		return errs.New(errs.Transport, "upgrade failed: "+err.Error())
	}

	if err := h.Node.AcceptPeer(conn, remoteAddress); err != nil {
		h.Log.Infow("peer handshake: rejected", "remote", remoteAddress, "ERROR", err)
	}

	return nil
}
