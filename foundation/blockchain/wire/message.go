// Package wire defines the peer-to-peer message protocol: message tags and
// payloads, and the framed encoding used to exchange them over a
// bidirectional channel.
package wire

import (
	"encoding/json"

	"github.com/meridianlabs/ledgerd/foundation/blockchain/ledger"
	"github.com/meridianlabs/ledgerd/foundation/blockchain/peer"
	"github.com/meridianlabs/ledgerd/foundation/blockchain/transaction"
)

// Tag identifies a message's payload shape and intent.
type Tag string

// The full set of message tags this protocol exchanges.
const (
	TagHello      Tag = "HELLO"
	TagHelloAck   Tag = "HELLO_ACK"
	TagPing       Tag = "PING"
	TagPong       Tag = "PONG"
	TagGetPeers   Tag = "GET_PEERS"
	TagPeers      Tag = "PEERS"
	TagGetChain   Tag = "GET_CHAIN"
	TagChain      Tag = "CHAIN"
	TagNewTx      Tag = "NEW_TX"
	TagNewBlock   Tag = "NEW_BLOCK"
	TagGetMempool Tag = "GET_MEMPOOL"
	TagMempool    Tag = "MEMPOOL"
)

// Envelope is the self-delimiting record every message on the wire is
// encoded as: one JSON object per logical message, carried inside exactly
// one transport frame (see Conn), so no length prefix has to be layered on
// top of it.
type Envelope struct {
	Tag     Tag             `json:"tag"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Hello is the HELLO/HELLO_ACK payload: enough for the receiving side to
// decide whether reconciliation is needed and whether the peer's version
// is compatible.
type Hello struct {
	NodeID    string `json:"node_id"`
	Version   string `json:"version"`
	HeadIndex uint64 `json:"head_index"`
	HeadHash  string `json:"head_hash"`
}

// Ping/Pong carry only a timestamp, echoed back to measure liveness.
type Ping struct {
	Timestamp int64 `json:"timestamp"`
}

// Pong has the same shape as Ping, kept as its own type for tag clarity.
type Pong struct {
	Timestamp int64 `json:"timestamp"`
}

// Peers is the PEERS response to GET_PEERS.
type Peers struct {
	Peers []peer.Peer `json:"peers"`
}

// GetChain requests a range of blocks starting at FromIndex, at most Limit
// of them.
type GetChain struct {
	FromIndex uint64 `json:"from_index"`
	Limit     int    `json:"limit"`
}

// Chain is the CHAIN response: a contiguous run of blocks in index order,
// encoded the same way the persisted log encodes them.
type Chain struct {
	Blocks []ledger.Record `json:"blocks"`
}

// NewTx gossips a single transaction.
type NewTx struct {
	Tx transaction.Transaction `json:"tx"`
}

// NewBlock gossips a single freshly-accepted block.
type NewBlock struct {
	Block ledger.Record `json:"block"`
}

// Mempool is the MEMPOOL response to GET_MEMPOOL, used to bootstrap a
// freshly-connected peer.
type Mempool struct {
	Transactions []transaction.Transaction `json:"transactions"`
}

// Encode packs a tag and payload into an Envelope ready to hand to a Conn.
func Encode(tag Tag, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Tag: tag}, nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Tag: tag, Payload: raw}, nil
}

// Decode unmarshals an Envelope's payload into out.
func Decode(env Envelope, out any) error {
	return json.Unmarshal(env.Payload, out)
}
