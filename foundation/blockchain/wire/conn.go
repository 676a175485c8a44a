package wire

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Upgrader is shared by every peer server accepting inbound connections.
// CheckOrigin is permissive because peers are other nodes, not browsers
// subject to same-origin policy.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Conn is one peer channel. Each websocket message carries exactly one
// Envelope, so message framing is inherited from the transport and no
// additional length prefix is needed on top of it.
type Conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

// NewConn wraps an already-established websocket connection.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// Dial opens a new outbound peer connection.
func Dial(url string) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return &Conn{ws: ws}, nil
}

// Accept upgrades an inbound HTTP request to a peer connection.
func Accept(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &Conn{ws: ws}, nil
}

// Send writes one Envelope as a single binary websocket message. Writes are
// serialized: the underlying websocket connection does not support
// concurrent writers, and a node's peer I/O, liveness ticker and gossip
// broadcasts can all target the same Conn at once.
func (c *Conn) Send(env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

// Receive blocks for the next Envelope. A malformed message returns an
// error without closing the connection; the caller decides whether
// repeated failures warrant dropping the peer.
func (c *Conn) Receive() (Envelope, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return Envelope{}, err
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.ws.Close()
}
