// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/meridianlabs/ledgerd/app/services/node/handlers/v1/private"
	"github.com/meridianlabs/ledgerd/app/services/node/handlers/v1/public"
	"github.com/meridianlabs/ledgerd/foundation/blockchain/node"
	"github.com/meridianlabs/ledgerd/foundation/nameservice"
	"github.com/meridianlabs/ledgerd/foundation/web"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log  *zap.SugaredLogger
	Node *node.Node
	NS   *nameservice.NameService
}

// PublicRoutes binds all the version 1 client-facing routes.
func PublicRoutes(app *web.App, cfg Config) {
	pbl := public.Handlers{
		Log:  cfg.Log,
		Node: cfg.Node,
		NS:   cfg.NS,
	}

	app.Handle(http.MethodPost, version, "/tx/submit", pbl.SubmitTransaction)
	app.Handle(http.MethodGet, version, "/tx/uncommitted/list", pbl.Mempool)
	app.Handle(http.MethodGet, version, "/block/head", pbl.Head)
	app.Handle(http.MethodGet, version, "/block/:id", pbl.Block)
	app.Handle(http.MethodGet, version, "/balance/:address", pbl.Balance)
}

// PrivateRoutes binds all the version 1 node-to-node and administrative
// routes.
func PrivateRoutes(app *web.App, cfg Config) {
	prv := private.Handlers{
		Log:  cfg.Log,
		Node: cfg.Node,
	}

	app.Handle(http.MethodGet, version, "/node/status", prv.Status)
	app.Handle(http.MethodGet, version, "/node/peers", prv.Peers)
	app.Handle(http.MethodPost, version, "/node/peers", prv.AddPeer)
	app.Handle(http.MethodDelete, version, "/node/peers/:node_id", prv.RemovePeer)
	app.Handle(http.MethodPost, version, "/node/mining/start", prv.StartMining)
	app.Handle(http.MethodPost, version, "/node/mining/stop", prv.StopMining)
	app.Handle(http.MethodGet, version, "/node/handshake", prv.Handshake)
}
