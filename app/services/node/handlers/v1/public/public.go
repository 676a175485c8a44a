// Package public maintains the group of handlers a wallet or any other
// client talks to: submitting transactions and reading chain state.
package public

import (
	"context"
	"net/http"
	"strconv"

	"github.com/meridianlabs/ledgerd/business/web/errs"
	"github.com/meridianlabs/ledgerd/foundation/blockchain/ledger"
	"github.com/meridianlabs/ledgerd/foundation/blockchain/node"
	"github.com/meridianlabs/ledgerd/foundation/blockchain/transaction"
	"github.com/meridianlabs/ledgerd/foundation/nameservice"
	"github.com/meridianlabs/ledgerd/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of client-facing endpoints.
type Handlers struct {
	Log  *zap.SugaredLogger
	Node *node.Node
	NS   *nameservice.NameService
}

// SubmitTransaction decodes a signed transaction, admits it to the
// mempool and, once admitted, wakes the miner and shares it with peers.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var tx transaction.Transaction
	if err := web.Decode(r, &tx); err != nil {
		return errs.New(errs.Validation, "unable to decode transaction: "+err.Error())
	}

	h.Log.Infow("submit transaction", "traceid", v.TraceID, "id", tx.ID, "sender", h.NS.Lookup(tx.Sender))

	admission := h.Node.Ledger().SubmitTransaction(tx)
	if !admission.Admitted {
		return errs.New(errs.Validation, admission.Reason)
	}

	h.Node.SignalShareTx(tx)
	h.Node.SignalStartMining()

	resp := struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}{
		ID:     tx.ID,
		Status: "admitted to mempool",
	}

	return web.Respond(ctx, w, resp, http.StatusAccepted)
}

// Head returns the current head block.
func (h Handlers) Head(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, toBlock(h.Node.Ledger().Head()), http.StatusOK)
}

// Block returns a single block looked up by index or by hash. A purely
// numeric id is treated as an index; anything else is treated as a hash.
func (h Handlers) Block(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	id := web.Param(r, "id")

	if index, err := strconv.ParseUint(id, 10, 64); err == nil {
		blk, err := h.Node.Ledger().BlockAt(index)
		if err != nil {
			return errs.NewNotFound(err.Error())
		}
		return web.Respond(ctx, w, toBlock(blk), http.StatusOK)
	}

	blk, err := h.Node.Ledger().BlockByHash(id)
	if err != nil {
		return errs.NewNotFound(err.Error())
	}
	return web.Respond(ctx, w, toBlock(blk), http.StatusOK)
}

// Balance returns the current balance for an address.
func (h Handlers) Balance(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	address := web.Param(r, "address")
	if address == "" {
		return errs.New(errs.Validation, "address is required")
	}

	resp := struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Balance uint64 `json:"balance"`
	}{
		Address: address,
		Name:    h.NS.Lookup(address),
		Balance: h.Node.Ledger().Balance(address),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.Node.Ledger().MempoolSnapshot(), http.StatusOK)
}

// toBlock flattens a ledger.Block into a wire-friendly shape; Block.Trans
// is a merkle tree and does not marshal usefully on its own.
func toBlock(blk ledger.Block) block {
	return block{
		Header:       blk.Header,
		Hash:         blk.Hash(),
		Transactions: blk.Transactions(),
	}
}
