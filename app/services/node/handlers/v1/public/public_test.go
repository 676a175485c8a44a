package public_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	v1 "github.com/meridianlabs/ledgerd/app/services/node/handlers/v1"
	"github.com/meridianlabs/ledgerd/business/web/mid"
	"github.com/meridianlabs/ledgerd/foundation/blockchain/genesis"
	"github.com/meridianlabs/ledgerd/foundation/blockchain/ledger"
	"github.com/meridianlabs/ledgerd/foundation/blockchain/node"
	"github.com/meridianlabs/ledgerd/foundation/blockchain/transaction"
	"github.com/meridianlabs/ledgerd/foundation/nameservice"
	"github.com/meridianlabs/ledgerd/foundation/web"
	"go.uber.org/zap"
)

const (
	success = "✓"
	failed  = "✗"
)

// Signature verification is switched off for this package's tests: they
// use plain names such as "alice" as addresses, which no key can sign for.
func init() {
	transaction.SignatureVerificationEnabled = false
}

type stubEngine struct{}

func (stubEngine) Seal(ctx context.Context, block ledger.Block) (ledger.Block, error) {
	block.Header.ConsensusTag = "pow"
	block.Header.Reward = 5
	return block, nil
}

func (stubEngine) Verify(header ledger.BlockHeader) error { return nil }

func newTestApp(t *testing.T) (*web.App, *node.Node) {
	t.Helper()

	gen := genesis.Genesis{
		ChainID:       1,
		TransPerBlock: 10,
		MiningReward:  5,
		Balances: map[string]uint64{
			"alice": 100,
		},
	}

	led, err := ledger.New(gen, ledger.NewMemorySerializer(), 0)
	if err != nil {
		t.Fatalf("should construct a ledger: %v", err)
	}
	engine := stubEngine{}
	led.SetVerifier(engine)

	n := node.New(node.Config{NodeID: "node-1", Version: "v1"}, led, engine)

	log := zap.NewNop().Sugar()
	ns, err := nameservice.New(t.TempDir())
	if err != nil {
		t.Fatalf("should construct a nameservice: %v", err)
	}

	app := web.NewApp(make(chan os.Signal, 1), mid.Errors(log))
	v1.PublicRoutes(app, v1.Config{Log: log, Node: n, NS: ns})

	return app, n
}

func Test_SubmitTransactionAdmitsToMempool(t *testing.T) {
	t.Log("Given a node with a funded sender.")
	{
		app, n := newTestApp(t)

		tx, err := transaction.NewStandard("alice", "bob", 10, 1)
		if err != nil {
			t.Fatalf("should build a transaction: %v", err)
		}
		body, _ := json.Marshal(tx)

		req := httptest.NewRequest(http.MethodPost, "/v1/tx/submit", bytes.NewReader(body))
		w := httptest.NewRecorder()
		app.ServeHTTP(w, req)

		if w.Code != http.StatusAccepted {
			t.Fatalf("\t%s\tShould accept a well-formed transaction, got %d: %s.", failed, w.Code, w.Body.String())
		}
		t.Logf("\t%s\tShould respond 202 for an admitted transaction.", success)

		if n.Ledger().MempoolCount() != 1 {
			t.Fatalf("\t%s\tShould admit the transaction to the mempool.", failed)
		}
		t.Logf("\t%s\tShould leave the transaction sitting in the mempool.", success)
	}
}

func Test_SubmitTransactionRejectsBadJSON(t *testing.T) {
	t.Log("Given a request body that isn't valid transaction JSON.")
	{
		app, _ := newTestApp(t)

		req := httptest.NewRequest(http.MethodPost, "/v1/tx/submit", bytes.NewReader([]byte("{not json")))
		w := httptest.NewRecorder()
		app.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("\t%s\tShould respond 400 for an undecodable body, got %d.", failed, w.Code)
		}
		t.Logf("\t%s\tShould reject an undecodable body.", success)
	}
}

func Test_BalanceReturnsZeroForUnknownAddress(t *testing.T) {
	t.Log("Given a node with no history for an address.")
	{
		app, _ := newTestApp(t)

		req := httptest.NewRequest(http.MethodGet, "/v1/balance/carol", nil)
		w := httptest.NewRecorder()
		app.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("\t%s\tShould respond 200 even for a never-seen address, got %d.", failed, w.Code)
		}

		var resp struct {
			Balance uint64 `json:"balance"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("\t%s\tShould decode the response: %v", failed, err)
		}
		if resp.Balance != 0 {
			t.Fatalf("\t%s\tShould report a zero balance, got %d.", failed, resp.Balance)
		}
		t.Logf("\t%s\tShould report a zero balance for an unknown address.", success)
	}
}

func Test_BlockHeadReturnsGenesis(t *testing.T) {
	t.Log("Given a freshly constructed node.")
	{
		app, _ := newTestApp(t)

		req := httptest.NewRequest(http.MethodGet, "/v1/block/head", nil)
		w := httptest.NewRecorder()
		app.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("\t%s\tShould respond 200, got %d.", failed, w.Code)
		}
		t.Logf("\t%s\tShould return the genesis block as head.", success)
	}
}

func Test_BlockByUnknownHashNotFound(t *testing.T) {
	t.Log("Given a hash that matches no block.")
	{
		app, _ := newTestApp(t)

		req := httptest.NewRequest(http.MethodGet, "/v1/block/0xdeadbeef", nil)
		w := httptest.NewRecorder()
		app.ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Fatalf("\t%s\tShould respond 404, got %d.", failed, w.Code)
		}
		t.Logf("\t%s\tShould respond 404 for a hash matching no block.", success)
	}
}
