package ledger_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/meridianlabs/ledgerd/foundation/blockchain/ledger"
	"github.com/meridianlabs/ledgerd/foundation/blockchain/transaction"
)

func Test_DiskSerializerRoundTrip(t *testing.T) {
	t.Log("Given a ledger persisted to a disk-backed log.")
	{
		dir := t.TempDir()
		path := filepath.Join(dir, "chain.ndjson")

		ser, err := ledger.NewDiskSerializer(path)
		if err != nil {
			t.Fatalf("\t%s\tShould open the log file: %v", failed, err)
		}

		gen := newTestGenesis()
		led, err := ledger.New(gen, ser, 0)
		if err != nil {
			t.Fatalf("\t%s\tShould construct a ledger: %v", failed, err)
		}

		tx, _ := transaction.NewStandard("alice", "bob", 10, 1)
		led.SubmitTransaction(tx)
		block, err := led.AssembleBlock("proposer")
		if err != nil {
			t.Fatalf("\t%s\tShould assemble a block: %v", failed, err)
		}
		if outcome := led.AppendBlock(block); !outcome.Accepted {
			t.Fatalf("\t%s\tShould accept the block: %s", failed, outcome.Reason)
		}
		ser.Close()
		t.Logf("\t%s\tShould persist an appended block without error.", success)

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("\t%s\tShould have written the log file: %v", failed, err)
		}

		ser2, err := ledger.NewDiskSerializer(path)
		if err != nil {
			t.Fatalf("\t%s\tShould reopen the log file: %v", failed, err)
		}
		defer ser2.Close()

		replayed, err := ledger.New(gen, ser2, 0)
		if err != nil {
			t.Fatalf("\t%s\tShould replay the log on construction: %v", failed, err)
		}
		t.Logf("\t%s\tShould replay a persisted log on restart.", success)

		if replayed.Head().Header.Index != 1 {
			t.Fatalf("\t%s\tShould have rebuilt the chain up to index 1, got %d.", failed, replayed.Head().Header.Index)
		}
		if got := replayed.Balance("bob"); got != 10 {
			t.Fatalf("\t%s\tShould have rebuilt the balance projection, got bob=%d, want 10.", failed, got)
		}
		t.Logf("\t%s\tShould rebuild the balance projection by replay.", success)
	}
}

func Test_MemorySerializerReset(t *testing.T) {
	t.Log("Given an in-memory serializer with one appended record.")
	{
		ser := ledger.NewMemorySerializer()
		if err := ser.Append(ledger.Record{Header: ledger.BlockHeader{Index: 1}}); err != nil {
			t.Fatalf("\t%s\tShould append a record: %v", failed, err)
		}

		if err := ser.Reset(); err != nil {
			t.Fatalf("\t%s\tShould reset without error: %v", failed, err)
		}

		iter, err := ser.ForEach()
		if err != nil {
			t.Fatalf("\t%s\tShould construct an iterator: %v", failed, err)
		}
		if !iter.Done() {
			t.Fatalf("\t%s\tShould have no records after reset.", failed)
		}
		t.Logf("\t%s\tShould clear the log on reset.", success)
	}
}
