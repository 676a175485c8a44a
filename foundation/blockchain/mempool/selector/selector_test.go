package selector_test

import (
	"testing"
	"time"

	"github.com/meridianlabs/ledgerd/foundation/blockchain/mempool/selector"
	"github.com/meridianlabs/ledgerd/foundation/blockchain/transaction"
)

const (
	success = "✓"
	failed  = "✗"
)

func entry(amount, fee uint64, admittedAt time.Time) selector.Entry {
	tx, _ := transaction.NewStandard(transaction.SystemSender, "bob", amount, fee)
	return selector.Entry{Tx: tx, AdmittedAt: admittedAt}
}

func Test_FeeSelectOrdering(t *testing.T) {
	t.Log("Given a set of entries with mixed fees and admission times.")
	{
		now := time.Now()
		entries := []selector.Entry{
			entry(50, 5, now.Add(1*time.Second)),
			entry(20, 10, now.Add(2*time.Second)), // higher fee, later admission
			entry(10, 10, now),                     // higher fee, earlier admission
			entry(30, 1, now),
		}

		fn, err := selector.Retrieve(selector.StrategyFee)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to retrieve the fee strategy: %v", failed, err)
		}

		got := fn(entries, -1)
		if len(got) != 4 {
			t.Fatalf("\t%s\tShould return every entry when howMany is -1, got %d.", failed, len(got))
		}
		t.Logf("\t%s\tShould return every entry when howMany is -1.", success)

		if got[0].Fee != 10 || got[1].Fee != 10 {
			t.Fatalf("\t%s\tShould place both fee-10 entries first, got fees %d,%d", failed, got[0].Fee, got[1].Fee)
		}
		t.Logf("\t%s\tShould order the highest fee first.", success)

		if got[0].Amount != 10 {
			t.Fatalf("\t%s\tShould break a fee tie by ascending admission order, got amount %d first.", failed, got[0].Amount)
		}
		t.Logf("\t%s\tShould break a fee tie by ascending admission order.", success)

		if got[3].Fee != 1 {
			t.Fatalf("\t%s\tShould place the lowest fee last, got %d.", failed, got[3].Fee)
		}
		t.Logf("\t%s\tShould place the lowest fee last.", success)
	}
}

func Test_FeeSelectTruncates(t *testing.T) {
	t.Log("Given more entries than requested.")
	{
		now := time.Now()
		entries := []selector.Entry{entry(1, 1, now), entry(2, 2, now), entry(3, 3, now)}

		fn, _ := selector.Retrieve(selector.StrategyFee)
		got := fn(entries, 2)

		if len(got) != 2 {
			t.Fatalf("\t%s\tShould truncate to the requested count, got %d.", failed, len(got))
		}
		t.Logf("\t%s\tShould truncate to the requested count.", success)
	}
}
