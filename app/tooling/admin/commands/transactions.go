package commands

import (
	"fmt"

	"github.com/meridianlabs/ledgerd/foundation/blockchain/ledger"
)

// Transactions prints the transactions in every block, or just those
// touching a single address when one is given.
func Transactions(args []string, led *ledger.Ledger) error {
	var onlyAddress string
	if len(args) == 3 {
		onlyAddress = args[2]
	}

	head := led.Head()
	for index := uint64(0); index <= head.Header.Index; index++ {
		blk, err := led.BlockAt(index)
		if err != nil {
			return err
		}

		for _, tx := range blk.Transactions() {
			if onlyAddress != "" && tx.Sender != onlyAddress && tx.Recipient != onlyAddress {
				continue
			}
			fmt.Printf("Block: %d  ID: %s  From: %s  To: %s  Amount: %d  Fee: %d\n",
				blk.Header.Index, tx.ID, tx.Sender, tx.Recipient, tx.Amount, tx.Fee)
		}
	}

	return nil
}
