package commands

import (
	"fmt"

	"github.com/meridianlabs/ledgerd/foundation/blockchain/ledger"
)

// Balances prints the balance for a single address, or every known
// balance when no address is given.
func Balances(args []string, led *ledger.Ledger) error {
	var onlyAddress string
	if len(args) == 3 {
		onlyAddress = args[2]
	}

	head := led.Head()
	fmt.Printf("HeadIndex: %d  HeadHash: %s\n\n", head.Header.Index, head.Hash())

	if onlyAddress != "" {
		fmt.Printf("Address: %s  Balance: %d\n", onlyAddress, led.Balance(onlyAddress))
		return nil
	}

	for address, balance := range led.Balances() {
		fmt.Printf("Address: %s  Balance: %d\n", address, balance)
	}

	return nil
}
