// This program performs administrative tasks against a node's persisted
// ledger log: replaying it and reporting balances or transaction history
// without needing the node itself running.
package main

import (
	"fmt"
	"os"

	"github.com/meridianlabs/ledgerd/app/tooling/admin/commands"
	"github.com/meridianlabs/ledgerd/foundation/blockchain/genesis"
	"github.com/meridianlabs/ledgerd/foundation/blockchain/ledger"
	"github.com/meridianlabs/ledgerd/foundation/logger"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags (-ldflags).
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("ADMIN")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {
	if len(os.Args) < 2 {
		return fmt.Errorf("usage: admin [bals|trans] ...")
	}

	gen, err := genesis.Load("zblock/genesis.json")
	if err != nil {
		return fmt.Errorf("loading genesis: %w", err)
	}

	serializer, err := ledger.NewDiskSerializer("zblock/blocks.db")
	if err != nil {
		return fmt.Errorf("opening ledger log: %w", err)
	}

	led, err := ledger.New(gen, serializer, 0)
	if err != nil {
		return fmt.Errorf("replaying ledger: %w", err)
	}

	return processCommands(os.Args, led)
}

// processCommands handles the execution of the commands specified on
// the command line.
func processCommands(args []string, led *ledger.Ledger) error {
	switch args[1] {
	case "bals":
		if err := commands.Balances(args, led); err != nil {
			return fmt.Errorf("getting balances: %w", err)
		}
	case "trans":
		if err := commands.Transactions(args, led); err != nil {
			return fmt.Errorf("getting transactions: %w", err)
		}
	default:
		return fmt.Errorf("unknown command %q", args[1])
	}

	return nil
}
