package node

import (
	"context"
	"sync"
	"time"
)

// idleMiningInterval bounds how long the miner waits between checking the
// mempool on its own, on top of being signalled directly by SubmitTransaction.
const idleMiningInterval = 5 * time.Second

func (n *Node) miningOperations() {
	n.cfg.Ev("node: miningOperations: started")
	defer n.cfg.Ev("node: miningOperations: completed")

	ticker := time.NewTicker(idleMiningInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.startMining:
			if !n.isShutdown() && n.MiningEnabled() {
				n.runMiningOperation()
			}
		case <-ticker.C:
			if !n.isShutdown() && n.MiningEnabled() {
				n.runMiningOperation()
			}
		case <-n.shut:
			return
		}
	}
}

// runMiningOperation assembles a block from the mempool, hands it to the
// consensus engine to seal, and on success appends it locally and gossips
// it to connected peers. The seal is run in its own goroutine racing
// against a cancellation signal, mirroring the ledger's own single-writer
// discipline: sealing never holds the ledger lock.
func (n *Node) runMiningOperation() {
	n.cfg.Ev("node: runMiningOperation: started")
	defer n.cfg.Ev("node: runMiningOperation: completed")

	if n.led.MempoolCount() == 0 {
		return
	}

	proposer := n.cfg.NodeID
	if selector, ok := n.engine.(interface{ SelectProposer() (string, error) }); ok {
		p, err := selector.SelectProposer()
		if err != nil {
			n.cfg.Ev("node: runMiningOperation: no eligible proposer: %s", err)
			return
		}
		proposer = p
	}

	block, err := n.led.AssembleBlock(proposer)
	if err != nil {
		n.cfg.Ev("node: runMiningOperation: assemble: %s", err)
		return
	}

	select {
	case <-n.cancelMining:
	default:
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer func() {
			cancel()
			wg.Done()
		}()

		select {
		case <-n.cancelMining:
			n.cfg.Ev("node: runMiningOperation: cancelled")
		case <-ctx.Done():
		}
	}()

	go func() {
		defer func() {
			cancel()
			wg.Done()
		}()

		sealed, err := n.engine.Seal(ctx, block)
		if err != nil {
			n.cfg.Ev("node: runMiningOperation: seal: %s", err)
			return
		}

		outcome := n.led.AppendBlock(sealed)
		if !outcome.Accepted {
			n.cfg.Ev("node: runMiningOperation: append rejected: %s", outcome.Reason)
			return
		}

		n.seenBlocks.Observe(sealed.Hash())
		n.broadcastNewBlock(sealed)
	}()

	wg.Wait()

	if n.led.MempoolCount() > 0 {
		n.SignalStartMining()
	}
}
