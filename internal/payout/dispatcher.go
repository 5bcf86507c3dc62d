// Package payout drains approved withdrawals to the chain in batches.
package payout

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"fintank/internal/chain"
	"fintank/internal/ledger"
)

// batchSize caps how many approved withdrawals one pass picks up.
const batchSize = 50

// Store is the withdrawal persistence the dispatcher needs.
type Store interface {
	ApprovedBatch(ctx context.Context, limit int) ([]ledger.Withdrawal, error)
	MarkDispatched(ctx context.Context, id, txHash string) error
	MarkFailed(ctx context.Context, id, reason string) error
}

// Sender submits one batch per destination network.
type Sender interface {
	SendTransfers(ctx context.Context, network string, reqs []chain.SendRequest) ([]chain.SendReceipt, error)
}

type Dispatcher struct {
	store  Store
	sender Sender
	log    *slog.Logger

	processing atomic.Bool

	mu       sync.Mutex
	inFlight map[string]bool // user ids with an unsent batch entry
}

func New(store Store, sender Sender, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:    store,
		sender:   sender,
		log:      logger,
		inFlight: make(map[string]bool),
	}
}

// Run drains the approved queue until nothing claimable remains. Re-entrant
// triggers while a pass is running are no-ops; the caller (ticker or admin
// approval hook) can fire it freely. A short batch alone does not end the
// pass: entries skipped by the recipient lock become claimable once the
// earlier send for that user is persisted, so the loop goes around again
// whenever claim left something behind.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.processing.CompareAndSwap(false, true) {
		return nil
	}
	defer d.processing.Store(false)

	for {
		batch, err := d.store.ApprovedBatch(ctx, batchSize)
		if err != nil {
			return err
		}
		claimed := d.claim(batch)
		if len(claimed) == 0 {
			return nil
		}
		d.dispatch(ctx, claimed)
		if len(batch) < batchSize && len(claimed) == len(batch) {
			return nil
		}
	}
}

// claim takes the recipient lock for each withdrawal. A user whose earlier
// withdrawal is still being persisted is skipped until the next pass, so one
// recipient can never be paid twice by overlapping batches.
func (d *Dispatcher) claim(batch []ledger.Withdrawal) []ledger.Withdrawal {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]ledger.Withdrawal, 0, len(batch))
	for _, w := range batch {
		if d.inFlight[w.UserID] {
			continue
		}
		d.inFlight[w.UserID] = true
		out = append(out, w)
	}
	return out
}

func (d *Dispatcher) release(ws []ledger.Withdrawal) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, w := range ws {
		delete(d.inFlight, w.UserID)
	}
}

// dispatch groups the claimed withdrawals by network and sends one batch per
// network. Order within a group follows the FIFO order of the batch.
func (d *Dispatcher) dispatch(ctx context.Context, claimed []ledger.Withdrawal) {
	defer d.release(claimed)

	groups := make(map[string][]ledger.Withdrawal)
	networks := make([]string, 0)
	for _, w := range claimed {
		if _, ok := groups[w.Network]; !ok {
			networks = append(networks, w.Network)
		}
		groups[w.Network] = append(groups[w.Network], w)
	}

	for _, network := range networks {
		group := groups[network]
		reqs := make([]chain.SendRequest, len(group))
		for i, w := range group {
			reqs[i] = chain.SendRequest{
				ToAddress:   w.ToAddress,
				AmountNanos: w.AmountNanos,
				Memo:        w.ID,
			}
		}
		receipts, err := d.sender.SendTransfers(ctx, network, reqs)
		if err != nil {
			d.log.Error("batch send failed", "network", network, "count", len(group), "err", err)
			for _, w := range group {
				if ferr := d.store.MarkFailed(ctx, w.ID, err.Error()); ferr != nil {
					d.log.Error("mark failed", "withdrawal_id", w.ID, "err", ferr)
				}
			}
			continue
		}
		for i, w := range group {
			if err := d.store.MarkDispatched(ctx, w.ID, receipts[i].TxHash); err != nil {
				d.log.Error("mark dispatched", "withdrawal_id", w.ID, "tx_hash", receipts[i].TxHash, "err", err)
			}
		}
	}
}
