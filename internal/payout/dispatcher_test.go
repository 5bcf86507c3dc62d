package payout

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"fintank/internal/chain"
	"fintank/internal/ledger"
)

type fakeStore struct {
	mu         sync.Mutex
	queue      []ledger.Withdrawal
	dispatched map[string]string
	failed     map[string]string
}

func newFakeStore(ws ...ledger.Withdrawal) *fakeStore {
	return &fakeStore{
		queue:      ws,
		dispatched: make(map[string]string),
		failed:     make(map[string]string),
	}
}

func (s *fakeStore) ApprovedBatch(_ context.Context, limit int) ([]ledger.Withdrawal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ledger.Withdrawal, 0, limit)
	for _, w := range s.queue {
		if len(out) == limit {
			break
		}
		if s.dispatched[w.ID] == "" && s.failed[w.ID] == "" {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *fakeStore) MarkDispatched(_ context.Context, id, txHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatched[id] = txHash
	return nil
}

func (s *fakeStore) MarkFailed(_ context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[id] = reason
	return nil
}

type fakeSender struct {
	mu      sync.Mutex
	batches map[string][][]chain.SendRequest
	failOn  string
	next    int
}

func newFakeSender() *fakeSender {
	return &fakeSender{batches: make(map[string][][]chain.SendRequest)}
}

func (f *fakeSender) SendTransfers(_ context.Context, network string, reqs []chain.SendRequest) ([]chain.SendReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if network == f.failOn {
		return nil, fmt.Errorf("network %s unavailable", network)
	}
	f.batches[network] = append(f.batches[network], reqs)
	receipts := make([]chain.SendReceipt, len(reqs))
	for i := range reqs {
		f.next++
		receipts[i] = chain.SendReceipt{TxHash: fmt.Sprintf("tx-%d", f.next)}
	}
	return receipts, nil
}

func wd(id, user, network string, amount int64) ledger.Withdrawal {
	return ledger.Withdrawal{
		ID: id, UserID: user, AmountNanos: amount,
		Status: ledger.WithdrawalApproved, Network: network, ToAddress: "addr-" + user,
	}
}

func TestRunGroupsByNetwork(t *testing.T) {
	store := newFakeStore(
		wd("w1", "alice", "main", 100),
		wd("w2", "bob", "main", 200),
		wd("w3", "carol", "test", 300),
	)
	sender := newFakeSender()
	d := New(store, sender, nil)

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sender.batches["main"]) != 1 || len(sender.batches["main"][0]) != 2 {
		t.Fatalf("main batches=%v want one batch of 2", sender.batches["main"])
	}
	if len(sender.batches["test"]) != 1 || len(sender.batches["test"][0]) != 1 {
		t.Fatalf("test batches=%v want one batch of 1", sender.batches["test"])
	}
	for _, id := range []string{"w1", "w2", "w3"} {
		if store.dispatched[id] == "" {
			t.Fatalf("withdrawal %s not dispatched", id)
		}
	}
}

func TestRunReentrantTriggerIsNoop(t *testing.T) {
	store := newFakeStore(wd("w1", "alice", "main", 100))
	d := New(store, newFakeSender(), nil)

	d.processing.Store(true)
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(store.dispatched) != 0 {
		t.Fatalf("re-entrant run dispatched %v, want nothing", store.dispatched)
	}
	d.processing.Store(false)
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if store.dispatched["w1"] == "" {
		t.Fatalf("w1 not dispatched after flag cleared")
	}
}

func TestRunDrainsSameUserBacklog(t *testing.T) {
	store := newFakeStore(
		wd("w1", "alice", "main", 100),
		wd("w2", "alice", "main", 200),
		wd("w3", "bob", "main", 300),
	)
	sender := newFakeSender()
	d := New(store, sender, nil)

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, id := range []string{"w1", "w2", "w3"} {
		if store.dispatched[id] == "" {
			t.Fatalf("withdrawal %s stranded after a single run: %v", id, store.dispatched)
		}
	}
	// alice's second withdrawal must go out in a later send, after her first
	// is persisted and the recipient lock released.
	if len(sender.batches["main"]) != 2 {
		t.Fatalf("got %d sends, want 2 (backlog entry picked up on the next loop)", len(sender.batches["main"]))
	}
}

func TestRecipientLockSkipsInFlightUser(t *testing.T) {
	store := newFakeStore(
		wd("w1", "alice", "main", 100),
		wd("w2", "alice", "main", 200),
		wd("w3", "bob", "main", 300),
	)
	sender := newFakeSender()
	d := New(store, sender, nil)

	d.mu.Lock()
	d.inFlight["alice"] = true
	d.mu.Unlock()

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if store.dispatched["w1"] != "" || store.dispatched["w2"] != "" {
		t.Fatalf("alice dispatched while locked: %v", store.dispatched)
	}
	if store.dispatched["w3"] == "" {
		t.Fatalf("bob should dispatch regardless of alice's lock")
	}

	d.mu.Lock()
	delete(d.inFlight, "alice")
	d.mu.Unlock()
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if store.dispatched["w1"] == "" || store.dispatched["w2"] == "" {
		t.Fatalf("alice's withdrawals not dispatched after release: %v", store.dispatched)
	}
}

func TestSendFailureMarksFailedAndContinues(t *testing.T) {
	store := newFakeStore(
		wd("w1", "alice", "down", 100),
		wd("w2", "bob", "main", 200),
	)
	sender := newFakeSender()
	sender.failOn = "down"
	d := New(store, sender, nil)

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if store.failed["w1"] == "" {
		t.Fatalf("w1 should be marked failed")
	}
	if store.dispatched["w2"] == "" {
		t.Fatalf("w2 should still dispatch after the other network failed")
	}
}
