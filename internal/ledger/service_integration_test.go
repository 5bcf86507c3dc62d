//go:build integration

package ledger

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"fintank/internal/chain"
)

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	pool, err := pgxpool.New(context.Background(), url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	schema, err := os.ReadFile("../../schema.sql")
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	if _, err := pool.Exec(context.Background(), string(schema)); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return pool
}

func mustBalance(t *testing.T, svc *Service, userID string) int64 {
	t.Helper()
	balance, err := svc.Balance(context.Background(), userID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return balance
}

// A transfer observed twice credits once; the same hash replayed under a
// different memo refreshes confirmations only.
func TestRecordInboundReplays(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	svc := NewService(pool, nil, nil, "FTDEPOSIT", 2)

	user := "user-" + uuid.NewString()
	intent, err := svc.CreateDepositIntent(ctx, user, 1_000_000_000)
	if err != nil {
		t.Fatalf("intent: %v", err)
	}

	transfer := chain.Transfer{
		TxHash:        "0x" + uuid.NewString(),
		AmountNanos:   1_000_000_000,
		Memo:          intent.Memo,
		Confirmations: 3,
	}
	if err := svc.RecordInbound(ctx, transfer); err != nil {
		t.Fatalf("first observation: %v", err)
	}
	if got := mustBalance(t, svc, user); got != 1_000_000_000 {
		t.Fatalf("balance=%d want 1000000000", got)
	}

	if err := svc.RecordInbound(ctx, transfer); err != nil {
		t.Fatalf("exact replay: %v", err)
	}
	if got := mustBalance(t, svc, user); got != 1_000_000_000 {
		t.Fatalf("balance=%d after replay, credited twice", got)
	}

	second, err := svc.CreateDepositIntent(ctx, user, 2_000_000_000)
	if err != nil {
		t.Fatalf("second intent: %v", err)
	}
	transfer.Memo = second.Memo
	transfer.AmountNanos = 2_000_000_000
	if err := svc.RecordInbound(ctx, transfer); err != nil {
		t.Fatalf("cross-memo replay: %v", err)
	}
	if got := mustBalance(t, svc, user); got != 1_000_000_000 {
		t.Fatalf("balance=%d, seen hash must not settle a second intent", got)
	}

	payments, err := svc.Payments(ctx, user, 10)
	if err != nil {
		t.Fatalf("payments: %v", err)
	}
	for _, p := range payments {
		if p.ID == second.PaymentID && p.Status != StatusPending {
			t.Fatalf("second intent status=%s want pending", p.Status)
		}
	}
}
