//go:build integration

package ocean

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"fintank/internal/ledger"
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

func creditUser(t *testing.T, pool *pgxpool.Pool, userID string, amount int64) {
	t.Helper()
	ctx := context.Background()
	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback(ctx)
	if err := ledger.AppendTx(ctx, tx, userID, amount, "test_seed", ""); err != nil {
		t.Fatalf("seed balance: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

// Two feeds race on the same expected version. The pool row lock serializes
// them; the loser must see exactly one ErrVersionConflict from the
// conditional update, never a double apply.
func TestConcurrentFeedsSameVersion(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	svc := NewService(pool, nil, DevelopmentPolicy(), "admin-"+uuid.NewString())
	if err := svc.EnsurePool(ctx); err != nil {
		t.Fatalf("ensure pool: %v", err)
	}

	user := "user-" + uuid.NewString()
	creditUser(t, pool, user, 100_000_000_000)

	fish, err := svc.Spawn(ctx, SpawnInput{
		UserID:      user,
		Name:        "feed race " + uuid.NewString()[:8],
		AmountNanos: 1_000_000_000,
	})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Feed(ctx, FeedInput{
				UserID:          user,
				FishID:          fish.ID,
				ExpectedVersion: fish.Version,
				AmountNanos:     500_000_000,
			})
		}(i)
	}
	wg.Wait()

	var applied, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			applied++
		case errors.Is(err, ErrVersionConflict):
			conflicts++
		default:
			t.Fatalf("unexpected feed error: %v", err)
		}
	}
	if applied != 1 || conflicts != 1 {
		t.Fatalf("applied=%d conflicts=%d, want exactly one of each", applied, conflicts)
	}

	got, err := svc.GetFish(ctx, fish.ID)
	if err != nil {
		t.Fatalf("get fish: %v", err)
	}
	if got.Version != fish.Version+1 {
		t.Fatalf("version=%d want %d (exactly one feed applied)", got.Version, fish.Version+1)
	}
}
