package ocean

import (
	"testing"
	"time"
)

func TestBootstrapDeposit(t *testing.T) {
	pol := ProductionPolicy()
	totals, minted, err := ApplyDeposit(Totals{}, 20_000_000, pol.MinSpawn())
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if minted != 20_000_000 {
		t.Fatalf("minted=%d want 20000000 (bootstrap 1:1)", minted)
	}
	if totals.Shares != 20_000_000 || totals.Balance != 20_000_000 {
		t.Fatalf("totals=%+v want shares=balance=20000000", totals)
	}
}

func TestFeedKeepsRateWithSingleParticipant(t *testing.T) {
	totals := Totals{Shares: 20_000_000, Balance: 20_000_000}
	totals, minted, err := ApplyDeposit(totals, 10_000_000, 1_000_000)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if minted != 10_000_000 {
		t.Fatalf("minted=%d want 10000000", minted)
	}
	if totals.Balance != 30_000_000 || totals.Shares != 30_000_000 {
		t.Fatalf("totals=%+v want 30000000/30000000", totals)
	}
	share := 20_000_000 + minted
	v, err := ShareToValue(totals.Balance, totals.Shares, share)
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if v != 30_000_000 {
		t.Fatalf("fish value=%d want 30000000", v)
	}
}

func TestDepositBelowMinimum(t *testing.T) {
	_, _, err := ApplyDeposit(Totals{}, 5_000_000, 10_000_000)
	if err != ErrBelowMinimum {
		t.Fatalf("err=%v want ErrBelowMinimum", err)
	}
}

func TestDepositTooSmallToMintShare(t *testing.T) {
	// Rate drifted to 5 pearls per share (mark fees grow the balance without
	// minting). A deposit worth less than one share would floor to share 0,
	// which an alive fish may never hold.
	totals := Totals{Shares: 1, Balance: 5_000_000_000}
	_, _, err := ApplyDeposit(totals, 1_000_000_000, 10_000_000)
	if err != ErrBelowMinimum {
		t.Fatalf("err=%v want ErrBelowMinimum", err)
	}
}

func TestHuntSplitsWholePreyShare(t *testing.T) {
	pol := ProductionPolicy()
	// Hunter and prey in a pool, prey worth V = 1 pearl.
	prey := int64(1_000_000_000)
	hunter := int64(4_000_000_000)
	totals := Totals{Shares: prey + hunter, Balance: prey + hunter}

	after, out, err := ApplyHunt(totals, prey, pol)
	if err != nil {
		t.Fatalf("hunt: %v", err)
	}
	if out.HunterShare != 800_000_000 {
		t.Fatalf("hunter share=%d want 800000000", out.HunterShare)
	}
	if out.PoolShare != 100_000_000 || out.AdminShare != 100_000_000 {
		t.Fatalf("pool/admin shares=%d/%d want 100000000 each", out.PoolShare, out.AdminShare)
	}
	if out.HunterShare+out.PoolShare+out.AdminShare > prey {
		t.Fatalf("distributed %d exceeds prey share %d",
			out.HunterShare+out.PoolShare+out.AdminShare, prey)
	}
	// Admin value priced before any removal: 1:1 rate here.
	if out.AdminValue != 100_000_000 {
		t.Fatalf("admin value=%d want 100000000", out.AdminValue)
	}
	if after.Shares != totals.Shares-out.PoolShare-out.AdminShare {
		t.Fatalf("shares=%d, pool and admin shares should leave", after.Shares)
	}
	if after.Balance != totals.Balance-out.AdminValue {
		t.Fatalf("balance=%d, only admin value should leave", after.Balance)
	}
	// Received is priced on post-removal totals, so the pool burn makes the
	// hunter's cut worth slightly more than 80% of V priced pre-hunt.
	if out.ReceivedValue < 800_000_000 {
		t.Fatalf("received=%d want >= floor(0.8*V)", out.ReceivedValue)
	}
	if out.ReceivedValue > prey {
		t.Fatalf("received=%d exceeds prey value %d", out.ReceivedValue, prey)
	}
}

func TestHuntDustStaysInPool(t *testing.T) {
	pol := ProductionPolicy()
	prey := int64(33) // floors leave dust
	totals := Totals{Shares: 1_033, Balance: 2_000}
	after, out, err := ApplyHunt(totals, prey, pol)
	if err != nil {
		t.Fatalf("hunt: %v", err)
	}
	dust := prey - out.HunterShare - out.PoolShare - out.AdminShare
	if dust <= 0 {
		t.Fatalf("expected flooring dust, got %d", dust)
	}
	// Only the admin and pool cuts leave totalShares. The prey row zeroes
	// its full share, so the dust stays in totalShares owned by nobody and
	// its value spreads over the survivors.
	if after.Shares != totals.Shares-out.AdminShare-out.PoolShare {
		t.Fatalf("shares=%d want %d", after.Shares, totals.Shares-out.AdminShare-out.PoolShare)
	}
}

func TestExitTakesTenPercentFee(t *testing.T) {
	pol := ProductionPolicy()
	fish := int64(1_000_000_000)
	totals := Totals{Shares: 3_000_000_000, Balance: 3_000_000_000}
	after, out, err := ApplyExit(totals, fish, pol)
	if err != nil {
		t.Fatalf("exit: %v", err)
	}
	if out.Value != 1_000_000_000 {
		t.Fatalf("value=%d want 1000000000", out.Value)
	}
	if out.Payout != 900_000_000 {
		t.Fatalf("payout=%d want 900000000", out.Payout)
	}
	if out.Fee != 100_000_000 {
		t.Fatalf("fee=%d want 100000000", out.Fee)
	}
	if after.Shares != 2_000_000_000 || after.Balance != 2_000_000_000 {
		t.Fatalf("totals=%+v want 2000000000/2000000000", after)
	}
}

func TestShareToValueIdentity(t *testing.T) {
	// Pricing the entire share supply must return the entire balance.
	cases := []Totals{
		{Shares: 1, Balance: 1},
		{Shares: 20_000_000, Balance: 20_000_000},
		{Shares: 7_777_777, Balance: 123_456_789},
		{Shares: 3_000_000_000, Balance: 999_999_999},
	}
	for _, c := range cases {
		v, err := ShareToValue(c.Balance, c.Shares, c.Shares)
		if err != nil {
			t.Fatalf("ShareToValue(%+v): %v", c, err)
		}
		if v != c.Balance {
			t.Fatalf("ShareToValue(%+v)=%d want %d", c, v, c.Balance)
		}
	}
}

func TestShareToValueEmptyPool(t *testing.T) {
	if v, err := ShareToValue(0, 0, 0); err != nil || v != 0 {
		t.Fatalf("zero share should price to 0 without error, got %d %v", v, err)
	}
	if _, err := ShareToValue(0, 0, 5); err != ErrPoolEmpty {
		t.Fatalf("err=%v want ErrPoolEmpty", err)
	}
}

func TestValueToShareRoundTripBound(t *testing.T) {
	totals := Totals{Shares: 7_777_777, Balance: 123_456_789}
	for _, amount := range []int64{1_000_000, 33_333_333, 999_999_999} {
		minted := ValueToShare(totals.Balance, totals.Shares, amount)
		after := Totals{Shares: totals.Shares + minted, Balance: totals.Balance + amount}
		v, err := ShareToValue(after.Balance, after.Shares, minted)
		if err != nil {
			t.Fatalf("round trip: %v", err)
		}
		if v > amount {
			t.Fatalf("round trip gained value: deposited %d priced back %d", amount, v)
		}
		// Floor-mint plus half-up pricing loses at most one price unit.
		unit := after.Balance/after.Shares + 1
		if amount-v > unit {
			t.Fatalf("round trip lost %d, more than one unit %d", amount-v, unit)
		}
	}
}

func TestMarkCostTiers(t *testing.T) {
	pol := ProductionPolicy()
	preyValue := int64(10_000_000_000) // 10 pearls

	low := MarkCost(preyValue, 30*time.Minute, pol)
	if low != 500_000_000 {
		t.Fatalf("low tier cost=%d want 500000000 (5%%)", low)
	}
	high := MarkCost(preyValue, 5*time.Minute, pol)
	if high != 1_000_000_000 {
		t.Fatalf("high tier cost=%d want 1000000000 (10%%)", high)
	}
	if got := MarkCost(100, time.Hour, pol); got != pol.MinMarkCostNanos {
		t.Fatalf("tiny prey cost=%d want floor %d", got, pol.MinMarkCostNanos)
	}
}

func TestPolicyPresets(t *testing.T) {
	prod := ProductionPolicy()
	if prod.HuntHunterBps+prod.HuntPoolBps+prod.HuntAdminBps != 10_000 {
		t.Fatalf("hunt split must cover the whole prey share")
	}
	dev := DevelopmentPolicy()
	if dev.HungerAfter >= prod.HungerAfter {
		t.Fatalf("development timers should be shorter")
	}
	if dev.HuntHunterBps != prod.HuntHunterBps {
		t.Fatalf("development preset must not change settlement rates")
	}
}

func TestValidateFishName(t *testing.T) {
	for _, ok := range []string{"Bubbles", "reef shark 42", "a_b-c"} {
		if err := ValidateFishName(ok); err != nil {
			t.Fatalf("ValidateFishName(%q): %v", ok, err)
		}
	}
	for _, bad := range []string{"", "x", "nemo!", string(make([]byte, 40))} {
		if err := ValidateFishName(bad); err == nil {
			t.Fatalf("ValidateFishName(%q) should fail", bad)
		}
	}
}
