package ocean

import (
	"math/big"
	"time"
)

// Totals is the pool aggregate the settlement arithmetic operates on.
type Totals struct {
	Shares  int64
	Balance int64
}

// mulDivFloor computes floor(a*num/den) without int64 overflow on the
// multiplication.
func mulDivFloor(a, num, den int64) int64 {
	v := new(big.Int).Mul(big.NewInt(a), big.NewInt(num))
	v.Div(v, big.NewInt(den))
	return v.Int64()
}

// ShareToValue is the single source of truth for converting a share into
// spendable value: floor((share*balance + totalShares/2) / totalShares),
// i.e. round-to-nearest half-up. Every settlement algorithm and every read
// path must price shares through this function.
func ShareToValue(balance, totalShares, share int64) (int64, error) {
	if share == 0 {
		return 0, nil
	}
	if totalShares == 0 {
		return 0, ErrPoolEmpty
	}
	v := new(big.Int).Mul(big.NewInt(share), big.NewInt(balance))
	v.Add(v, big.NewInt(totalShares/2))
	v.Div(v, big.NewInt(totalShares))
	return v.Int64(), nil
}

// ValueToShare converts deposited value into newly minted shares:
// floor(value*totalShares/balance). The first depositor (or a deposit into a
// pool whose balance was fully drained) bootstraps the exchange rate 1:1.
func ValueToShare(balance, totalShares, value int64) int64 {
	if totalShares == 0 || balance == 0 {
		return value
	}
	return mulDivFloor(value, totalShares, balance)
}

// ApplyDeposit mints shares for value entering the pool (spawn, resurrect
// and feed all settle through here). Returns the new totals and the minted
// share amount. A deposit that floors to zero shares at the current exchange
// rate is rejected: an alive fish always holds share > 0.
func ApplyDeposit(t Totals, amount, minimum int64) (Totals, int64, error) {
	if amount < minimum {
		return t, 0, ErrBelowMinimum
	}
	minted := ValueToShare(t.Balance, t.Shares, amount)
	if minted == 0 {
		return t, 0, ErrBelowMinimum
	}
	t.Balance += amount
	t.Shares += minted
	return t, minted, nil
}

// HuntOutcome describes a settled hunt over the prey's entire share.
type HuntOutcome struct {
	HunterShare   int64 // added to the hunter's fish
	PoolShare     int64 // burned: value spreads over remaining shares
	AdminShare    int64 // burned, paid out as AdminValue
	AdminValue    int64
	ReceivedValue int64 // hunter's gain priced on post-removal totals
}

// ApplyHunt distributes the prey's entire share. The sequencing is
// load-bearing: the admin and pool shares (and the admin's value) leave the
// pool first, and the hunter's received value is priced against the
// post-removal totals. Flooring remainders stay in totalShares as dust.
func ApplyHunt(t Totals, preyShare int64, p Policy) (Totals, HuntOutcome, error) {
	var out HuntOutcome
	out.HunterShare = mulDivFloor(preyShare, int64(p.HuntHunterBps), 10_000)
	out.PoolShare = mulDivFloor(preyShare, int64(p.HuntPoolBps), 10_000)
	out.AdminShare = mulDivFloor(preyShare, int64(p.HuntAdminBps), 10_000)

	adminValue, err := ShareToValue(t.Balance, t.Shares, out.AdminShare)
	if err != nil {
		return t, out, err
	}
	out.AdminValue = adminValue
	t.Shares -= out.AdminShare + out.PoolShare
	t.Balance -= adminValue

	received, err := ShareToValue(t.Balance, t.Shares, out.HunterShare)
	if err != nil {
		return t, out, err
	}
	out.ReceivedValue = received
	return t, out, nil
}

// ExitOutcome describes a voluntary exit settlement.
type ExitOutcome struct {
	Value  int64 // full pre-fee value leaving the pool
	Payout int64 // credited to the owner
	Fee    int64 // Value - Payout, credited to the admin account
}

// ApplyExit burns the fish's share and removes its full value from the pool.
func ApplyExit(t Totals, fishShare int64, p Policy) (Totals, ExitOutcome, error) {
	var out ExitOutcome
	value, err := ShareToValue(t.Balance, t.Shares, fishShare)
	if err != nil {
		return t, out, err
	}
	out.Value = value
	out.Payout = mulDivFloor(value, int64(10_000-p.ExitFeeBps), 10_000)
	out.Fee = value - out.Payout
	t.Balance -= value
	t.Shares -= fishShare
	return t, out, nil
}

// MarkCost prices a mark on a prey worth preyValue whose hunger countdown
// has timeUntilHungry remaining. The rate doubles close to the deadline.
func MarkCost(preyValue int64, timeUntilHungry time.Duration, p Policy) int64 {
	bps := int64(p.MarkLowRateBps)
	if timeUntilHungry <= p.MarkHighThreshold {
		bps = int64(p.MarkHighRateBps)
	}
	cost := mulDivFloor(preyValue, bps, 10_000)
	if cost < p.MinMarkCostNanos {
		cost = p.MinMarkCostNanos
	}
	return cost
}
