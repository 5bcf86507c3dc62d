// Package ocean implements the pooled-value game economy: the singleton
// share/value pool, the fish lifecycle and the settlement algorithms that
// mutate both under a single transaction.
package ocean

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"fintank/internal/money"
)

var (
	ErrVersionConflict  = errors.New("stale expected version")
	ErrPoolEmpty        = errors.New("pool has no shares")
	ErrBelowMinimum     = errors.New("amount below minimum")
	ErrInvalidState     = errors.New("fish is not in a valid state for this operation")
	ErrInsufficientFund = errors.New("insufficient ledger balance")
	ErrHuntNotReady     = errors.New("hunt cooldown has not elapsed")
	ErrPreyNotHungry    = errors.New("prey is not huntable yet")
	ErrMarkExclusivity  = errors.New("prey already marked by another hunter")
	ErrMarkWindow       = errors.New("prey is outside the mark placement window")
	ErrFishProtected    = errors.New("fish is under spawn protection")
	ErrStormActive      = errors.New("exits are disabled during a storm")
	ErrNotOwner         = errors.New("fish is not owned by caller")
	ErrNameTaken        = errors.New("fish name already in use")
	ErrFishNotFound     = errors.New("fish not found")
	ErrSelfTarget       = errors.New("a fish cannot target itself")
)

// Policy carries every tunable settlement constant. Values are read from the
// environment; nothing here is authoritative on the client side.
type Policy struct {
	MinDepositNanos  int64
	MinFeedNanos     int64
	MinMarkCostNanos int64

	HuntHunterBps int // share of prey to the hunter
	HuntPoolBps   int // share of prey burned into the pool
	HuntAdminBps  int // share of prey paid out to the admin account
	ExitFeeBps    int

	MarkHighRateBps int // cost tier when the prey is nearly hungry
	MarkLowRateBps  int

	HungerAfter       time.Duration // fed fish becomes huntable after this
	HuntCooldown      time.Duration
	MarkWindow        time.Duration // mark placeable when 0 < time-until-hungry <= window
	MarkHighThreshold time.Duration // high cost tier below this remaining time
	MarkExclusivity   time.Duration
	SpawnProtection   time.Duration
	CycleLength       time.Duration

	StormProbabilityBps int
	FeedingBps          int
}

// ProductionPolicy mirrors the live tuning.
func ProductionPolicy() Policy {
	return Policy{
		MinDepositNanos:     10_000_000, // 0.01 pearl
		MinFeedNanos:        1_000_000,
		MinMarkCostNanos:    1_000_000,
		HuntHunterBps:       8000,
		HuntPoolBps:         1000,
		HuntAdminBps:        1000,
		ExitFeeBps:          1000,
		MarkHighRateBps:     1000,
		MarkLowRateBps:      500,
		HungerAfter:         24 * time.Hour,
		HuntCooldown:        time.Hour,
		MarkWindow:          time.Hour,
		MarkHighThreshold:   10 * time.Minute,
		MarkExclusivity:     30 * time.Minute,
		SpawnProtection:     time.Hour,
		CycleLength:         24 * time.Hour,
		StormProbabilityBps: 2000,
		FeedingBps:          500,
	}
}

// DevelopmentPolicy shortens every timer so a full lifecycle can be played
// through in minutes.
func DevelopmentPolicy() Policy {
	p := ProductionPolicy()
	p.HungerAfter = 2 * time.Minute
	p.HuntCooldown = 30 * time.Second
	p.MarkWindow = 90 * time.Second
	p.MarkHighThreshold = 30 * time.Second
	p.MarkExclusivity = time.Minute
	p.SpawnProtection = time.Minute
	p.CycleLength = 10 * time.Minute
	return p
}

var fishNameRE = regexp.MustCompile(`^[a-zA-Z0-9 _-]{2,32}$`)

func ValidateFishName(name string) error {
	if !fishNameRE.MatchString(strings.TrimSpace(name)) {
		return errors.New("name must be 2-32 letters, digits, spaces, _ or -")
	}
	return nil
}

// Status values for a fish row.
const (
	StatusAlive  = "alive"
	StatusDead   = "dead"
	StatusExited = "exited"
)

// Event kinds appended by the settlement algorithms.
const (
	EventSpawned     = "spawned"
	EventFed         = "fed"
	EventMarked      = "marked"
	EventHunted      = "hunted"
	EventExited      = "exited"
	EventResurrected = "resurrected"
	EventStorm       = "storm"
	EventCalm        = "calm"
)

// MinSpawn reports the effective minimum for spawn/resurrect deposits.
func (p Policy) MinSpawn() int64 {
	if p.MinDepositNanos > 0 {
		return p.MinDepositNanos
	}
	return money.NanosPerPearl / 100
}
