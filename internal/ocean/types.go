package ocean

import "time"

type OceanView struct {
	TotalFishCount      int64     `json:"total_fish_count"`
	TotalShares         int64     `json:"total_shares"`
	BalanceNanos        int64     `json:"balance_nanos"`
	IsStorm             bool      `json:"is_storm"`
	FeedingBps          int       `json:"feeding_bps"`
	StormProbabilityBps int       `json:"storm_probability_bps"`
	CycleStart          time.Time `json:"cycle_start"`
	NextModeChange      time.Time `json:"next_mode_change"`
}

type FishView struct {
	ID               string     `json:"id"`
	OwnerUserID      string     `json:"owner_user_id"`
	Name             string     `json:"name"`
	Share            int64      `json:"share"`
	ValueNanos       int64      `json:"value_nanos"`
	Status           string     `json:"status"`
	Version          int64      `json:"version"`
	CreatedAt        time.Time  `json:"created_at"`
	LastFedAt        time.Time  `json:"last_fed_at"`
	HungryAt         time.Time  `json:"hungry_at"`
	CanHuntAfter     time.Time  `json:"can_hunt_after"`
	MarkedByFishID   string     `json:"marked_by_fish_id,omitempty"`
	MarkExpiresAt    *time.Time `json:"mark_expires_at,omitempty"`
	IsProtected      bool       `json:"is_protected"`
	ProtectionEndsAt *time.Time `json:"protection_ends_at,omitempty"`
}

type EventView struct {
	ID          int64     `json:"id"`
	Kind        string    `json:"kind"`
	FishID      string    `json:"fish_id,omitempty"`
	ActorFishID string    `json:"actor_fish_id,omitempty"`
	AmountNanos int64     `json:"amount_nanos"`
	Detail      string    `json:"detail,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type SpawnInput struct {
	UserID      string
	Name        string
	AmountNanos int64
}

type FeedInput struct {
	UserID          string
	FishID          string
	ExpectedVersion int64
	AmountNanos     int64
}

type MarkInput struct {
	UserID          string
	HunterFishID    string
	HunterVersion   int64
	PreyFishID      string
	PreyVersion     int64
}

type MarkResult struct {
	Hunter        FishView `json:"hunter"`
	Prey          FishView `json:"prey"`
	CostNanos     int64    `json:"cost_nanos"`
	MarkExpiresAt time.Time `json:"mark_expires_at"`
}

type HuntInput struct {
	UserID        string
	HunterFishID  string
	HunterVersion int64
	PreyFishID    string
	PreyVersion   int64
}

type HuntResult struct {
	Hunter        FishView `json:"hunter"`
	Prey          FishView `json:"prey"`
	ReceivedNanos int64    `json:"received_nanos"`
}

type ExitInput struct {
	UserID          string
	FishID          string
	ExpectedVersion int64
}

type ExitResult struct {
	Fish        FishView `json:"fish"`
	PayoutNanos int64    `json:"payout_nanos"`
	FeeNanos    int64    `json:"fee_nanos"`
}

type ResurrectInput struct {
	UserID      string
	DeadFishID  string
	Name        string
	AmountNanos int64
}

type TransferInput struct {
	UserID          string
	FishID          string
	ExpectedVersion int64
	NewOwnerID      string
}
