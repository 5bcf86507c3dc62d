package ocean

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"fintank/internal/ledger"
)

type Service struct {
	db          *pgxpool.Pool
	log         *slog.Logger
	pol         Policy
	adminUserID string

	mu   sync.Mutex
	rand *mathrand.Rand
}

func NewService(db *pgxpool.Pool, logger *slog.Logger, pol Policy, adminUserID string) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:          db,
		log:         logger,
		pol:         pol,
		adminUserID: adminUserID,
		rand:        mathrand.New(mathrand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Service) Policy() Policy { return s.pol }

type poolRow struct {
	totalFishCount      int64
	totals              Totals
	isStorm             bool
	feedingBps          int
	stormProbabilityBps int
	cycleStart          time.Time
	nextModeChange      time.Time
}

type fishRow struct {
	id             uuid.UUID
	ownerUserID    string
	name           string
	share          int64
	status         string
	version        int64
	createdAt      time.Time
	lastFedAt      time.Time
	canHuntAfter   time.Time
	markedByFishID *uuid.UUID
	markExpiresAt  *time.Time
	isProtected    bool
	protectionEnds *time.Time
}

// EnsurePool seeds the singleton pool row and its cycle schedule on startup.
func (s *Service) EnsurePool(ctx context.Context) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(ctx, `
		INSERT INTO ocean.pools (id, feeding_bps, storm_probability_bps, cycle_start, next_mode_change)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, s.pol.FeedingBps, s.pol.StormProbabilityBps, now, now.Add(s.pol.CycleLength))
	return err
}

// lockPoolTx serializes every settlement against the singleton pool row.
func lockPoolTx(ctx context.Context, tx pgx.Tx) (poolRow, error) {
	var p poolRow
	err := tx.QueryRow(ctx, `
		SELECT total_fish_count, total_shares, balance_nanos, is_storm,
		       feeding_bps, storm_probability_bps, cycle_start, next_mode_change
		FROM ocean.pools
		WHERE id = 1
		FOR UPDATE
	`).Scan(&p.totalFishCount, &p.totals.Shares, &p.totals.Balance, &p.isStorm,
		&p.feedingBps, &p.stormProbabilityBps, &p.cycleStart, &p.nextModeChange)
	if err != nil {
		return p, fmt.Errorf("lock pool: %w", err)
	}
	return p, nil
}

func writePoolTx(ctx context.Context, tx pgx.Tx, fishCount int64, t Totals) error {
	_, err := tx.Exec(ctx, `
		UPDATE ocean.pools
		SET total_fish_count = $1, total_shares = $2, balance_nanos = $3, updated_at = now()
		WHERE id = 1
	`, fishCount, t.Shares, t.Balance)
	return err
}

const fishColumns = `id, owner_user_id, name, share, status, version, created_at,
	last_fed_at, can_hunt_after, marked_by_fish_id, mark_expires_at,
	is_protected, protection_ends_at`

func scanFish(row pgx.Row) (fishRow, error) {
	var f fishRow
	err := row.Scan(&f.id, &f.ownerUserID, &f.name, &f.share, &f.status, &f.version,
		&f.createdAt, &f.lastFedAt, &f.canHuntAfter, &f.markedByFishID, &f.markExpiresAt,
		&f.isProtected, &f.protectionEnds)
	if err == pgx.ErrNoRows {
		return f, ErrFishNotFound
	}
	return f, err
}

func getFishTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (fishRow, error) {
	return scanFish(tx.QueryRow(ctx, `SELECT `+fishColumns+` FROM ocean.fish WHERE id = $1`, id))
}

// checkVersion fails fast on a stale read; the conditional UPDATE remains
// the authoritative guard.
func checkVersion(f fishRow, expected int64) error {
	if f.version != expected {
		return ErrVersionConflict
	}
	return nil
}

func appendEventTx(ctx context.Context, tx pgx.Tx, kind string, fishID, actorID *uuid.UUID, owner string, amount int64, detail string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO ocean.events (kind, fish_id, actor_fish_id, owner_user_id, amount_nanos, detail)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, kind, fishID, actorID, owner, amount, detail)
	return err
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" &&
		(constraint == "" || pgErr.ConstraintName == constraint)
}

// Spawn mints a new alive fish from the caller's ledger balance. The first
// deposit into an empty pool defines the 1:1 bootstrap exchange rate.
func (s *Service) Spawn(ctx context.Context, in SpawnInput) (FishView, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := ValidateFishName(in.Name); err != nil {
		return FishView{}, err
	}
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return FishView{}, err
	}
	defer tx.Rollback(ctx)

	pool, err := lockPoolTx(ctx, tx)
	if err != nil {
		return FishView{}, err
	}
	view, err := s.spawnTx(ctx, tx, &pool, in.UserID, in.Name, in.AmountNanos, "fish_spawn", EventSpawned, "")
	if err != nil {
		return FishView{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return FishView{}, err
	}
	return view, nil
}

// spawnTx is shared by Spawn and Resurrect; the pool row must be locked.
func (s *Service) spawnTx(ctx context.Context, tx pgx.Tx, pool *poolRow, userID, name string, amount int64, reason, eventKind, detail string) (FishView, error) {
	if amount < s.pol.MinSpawn() {
		return FishView{}, ErrBelowMinimum
	}
	spendable, err := ledger.SpendableTx(ctx, tx, userID)
	if err != nil {
		return FishView{}, err
	}
	if spendable < amount {
		return FishView{}, ErrInsufficientFund
	}

	totals, minted, err := ApplyDeposit(pool.totals, amount, s.pol.MinSpawn())
	if err != nil {
		return FishView{}, err
	}

	now := time.Now().UTC()
	id := uuid.New()
	protEnds := now.Add(s.pol.SpawnProtection)
	_, err = tx.Exec(ctx, `
		INSERT INTO ocean.fish
		    (id, owner_user_id, name, share, status, version, created_at,
		     last_fed_at, can_hunt_after, is_protected, protection_ends_at)
		VALUES ($1, $2, $3, $4, 'alive', 1, $5, $5, $6, true, $7)
	`, id, userID, name, minted, now, now.Add(s.pol.HuntCooldown), protEnds)
	if err != nil {
		if isUniqueViolation(err, "fish_name_alive_key") {
			return FishView{}, ErrNameTaken
		}
		return FishView{}, err
	}

	pool.totals = totals
	pool.totalFishCount++
	if err := writePoolTx(ctx, tx, pool.totalFishCount, totals); err != nil {
		return FishView{}, err
	}
	if err := ledger.AppendTx(ctx, tx, userID, -amount, reason, id.String()); err != nil {
		return FishView{}, err
	}
	if err := appendEventTx(ctx, tx, eventKind, &id, nil, userID, amount, detail); err != nil {
		return FishView{}, err
	}

	value, _ := ShareToValue(totals.Balance, totals.Shares, minted)
	return FishView{
		ID: id.String(), OwnerUserID: userID, Name: name,
		Share: minted, ValueNanos: value, Status: StatusAlive, Version: 1,
		CreatedAt: now, LastFedAt: now, HungryAt: now.Add(s.pol.HungerAfter),
		CanHuntAfter: now.Add(s.pol.HuntCooldown),
		IsProtected:  true, ProtectionEndsAt: &protEnds,
	}, nil
}

// Feed adds value to the pool, mints the resulting share onto the fish and
// restarts its hunger countdown. Any caller may feed any alive fish; the
// cost always comes from the caller's ledger.
func (s *Service) Feed(ctx context.Context, in FeedInput) (FishView, error) {
	fishID, err := uuid.Parse(in.FishID)
	if err != nil {
		return FishView{}, ErrFishNotFound
	}
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return FishView{}, err
	}
	defer tx.Rollback(ctx)

	pool, err := lockPoolTx(ctx, tx)
	if err != nil {
		return FishView{}, err
	}
	fish, err := getFishTx(ctx, tx, fishID)
	if err != nil {
		return FishView{}, err
	}
	if fish.status != StatusAlive {
		return FishView{}, ErrInvalidState
	}
	if err := checkVersion(fish, in.ExpectedVersion); err != nil {
		return FishView{}, err
	}
	if in.AmountNanos < s.pol.MinFeedNanos {
		return FishView{}, ErrBelowMinimum
	}
	spendable, err := ledger.SpendableTx(ctx, tx, in.UserID)
	if err != nil {
		return FishView{}, err
	}
	if spendable < in.AmountNanos {
		return FishView{}, ErrInsufficientFund
	}

	totals, minted, err := ApplyDeposit(pool.totals, in.AmountNanos, s.pol.MinFeedNanos)
	if err != nil {
		return FishView{}, err
	}

	now := time.Now().UTC()
	cmd, err := tx.Exec(ctx, `
		UPDATE ocean.fish
		SET share = share + $1, last_fed_at = $2, version = version + 1
		WHERE id = $3 AND version = $4 AND status = 'alive'
	`, minted, now, fishID, in.ExpectedVersion)
	if err != nil {
		return FishView{}, err
	}
	if cmd.RowsAffected() == 0 {
		return FishView{}, ErrVersionConflict
	}
	if err := writePoolTx(ctx, tx, pool.totalFishCount, totals); err != nil {
		return FishView{}, err
	}
	if err := ledger.AppendTx(ctx, tx, in.UserID, -in.AmountNanos, "fish_feed", fishID.String()); err != nil {
		return FishView{}, err
	}
	if err := appendEventTx(ctx, tx, EventFed, &fishID, nil, in.UserID, in.AmountNanos, ""); err != nil {
		return FishView{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return FishView{}, err
	}

	fish.share += minted
	fish.lastFedAt = now
	fish.version++
	return s.view(fish, totals), nil
}

// PlaceMark reserves hunting exclusivity on a prey that is close to hungry.
// The cost settles like a feed directed at the pool: the hunter's owner is
// debited and the pool balance grows with no share minted.
func (s *Service) PlaceMark(ctx context.Context, in MarkInput) (MarkResult, error) {
	var out MarkResult
	hunterID, err := uuid.Parse(in.HunterFishID)
	if err != nil {
		return out, ErrFishNotFound
	}
	preyID, err := uuid.Parse(in.PreyFishID)
	if err != nil {
		return out, ErrFishNotFound
	}
	if hunterID == preyID {
		return out, ErrSelfTarget
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return out, err
	}
	defer tx.Rollback(ctx)

	pool, err := lockPoolTx(ctx, tx)
	if err != nil {
		return out, err
	}
	hunter, err := getFishTx(ctx, tx, hunterID)
	if err != nil {
		return out, err
	}
	prey, err := getFishTx(ctx, tx, preyID)
	if err != nil {
		return out, err
	}
	if hunter.ownerUserID != in.UserID {
		return out, ErrNotOwner
	}
	if hunter.status != StatusAlive || prey.status != StatusAlive {
		return out, ErrInvalidState
	}
	if err := checkVersion(hunter, in.HunterVersion); err != nil {
		return out, err
	}
	if err := checkVersion(prey, in.PreyVersion); err != nil {
		return out, err
	}

	now := time.Now().UTC()
	if prey.isProtected && prey.protectionEnds != nil && now.Before(*prey.protectionEnds) {
		return out, ErrFishProtected
	}
	if prey.markedByFishID != nil && prey.markExpiresAt != nil &&
		now.Before(*prey.markExpiresAt) && *prey.markedByFishID != hunterID {
		return out, ErrMarkExclusivity
	}
	timeUntil := prey.lastFedAt.Add(s.pol.HungerAfter).Sub(now)
	if timeUntil <= 0 || timeUntil > s.pol.MarkWindow {
		return out, ErrMarkWindow
	}

	preyValue, err := ShareToValue(pool.totals.Balance, pool.totals.Shares, prey.share)
	if err != nil {
		return out, err
	}
	cost := MarkCost(preyValue, timeUntil, s.pol)
	spendable, err := ledger.SpendableTx(ctx, tx, in.UserID)
	if err != nil {
		return out, err
	}
	if spendable < cost {
		return out, ErrInsufficientFund
	}

	expires := now.Add(s.pol.MarkExclusivity)
	cmd, err := tx.Exec(ctx, `
		UPDATE ocean.fish
		SET marked_by_fish_id = $1, mark_expires_at = $2, version = version + 1
		WHERE id = $3 AND version = $4 AND status = 'alive'
	`, hunterID, expires, preyID, in.PreyVersion)
	if err != nil {
		return out, err
	}
	if cmd.RowsAffected() == 0 {
		return out, ErrVersionConflict
	}
	cmd, err = tx.Exec(ctx, `
		UPDATE ocean.fish SET version = version + 1
		WHERE id = $1 AND version = $2 AND status = 'alive'
	`, hunterID, in.HunterVersion)
	if err != nil {
		return out, err
	}
	if cmd.RowsAffected() == 0 {
		return out, ErrVersionConflict
	}

	totals := pool.totals
	totals.Balance += cost
	if err := writePoolTx(ctx, tx, pool.totalFishCount, totals); err != nil {
		return out, err
	}
	if err := ledger.AppendTx(ctx, tx, in.UserID, -cost, "mark_fee", preyID.String()); err != nil {
		return out, err
	}
	if err := appendEventTx(ctx, tx, EventMarked, &preyID, &hunterID, in.UserID, cost, ""); err != nil {
		return out, err
	}
	if err := tx.Commit(ctx); err != nil {
		return out, err
	}

	hunter.version++
	prey.version++
	prey.markedByFishID = &hunterID
	prey.markExpiresAt = &expires
	out.Hunter = s.view(hunter, totals)
	out.Prey = s.view(prey, totals)
	out.CostNanos = cost
	out.MarkExpiresAt = expires
	return out, nil
}

// Hunt settles the prey's entire share: 80% to the hunter, 10% burned into
// the pool, 10% removed and paid to the admin account, in that order. The
// prey flips to dead and keeps its row for history and resurrection.
// huntChecks validates a hunt in a fixed order: hunter side first (ownership,
// alive, cooldown, version), then the prey. The order is observable through
// the returned error: a hunter still on cooldown gets ErrHuntNotReady even
// when the prey has since died, because retrying the same prey after a kill
// is the common client mistake and cooldown is the answer that explains it.
func huntChecks(hunter, prey fishRow, in HuntInput, now time.Time, pol Policy) error {
	if hunter.ownerUserID != in.UserID {
		return ErrNotOwner
	}
	if hunter.status != StatusAlive {
		return ErrInvalidState
	}
	if now.Before(hunter.canHuntAfter) {
		return ErrHuntNotReady
	}
	if err := checkVersion(hunter, in.HunterVersion); err != nil {
		return err
	}
	if prey.status != StatusAlive {
		return ErrInvalidState
	}
	if err := checkVersion(prey, in.PreyVersion); err != nil {
		return err
	}
	if prey.isProtected && prey.protectionEnds != nil && now.Before(*prey.protectionEnds) {
		return ErrFishProtected
	}
	hungry := !now.Before(prey.lastFedAt.Add(pol.HungerAfter))
	marked := prey.markedByFishID != nil && *prey.markedByFishID == hunter.id &&
		prey.markExpiresAt != nil && now.Before(*prey.markExpiresAt)
	if !hungry && !marked {
		return ErrPreyNotHungry
	}
	return nil
}

func (s *Service) Hunt(ctx context.Context, in HuntInput) (HuntResult, error) {
	var out HuntResult
	hunterID, err := uuid.Parse(in.HunterFishID)
	if err != nil {
		return out, ErrFishNotFound
	}
	preyID, err := uuid.Parse(in.PreyFishID)
	if err != nil {
		return out, ErrFishNotFound
	}
	if hunterID == preyID {
		return out, ErrSelfTarget
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return out, err
	}
	defer tx.Rollback(ctx)

	pool, err := lockPoolTx(ctx, tx)
	if err != nil {
		return out, err
	}
	hunter, err := getFishTx(ctx, tx, hunterID)
	if err != nil {
		return out, err
	}
	prey, err := getFishTx(ctx, tx, preyID)
	if err != nil {
		return out, err
	}
	now := time.Now().UTC()
	if err := huntChecks(hunter, prey, in, now, s.pol); err != nil {
		return out, err
	}

	totals, outcome, err := ApplyHunt(pool.totals, prey.share, s.pol)
	if err != nil {
		return out, err
	}

	cmd, err := tx.Exec(ctx, `
		UPDATE ocean.fish
		SET share = 0, status = 'dead', died_at = $1,
		    marked_by_fish_id = NULL, mark_expires_at = NULL,
		    version = version + 1
		WHERE id = $2 AND version = $3 AND status = 'alive'
	`, now, preyID, in.PreyVersion)
	if err != nil {
		return out, err
	}
	if cmd.RowsAffected() == 0 {
		return out, ErrVersionConflict
	}
	cooldownUntil := now.Add(s.pol.HuntCooldown)
	cmd, err = tx.Exec(ctx, `
		UPDATE ocean.fish
		SET share = share + $1, can_hunt_after = $2, version = version + 1
		WHERE id = $3 AND version = $4 AND status = 'alive'
	`, outcome.HunterShare, cooldownUntil, hunterID, in.HunterVersion)
	if err != nil {
		return out, err
	}
	if cmd.RowsAffected() == 0 {
		return out, ErrVersionConflict
	}

	if err := writePoolTx(ctx, tx, pool.totalFishCount-1, totals); err != nil {
		return out, err
	}
	if outcome.AdminValue > 0 {
		if err := ledger.AppendTx(ctx, tx, s.adminUserID, outcome.AdminValue, "hunt_admin_cut", preyID.String()); err != nil {
			return out, err
		}
	}
	if err := appendEventTx(ctx, tx, EventHunted, &preyID, &hunterID, prey.ownerUserID, outcome.ReceivedValue, prey.name); err != nil {
		return out, err
	}
	if err := tx.Commit(ctx); err != nil {
		return out, err
	}

	hunter.share += outcome.HunterShare
	hunter.canHuntAfter = cooldownUntil
	hunter.version++
	prey.share = 0
	prey.status = StatusDead
	prey.markedByFishID = nil
	prey.markExpiresAt = nil
	prey.version++
	out.Hunter = s.view(hunter, totals)
	out.Prey = s.view(prey, totals)
	out.ReceivedNanos = outcome.ReceivedValue
	return out, nil
}

// Exit burns the fish's share, pays the owner the post-fee value and retires
// the row as exited. Refused while a storm cycle is active.
func (s *Service) Exit(ctx context.Context, in ExitInput) (ExitResult, error) {
	var out ExitResult
	fishID, err := uuid.Parse(in.FishID)
	if err != nil {
		return out, ErrFishNotFound
	}
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return out, err
	}
	defer tx.Rollback(ctx)

	pool, err := lockPoolTx(ctx, tx)
	if err != nil {
		return out, err
	}
	if pool.isStorm {
		return out, ErrStormActive
	}
	fish, err := getFishTx(ctx, tx, fishID)
	if err != nil {
		return out, err
	}
	if fish.ownerUserID != in.UserID {
		return out, ErrNotOwner
	}
	if fish.status != StatusAlive {
		return out, ErrInvalidState
	}
	if err := checkVersion(fish, in.ExpectedVersion); err != nil {
		return out, err
	}

	totals, outcome, err := ApplyExit(pool.totals, fish.share, s.pol)
	if err != nil {
		return out, err
	}

	now := time.Now().UTC()
	cmd, err := tx.Exec(ctx, `
		UPDATE ocean.fish
		SET share = 0, status = 'exited', exited_at = $1,
		    marked_by_fish_id = NULL, mark_expires_at = NULL,
		    version = version + 1
		WHERE id = $2 AND version = $3 AND status = 'alive'
	`, now, fishID, in.ExpectedVersion)
	if err != nil {
		return out, err
	}
	if cmd.RowsAffected() == 0 {
		return out, ErrVersionConflict
	}
	if err := writePoolTx(ctx, tx, pool.totalFishCount-1, totals); err != nil {
		return out, err
	}
	if outcome.Payout > 0 {
		if err := ledger.AppendTx(ctx, tx, in.UserID, outcome.Payout, "fish_exit", fishID.String()); err != nil {
			return out, err
		}
	}
	if outcome.Fee > 0 {
		if err := ledger.AppendTx(ctx, tx, s.adminUserID, outcome.Fee, "exit_fee", fishID.String()); err != nil {
			return out, err
		}
	}
	if err := appendEventTx(ctx, tx, EventExited, &fishID, nil, in.UserID, outcome.Payout, fish.name); err != nil {
		return out, err
	}
	if err := tx.Commit(ctx); err != nil {
		return out, err
	}

	fish.share = 0
	fish.status = StatusExited
	fish.version++
	out.Fish = s.view(fish, totals)
	out.PayoutNanos = outcome.Payout
	out.FeeNanos = outcome.Fee
	return out, nil
}

// Resurrect mints a brand-new fish for the owner of a dead one. The dead row
// is never touched; its id stays retired but queryable.
func (s *Service) Resurrect(ctx context.Context, in ResurrectInput) (FishView, error) {
	deadID, err := uuid.Parse(in.DeadFishID)
	if err != nil {
		return FishView{}, ErrFishNotFound
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := ValidateFishName(in.Name); err != nil {
		return FishView{}, err
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return FishView{}, err
	}
	defer tx.Rollback(ctx)

	pool, err := lockPoolTx(ctx, tx)
	if err != nil {
		return FishView{}, err
	}
	dead, err := getFishTx(ctx, tx, deadID)
	if err != nil {
		return FishView{}, err
	}
	if dead.ownerUserID != in.UserID {
		return FishView{}, ErrNotOwner
	}
	if dead.status != StatusDead {
		return FishView{}, ErrInvalidState
	}

	view, err := s.spawnTx(ctx, tx, &pool, in.UserID, in.Name, in.AmountNanos, "fish_resurrect", EventResurrected, deadID.String())
	if err != nil {
		return FishView{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return FishView{}, err
	}
	return view, nil
}

// TransferOwnership reassigns an alive fish to another user. No pool impact.
func (s *Service) TransferOwnership(ctx context.Context, in TransferInput) (FishView, error) {
	fishID, err := uuid.Parse(in.FishID)
	if err != nil {
		return FishView{}, ErrFishNotFound
	}
	newOwner := strings.TrimSpace(in.NewOwnerID)
	if newOwner == "" || newOwner == in.UserID {
		return FishView{}, fmt.Errorf("new owner must be a different user")
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return FishView{}, err
	}
	defer tx.Rollback(ctx)

	fish, err := getFishTx(ctx, tx, fishID)
	if err != nil {
		return FishView{}, err
	}
	if fish.ownerUserID != in.UserID {
		return FishView{}, ErrNotOwner
	}
	if fish.status != StatusAlive {
		return FishView{}, ErrInvalidState
	}
	if err := checkVersion(fish, in.ExpectedVersion); err != nil {
		return FishView{}, err
	}
	cmd, err := tx.Exec(ctx, `
		UPDATE ocean.fish SET owner_user_id = $1, version = version + 1
		WHERE id = $2 AND version = $3 AND status = 'alive'
	`, newOwner, fishID, in.ExpectedVersion)
	if err != nil {
		return FishView{}, err
	}
	if cmd.RowsAffected() == 0 {
		return FishView{}, ErrVersionConflict
	}
	if err := tx.Commit(ctx); err != nil {
		return FishView{}, err
	}

	fish.ownerUserID = newOwner
	fish.version++
	totals, err := s.readTotals(ctx)
	if err != nil {
		return FishView{}, err
	}
	return s.view(fish, totals), nil
}

func (s *Service) readTotals(ctx context.Context) (Totals, error) {
	var t Totals
	err := s.db.QueryRow(ctx, `SELECT total_shares, balance_nanos FROM ocean.pools WHERE id = 1`).
		Scan(&t.Shares, &t.Balance)
	return t, err
}

// view prices a fish against the given totals. A drained pool renders alive
// shares as worthless rather than failing a read.
func (s *Service) view(f fishRow, t Totals) FishView {
	value, err := ShareToValue(t.Balance, t.Shares, f.share)
	if err != nil {
		value = 0
	}
	v := FishView{
		ID: f.id.String(), OwnerUserID: f.ownerUserID, Name: f.name,
		Share: f.share, ValueNanos: value, Status: f.status, Version: f.version,
		CreatedAt: f.createdAt, LastFedAt: f.lastFedAt,
		HungryAt:     f.lastFedAt.Add(s.pol.HungerAfter),
		CanHuntAfter: f.canHuntAfter,
		IsProtected:  f.isProtected, ProtectionEndsAt: f.protectionEnds,
		MarkExpiresAt: f.markExpiresAt,
	}
	if f.markedByFishID != nil {
		v.MarkedByFishID = f.markedByFishID.String()
	}
	return v
}

func (s *Service) GetFish(ctx context.Context, id string) (FishView, error) {
	fishID, err := uuid.Parse(id)
	if err != nil {
		return FishView{}, ErrFishNotFound
	}
	f, err := scanFish(s.db.QueryRow(ctx, `SELECT `+fishColumns+` FROM ocean.fish WHERE id = $1`, fishID))
	if err != nil {
		return FishView{}, err
	}
	totals, err := s.readTotals(ctx)
	if err != nil {
		return FishView{}, err
	}
	return s.view(f, totals), nil
}

func (s *Service) ListFish(ctx context.Context, ownerUserID string) ([]FishView, error) {
	totals, err := s.readTotals(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+fishColumns+` FROM ocean.fish
		WHERE owner_user_id = $1
		ORDER BY created_at DESC
	`, ownerUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]FishView, 0)
	for rows.Next() {
		f, err := scanFish(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s.view(f, totals))
	}
	return out, rows.Err()
}

func (s *Service) FishEvents(ctx context.Context, id string, limit int) ([]EventView, error) {
	fishID, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrFishNotFound
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, kind, fish_id, actor_fish_id, amount_nanos, detail, created_at
		FROM ocean.events
		WHERE fish_id = $1 OR actor_fish_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, fishID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]EventView, error) {
	out := make([]EventView, 0)
	for rows.Next() {
		var e EventView
		var fid, aid *uuid.UUID
		if err := rows.Scan(&e.ID, &e.Kind, &fid, &aid, &e.AmountNanos, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		if fid != nil {
			e.FishID = fid.String()
		}
		if aid != nil {
			e.ActorFishID = aid.String()
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Service) Snapshot(ctx context.Context) (OceanView, error) {
	var v OceanView
	err := s.db.QueryRow(ctx, `
		SELECT total_fish_count, total_shares, balance_nanos, is_storm,
		       feeding_bps, storm_probability_bps, cycle_start, next_mode_change
		FROM ocean.pools WHERE id = 1
	`).Scan(&v.TotalFishCount, &v.TotalShares, &v.BalanceNanos, &v.IsStorm,
		&v.FeedingBps, &v.StormProbabilityBps, &v.CycleStart, &v.NextModeChange)
	return v, err
}

// RolloverCycle flips the ocean into or out of storm mode. When force is
// false the rollover only happens once the scheduled mode change is due;
// the worker calls this on a ticker.
func (s *Service) RolloverCycle(ctx context.Context, force bool) (OceanView, bool, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return OceanView{}, false, err
	}
	defer tx.Rollback(ctx)

	pool, err := lockPoolTx(ctx, tx)
	if err != nil {
		return OceanView{}, false, err
	}
	now := time.Now().UTC()
	if !force && now.Before(pool.nextModeChange) {
		return OceanView{}, false, nil
	}

	storm := s.nextFloat()*10_000 < float64(pool.stormProbabilityBps)
	next := now.Add(s.pol.CycleLength)
	_, err = tx.Exec(ctx, `
		UPDATE ocean.pools
		SET is_storm = $1, cycle_start = $2, next_mode_change = $3,
		    feeding_bps = $4, storm_probability_bps = $5, updated_at = now()
		WHERE id = 1
	`, storm, now, next, s.pol.FeedingBps, s.pol.StormProbabilityBps)
	if err != nil {
		return OceanView{}, false, err
	}
	kind := EventCalm
	if storm {
		kind = EventStorm
	}
	if err := appendEventTx(ctx, tx, kind, nil, nil, "", 0, ""); err != nil {
		return OceanView{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return OceanView{}, false, err
	}

	view := OceanView{
		TotalFishCount: pool.totalFishCount,
		TotalShares:    pool.totals.Shares,
		BalanceNanos:   pool.totals.Balance,
		IsStorm:        storm,
		FeedingBps:     s.pol.FeedingBps, StormProbabilityBps: s.pol.StormProbabilityBps,
		CycleStart: now, NextModeChange: next,
	}
	return view, true, nil
}

func (s *Service) nextFloat() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rand.Float64()
}
