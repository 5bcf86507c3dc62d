package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fintank/internal/chain"
	"fintank/internal/money"
)

// ChainReader is the slice of the chain client the sync loop needs.
type ChainReader interface {
	TransfersByMemo(ctx context.Context, memo string) ([]chain.Transfer, error)
}

type Service struct {
	db                    *pgxpool.Pool
	log                   *slog.Logger
	chain                 ChainReader
	depositAddress        string
	requiredConfirmations int
}

func NewService(db *pgxpool.Pool, logger *slog.Logger, reader ChainReader, depositAddress string, requiredConfirmations int) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if requiredConfirmations < 1 {
		requiredConfirmations = 1
	}
	return &Service{
		db:                    db,
		log:                   logger,
		chain:                 reader,
		depositAddress:        depositAddress,
		requiredConfirmations: requiredConfirmations,
	}
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AppendTx writes one ledger entry inside the caller's transaction. Game
// settlements use this so the money movement commits with the pool mutation.
func AppendTx(ctx context.Context, tx pgx.Tx, userID string, delta int64, reason, refID string) error {
	if delta == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO bank.ledger_entries (user_id, delta_nanos, reason, ref_id)
		VALUES ($1, $2, $3, $4)
	`, userID, delta, reason, refID)
	if err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// appendPaymentTx writes the single entry tied to a payment. The unique index
// on payment_id makes replays a no-op; the bool reports whether this call won.
func appendPaymentTx(ctx context.Context, tx pgx.Tx, userID, paymentID string, delta int64, reason string) (bool, error) {
	cmd, err := tx.Exec(ctx, `
		INSERT INTO bank.ledger_entries (user_id, payment_id, delta_nanos, reason)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (payment_id) DO NOTHING
	`, userID, paymentID, delta, reason)
	if err != nil {
		return false, fmt.Errorf("append payment entry: %w", err)
	}
	return cmd.RowsAffected() == 1, nil
}

// BalanceTx sums the user's ledger inside the caller's transaction.
func BalanceTx(ctx context.Context, q querier, userID string) (int64, error) {
	var balance int64
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(delta_nanos), 0) FROM bank.ledger_entries WHERE user_id = $1
	`, userID).Scan(&balance)
	return balance, err
}

// SpendableTx is the balance minus everything reserved by withdrawals that
// are requested or approved but not yet dispatched. Spends (spawn, feed,
// mark, withdraw) must check this figure, not the raw balance.
func SpendableTx(ctx context.Context, q querier, userID string) (int64, error) {
	var spendable int64
	err := q.QueryRow(ctx, `
		SELECT COALESCE((SELECT SUM(delta_nanos) FROM bank.ledger_entries WHERE user_id = $1), 0)
		     - COALESCE((SELECT SUM(amount_nanos) FROM bank.withdrawals
		                 WHERE user_id = $1 AND status IN ('pending', 'approved')), 0)
	`, userID).Scan(&spendable)
	return spendable, err
}

func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	return BalanceTx(ctx, s.db, userID)
}

func (s *Service) Spendable(ctx context.Context, userID string) (int64, error) {
	return SpendableTx(ctx, s.db, userID)
}

// newMemo issues the random reconciliation tag stamped on a deposit intent.
func newMemo() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return "FT-" + strings.ToUpper(hex.EncodeToString(b))
}

// shouldConfirm reports whether an observed transfer has settled deep enough.
func shouldConfirm(confirmations, required int) bool {
	return confirmations >= required
}

// CreateDepositIntent opens a pending deposit payment under a fresh memo and
// returns what the client needs to send funds.
func (s *Service) CreateDepositIntent(ctx context.Context, userID string, amountNanos int64) (DepositIntent, error) {
	if amountNanos <= 0 {
		return DepositIntent{}, ErrBadAmount
	}
	id := uuid.New().String()
	memo := newMemo()
	_, err := s.db.Exec(ctx, `
		INSERT INTO bank.payments (id, user_id, direction, asset, amount_nanos, status, memo)
		VALUES ($1, $2, 'deposit', $3, $4, 'pending', $5)
	`, id, userID, money.Asset, amountNanos, memo)
	if err != nil {
		return DepositIntent{}, err
	}
	return DepositIntent{
		PaymentID:      id,
		DepositAddress: s.depositAddress,
		Asset:          money.Asset,
		Memo:           memo,
		AmountNanos:    amountNanos,
	}, nil
}

// RecordInbound ingests one observed transfer. Replays of an already-seen
// txHash only refresh the confirmation count; the credit side is guarded by
// the unique payment_id entry, so the whole call is idempotent.
func (s *Service) RecordInbound(ctx context.Context, t chain.Transfer) error {
	if t.TxHash == "" || t.Memo == "" {
		return fmt.Errorf("inbound transfer missing tx_hash or memo")
	}
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var storedMemo string
	err = tx.QueryRow(ctx, `
		INSERT INTO bank.inbound_transfers (tx_hash, amount_nanos, memo, confirmations)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tx_hash) DO UPDATE
		SET confirmations = GREATEST(bank.inbound_transfers.confirmations, EXCLUDED.confirmations)
		RETURNING memo
	`, t.TxHash, t.AmountNanos, t.Memo, t.Confirmations).Scan(&storedMemo)
	if err != nil {
		return err
	}
	// A hash settles against the memo it was first seen with. A replay that
	// carries a different memo only refreshes the confirmation count; without
	// this guard it would try to confirm a second payment under the same hash.
	if storedMemo != t.Memo {
		s.log.Warn("replayed tx_hash with different memo ignored",
			"tx_hash", t.TxHash, "memo", t.Memo, "stored_memo", storedMemo)
		return tx.Commit(ctx)
	}
	if err := s.settleDepositTx(ctx, tx, t); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// settleDepositTx matches a transfer to its pending deposit by memo and, once
// confirmed deep enough, records the hash and appends the single credit.
func (s *Service) settleDepositTx(ctx context.Context, tx pgx.Tx, t chain.Transfer) error {
	var (
		paymentID string
		userID    string
		status    string
	)
	err := tx.QueryRow(ctx, `
		SELECT id, user_id, status FROM bank.payments
		WHERE memo = $1 AND direction = 'deposit'
		FOR UPDATE
	`, t.Memo).Scan(&paymentID, &userID, &status)
	if err == pgx.ErrNoRows {
		// No intent carries this memo; keep the raw transfer for later audit.
		s.log.Warn("inbound transfer without matching intent", "tx_hash", t.TxHash, "memo", t.Memo)
		return nil
	}
	if err != nil {
		return err
	}
	if status != StatusPending || !shouldConfirm(t.Confirmations, s.requiredConfirmations) {
		return nil
	}

	// Credit what actually arrived, not what the intent asked for.
	_, err = tx.Exec(ctx, `
		UPDATE bank.payments
		SET status = 'confirmed', tx_hash = $1, amount_nanos = $2, confirmed_at = now()
		WHERE id = $3 AND status = 'pending'
	`, t.TxHash, t.AmountNanos, paymentID)
	if err != nil {
		return err
	}
	credited, err := appendPaymentTx(ctx, tx, userID, paymentID, t.AmountNanos, "deposit")
	if err != nil {
		return err
	}
	if credited {
		s.log.Info("deposit confirmed",
			"payment_id", paymentID, "user_id", userID,
			"amount", money.FormatPearl(t.AmountNanos), "tx_hash", t.TxHash)
	}
	return nil
}

// SyncPending re-polls the indexer for every pending deposit intent. Failures
// on one memo are logged and left for the next pass.
func (s *Service) SyncPending(ctx context.Context) error {
	rows, err := s.db.Query(ctx, `
		SELECT memo FROM bank.payments
		WHERE direction = 'deposit' AND status = 'pending'
		ORDER BY created_at
	`)
	if err != nil {
		return err
	}
	memos := make([]string, 0)
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			rows.Close()
			return err
		}
		memos = append(memos, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, memo := range memos {
		transfers, err := s.chain.TransfersByMemo(ctx, memo)
		if err != nil {
			s.log.Error("chain lookup failed", "memo", memo, "err", err)
			continue
		}
		for _, t := range transfers {
			if err := s.RecordInbound(ctx, t); err != nil {
				s.log.Error("inbound settlement failed", "tx_hash", t.TxHash, "err", err)
			}
		}
	}
	return nil
}

// RequestWithdrawal opens a pending withdrawal if the user's spendable
// balance covers it. The per-user advisory lock closes the race between two
// concurrent requests both passing the balance check.
func (s *Service) RequestWithdrawal(ctx context.Context, userID string, amountNanos int64, network, toAddress string) (Withdrawal, error) {
	if amountNanos <= 0 {
		return Withdrawal{}, ErrBadAmount
	}
	network = strings.TrimSpace(network)
	toAddress = strings.TrimSpace(toAddress)
	if network == "" || toAddress == "" {
		return Withdrawal{}, fmt.Errorf("network and to_address are required")
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return Withdrawal{}, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "withdraw:"+userID); err != nil {
		return Withdrawal{}, err
	}
	spendable, err := SpendableTx(ctx, tx, userID)
	if err != nil {
		return Withdrawal{}, err
	}
	if spendable < amountNanos {
		return Withdrawal{}, ErrInsufficientFunds
	}

	w := Withdrawal{
		ID:          uuid.New().String(),
		UserID:      userID,
		AmountNanos: amountNanos,
		Status:      WithdrawalPending,
		Network:     network,
		ToAddress:   toAddress,
		CreatedAt:   time.Now().UTC(),
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO bank.withdrawals (id, user_id, amount_nanos, status, network, to_address, created_at)
		VALUES ($1, $2, $3, 'pending', $4, $5, $6)
	`, w.ID, w.UserID, w.AmountNanos, w.Network, w.ToAddress, w.CreatedAt)
	if err != nil {
		return Withdrawal{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Withdrawal{}, err
	}
	return w, nil
}

// ApproveWithdrawal moves a pending withdrawal to approved. No ledger entry
// yet; the debit lands only at dispatch so an approved-but-never-sent
// withdrawal cannot under-count the balance.
func (s *Service) ApproveWithdrawal(ctx context.Context, id string) (Withdrawal, error) {
	cmd, err := s.db.Exec(ctx, `
		UPDATE bank.withdrawals SET status = 'approved', approved_at = now()
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return Withdrawal{}, err
	}
	if cmd.RowsAffected() == 0 {
		return s.transitionFailure(ctx, id)
	}
	return s.GetWithdrawal(ctx, id)
}

// RejectWithdrawal is terminal; a rejected withdrawal releases its reserve
// and is never retried.
func (s *Service) RejectWithdrawal(ctx context.Context, id, reason string) (Withdrawal, error) {
	cmd, err := s.db.Exec(ctx, `
		UPDATE bank.withdrawals SET status = 'rejected', failure = $2
		WHERE id = $1 AND status = 'pending'
	`, id, reason)
	if err != nil {
		return Withdrawal{}, err
	}
	if cmd.RowsAffected() == 0 {
		return s.transitionFailure(ctx, id)
	}
	return s.GetWithdrawal(ctx, id)
}

func (s *Service) transitionFailure(ctx context.Context, id string) (Withdrawal, error) {
	if _, err := s.GetWithdrawal(ctx, id); err != nil {
		return Withdrawal{}, err
	}
	return Withdrawal{}, ErrInvalidTransition
}

// ApprovedBatch returns the oldest approved withdrawals, FIFO by approval
// time. The dispatcher drains these.
func (s *Service) ApprovedBatch(ctx context.Context, limit int) ([]Withdrawal, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+withdrawalColumns+` FROM bank.withdrawals
		WHERE status = 'approved' ORDER BY approved_at LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Withdrawal, 0)
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// MarkDispatched records a sent withdrawal: the outbound payment row, the
// single debit entry tied to it, and the status flip, all in one transaction.
// This is the moment the user's ledger actually goes down.
func (s *Service) MarkDispatched(ctx context.Context, id, txHash string) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	w, err := scanWithdrawal(tx.QueryRow(ctx,
		`SELECT `+withdrawalColumns+` FROM bank.withdrawals WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return err
	}
	if w.Status != WithdrawalApproved {
		return ErrInvalidTransition
	}

	paymentID := uuid.New().String()
	_, err = tx.Exec(ctx, `
		INSERT INTO bank.payments (id, user_id, direction, asset, amount_nanos, status, tx_hash, confirmed_at)
		VALUES ($1, $2, 'withdraw', $3, $4, 'confirmed', $5, now())
	`, paymentID, w.UserID, money.Asset, w.AmountNanos, txHash)
	if err != nil {
		return err
	}
	debited, err := appendPaymentTx(ctx, tx, w.UserID, paymentID, -w.AmountNanos, "withdrawal")
	if err != nil {
		return err
	}
	if !debited {
		return fmt.Errorf("withdrawal %s: debit entry already exists for payment %s", id, paymentID)
	}
	_, err = tx.Exec(ctx, `
		UPDATE bank.withdrawals SET status = 'dispatched', tx_hash = $1, dispatched_at = now()
		WHERE id = $2 AND status = 'approved'
	`, txHash, id)
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.log.Info("withdrawal dispatched",
		"withdrawal_id", id, "user_id", w.UserID,
		"amount", money.FormatPearl(w.AmountNanos), "tx_hash", txHash)
	return nil
}

// MarkFailed parks an approved withdrawal after a send failure. The reserve
// is released; nothing was debited, so the user can simply request again.
func (s *Service) MarkFailed(ctx context.Context, id, reason string) error {
	cmd, err := s.db.Exec(ctx, `
		UPDATE bank.withdrawals SET status = 'failed', failure = $2
		WHERE id = $1 AND status = 'approved'
	`, id, reason)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

const withdrawalColumns = `id, user_id, amount_nanos, status, network, to_address,
	COALESCE(tx_hash, ''), failure, created_at, approved_at, dispatched_at`

func scanWithdrawal(row pgx.Row) (Withdrawal, error) {
	var w Withdrawal
	err := row.Scan(&w.ID, &w.UserID, &w.AmountNanos, &w.Status, &w.Network, &w.ToAddress,
		&w.TxHash, &w.Failure, &w.CreatedAt, &w.ApprovedAt, &w.DispatchedAt)
	if err == pgx.ErrNoRows {
		return w, ErrWithdrawalNotFound
	}
	return w, err
}

func (s *Service) GetWithdrawal(ctx context.Context, id string) (Withdrawal, error) {
	return scanWithdrawal(s.db.QueryRow(ctx,
		`SELECT `+withdrawalColumns+` FROM bank.withdrawals WHERE id = $1`, id))
}

func (s *Service) ListWithdrawals(ctx context.Context, userID string, limit int) ([]Withdrawal, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+withdrawalColumns+` FROM bank.withdrawals
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Withdrawal, 0)
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *Service) Entries(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, COALESCE(payment_id::text, ''), delta_nanos, reason, ref_id, created_at
		FROM bank.ledger_entries
		WHERE user_id = $1 ORDER BY id DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.PaymentID, &e.DeltaNanos, &e.Reason, &e.RefID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Service) Payments(ctx context.Context, userID string, limit int) ([]Payment, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, direction, asset, amount_nanos, status,
		       COALESCE(tx_hash, ''), COALESCE(memo, ''), created_at, confirmed_at
		FROM bank.payments
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Payment, 0)
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.UserID, &p.Direction, &p.Asset, &p.AmountNanos,
			&p.Status, &p.TxHash, &p.Memo, &p.CreatedAt, &p.ConfirmedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
