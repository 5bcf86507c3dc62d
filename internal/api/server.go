package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fintank/internal/auth"
	"fintank/internal/chain"
	"fintank/internal/config"
	"fintank/internal/ledger"
	"fintank/internal/ocean"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type contextKey string

const userContextKey contextKey = "user"

type UserContext struct {
	UserID  string
	Address string
	Token   string
}

type Server struct {
	cfg   config.APIConfig
	log   *slog.Logger
	auth  *auth.WalletClient
	gate  *auth.AdminGate
	ocean *ocean.Service
	bank  *ledger.Service
	mux   *chi.Mux
}

func New(cfg config.APIConfig, logger *slog.Logger, walletClient *auth.WalletClient, oceanSvc *ocean.Service, bankSvc *ledger.Service) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:   cfg,
		log:   logger,
		auth:  walletClient,
		gate:  auth.NewAdminGate(cfg.AdminSecretHash),
		ocean: oceanSvc,
		bank:  bankSvc,
		mux:   chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(metricsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/challenge", s.handleAuthChallenge)
		r.Post("/auth/verify", s.handleAuthVerify)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/ocean", s.handleOcean)

			r.Post("/fish", s.handleSpawn)
			r.Get("/fish", s.handleListFish)
			r.Get("/fish/{id}", s.handleGetFish)
			r.Get("/fish/{id}/events", s.handleFishEvents)
			r.Post("/fish/{id}/feed", s.handleFeed)
			r.Post("/fish/{id}/mark", s.handleMark)
			r.Post("/fish/{id}/hunt", s.handleHunt)
			r.Post("/fish/{id}/exit", s.handleExit)
			r.Post("/fish/{id}/resurrect", s.handleResurrect)
			r.Post("/fish/{id}/transfer", s.handleTransfer)

			r.Get("/balance", s.handleBalance)
			r.Get("/ledger", s.handleLedger)
			r.Get("/payments", s.handlePayments)
			r.Post("/deposits/intent", s.handleDepositIntent)
			r.Post("/withdrawals", s.handleRequestWithdrawal)
			r.Get("/withdrawals", s.handleListWithdrawals)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.serviceTokenMiddleware)
			r.Post("/integrations/inbound-transfer", s.handleInboundTransfer)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.adminMiddleware)
			r.Post("/admin/withdrawals/{id}/approve", s.handleApproveWithdrawal)
			r.Post("/admin/withdrawals/{id}/reject", s.handleRejectWithdrawal)
			r.Post("/admin/ocean/cycle", s.handleCycleRollover)
		})
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		user, err := s.auth.VerifyAccessToken(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, fmt.Sprintf("invalid token: %v", err))
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, UserContext{
			UserID:  user.ID,
			Address: user.Address,
			Token:   token,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) serviceTokenMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if err := auth.CheckServiceToken(s.cfg.ServiceToken, token); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid service token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.gate.Check(r.Header.Get("X-Admin-Secret")); err != nil {
			writeError(w, http.StatusForbidden, "admin secret rejected")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func userFromContext(ctx context.Context) (UserContext, error) {
	v := ctx.Value(userContextKey)
	user, ok := v.(UserContext)
	if !ok || user.UserID == "" {
		return UserContext{}, errors.New("missing auth context")
	}
	return user, nil
}

func (s *Server) handleAuthChallenge(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Address string `json:"address"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	challenge, err := s.auth.BeginChallenge(r.Context(), strings.TrimSpace(in.Address))
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"challenge": challenge})
}

func (s *Server) handleAuthVerify(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Address   string `json:"address"`
		Signature string `json:"signature"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := s.auth.CompleteChallenge(r.Context(), strings.TrimSpace(in.Address), strings.TrimSpace(in.Signature))
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleOcean(w http.ResponseWriter, r *http.Request) {
	out, err := s.ocean.Snapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSpawn(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Name        string `json:"name"`
		AmountNanos int64  `json:"amount_nanos"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.ocean.Spawn(r.Context(), ocean.SpawnInput{
		UserID:      user.UserID,
		Name:        in.Name,
		AmountNanos: in.AmountNanos,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	settlementsTotal.WithLabelValues("spawn").Inc()
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleListFish(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	owner := user.UserID
	if q := strings.TrimSpace(r.URL.Query().Get("owner")); q != "" && q != "me" {
		owner = q
	}
	out, err := s.ocean.ListFish(r.Context(), owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fish": out})
}

func (s *Server) handleGetFish(w http.ResponseWriter, r *http.Request) {
	out, err := s.ocean.GetFish(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleFishEvents(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := s.ocean.FishEvents(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		ExpectedVersion int64 `json:"expected_version"`
		AmountNanos     int64 `json:"amount_nanos"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.ocean.Feed(r.Context(), ocean.FeedInput{
		UserID:          user.UserID,
		FishID:          chi.URLParam(r, "id"),
		ExpectedVersion: in.ExpectedVersion,
		AmountNanos:     in.AmountNanos,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	settlementsTotal.WithLabelValues("feed").Inc()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMark(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		HunterVersion int64  `json:"hunter_version"`
		PreyFishID    string `json:"prey_fish_id"`
		PreyVersion   int64  `json:"prey_version"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.ocean.PlaceMark(r.Context(), ocean.MarkInput{
		UserID:        user.UserID,
		HunterFishID:  chi.URLParam(r, "id"),
		HunterVersion: in.HunterVersion,
		PreyFishID:    in.PreyFishID,
		PreyVersion:   in.PreyVersion,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	settlementsTotal.WithLabelValues("mark").Inc()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHunt(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		HunterVersion int64  `json:"hunter_version"`
		PreyFishID    string `json:"prey_fish_id"`
		PreyVersion   int64  `json:"prey_version"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.ocean.Hunt(r.Context(), ocean.HuntInput{
		UserID:        user.UserID,
		HunterFishID:  chi.URLParam(r, "id"),
		HunterVersion: in.HunterVersion,
		PreyFishID:    in.PreyFishID,
		PreyVersion:   in.PreyVersion,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	settlementsTotal.WithLabelValues("hunt").Inc()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleExit(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		ExpectedVersion int64 `json:"expected_version"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.ocean.Exit(r.Context(), ocean.ExitInput{
		UserID:          user.UserID,
		FishID:          chi.URLParam(r, "id"),
		ExpectedVersion: in.ExpectedVersion,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	settlementsTotal.WithLabelValues("exit").Inc()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleResurrect(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Name        string `json:"name"`
		AmountNanos int64  `json:"amount_nanos"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.ocean.Resurrect(r.Context(), ocean.ResurrectInput{
		UserID:      user.UserID,
		DeadFishID:  chi.URLParam(r, "id"),
		Name:        in.Name,
		AmountNanos: in.AmountNanos,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	settlementsTotal.WithLabelValues("resurrect").Inc()
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		ExpectedVersion int64  `json:"expected_version"`
		NewOwnerID      string `json:"new_owner_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.ocean.TransferOwnership(r.Context(), ocean.TransferInput{
		UserID:          user.UserID,
		FishID:          chi.URLParam(r, "id"),
		ExpectedVersion: in.ExpectedVersion,
		NewOwnerID:      in.NewOwnerID,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	settlementsTotal.WithLabelValues("transfer").Inc()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	balance, err := s.bank.Balance(r.Context(), user.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	spendable, err := s.bank.Spendable(r.Context(), user.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"balance_nanos":   balance,
		"spendable_nanos": spendable,
	})
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := s.bank.Entries(r.Context(), user.UserID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

func (s *Server) handlePayments(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := s.bank.Payments(r.Context(), user.UserID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": out})
}

func (s *Server) handleDepositIntent(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		AmountNanos int64 `json:"amount_nanos"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.bank.CreateDepositIntent(r.Context(), user.UserID, in.AmountNanos)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleRequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		AmountNanos int64  `json:"amount_nanos"`
		Network     string `json:"network"`
		ToAddress   string `json:"to_address"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.bank.RequestWithdrawal(r.Context(), user.UserID, in.AmountNanos, in.Network, in.ToAddress)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleListWithdrawals(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := s.bank.ListWithdrawals(r.Context(), user.UserID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"withdrawals": out})
}

// handleInboundTransfer accepts an observed transfer from the indexer's
// webhook. Replays answer 202 exactly like first delivery.
func (s *Server) handleInboundTransfer(w http.ResponseWriter, r *http.Request) {
	var in struct {
		TxHash        string `json:"tx_hash"`
		AmountNanos   int64  `json:"amount_nanos"`
		Memo          string `json:"memo"`
		Confirmations int    `json:"confirmations"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err := s.bank.RecordInbound(r.Context(), chain.Transfer{
		TxHash:        strings.TrimSpace(in.TxHash),
		AmountNanos:   in.AmountNanos,
		Memo:          strings.TrimSpace(in.Memo),
		Confirmations: in.Confirmations,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

func (s *Server) handleApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	out, err := s.bank.ApproveWithdrawal(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.bank.RejectWithdrawal(r.Context(), chi.URLParam(r, "id"), in.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCycleRollover(w http.ResponseWriter, r *http.Request) {
	out, changed, err := s.ocean.RolloverCycle(r.Context(), true)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ocean": out, "changed": changed})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ocean.ErrVersionConflict),
		errors.Is(err, ocean.ErrMarkExclusivity),
		errors.Is(err, ocean.ErrHuntNotReady),
		errors.Is(err, ocean.ErrPreyNotHungry),
		errors.Is(err, ocean.ErrFishProtected),
		errors.Is(err, ocean.ErrStormActive),
		errors.Is(err, ocean.ErrInvalidState),
		errors.Is(err, ocean.ErrNameTaken),
		errors.Is(err, ledger.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ocean.ErrBelowMinimum),
		errors.Is(err, ocean.ErrInsufficientFund),
		errors.Is(err, ocean.ErrMarkWindow),
		errors.Is(err, ocean.ErrSelfTarget),
		errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrBadAmount):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ocean.ErrNotOwner):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ocean.ErrFishNotFound),
		errors.Is(err, ledger.ErrWithdrawalNotFound),
		errors.Is(err, ledger.ErrPaymentNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
