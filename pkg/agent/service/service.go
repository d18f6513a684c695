// Package service exposes the settlement agent's admin HTTP API:
// session lifecycle, credit profile settings, vouching, borrowing, and
// repayment. Mutating routes require a bearer token.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vouchnet/settlement-middleware/pkg/agent"
	apperrors "github.com/vouchnet/settlement-middleware/pkg/app/errors"
	apphttp "github.com/vouchnet/settlement-middleware/pkg/app/http"
	"github.com/vouchnet/settlement-middleware/pkg/credit"
	"github.com/vouchnet/settlement-middleware/pkg/creditstore"
)

type sessionManager interface {
	StartSession(ctx context.Context, privateKeyHex string) (agent.SessionInfo, error)
	StopSession(address string) error
	Session(address string) (agent.SessionInfo, error)
	Sessions() []agent.SessionInfo
}

type lender interface {
	CreateVouch(ctx context.Context, voucher, borrower string, limit int64) (*credit.Vouch, error)
	RevokeVouch(ctx context.Context, voucher string, vouchID int64) error
	Borrow(ctx context.Context, borrower string, amount int64) ([]*credit.Debt, error)
	Repay(ctx context.Context, borrower string, debtID int64, amount int64) (*creditstore.PaymentResult, error)
	MarkDefaulted(ctx context.Context, debtID int64) error
	AvailableCredit(ctx context.Context, borrower string) (int64, error)
	ListDebts(ctx context.Context, borrower string) ([]*credit.Debt, error)
	ListPayments(ctx context.Context, debtID int64) ([]*credit.Payment, error)
}

type profileStore interface {
	GetOrCreateProfile(ctx context.Context, address string) (*credit.Profile, error)
	SetGarnishPercent(ctx context.Context, address string, percent int) error
	SetAutoRepay(ctx context.Context, address string, enabled bool) error
}

type scoreHistorian interface {
	History(ctx context.Context, address string, limit int) ([]*credit.HistoryEntry, error)
}

type tokenGuard interface {
	Middleware(next http.Handler) http.Handler
}

// Handler serves the admin API.
type Handler struct {
	sessions sessionManager
	lending  lender
	store    profileStore
	ledger   scoreHistorian
	guard    tokenGuard
	logger   *zap.Logger
}

func NewHandler(sessions sessionManager, lending lender, store profileStore, ledger scoreHistorian, guard tokenGuard, logger *zap.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		lending:  lending,
		store:    store,
		ledger:   ledger,
		guard:    guard,
		logger:   logger,
	}
}

// Router builds the chi router for the admin API.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(h.guard.Middleware)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", apphttp.HandleError(h.startSession))
			r.Get("/", apphttp.HandleError(h.listSessions))
			r.Get("/{address}", apphttp.HandleError(h.getSession))
			r.Delete("/{address}", apphttp.HandleError(h.stopSession))
		})

		r.Route("/users/{address}", func(r chi.Router) {
			r.Get("/profile", apphttp.HandleError(h.getProfile))
			r.Put("/settings", apphttp.HandleError(h.updateSettings))
			r.Get("/history", apphttp.HandleError(h.getHistory))
			r.Get("/credit", apphttp.HandleError(h.getAvailableCredit))
			r.Get("/debts", apphttp.HandleError(h.listDebts))
		})

		r.Post("/vouches", apphttp.HandleError(h.createVouch))
		r.Delete("/vouches/{id}", apphttp.HandleError(h.revokeVouch))
		r.Post("/borrow", apphttp.HandleError(h.borrow))
		r.Post("/repay", apphttp.HandleError(h.repay))
		r.Get("/debts/{id}/payments", apphttp.HandleError(h.listPayments))
		r.Post("/debts/{id}/default", apphttp.HandleError(h.markDefault))
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type startSessionRequest struct {
	PrivateKey string `json:"private_key"`
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) error {
	var req startSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if req.PrivateKey == "" {
		return apperrors.BadRequestError(nil, "private_key is required")
	}

	info, err := h.sessions.StartSession(r.Context(), req.PrivateKey)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, info)
	return nil
}

func (h *Handler) listSessions(w http.ResponseWriter, _ *http.Request) error {
	writeJSON(w, http.StatusOK, h.sessions.Sessions())
	return nil
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) error {
	info, err := h.sessions.Session(chi.URLParam(r, "address"))
	if err != nil {
		if errors.Is(err, agent.ErrSessionNotFound) {
			return apperrors.ResourceNotFoundError(err, "session not found")
		}
		return err
	}
	writeJSON(w, http.StatusOK, info)
	return nil
}

func (h *Handler) stopSession(w http.ResponseWriter, r *http.Request) error {
	if err := h.sessions.StopSession(chi.URLParam(r, "address")); err != nil {
		if errors.Is(err, agent.ErrSessionNotFound) {
			return apperrors.ResourceNotFoundError(err, "session not found")
		}
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

type profileResponse struct {
	Address        string `json:"address"`
	Score          int    `json:"score"`
	Stripped       bool   `json:"stripped"`
	GarnishPercent int    `json:"garnish_percent"`
	AutoRepay      bool   `json:"auto_repay"`
}

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) error {
	profile, err := h.store.GetOrCreateProfile(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, profileResponse{
		Address:        profile.Address,
		Score:          profile.Score,
		Stripped:       profile.Stripped,
		GarnishPercent: profile.GarnishPercent,
		AutoRepay:      profile.AutoRepay,
	})
	return nil
}

type settingsRequest struct {
	GarnishPercent *int  `json:"garnish_percent,omitempty"`
	AutoRepay      *bool `json:"auto_repay,omitempty"`
}

func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request) error {
	address := chi.URLParam(r, "address")
	var req settingsRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if req.GarnishPercent == nil && req.AutoRepay == nil {
		return apperrors.BadRequestError(nil, "no settings provided")
	}

	if req.GarnishPercent != nil {
		if *req.GarnishPercent < 0 || *req.GarnishPercent > 100 {
			return apperrors.BadRequestError(nil, "garnish_percent must be between 0 and 100")
		}
		if err := h.store.SetGarnishPercent(r.Context(), address, *req.GarnishPercent); err != nil {
			return err
		}
	}
	if req.AutoRepay != nil {
		if err := h.store.SetAutoRepay(r.Context(), address, *req.AutoRepay); err != nil {
			return err
		}
	}

	return h.getProfile(w, r)
}

func (h *Handler) getHistory(w http.ResponseWriter, r *http.Request) error {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return apperrors.BadRequestError(err, "invalid limit")
		}
		limit = parsed
	}

	entries, err := h.ledger.History(r.Context(), chi.URLParam(r, "address"), limit)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, entries)
	return nil
}

func (h *Handler) getAvailableCredit(w http.ResponseWriter, r *http.Request) error {
	available, err := h.lending.AvailableCredit(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]int64{"available_credit": available})
	return nil
}

func (h *Handler) listDebts(w http.ResponseWriter, r *http.Request) error {
	debts, err := h.lending.ListDebts(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, debts)
	return nil
}

type createVouchRequest struct {
	Voucher  string `json:"voucher"`
	Borrower string `json:"borrower"`
	Limit    int64  `json:"limit"`
}

func (h *Handler) createVouch(w http.ResponseWriter, r *http.Request) error {
	var req createVouchRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	vouch, err := h.lending.CreateVouch(r.Context(), req.Voucher, req.Borrower, req.Limit)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, vouch)
	return nil
}

func (h *Handler) revokeVouch(w http.ResponseWriter, r *http.Request) error {
	vouchID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return apperrors.BadRequestError(err, "invalid vouch id")
	}
	voucher := r.URL.Query().Get("voucher")
	if voucher == "" {
		return apperrors.BadRequestError(nil, "voucher query parameter is required")
	}

	if err := h.lending.RevokeVouch(r.Context(), voucher, vouchID); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

type borrowRequest struct {
	Borrower string `json:"borrower"`
	Amount   int64  `json:"amount"`
}

func (h *Handler) borrow(w http.ResponseWriter, r *http.Request) error {
	var req borrowRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	debts, err := h.lending.Borrow(r.Context(), req.Borrower, req.Amount)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, debts)
	return nil
}

type repayRequest struct {
	Borrower string `json:"borrower"`
	DebtID   int64  `json:"debt_id"`
	Amount   int64  `json:"amount"`
}

type repayResponse struct {
	Debt      *credit.Debt `json:"debt"`
	FullyPaid bool         `json:"fully_paid"`
	OnTime    bool         `json:"on_time"`
}

func (h *Handler) repay(w http.ResponseWriter, r *http.Request) error {
	var req repayRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	result, err := h.lending.Repay(r.Context(), req.Borrower, req.DebtID, req.Amount)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, repayResponse{
		Debt:      result.Debt,
		FullyPaid: result.FullyPaid,
		OnTime:    result.OnTime,
	})
	return nil
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) error {
	debtID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return apperrors.BadRequestError(err, "invalid debt id")
	}

	payments, err := h.lending.ListPayments(r.Context(), debtID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, payments)
	return nil
}

// markDefault is the operator action that moves an overdue debt past
// its grace period into the terminal defaulted state.
func (h *Handler) markDefault(w http.ResponseWriter, r *http.Request) error {
	debtID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return apperrors.BadRequestError(err, "invalid debt id")
	}

	if err := h.lending.MarkDefaulted(r.Context(), debtID); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.BadRequestError(err, "invalid request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
