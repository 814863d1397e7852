// Package api exposes the hedge engine over HTTP and WebSocket.
//
// Callers identify themselves with the X-Caller-ID header; authentication
// happens upstream. The logical clock is read from the configured
// clock.Clock at request time, never from the request.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/atmx/yield-hedge/internal/clock"
	"github.com/atmx/yield-hedge/internal/hedge"
	"github.com/atmx/yield-hedge/internal/model"
	"github.com/atmx/yield-hedge/internal/yield"
)

// CallerHeader carries the caller identity.
const CallerHeader = "X-Caller-ID"

// Service handles hedge operations over HTTP.
type Service struct {
	engine *hedge.Engine
	clock  clock.Clock
}

// NewService creates a new HTTP service over engine.
func NewService(engine *hedge.Engine, clk clock.Clock) *Service {
	return &Service{engine: engine, clock: clk}
}

// Routes registers the hedge endpoints on r. Mount it under /api/v1.
func (s *Service) Routes(r chi.Router) {
	r.Get("/hedges", s.ListHedges)
	r.Post("/hedges", s.CreateHedge)
	r.Get("/hedges/{hedgeID}", s.GetHedge)
	r.Post("/hedges/{hedgeID}/match", s.MatchHedge)
	r.Post("/hedges/{hedgeID}/settle", s.SettleHedge)
	r.Post("/hedges/{hedgeID}/cancel", s.CancelHedge)
	r.Get("/hedges/{hedgeID}/settlement", s.GetSettlement)
	r.Get("/hedges/{hedgeID}/stakes/{participant}", s.GetStake)
	r.Get("/hedges/{hedgeID}/transfers", s.GetTransfers)

	r.Get("/ledger", s.GetLedger)
	r.Post("/admin/pause", s.Pause)
	r.Post("/admin/unpause", s.Unpause)
	r.Post("/admin/withdraw", s.WithdrawFees)
}

// --- Request/Response types ---

// CreateHedgeRequest is the JSON body for POST /hedges. The threshold may
// be sent either as a fixed-point integer or as a decimal string such as
// "4.50"; the string form wins when both are present.
type CreateHedgeRequest struct {
	CropType         string `json:"crop_type"`
	Region           string `json:"region"`
	YieldThreshold   int64  `json:"yield_threshold"`
	ThresholdDisplay string `json:"yield_threshold_display,omitempty"`
	PayoutAmount     int64  `json:"payout_amount"`
	StakeAmount      int64  `json:"stake_amount"`
	SeasonStart      int64  `json:"season_start"`
	SeasonEnd        int64  `json:"season_end"`
	HedgeType        string `json:"hedge_type"`
}

// CreateHedgeResponse is returned from POST /hedges.
type CreateHedgeResponse struct {
	HedgeID int64 `json:"hedge_id"`
}

// HedgeResponse is a hedge with its derived status and display threshold.
type HedgeResponse struct {
	model.Hedge
	Status           model.Status `json:"status"`
	ThresholdDisplay string       `json:"yield_threshold_display"`
}

// SettleResponse is returned from POST /hedges/{id}/settle.
type SettleResponse struct {
	HedgeID int64          `json:"hedge_id"`
	Winner  model.Identity `json:"winner"`
}

// SettlementResponse is a settlement with its display yield.
type SettlementResponse struct {
	model.Settlement
	YieldDisplay string `json:"actual_yield_display"`
}

// LedgerResponse is the engine's global state plus the current clock.
type LedgerResponse struct {
	model.LedgerState
	Clock int64 `json:"clock"`
}

// WithdrawRequest is the JSON body for POST /admin/withdraw.
type WithdrawRequest struct {
	Amount int64 `json:"amount"`
}

// ErrorResponse is the JSON body of every failed request. Code is the
// engine result code, 0 for transport-level failures.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  uint16 `json:"code,omitempty"`
	Name  string `json:"name,omitempty"`
}

// --- HTTP Handlers ---

// CreateHedge handles POST /api/v1/hedges
func (s *Service) CreateHedge(w http.ResponseWriter, r *http.Request) {
	ec, ok := s.execContext(w, r)
	if !ok {
		return
	}
	var req CreateHedgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	id, err := s.engine.CreateHedge(r.Context(), ec, hedge.CreateParams{
		CropType:      req.CropType,
		Region:        req.Region,
		Threshold:     req.YieldThreshold,
		ThresholdText: req.ThresholdDisplay,
		PayoutAmount:  req.PayoutAmount,
		StakeAmount:   req.StakeAmount,
		SeasonStart:   req.SeasonStart,
		SeasonEnd:     req.SeasonEnd,
		HedgeType:     req.HedgeType,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateHedgeResponse{HedgeID: id})
}

// GetHedge handles GET /api/v1/hedges/{hedgeID}
func (s *Service) GetHedge(w http.ResponseWriter, r *http.Request) {
	id, ok := hedgeID(w, r)
	if !ok {
		return
	}
	h, err := s.engine.GetHedge(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if h == nil {
		writeCodeError(w, "hedge not found", hedge.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, hedgeResponse(*h))
}

// ListHedges handles GET /api/v1/hedges
// Optionally filtered by ?status=open|matched|settled|cancelled.
func (s *Service) ListHedges(w http.ResponseWriter, r *http.Request) {
	status := model.Status(strings.ToLower(r.URL.Query().Get("status")))
	switch status {
	case "", model.StatusOpen, model.StatusMatched, model.StatusSettled, model.StatusCancelled:
	default:
		writeCodeError(w, "unknown status filter: "+string(status), hedge.ErrInvalidParams)
		return
	}

	hedges, err := s.engine.ListHedges(r.Context(), status)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	resp := make([]HedgeResponse, 0, len(hedges))
	for _, h := range hedges {
		resp = append(resp, hedgeResponse(h))
	}
	writeJSON(w, http.StatusOK, resp)
}

// MatchHedge handles POST /api/v1/hedges/{hedgeID}/match
func (s *Service) MatchHedge(w http.ResponseWriter, r *http.Request) {
	s.mutateHedge(w, r, s.engine.MatchHedge)
}

// CancelHedge handles POST /api/v1/hedges/{hedgeID}/cancel
func (s *Service) CancelHedge(w http.ResponseWriter, r *http.Request) {
	s.mutateHedge(w, r, s.engine.CancelHedge)
}

// SettleHedge handles POST /api/v1/hedges/{hedgeID}/settle
func (s *Service) SettleHedge(w http.ResponseWriter, r *http.Request) {
	ec, ok := s.execContext(w, r)
	if !ok {
		return
	}
	id, ok := hedgeID(w, r)
	if !ok {
		return
	}
	winner, err := s.engine.SettleHedge(r.Context(), ec, id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SettleResponse{HedgeID: id, Winner: winner})
}

// GetSettlement handles GET /api/v1/hedges/{hedgeID}/settlement
func (s *Service) GetSettlement(w http.ResponseWriter, r *http.Request) {
	id, ok := hedgeID(w, r)
	if !ok {
		return
	}
	st, err := s.engine.GetSettlement(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if st == nil {
		writeCodeError(w, "settlement not found", hedge.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, SettlementResponse{
		Settlement:   *st,
		YieldDisplay: yield.Format(st.ActualYield),
	})
}

// GetStake handles GET /api/v1/hedges/{hedgeID}/stakes/{participant}
func (s *Service) GetStake(w http.ResponseWriter, r *http.Request) {
	id, ok := hedgeID(w, r)
	if !ok {
		return
	}
	participant := model.Identity(chi.URLParam(r, "participant"))
	st, err := s.engine.GetStake(r.Context(), id, participant)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if st == nil {
		writeCodeError(w, "stake not found", hedge.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GetTransfers handles GET /api/v1/hedges/{hedgeID}/transfers
// Returns the value-movement journal of one hedge.
func (s *Service) GetTransfers(w http.ResponseWriter, r *http.Request) {
	id, ok := hedgeID(w, r)
	if !ok {
		return
	}
	transfers, err := s.engine.Transfers(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if transfers == nil {
		transfers = []model.Transfer{}
	}
	writeJSON(w, http.StatusOK, transfers)
}

// GetLedger handles GET /api/v1/ledger
func (s *Service) GetLedger(w http.ResponseWriter, r *http.Request) {
	state, err := s.engine.LedgerState(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LedgerResponse{LedgerState: state, Clock: s.clock.Now()})
}

// Pause handles POST /api/v1/admin/pause
func (s *Service) Pause(w http.ResponseWriter, r *http.Request) {
	s.admin(w, r, s.engine.Pause)
}

// Unpause handles POST /api/v1/admin/unpause
func (s *Service) Unpause(w http.ResponseWriter, r *http.Request) {
	s.admin(w, r, s.engine.Unpause)
}

// WithdrawFees handles POST /api/v1/admin/withdraw
func (s *Service) WithdrawFees(w http.ResponseWriter, r *http.Request) {
	ec, ok := s.execContext(w, r)
	if !ok {
		return
	}
	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.engine.WithdrawFees(r.Context(), ec, req.Amount); err != nil {
		writeEngineError(w, err)
		return
	}
	s.GetLedger(w, r)
}

// --- helpers ---

type hedgeOp func(ctx context.Context, ec model.ExecContext, hedgeID int64) error

// mutateHedge runs op on the addressed hedge and responds with its new state.
func (s *Service) mutateHedge(w http.ResponseWriter, r *http.Request, op hedgeOp) {
	ec, ok := s.execContext(w, r)
	if !ok {
		return
	}
	id, ok := hedgeID(w, r)
	if !ok {
		return
	}
	if err := op(r.Context(), ec, id); err != nil {
		writeEngineError(w, err)
		return
	}
	s.GetHedge(w, r)
}

func (s *Service) admin(w http.ResponseWriter, r *http.Request, op func(context.Context, model.ExecContext) error) {
	ec, ok := s.execContext(w, r)
	if !ok {
		return
	}
	if err := op(r.Context(), ec); err != nil {
		writeEngineError(w, err)
		return
	}
	s.GetLedger(w, r)
}

// execContext reads the caller and stamps the current clock.
func (s *Service) execContext(w http.ResponseWriter, r *http.Request) (model.ExecContext, bool) {
	caller := strings.TrimSpace(r.Header.Get(CallerHeader))
	if caller == "" {
		writeError(w, CallerHeader+" header is required", http.StatusUnauthorized)
		return model.ExecContext{}, false
	}
	return model.ExecContext{Caller: model.Identity(caller), Clock: s.clock.Now()}, true
}

func hedgeID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "hedgeID"), 10, 64)
	if err != nil || id <= 0 {
		writeCodeError(w, "invalid hedge id", hedge.ErrInvalidParams)
		return 0, false
	}
	return id, true
}

func hedgeResponse(h model.Hedge) HedgeResponse {
	return HedgeResponse{
		Hedge:            h,
		Status:           h.Status(),
		ThresholdDisplay: yield.Format(h.YieldThreshold),
	}
}

// statusFor maps an engine result code to an HTTP status.
func statusFor(c hedge.Code) int {
	switch c {
	case hedge.ErrUnauthorized:
		return http.StatusForbidden
	case hedge.ErrNotFound:
		return http.StatusNotFound
	case hedge.ErrInvalidParams, hedge.ErrInsufficientStake, hedge.ErrInvalidCounterparty:
		return http.StatusBadRequest
	case hedge.ErrOracleFail:
		return http.StatusBadGateway
	default:
		return http.StatusConflict
	}
}

// writeEngineError writes a coded error, or a 500 for failures without a
// result code (store or transport errors).
func writeEngineError(w http.ResponseWriter, err error) {
	c, ok := hedge.CodeOf(err)
	if !ok {
		slog.Error("request failed", "err", err)
		writeError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, statusFor(c), ErrorResponse{Error: err.Error(), Code: uint16(c), Name: c.Name()})
}

func writeCodeError(w http.ResponseWriter, message string, c hedge.Code) {
	writeJSON(w, statusFor(c), ErrorResponse{Error: message, Code: uint16(c), Name: c.Name()})
}

// writeError writes a JSON error response without a result code.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
