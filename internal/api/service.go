// Package api exposes the dealer over HTTP: health, metrics, the last cycle
// report, the transfer ledger, audit records, price quotes and a WebSocket
// feed of cycle reports.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/GaloyMoney/dealer-sub001/internal/audit"
	"github.com/GaloyMoney/dealer-sub001/internal/dealer"
	"github.com/GaloyMoney/dealer-sub001/internal/ledger"
	"github.com/GaloyMoney/dealer-sub001/internal/model"
	"github.com/GaloyMoney/dealer-sub001/internal/pricing"
	"github.com/GaloyMoney/dealer-sub001/internal/result"
	"github.com/GaloyMoney/dealer-sub001/internal/scheduler"
)

// Dealer is the part of *dealer.Dealer the API reads.
type Dealer interface {
	LastReport() (dealer.Report, bool)
	Quotes() (*pricing.Service, bool)
	CompleteTransfer(ctx context.Context, address string) result.Result[model.InFlightTransfer]
}

// CycleRunner runs one cycle under the scheduler lock.
type CycleRunner func(ctx context.Context) error

// Service handles the dealer's HTTP endpoints.
type Service struct {
	dealer Dealer
	ledger ledger.Ledger
	audit  audit.Store
	run    CycleRunner
	logger *slog.Logger
}

// NewService creates the API service. run may be nil, in which case
// POST /cycle is rejected.
func NewService(d Dealer, l ledger.Ledger, a audit.Store, run CycleRunner, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{dealer: d, ledger: l, audit: a, run: run, logger: logger}
}

// --- Response types ---

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	LastCycle        *dealer.Report `json:"last_cycle"`
	PendingTransfers int            `json:"pending_transfers"`
}

// QuoteResponse is the body of GET /api/v1/quote. Only the fields for the
// requested input unit are set.
type QuoteResponse struct {
	Sats           *int64          `json:"sats,omitempty"`
	Cents          *int64          `json:"cents,omitempty"`
	ExpirySeconds  int64           `json:"expiry_seconds"`
	CentsForBuy    *int64          `json:"cents_for_buy,omitempty"`
	CentsForSell   *int64          `json:"cents_for_sell,omitempty"`
	SatsForBuy     *int64          `json:"sats_for_buy,omitempty"`
	SatsForSell    *int64          `json:"sats_for_sell,omitempty"`
	MidCentsPerSat decimal.Decimal `json:"mid_cents_per_sat"`
	FeeRatio       decimal.Decimal `json:"fee_ratio"`
}

// --- HTTP Handlers ---

// GetStatus handles GET /api/v1/status
func (s *Service) GetStatus(w http.ResponseWriter, r *http.Request) {
	pending := s.ledger.GetPending(r.Context(), nil)
	if !pending.OK() {
		writeResultError(w, pending.Error())
		return
	}
	resp := StatusResponse{PendingTransfers: len(pending.Value())}
	if report, ok := s.dealer.LastReport(); ok {
		resp.LastCycle = &report
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListTransfers handles GET /api/v1/transfers
func (s *Service) ListTransfers(w http.ResponseWriter, r *http.Request) {
	all := s.ledger.GetAll(r.Context())
	if !all.OK() {
		writeResultError(w, all.Error())
		return
	}
	writeJSON(w, http.StatusOK, nonNil(all.Value()))
}

// ListPendingTransfers handles GET /api/v1/transfers/pending?direction=
func (s *Service) ListPendingTransfers(w http.ResponseWriter, r *http.Request) {
	var direction *model.Direction
	if v := r.URL.Query().Get("direction"); v != "" {
		d, err := model.ParseDirection(v)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		direction = &d
	}
	pending := s.ledger.GetPending(r.Context(), direction)
	if !pending.OK() {
		writeResultError(w, pending.Error())
		return
	}
	writeJSON(w, http.StatusOK, nonNil(pending.Value()))
}

// CompleteTransfer handles POST /api/v1/transfers/{address}/complete
func (s *Service) CompleteTransfer(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	res := s.dealer.CompleteTransfer(r.Context(), address)
	if !res.OK() {
		writeResultError(w, res.Error())
		return
	}
	s.logger.Info("transfer completed by operator", "address", address, "remote", r.RemoteAddr)
	writeJSON(w, http.StatusOK, res.Value())
}

// ListOrders handles GET /api/v1/orders?limit=
func (s *Service) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.audit.ListOrders(r.Context(), queryLimit(r))
	if err != nil {
		s.logger.Error("list orders", "err", err)
		writeError(w, "failed to list orders", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(orders))
}

// ListTransferEvents handles GET /api/v1/transfers/events?limit=
func (s *Service) ListTransferEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.audit.ListTransfers(r.Context(), queryLimit(r))
	if err != nil {
		s.logger.Error("list transfer events", "err", err)
		writeError(w, "failed to list transfer events", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(events))
}

// ListFundingRates handles GET /api/v1/funding-rates?limit=
func (s *Service) ListFundingRates(w http.ResponseWriter, r *http.Request) {
	rates, err := s.audit.ListFundingRates(r.Context(), queryLimit(r))
	if err != nil {
		s.logger.Error("list funding rates", "err", err)
		writeError(w, "failed to list funding rates", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rates))
}

// GetQuote handles GET /api/v1/quote?sats=|cents=[&expiry_seconds=]
func (s *Service) GetQuote(w http.ResponseWriter, r *http.Request) {
	quotes, ok := s.dealer.Quotes()
	if !ok {
		writeError(w, "no price available yet", http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()
	expiry, err := optionalInt(q.Get("expiry_seconds"))
	if err != nil || expiry < 0 {
		writeError(w, "invalid expiry_seconds", http.StatusBadRequest)
		return
	}
	resp := QuoteResponse{
		ExpirySeconds:  expiry,
		MidCentsPerSat: quotes.GetCentsPerSatsExchangeMidRate(),
		FeeRatio:       quotes.FutureFee(expiry),
	}

	switch {
	case q.Get("sats") != "" && q.Get("cents") == "":
		sats, err := optionalInt(q.Get("sats"))
		if err != nil || sats < 0 {
			writeError(w, "invalid sats", http.StatusBadRequest)
			return
		}
		buy := quotes.GetCentsFromSatsForFutureBuy(sats, expiry)
		sell := quotes.GetCentsFromSatsForFutureSell(sats, expiry)
		resp.Sats, resp.CentsForBuy, resp.CentsForSell = &sats, &buy, &sell
	case q.Get("cents") != "" && q.Get("sats") == "":
		cents, err := optionalInt(q.Get("cents"))
		if err != nil || cents < 0 {
			writeError(w, "invalid cents", http.StatusBadRequest)
			return
		}
		buy := quotes.GetSatsFromCentsForFutureBuy(cents, expiry)
		sell := quotes.GetSatsFromCentsForFutureSell(cents, expiry)
		resp.Cents, resp.SatsForBuy, resp.SatsForSell = &cents, &buy, &sell
	default:
		writeError(w, "exactly one of sats or cents is required", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// RunCycle handles POST /api/v1/cycle
func (s *Service) RunCycle(w http.ResponseWriter, r *http.Request) {
	if s.run == nil {
		writeError(w, "manual cycles disabled", http.StatusNotImplemented)
		return
	}
	// The cycle finishes even if the client goes away.
	err := s.run(context.WithoutCancel(r.Context()))
	if errors.Is(err, scheduler.ErrLocked) {
		writeError(w, "cycle already running", http.StatusConflict)
		return
	}

	report, ok := s.dealer.LastReport()
	if err != nil {
		s.logger.Warn("manual cycle failed", "err", err)
		if !ok {
			writeError(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusBadGateway, report)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// --- Helpers ---

func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return audit.DefaultListLimit
	}
	return n
}

func optionalInt(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

func statusFor(kind result.Kind) int {
	switch kind {
	case result.KindDoesNotExist:
		return http.StatusNotFound
	case result.KindAlreadyExists, result.KindAmbiguousState:
		return http.StatusConflict
	case result.KindUnsupportedAddress, result.KindMissingParameters, result.KindNonPositiveQuantity:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeResultError(w http.ResponseWriter, err error) {
	kind := result.KindOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(kind))
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error(), "kind": string(kind)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
