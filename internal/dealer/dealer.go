// Package dealer runs the reconciliation cycle that keeps the exchange short
// matched to the wallet's USD liability and the exchange collateral inside
// the leverage band.
//
// A cycle is a strict sequence of blocking calls. Cross-cycle exclusion is
// the caller's job (see the scheduler package).
package dealer

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/GaloyMoney/dealer-sub001/internal/audit"
	"github.com/GaloyMoney/dealer-sub001/internal/exchange"
	"github.com/GaloyMoney/dealer-sub001/internal/hedging"
	"github.com/GaloyMoney/dealer-sub001/internal/instrument"
	"github.com/GaloyMoney/dealer-sub001/internal/ledger"
	"github.com/GaloyMoney/dealer-sub001/internal/limits"
	"github.com/GaloyMoney/dealer-sub001/internal/metrics"
	"github.com/GaloyMoney/dealer-sub001/internal/model"
	"github.com/GaloyMoney/dealer-sub001/internal/pricing"
	"github.com/GaloyMoney/dealer-sub001/internal/result"
	"github.com/GaloyMoney/dealer-sub001/internal/wallet"
)

// Exchange is the normalized venue API the dealer drives.
// *exchange.Adapter implements it.
type Exchange interface {
	Name() string
	Instrument() *instrument.SupportedInstrument
	FetchTicker(ctx context.Context) result.Result[model.Ticker]
	FetchPosition(ctx context.Context) result.Result[model.PositionSnapshot]
	FetchBalance(ctx context.Context) result.Result[model.Balance]
	FetchDepositAddress(ctx context.Context, args exchange.DepositAddressArgs) result.Result[model.DepositAddress]
	FetchDeposits(ctx context.Context, args exchange.TransfersArgs) result.Result[[]model.Transfer]
	FetchWithdrawals(ctx context.Context, args exchange.TransfersArgs) result.Result[[]model.Transfer]
	CreateMarketOrder(ctx context.Context, args exchange.OrderArgs) result.Result[string]
	FetchOrder(ctx context.Context, args exchange.FetchOrderArgs) result.Result[model.Order]
	Withdraw(ctx context.Context, args exchange.WithdrawArgs) result.Result[exchange.WithdrawResult]
	FetchFundingRate(ctx context.Context) result.Result[model.FundingRate]
	SetLeverage(ctx context.Context, args exchange.LeverageArgs) result.Result[struct{}]
	SetPositionMode(ctx context.Context, args exchange.PositionModeArgs) result.Result[struct{}]
}

var _ Exchange = (*exchange.Adapter)(nil)

// Observer is notified after every cycle.
type Observer interface {
	CycleCompleted(report Report)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Report)

func (f ObserverFunc) CycleCompleted(r Report) { f(r) }

// CycleResult is the outcome of one UpdatePositionAndLeverage call.
type CycleResult struct {
	UpdatePositionSkipped bool
	UpdatedPositionResult result.Result[model.UpdatedPosition]
	UpdateLeverageSkipped bool
	UpdatedLeverageResult result.Result[model.UpdatedBalance]
	ReconciledTransfers   []model.InFlightTransfer
}

// Dealer owns one exchange account and one wallet.
type Dealer struct {
	cfg      Config
	exchange Exchange
	wallet   wallet.Adapter
	ledger   ledger.Ledger
	strategy *hedging.Strategy
	limiter  *limits.TransferLimiter
	audit    audit.Store
	logger   *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	observers []Observer

	mu     sync.RWMutex
	last   *Report
	quotes *pricing.Service
}

// Option configures optional Dealer collaborators.
type Option func(*Dealer)

// WithLimiter caps order and transfer sizes. Without it nothing is capped.
func WithLimiter(l *limits.TransferLimiter) Option {
	return func(d *Dealer) { d.limiter = l }
}

// WithAudit records orders, transfers and funding rates to s.
func WithAudit(s audit.Store) Option {
	return func(d *Dealer) { d.audit = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dealer) { d.logger = l }
}

// WithObserver registers o for cycle reports.
func WithObserver(o Observer) Option {
	return func(d *Dealer) { d.observers = append(d.observers, o) }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(d *Dealer) { d.now = now }
}

// WithSleep overrides the delay used between order polls.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(d *Dealer) { d.sleep = sleep }
}

// New creates a dealer. cfg and the strategy config should already be
// validated.
func New(cfg Config, ex Exchange, w wallet.Adapter, l ledger.Ledger, strategy *hedging.Strategy, opts ...Option) *Dealer {
	d := &Dealer{
		cfg:      cfg,
		exchange: ex,
		wallet:   w,
		ledger:   l,
		strategy: strategy,
		limiter:  limits.NewTransferLimiter(decimal.Zero, 0),
		audit:    audit.NewMemoryStore(),
		logger:   slog.Default(),
		now:      time.Now,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("exchange", ex.Name(), "instrument", ex.Instrument().ID)
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Configure puts the account in one-way mode and applies the configured
// leverage. Venues that manage these settings elsewhere report
// NOT_SUPPORTED, which is not an error here.
func (d *Dealer) Configure(ctx context.Context) error {
	inst := d.exchange.Instrument()
	res := d.exchange.SetPositionMode(ctx, exchange.PositionModeArgs{
		InstrumentID: inst.ID,
		Mode:         exchange.PositionModeOneWay,
	})
	if !res.OK() && res.Kind() != result.KindNotSupported {
		return res.Error()
	}
	if !d.cfg.Leverage.IsPositive() {
		return nil
	}
	res = d.exchange.SetLeverage(ctx, exchange.LeverageArgs{InstrumentID: inst.ID, Leverage: d.cfg.Leverage})
	if !res.OK() && res.Kind() != result.KindNotSupported {
		return res.Error()
	}
	d.logger.Info("exchange account configured", "leverage", d.cfg.Leverage)
	return nil
}

// UpdatePositionAndLeverage runs one cycle: reconcile in-flight transfers,
// bring exposure back into the ratio band, then bring collateral back into
// the leverage band.
//
// The result is Err only when the ticker or the wallet balance cannot be
// read; phase failures are reported inside CycleResult.
func (d *Dealer) UpdatePositionAndLeverage(ctx context.Context) result.Result[CycleResult] {
	c := &cycle{id: uuid.New().String(), started: d.now()}
	logger := d.logger.With("cycle_id", c.id)

	cr := CycleResult{ReconciledTransfers: d.reconcile(ctx, c, logger)}

	ticker := d.exchange.FetchTicker(ctx)
	if !ticker.OK() {
		return d.finish(c, logger, cr, phaseError(logger, "ticker", ticker.Error()))
	}
	c.price = ticker.Value().Price()
	d.updateQuotes(ticker.Value(), logger)
	d.observeFundingRate(ctx, logger)

	balance := d.wallet.GetWalletUsdBalance(ctx)
	if !balance.OK() {
		return d.finish(c, logger, cr, phaseError(logger, "wallet", balance.Error()))
	}
	c.liability = balance.Value().Neg()
	metrics.LiabilityUsd.Set(c.liability.InexactFloat64())

	if d.strategy.HasMinimalLiability(c.liability) {
		cr.UpdatedPositionResult = d.updatePosition(ctx, c, logger)
		if !cr.UpdatedPositionResult.OK() {
			phaseError(logger, "position", cr.UpdatedPositionResult.Error())
		}
	} else {
		cr.UpdatePositionSkipped = true
		logger.Info("liability below minimum, position update skipped",
			"liability_usd", c.liability, "minimum_usd", d.strategy.Config().MinimumLiabilityUsd)
	}

	cr.UpdateLeverageSkipped, cr.UpdatedLeverageResult = d.updateLeverage(ctx, c, logger)
	if !cr.UpdatedLeverageResult.OK() {
		phaseError(logger, "leverage", cr.UpdatedLeverageResult.Error())
	}

	return d.finish(c, logger, cr, nil)
}

// cycle carries the per-cycle snapshot shared by both loops.
type cycle struct {
	id        string
	started   time.Time
	price     decimal.Decimal
	liability decimal.Decimal
	order     *audit.OrderRecord
	transfer  *model.InFlightTransfer
}

func phaseError(logger *slog.Logger, phase string, err error) error {
	kind := result.KindOf(err)
	metrics.PhaseErrorsTotal.WithLabelValues(phase, string(kind)).Inc()
	logger.Error("cycle phase failed", "phase", phase, "kind", kind, "err", err)
	return err
}

func (d *Dealer) finish(c *cycle, logger *slog.Logger, cr CycleResult, err error) result.Result[CycleResult] {
	elapsed := d.now().Sub(c.started)
	metrics.CycleDuration.Observe(elapsed.Seconds())

	var res result.Result[CycleResult]
	if err != nil {
		res = result.Err[CycleResult](err)
	} else {
		res = result.Ok(cr)
	}

	report := newReport(c, res, d.now())
	metrics.CyclesTotal.WithLabelValues(report.Outcome).Inc()
	logger.Info("cycle finished",
		"outcome", report.Outcome,
		"duration", elapsed,
		"position_skipped", cr.UpdatePositionSkipped,
		"leverage_skipped", cr.UpdateLeverageSkipped,
		"reconciled", len(cr.ReconciledTransfers))

	d.mu.Lock()
	d.last = &report
	d.mu.Unlock()

	for _, o := range d.observers {
		o.CycleCompleted(report)
	}
	return res
}

// LastReport returns the report of the most recent cycle.
func (d *Dealer) LastReport() (Report, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.last == nil {
		return Report{}, false
	}
	return *d.last, true
}

// Quotes returns the price quote service built from the latest ticker.
func (d *Dealer) Quotes() (*pricing.Service, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.quotes, d.quotes != nil
}

func (d *Dealer) updateQuotes(t model.Ticker, logger *slog.Logger) {
	svc, err := pricing.NewService(t.Quote(d.cfg.FeeSchedule))
	if err != nil {
		logger.Warn("ticker unusable for quotes", "bid", t.Bid, "ask", t.Ask, "err", err)
		return
	}
	d.mu.Lock()
	d.quotes = svc
	d.mu.Unlock()
}

func (d *Dealer) observeFundingRate(ctx context.Context, logger *slog.Logger) {
	res := d.exchange.FetchFundingRate(ctx)
	if !res.OK() {
		logger.Warn("funding rate unavailable", "err", res.Error())
		return
	}
	fr := res.Value()
	metrics.FundingRate.Set(fr.Rate.InexactFloat64())
	d.recordFundingRate(ctx, logger, audit.FundingRateRecord{
		ID:           uuid.New().String(),
		Exchange:     d.exchange.Name(),
		InstrumentID: fr.InstrumentID,
		Rate:         fr.Rate,
		FundingTime:  fr.FundingTime,
		RecordedAt:   d.now(),
	})
}

// CompleteTransfer marks the pending transfer to address as completed.
// Operators use it for transfers that settled outside the exchange feeds.
func (d *Dealer) CompleteTransfer(ctx context.Context, address string) result.Result[model.InFlightTransfer] {
	res := d.ledger.MarkCompleted(ctx, address)
	if !res.OK() {
		return res
	}
	t := res.Value()
	metrics.TransfersTotal.WithLabelValues(string(t.Direction), string(audit.TransferCompleted)).Inc()
	d.recordTransfer(ctx, d.logger, "", t, audit.TransferCompleted, "completed manually")
	d.logger.Info("transfer completed manually", "transfer_id", t.ID, "address", t.Address)
	return res
}

// Pending returns the in-flight transfers.
func (d *Dealer) Pending(ctx context.Context) result.Result[[]model.InFlightTransfer] {
	return d.ledger.GetPending(ctx, nil)
}

// shortID is a uuid without dashes; OKX limits client ids to 32
// alphanumerics.
func shortID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

func (d *Dealer) recordOrder(ctx context.Context, logger *slog.Logger, r audit.OrderRecord) {
	if err := d.audit.RecordOrder(ctx, r); err != nil {
		logger.Error("audit order", "order_id", r.ExchangeOrderID, "err", err)
	}
}

func (d *Dealer) recordTransfer(ctx context.Context, logger *slog.Logger, cycleID string, t model.InFlightTransfer, event audit.TransferEvent, detail string) {
	err := d.audit.RecordTransfer(ctx, audit.TransferRecord{
		ID:           uuid.New().String(),
		CycleID:      cycleID,
		TransferID:   t.ID,
		Direction:    t.Direction,
		Address:      t.Address,
		AmountInSats: t.TransferSizeInSats,
		Memo:         t.Memo,
		Event:        event,
		Detail:       detail,
		CreatedAt:    d.now(),
	})
	if err != nil {
		logger.Error("audit transfer", "transfer_id", t.ID, "err", err)
	}
}

func (d *Dealer) recordFundingRate(ctx context.Context, logger *slog.Logger, r audit.FundingRateRecord) {
	if err := d.audit.RecordFundingRate(ctx, r); err != nil {
		logger.Error("audit funding rate", "err", err)
	}
}
