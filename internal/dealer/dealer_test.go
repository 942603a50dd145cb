package dealer_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GaloyMoney/dealer-sub001/internal/audit"
	"github.com/GaloyMoney/dealer-sub001/internal/dealer"
	"github.com/GaloyMoney/dealer-sub001/internal/exchange"
	"github.com/GaloyMoney/dealer-sub001/internal/exchange/exchangetest"
	"github.com/GaloyMoney/dealer-sub001/internal/exchange/okx"
	"github.com/GaloyMoney/dealer-sub001/internal/hedging"
	"github.com/GaloyMoney/dealer-sub001/internal/ledger"
	"github.com/GaloyMoney/dealer-sub001/internal/limits"
	"github.com/GaloyMoney/dealer-sub001/internal/model"
	"github.com/GaloyMoney/dealer-sub001/internal/result"
	"github.com/GaloyMoney/dealer-sub001/internal/wallet"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

type harness struct {
	venue   *exchangetest.Venue
	wallet  *wallet.Simulator
	ledger  ledger.Ledger
	audit   *audit.MemoryStore
	dealer  *dealer.Dealer
	reports []dealer.Report
	sleeps  int
	dir     string
}

// newHarness builds a dealer on an OKX-shaped venue quoting 50000 USD/BTC,
// a simulated wallet and a SQLite ledger in a temp dir.
func newHarness(t *testing.T, opts ...dealer.Option) *harness {
	t.Helper()
	h := &harness{
		venue:  exchangetest.NewVenue(d(50000)),
		wallet: wallet.NewSimulator(decimal.Zero, 10_000_000),
		audit:  audit.NewMemoryStore(),
		dir:    t.TempDir(),
	}
	h.ledger = h.openLedger(t)
	h.build(t, opts...)
	return h
}

func (h *harness) openLedger(t *testing.T) ledger.Ledger {
	t.Helper()
	l, err := ledger.OpenSQLite(filepath.Join(h.dir, "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func (h *harness) build(t *testing.T, opts ...dealer.Option) {
	t.Helper()
	cfg, err := okx.NewConfiguration("BTC-USD-SWAP")
	require.NoError(t, err)
	adapter := exchange.NewAdapter(h.venue, cfg)

	dcfg := dealer.DefaultConfig()
	dcfg.MaxPollIterations = 3
	base := []dealer.Option{
		dealer.WithAudit(h.audit),
		dealer.WithObserver(dealer.ObserverFunc(func(r dealer.Report) { h.reports = append(h.reports, r) })),
		dealer.WithSleep(func(context.Context, time.Duration) error {
			h.sleeps++
			return nil
		}),
	}
	h.dealer = dealer.New(dcfg, adapter, h.wallet, h.ledger, hedging.New(hedging.DefaultConfig()), append(base, opts...)...)
}

func (h *harness) run(t *testing.T) dealer.CycleResult {
	t.Helper()
	res := h.dealer.UpdatePositionAndLeverage(context.Background())
	require.True(t, res.OK(), "cycle failed: %v", res.Error())
	return res.Value()
}

func (h *harness) pending(t *testing.T) []model.InFlightTransfer {
	t.Helper()
	res := h.ledger.GetPending(context.Background(), nil)
	require.True(t, res.OK(), "%v", res.Error())
	return res.Value()
}

func assertLeverageInvariant(t *testing.T, p model.Position) {
	t.Helper()
	if p.CollateralInUsd.IsPositive() {
		assert.True(t, p.Leverage.Equal(p.ExposureInUsd.DivRound(p.CollateralInUsd, 16)),
			"leverage %s != %s / %s", p.Leverage, p.ExposureInUsd, p.CollateralInUsd)
	} else {
		assert.True(t, p.Leverage.IsZero())
	}
}

func TestScenarioReplay(t *testing.T) {
	h := newHarness(t)
	h.venue.SetBtcEquity(d(0.002))
	h.wallet.SetLiability(d(100))

	// Cycle 1: unhedged liability of 100 USD, 100 USD of margin.
	cr := h.run(t)
	assert.False(t, cr.UpdatePositionSkipped)
	require.True(t, cr.UpdatedPositionResult.OK(), "%v", cr.UpdatedPositionResult.Error())

	require.Len(t, h.venue.Orders, 1)
	assert.Equal(t, model.SideSell, h.venue.Orders[0].Side)
	assert.True(t, h.venue.Orders[0].Contracts.Equal(d(1)))
	assert.Len(t, h.venue.Orders[0].ClientOrderID, 32)

	up := cr.UpdatedPositionResult.Value()
	assert.True(t, up.OriginalPosition.ExposureInUsd.IsZero())
	assert.True(t, up.UpdatedPosition.ExposureInUsd.Equal(d(100)))
	assertLeverageInvariant(t, up.OriginalPosition)
	assertLeverageInvariant(t, up.UpdatedPosition)

	// Leverage 1.0 is under the low bound, so collateral is withdrawn down
	// to 100 / 1.8 USD.
	assert.False(t, cr.UpdateLeverageSkipped)
	require.True(t, cr.UpdatedLeverageResult.OK(), "%v", cr.UpdatedLeverageResult.Error())
	bal := cr.UpdatedLeverageResult.Value()
	assert.True(t, bal.OriginalLeverageRatio.Equal(d(1)))
	assert.True(t, bal.NewLeverageRatio.Round(4).Equal(d(1.8)))

	require.Len(t, h.venue.Withdraws, 1)
	assert.Equal(t, int64(88889), h.venue.Withdraws[0].QuantityInSats)
	pending := h.pending(t)
	require.Len(t, pending, 1)
	assert.Equal(t, model.WithdrawToWallet, pending[0].Direction)
	assert.Equal(t, h.venue.Withdraws[0].Address, pending[0].Address)

	// Cycle 2: liability gone. The withdrawal settles, no order is placed.
	h.wallet.SetLiability(decimal.Zero)
	cr = h.run(t)
	assert.True(t, cr.UpdatePositionSkipped)
	assert.Equal(t, 1, h.venue.Calls(exchangetest.MethodCreateMarketOrder))
	assert.Equal(t, 1, h.venue.Calls(exchangetest.MethodFetchOrder))

	require.Len(t, cr.ReconciledTransfers, 1)
	assert.True(t, cr.ReconciledTransfers[0].IsCompleted)
	assert.True(t, cr.ReconciledTransfers[0].UpdatedTimestamp.After(cr.ReconciledTransfers[0].CreatedTimestamp))
	assert.Empty(t, h.pending(t))

	assert.True(t, cr.UpdateLeverageSkipped)
	assert.Len(t, h.venue.Withdraws, 1)

	require.Len(t, h.reports, 2)
	assert.Equal(t, dealer.OutcomeOK, h.reports[0].Outcome)
	assert.NotNil(t, h.reports[0].Order)
	assert.NotNil(t, h.reports[0].Transfer)
	assert.Len(t, h.reports[1].ReconciledTransfers, 1)
}

func TestAuditTrail(t *testing.T) {
	h := newHarness(t)
	h.venue.SetBtcEquity(d(0.002))
	h.venue.SetFundingRate(d(0.0001))
	h.wallet.SetLiability(d(100))
	h.run(t)

	ctx := context.Background()
	orders, err := h.audit.ListOrders(ctx, 10)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, model.OrderStatusClosed, orders[0].Status)
	assert.True(t, orders[0].FilledContracts.Equal(d(1)))
	assert.Equal(t, "okx", orders[0].Exchange)

	transfers, err := h.audit.ListTransfers(ctx, 10)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, audit.TransferInitiated, transfers[0].Event)
	assert.Equal(t, orders[0].CycleID, transfers[0].CycleID)

	rates, err := h.audit.ListFundingRates(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rates, 1)
	assert.True(t, rates[0].Rate.Equal(d(0.0001)))

	report, ok := h.dealer.LastReport()
	require.True(t, ok)
	assert.Equal(t, orders[0].CycleID, report.CycleID)

	quotes, ok := h.dealer.Quotes()
	require.True(t, ok)
	assert.True(t, quotes.GetCentsPerSatsExchangeMidRate().Equal(d(0.05)))
}

func TestDepositRecordedBeforePayment(t *testing.T) {
	h := newHarness(t)
	// 25 USD of margin against 100 USD liability: leverage 4.
	h.venue.SetBtcEquity(d(0.0005))
	h.venue.SetContracts(d(-1))
	h.wallet.SetLiability(d(100))

	var seen []model.InFlightTransfer
	h.wallet.OnPay = func(p wallet.Payment) {
		seen = h.pending(t)
	}

	cr := h.run(t)
	require.True(t, cr.UpdatedLeverageResult.OK(), "%v", cr.UpdatedLeverageResult.Error())
	assert.Empty(t, h.venue.Orders)

	payments := h.wallet.Payments()
	require.Len(t, payments, 1)
	assert.Equal(t, h.venue.DepositAddress(), payments[0].Address)
	// 100 / 2.25 - 25 USD at 50000 USD/BTC.
	assert.Equal(t, int64(38889), payments[0].AmountInSats)

	require.Len(t, seen, 1, "ledger must hold the transfer while the payment is sent")
	assert.Equal(t, model.DepositOnExchange, seen[0].Direction)
	assert.Equal(t, payments[0].AmountInSats, seen[0].TransferSizeInSats)
	assert.Equal(t, payments[0].Memo, seen[0].Memo)
}

func TestWithdrawalRecordedBeforeRequest(t *testing.T) {
	h := newHarness(t)
	h.venue.SetBtcEquity(d(0.002))
	h.venue.SetContracts(d(-1))
	h.wallet.SetLiability(d(100))

	var seen []model.InFlightTransfer
	h.venue.OnWithdraw = func(exchange.WithdrawArgs) {
		seen = h.pending(t)
	}

	cr := h.run(t)
	require.True(t, cr.UpdatedLeverageResult.OK(), "%v", cr.UpdatedLeverageResult.Error())
	require.Len(t, h.venue.Withdraws, 1)

	require.Len(t, seen, 1, "ledger must hold the transfer while the withdrawal is requested")
	assert.Equal(t, model.WithdrawToWallet, seen[0].Direction)
	assert.Equal(t, h.venue.Withdraws[0].Address, seen[0].Address)
	assert.Equal(t, h.venue.Withdraws[0].QuantityInSats, seen[0].TransferSizeInSats)
}

func TestNetLongIsSoldIntoShortHedge(t *testing.T) {
	h := newHarness(t)
	h.venue.SetBtcEquity(d(0.002))
	h.venue.SetContracts(d(1))
	h.wallet.SetLiability(d(100))

	cr := h.run(t)
	require.True(t, cr.UpdatedPositionResult.OK(), "%v", cr.UpdatedPositionResult.Error())

	up := cr.UpdatedPositionResult.Value()
	assert.True(t, up.OriginalPosition.ExposureInUsd.Equal(d(-100)))
	require.Len(t, h.venue.Orders, 1)
	assert.Equal(t, model.SideSell, h.venue.Orders[0].Side)
	// 98 - (-100) = 198 USD rounds to 2 contracts.
	assert.True(t, h.venue.Orders[0].Contracts.Equal(d(2)))
	assert.True(t, up.UpdatedPosition.ExposureInUsd.Equal(d(100)))
}

func TestFailedPaymentStaysPending(t *testing.T) {
	h := newHarness(t)
	h.venue.SetBtcEquity(d(0.0005))
	h.venue.SetContracts(d(-1))
	h.wallet.SetLiability(d(100))
	h.wallet.FailNextPayment(errors.New("node unreachable"))

	cr := h.run(t)
	assert.Equal(t, result.KindWallet, cr.UpdatedLeverageResult.Kind())
	assert.Len(t, h.pending(t), 1)
	assert.Equal(t, dealer.OutcomePartial, h.reports[0].Outcome)
	require.NotNil(t, h.reports[0].LeverageError)
	assert.Equal(t, result.KindWallet, h.reports[0].LeverageError.Kind)

	// The next cycle does not pay again while the deposit is in flight.
	cr = h.run(t)
	assert.True(t, cr.UpdateLeverageSkipped)
	assert.Empty(t, h.wallet.Payments())
	assert.Len(t, h.pending(t), 1)
}

func TestCrashRecovery(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// A deposit was recorded and paid, then the process died.
	ins := h.ledger.Insert(ctx, model.InFlightTransfer{
		Direction:          model.DepositOnExchange,
		Address:            h.venue.DepositAddress(),
		TransferSizeInSats: 50_000,
		Memo:               "deposit before crash",
	})
	require.True(t, ins.OK(), "%v", ins.Error())
	require.NoError(t, h.ledger.Close())

	h.ledger = h.openLedger(t)
	h.build(t)
	require.Len(t, h.pending(t), 1, "pending transfer must survive reopen")

	// Leverage 100 / 75 is in band once the deposit lands.
	h.venue.SetBtcEquity(d(0.001))
	h.venue.SetContracts(d(-1))
	h.venue.Credit(h.venue.DepositAddress(), 50_000, exchangetest.TransferSettled)
	h.wallet.SetLiability(d(100))

	cr := h.run(t)
	require.Len(t, cr.ReconciledTransfers, 1)
	assert.Equal(t, ins.Value().ID, cr.ReconciledTransfers[0].ID)
	assert.Empty(t, h.pending(t))
	assert.True(t, cr.UpdateLeverageSkipped)
	assert.Empty(t, h.wallet.Payments())
}

func TestReconcileIgnoresUnsettledAndMismatched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	addr := h.venue.DepositAddress()
	require.True(t, h.ledger.Insert(ctx, model.InFlightTransfer{
		Direction:          model.DepositOnExchange,
		Address:            addr,
		TransferSizeInSats: 50_000,
	}).OK())

	h.venue.SetBtcEquity(d(0.001))
	h.venue.SetContracts(d(-1))
	h.wallet.SetLiability(d(100))
	h.venue.Credit(addr, 50_000, exchangetest.TransferPending)
	h.venue.Credit(addr, 40_000, exchangetest.TransferSettled)

	cr := h.run(t)
	assert.Empty(t, cr.ReconciledTransfers)
	assert.Len(t, h.pending(t), 1)

	// Within the 1% settlement tolerance.
	h.venue.Credit(addr, 49_900, exchangetest.TransferSettled)
	cr = h.run(t)
	assert.Len(t, cr.ReconciledTransfers, 1)
}

func TestReusedDepositAddressSettlesOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	addr := h.venue.DepositAddress()

	// Leverage stays in band so the collateral loop never moves funds.
	h.venue.SetBtcEquity(d(0.001))
	h.venue.SetContracts(d(-1))
	h.wallet.SetLiability(d(100))

	first := h.ledger.Insert(ctx, model.InFlightTransfer{
		Direction:          model.DepositOnExchange,
		Address:            addr,
		TransferSizeInSats: 50_000,
	})
	require.True(t, first.OK(), "%v", first.Error())
	h.venue.Credit(addr, 50_000, exchangetest.TransferSettled)

	cr := h.run(t)
	require.Len(t, cr.ReconciledTransfers, 1)
	assert.Equal(t, first.Value().ID, cr.ReconciledTransfers[0].ID)
	assert.Equal(t, "dep-1", cr.ReconciledTransfers[0].SettlementID)

	// Same address, same size, nothing new on the feed.
	second := h.ledger.Insert(ctx, model.InFlightTransfer{
		Direction:          model.DepositOnExchange,
		Address:            addr,
		TransferSizeInSats: 50_000,
	})
	require.True(t, second.OK(), "%v", second.Error())

	cr = h.run(t)
	assert.Empty(t, cr.ReconciledTransfers)
	require.Len(t, h.pending(t), 1)
	assert.Equal(t, second.Value().ID, h.pending(t)[0].ID)

	h.venue.Credit(addr, 50_000, exchangetest.TransferSettled)
	h.venue.SetBtcEquity(d(0.0015))
	cr = h.run(t)
	require.Len(t, cr.ReconciledTransfers, 1)
	assert.Equal(t, second.Value().ID, cr.ReconciledTransfers[0].ID)
	assert.Equal(t, "dep-2", cr.ReconciledTransfers[0].SettlementID)
}

func TestReconcileIgnoresEntriesOlderThanTransfer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	addr := h.venue.DepositAddress()
	h.venue.SetBtcEquity(d(0.0015))
	h.venue.SetContracts(d(-1))
	h.wallet.SetLiability(d(100))

	// A deposit that landed before the dealer recorded anything.
	h.venue.Now = func() time.Time { return time.Now().Add(-10 * time.Minute) }
	h.venue.Credit(addr, 50_000, exchangetest.TransferSettled)
	h.venue.Now = time.Now
	h.venue.SetBtcEquity(d(0.0015))

	require.True(t, h.ledger.Insert(ctx, model.InFlightTransfer{
		Direction:          model.DepositOnExchange,
		Address:            addr,
		TransferSizeInSats: 50_000,
	}).OK())

	cr := h.run(t)
	assert.Empty(t, cr.ReconciledTransfers)
	assert.Len(t, h.pending(t), 1)
}

func TestReconcileFeedFailureDoesNotAbort(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.True(t, h.ledger.Insert(ctx, model.InFlightTransfer{
		Direction:          model.WithdrawToWallet,
		Address:            "bc1qsomewhere",
		TransferSizeInSats: 20_000,
	}).OK())
	h.venue.Fail(exchangetest.MethodFetchWithdrawals, errors.New("connection reset"))
	h.venue.SetBtcEquity(d(0.002))
	h.venue.SetContracts(d(-2))
	h.wallet.SetLiability(d(200))

	cr := h.run(t)
	assert.Empty(t, cr.ReconciledTransfers)
	assert.True(t, cr.UpdatedPositionResult.OK())
	assert.Len(t, h.pending(t), 1)
}

func TestOrderPollExhausted(t *testing.T) {
	h := newHarness(t)
	h.venue.OrderState = exchangetest.OrderLive
	h.venue.SetBtcEquity(d(0.002))
	h.wallet.SetLiability(d(100))

	cr := h.run(t)
	assert.Equal(t, result.KindOrderUnresolved, cr.UpdatedPositionResult.Kind())
	assert.Equal(t, 3, h.venue.Calls(exchangetest.MethodFetchOrder))
	assert.Equal(t, 2, h.sleeps)

	// The collateral loop still runs.
	assert.True(t, cr.UpdatedLeverageResult.OK(), "%v", cr.UpdatedLeverageResult.Error())

	orders, err := h.audit.ListOrders(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, model.OrderStatusExpired, orders[0].Status)
}

func TestOrderCanceled(t *testing.T) {
	h := newHarness(t)
	h.venue.OrderState = exchangetest.OrderCanceled
	h.venue.SetBtcEquity(d(0.002))
	h.wallet.SetLiability(d(100))

	cr := h.run(t)
	assert.Equal(t, result.KindOrderCanceled, cr.UpdatedPositionResult.Kind())
	assert.Equal(t, 1, h.venue.Calls(exchangetest.MethodFetchOrder))
}

func TestOrderPollRetriesTransportErrors(t *testing.T) {
	h := newHarness(t)
	h.venue.Fail(exchangetest.MethodFetchOrder, errors.New("timeout"))
	h.venue.SetBtcEquity(d(0.002))
	h.wallet.SetLiability(d(100))

	cr := h.run(t)
	require.True(t, cr.UpdatedPositionResult.OK(), "%v", cr.UpdatedPositionResult.Error())
	assert.Equal(t, 2, h.venue.Calls(exchangetest.MethodFetchOrder))
	assert.Equal(t, 1, h.sleeps)
}

func TestMalformedPositionFailsPhaseOnly(t *testing.T) {
	h := newHarness(t)
	h.venue.SetBtcEquity(d(0.002))
	h.wallet.SetLiability(d(100))
	h.venue.Respond(exchangetest.MethodFetchPosition, `{"code":"0","msg":"","data":[{"instId":"BTC-USD-SWAP","pos":"abc"}]}`)

	cr := h.run(t)
	assert.Equal(t, result.KindUnsupportedAPIResponse, cr.UpdatedPositionResult.Kind())
	assert.Empty(t, h.venue.Orders)
	assert.True(t, cr.UpdatedLeverageResult.OK(), "%v", cr.UpdatedLeverageResult.Error())
}

func TestTickerFailureEndsCycle(t *testing.T) {
	h := newHarness(t)
	h.venue.Fail(exchangetest.MethodFetchTicker, errors.New("dns failure"))
	h.wallet.SetLiability(d(100))

	res := h.dealer.UpdatePositionAndLeverage(context.Background())
	require.False(t, res.OK())
	assert.Equal(t, result.KindNetwork, res.Kind())
	assert.Empty(t, h.venue.Orders)

	require.Len(t, h.reports, 1)
	assert.Equal(t, dealer.OutcomeError, h.reports[0].Outcome)
	assert.Equal(t, result.KindNetwork, h.reports[0].Error.Kind)
}

func TestWalletFailureEndsCycle(t *testing.T) {
	h := newHarness(t)
	h.wallet.FailNextBalance(errors.New("api down"))

	res := h.dealer.UpdatePositionAndLeverage(context.Background())
	assert.Equal(t, result.KindWallet, res.Kind())
	assert.Zero(t, h.venue.Calls(exchangetest.MethodFetchPosition))
}

func TestTransferLimit(t *testing.T) {
	h := newHarness(t, dealer.WithLimiter(limits.NewTransferLimiter(decimal.Zero, 1_000)))
	h.venue.SetBtcEquity(d(0.002))
	h.wallet.SetLiability(d(100))

	cr := h.run(t)
	assert.True(t, cr.UpdatedPositionResult.OK())
	assert.Equal(t, result.KindLimitExceeded, cr.UpdatedLeverageResult.Kind())
	assert.Empty(t, h.venue.Withdraws)
	assert.Empty(t, h.pending(t))
}

func TestOrderLimit(t *testing.T) {
	h := newHarness(t, dealer.WithLimiter(limits.NewTransferLimiter(d(0.5), 0)))
	h.venue.SetBtcEquity(d(0.002))
	h.wallet.SetLiability(d(100))

	cr := h.run(t)
	assert.Equal(t, result.KindLimitExceeded, cr.UpdatedPositionResult.Kind())
	assert.Empty(t, h.venue.Orders)
}

func TestConfigure(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.dealer.Configure(context.Background()))
	assert.Equal(t, 1, h.venue.Calls(exchangetest.MethodSetPositionMode))
	// No leverage configured.
	assert.Zero(t, h.venue.Calls(exchangetest.MethodSetLeverage))

	h.venue.Fail(exchangetest.MethodSetPositionMode, errors.New("connection reset"))
	err := h.dealer.Configure(context.Background())
	assert.Equal(t, result.KindNetwork, result.KindOf(err))
}

func TestCompleteTransfer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.True(t, h.ledger.Insert(ctx, model.InFlightTransfer{
		Direction:          model.DepositOnExchange,
		Address:            "bc1qmanual",
		TransferSizeInSats: 12_345,
	}).OK())

	res := h.dealer.CompleteTransfer(ctx, "bc1qmanual")
	require.True(t, res.OK(), "%v", res.Error())
	assert.True(t, res.Value().IsCompleted)
	assert.Equal(t, result.KindDoesNotExist, h.dealer.CompleteTransfer(ctx, "bc1qmanual").Kind())

	transfers, err := h.audit.ListTransfers(ctx, 10)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, audit.TransferCompleted, transfers[0].Event)
}
