package dealer

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/GaloyMoney/dealer-sub001/internal/audit"
	"github.com/GaloyMoney/dealer-sub001/internal/exchange"
	"github.com/GaloyMoney/dealer-sub001/internal/metrics"
	"github.com/GaloyMoney/dealer-sub001/internal/model"
	"github.com/GaloyMoney/dealer-sub001/internal/result"
)

// feedLimit fits every venue's page size.
const feedLimit = 50

// clockSkew is how far before a transfer's creation a settling feed entry
// may be stamped.
const clockSkew = 30 * time.Second

// reconcile completes pending transfers that the exchange feeds report as
// settled. Failures are logged and counted; they never abort the cycle.
func (d *Dealer) reconcile(ctx context.Context, c *cycle, logger *slog.Logger) []model.InFlightTransfer {
	res := d.ledger.GetPending(ctx, nil)
	if !res.OK() {
		phaseError(logger, "reconcile", res.Error())
		return nil
	}
	pending := res.Value()
	metrics.PendingTransfers.Set(float64(len(pending)))
	if len(pending) == 0 {
		return nil
	}

	byDirection := make(map[model.Direction][]model.InFlightTransfer)
	for _, t := range pending {
		byDirection[t.Direction] = append(byDirection[t.Direction], t)
	}

	var completed []model.InFlightTransfer
	for _, direction := range []model.Direction{model.DepositOnExchange, model.WithdrawToWallet} {
		transfers := byDirection[direction]
		if len(transfers) == 0 {
			continue
		}
		feed := d.feed(ctx, direction, transfers)
		if !feed.OK() {
			phaseError(logger.With("direction", direction), "reconcile", feed.Error())
			continue
		}

		used := make(map[string]bool)
		for _, t := range transfers {
			match, ok := d.settled(ctx, t, feed.Value(), used, logger)
			if !ok {
				continue
			}
			used[match.ID] = true

			done := d.ledger.Settle(ctx, t.Address, match.ID)
			if !done.OK() {
				phaseError(logger.With("transfer_id", t.ID), "reconcile", done.Error())
				continue
			}
			metrics.TransfersTotal.WithLabelValues(string(direction), string(audit.TransferCompleted)).Inc()
			d.recordTransfer(ctx, logger, c.id, done.Value(), audit.TransferCompleted, "exchange "+match.ID)
			logger.Info("transfer settled",
				"transfer_id", t.ID,
				"direction", direction,
				"address", t.Address,
				"amount_sats", match.AmountInSats,
				"settlement_id", match.ID)
			completed = append(completed, done.Value())
		}
	}

	metrics.PendingTransfers.Set(float64(len(pending) - len(completed)))
	return completed
}

// feed fetches the exchange feed covering every transfer in transfers.
func (d *Dealer) feed(ctx context.Context, direction model.Direction, transfers []model.InFlightTransfer) result.Result[[]model.Transfer] {
	since := transfers[0].CreatedTimestamp
	for _, t := range transfers[1:] {
		if t.CreatedTimestamp.Before(since) {
			since = t.CreatedTimestamp
		}
	}
	args := exchange.TransfersArgs{
		Currency: exchange.Currency,
		Since:    since.Add(-d.lookback()),
		Limit:    feedLimit,
	}
	if direction == model.DepositOnExchange {
		return d.exchange.FetchDeposits(ctx, args)
	}
	return d.exchange.FetchWithdrawals(ctx, args)
}

func (d *Dealer) lookback() time.Duration {
	if d.cfg.ReconcileLookback > 0 {
		return d.cfg.ReconcileLookback
	}
	return time.Hour
}

// settled finds an unused settled feed entry paying t's address an amount
// within the settlement tolerance, stamped no earlier than t's creation.
// Entries that completed an earlier transfer are skipped: exchanges reuse
// deposit addresses.
func (d *Dealer) settled(ctx context.Context, t model.InFlightTransfer, feed []model.Transfer, used map[string]bool, logger *slog.Logger) (model.Transfer, bool) {
	tolerance := decimal.NewFromInt(t.TransferSizeInSats).Mul(d.strategy.Config().SettlementToleranceRatio)
	earliest := t.CreatedTimestamp.Add(-clockSkew)
	for _, f := range feed {
		if used[f.ID] || f.Status != model.TransferStatusSettled || f.Address != t.Address {
			continue
		}
		if f.Timestamp.IsZero() || f.Timestamp.Before(earliest) {
			continue
		}
		diff := decimal.NewFromInt(f.AmountInSats - t.TransferSizeInSats).Abs()
		if diff.GreaterThan(tolerance) {
			continue
		}
		seen := d.ledger.IsSettlementUsed(ctx, f.ID)
		if !seen.OK() {
			phaseError(logger.With("transfer_id", t.ID), "reconcile", seen.Error())
			return model.Transfer{}, false
		}
		if seen.Value() {
			used[f.ID] = true
			continue
		}
		return f, true
	}
	return model.Transfer{}, false
}
