package dealer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/GaloyMoney/dealer-sub001/internal/audit"
	"github.com/GaloyMoney/dealer-sub001/internal/exchange"
	"github.com/GaloyMoney/dealer-sub001/internal/hedging"
	"github.com/GaloyMoney/dealer-sub001/internal/metrics"
	"github.com/GaloyMoney/dealer-sub001/internal/model"
	"github.com/GaloyMoney/dealer-sub001/internal/result"
)

// updateLeverage moves collateral between wallet and exchange when the
// leverage ratio leaves its band. It reports skipped when no transfer is
// needed or one in the same direction is still in flight.
func (d *Dealer) updateLeverage(ctx context.Context, c *cycle, logger *slog.Logger) (bool, result.Result[model.UpdatedBalance]) {
	pos := d.position(ctx, c)
	if !pos.OK() {
		return false, result.Err[model.UpdatedBalance](pos.Error())
	}
	p := pos.Value()

	verdict := d.strategy.LeverageVerdict(c.liability, p.CollateralInUsd, p.ExposureInUsd, c.price)
	metrics.LeverageRatio.Set(verdict.LeverageRatio.InexactFloat64())

	balance := model.UpdatedBalance{
		OriginalLeverageRatio: verdict.LeverageRatio,
		NewLeverageRatio:      verdict.NewLeverageRatio,
		LiabilityInUsd:        c.liability,
		CollateralInUsd:       p.CollateralInUsd,
	}
	if !verdict.NeedsTransfer() {
		logger.Info("leverage in band", "leverage_ratio", verdict.LeverageRatio)
		return true, result.Ok(balance)
	}

	direction := model.DepositOnExchange
	if verdict.Action == hedging.WithdrawFromExchange {
		direction = model.WithdrawToWallet
	}

	pending := d.ledger.GetPending(ctx, &direction)
	if !pending.OK() {
		return false, result.Err[model.UpdatedBalance](pending.Error())
	}
	if n := len(pending.Value()); n > 0 {
		logger.Info("transfer already in flight, leverage update skipped",
			"direction", direction, "pending", n, "leverage_ratio", verdict.LeverageRatio)
		balance.NewLeverageRatio = verdict.LeverageRatio
		return true, result.Ok(balance)
	}

	if err := d.limiter.CheckTransfer(verdict.AmountInSats); err != nil {
		return false, result.Err[model.UpdatedBalance](err)
	}

	logger = logger.With("direction", direction, "amount_sats", verdict.AmountInSats)
	logger.Info("leverage out of band",
		"leverage_ratio", verdict.LeverageRatio,
		"new_leverage_ratio", verdict.NewLeverageRatio,
		"target_collateral_usd", verdict.TargetCollateralInUsd)

	var res result.Result[model.InFlightTransfer]
	if direction == model.DepositOnExchange {
		res = d.deposit(ctx, c, verdict.AmountInSats, logger)
	} else {
		res = d.withdraw(ctx, c, verdict.AmountInSats, logger)
	}
	if !res.OK() {
		return false, result.Err[model.UpdatedBalance](res.Error())
	}
	return false, result.Ok(balance)
}

// deposit pays from the wallet to the exchange deposit address. The ledger
// record is written before the payment so a crash leaves a pending
// transfer, never an untracked one.
func (d *Dealer) deposit(ctx context.Context, c *cycle, sats int64, logger *slog.Logger) result.Result[model.InFlightTransfer] {
	addr := d.exchange.FetchDepositAddress(ctx, exchange.DepositAddressArgs{Currency: exchange.Currency})
	if !addr.OK() {
		return result.Err[model.InFlightTransfer](addr.Error())
	}

	t := d.begin(ctx, c, model.DepositOnExchange, addr.Value().Address, sats, logger)
	if !t.OK() {
		return t
	}

	pay := d.wallet.PayOnChain(ctx, t.Value().Address, sats, t.Value().Memo)
	if !pay.OK() {
		d.transferFailed(ctx, c, t.Value(), pay.Error(), logger)
		return result.Err[model.InFlightTransfer](pay.Error())
	}
	logger.Info("deposit sent", "transfer_id", t.Value().ID, "address", t.Value().Address)
	return t
}

// withdraw asks the exchange to send collateral to a fresh wallet address.
func (d *Dealer) withdraw(ctx context.Context, c *cycle, sats int64, logger *slog.Logger) result.Result[model.InFlightTransfer] {
	addr := d.wallet.GetWalletOnChainDepositAddress(ctx)
	if !addr.OK() {
		return result.Err[model.InFlightTransfer](addr.Error())
	}

	t := d.begin(ctx, c, model.WithdrawToWallet, addr.Value(), sats, logger)
	if !t.OK() {
		return t
	}

	wd := d.exchange.Withdraw(ctx, exchange.WithdrawArgs{
		Currency:       exchange.Currency,
		QuantityInSats: sats,
		Address:        t.Value().Address,
		FeeInBtc:       d.cfg.WithdrawFeeInBtc,
		ClientID:       shortID(),
	})
	if !wd.OK() {
		d.transferFailed(ctx, c, t.Value(), wd.Error(), logger)
		return result.Err[model.InFlightTransfer](wd.Error())
	}
	logger.Info("withdrawal requested", "transfer_id", t.Value().ID, "address", t.Value().Address,
		"withdrawal_id", wd.Value().ID, "status", wd.Value().Status)
	return t
}

// begin records the pending transfer in the ledger.
func (d *Dealer) begin(ctx context.Context, c *cycle, direction model.Direction, address string, sats int64, logger *slog.Logger) result.Result[model.InFlightTransfer] {
	memo := fmt.Sprintf("dealer %s of %d sats, cycle %s", direction, sats, c.id)
	res := d.ledger.Insert(ctx, model.InFlightTransfer{
		Direction:          direction,
		Address:            address,
		TransferSizeInSats: sats,
		Memo:               memo,
	})
	if !res.OK() {
		return res
	}
	t := res.Value()
	c.transfer = &t
	metrics.TransfersTotal.WithLabelValues(string(direction), string(audit.TransferInitiated)).Inc()
	metrics.TransferSats.WithLabelValues(string(direction)).Add(float64(sats))
	d.recordTransfer(ctx, logger, c.id, t, audit.TransferInitiated, "")
	return res
}

// transferFailed audits a transfer whose irreversible step returned an
// error. The ledger record stays pending: the payment may still have gone
// out, so only reconciliation or an operator can complete it.
func (d *Dealer) transferFailed(ctx context.Context, c *cycle, t model.InFlightTransfer, err error, logger *slog.Logger) {
	metrics.TransfersTotal.WithLabelValues(string(t.Direction), string(audit.TransferFailed)).Inc()
	d.recordTransfer(ctx, logger, c.id, t, audit.TransferFailed, err.Error())
	logger.Error("transfer failed, left pending for reconciliation", "transfer_id", t.ID, "address", t.Address, "err", err)
}
