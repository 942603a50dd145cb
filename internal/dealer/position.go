package dealer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/GaloyMoney/dealer-sub001/internal/audit"
	"github.com/GaloyMoney/dealer-sub001/internal/exchange"
	"github.com/GaloyMoney/dealer-sub001/internal/hedging"
	"github.com/GaloyMoney/dealer-sub001/internal/metrics"
	"github.com/GaloyMoney/dealer-sub001/internal/model"
	"github.com/GaloyMoney/dealer-sub001/internal/result"
)

// position reads the derivative position and margin balance and values
// them at the cycle price.
func (d *Dealer) position(ctx context.Context, c *cycle) result.Result[model.Position] {
	snap := d.exchange.FetchPosition(ctx)
	if !snap.OK() {
		return result.Err[model.Position](snap.Error())
	}
	bal := d.exchange.FetchBalance(ctx)
	if !bal.OK() {
		return result.Err[model.Position](bal.Error())
	}

	collateral := bal.Value().BtcEquity.Mul(c.price)
	exposure := d.exchange.Instrument().ShortExposureUsd(snap.Value().Contracts)
	p := model.NewPosition(collateral, exposure, bal.Value().TotalAccountValueInUsd)

	metrics.CollateralUsd.Set(collateral.InexactFloat64())
	metrics.ExposureUsd.Set(exposure.InexactFloat64())
	return result.Ok(p)
}

func (d *Dealer) updatePosition(ctx context.Context, c *cycle, logger *slog.Logger) result.Result[model.UpdatedPosition] {
	original := d.position(ctx, c)
	if !original.OK() {
		return result.Err[model.UpdatedPosition](original.Error())
	}
	p := original.Value()

	inst := d.exchange.Instrument()
	rec, ok := d.strategy.OrderRecommendation(c.liability, p, inst)
	if !ok {
		logger.Info("exposure in band",
			"liability_usd", c.liability,
			"exposure_usd", p.ExposureInUsd,
			"ratio", hedging.ExposureRatio(c.liability, p.ExposureInUsd))
		return result.Ok(model.UpdatedPosition{OriginalPosition: p, UpdatedPosition: p})
	}
	if !inst.MeetsMinimum(rec.Contracts) {
		logger.Info("order below minimum size", "contracts", rec.Contracts, "minimum", inst.MinOrderSizeInContracts)
		return result.Ok(model.UpdatedPosition{OriginalPosition: p, UpdatedPosition: p})
	}
	if err := d.limiter.CheckOrder(rec.Contracts); err != nil {
		return result.Err[model.UpdatedPosition](err)
	}

	order := d.placeOrder(ctx, c, rec, logger)
	if !order.OK() {
		return result.Err[model.UpdatedPosition](order.Error())
	}

	updated := d.position(ctx, c)
	if !updated.OK() {
		return result.Err[model.UpdatedPosition](updated.Error())
	}
	return result.Ok(model.UpdatedPosition{OriginalPosition: p, UpdatedPosition: updated.Value()})
}

// placeOrder submits a market order and polls it until it closes, is
// canceled or the poll budget runs out.
func (d *Dealer) placeOrder(ctx context.Context, c *cycle, rec hedging.OrderRecommendation, logger *slog.Logger) result.Result[model.Order] {
	const op = "dealer.placeOrder"
	inst := d.exchange.Instrument()

	record := audit.OrderRecord{
		ID:            uuid.New().String(),
		CycleID:       c.id,
		Exchange:      d.exchange.Name(),
		InstrumentID:  inst.ID,
		ClientOrderID: shortID(),
		Side:          rec.Side,
		Contracts:     rec.Contracts,
		CreatedAt:     d.now(),
	}

	created := d.exchange.CreateMarketOrder(ctx, exchange.OrderArgs{
		InstrumentID:  inst.ID,
		Side:          rec.Side,
		Contracts:     rec.Contracts,
		ClientOrderID: record.ClientOrderID,
	})
	if !created.OK() {
		metrics.OrdersTotal.WithLabelValues(string(rec.Side), "rejected").Inc()
		return result.Err[model.Order](created.Error())
	}
	record.ExchangeOrderID = created.Value()
	logger = logger.With("order_id", record.ExchangeOrderID, "side", rec.Side, "contracts", rec.Contracts)
	logger.Info("market order placed", "target_exposure_usd", rec.TargetExposureInUsd)

	finish := func(o model.Order) {
		record.FilledContracts = o.FilledContracts
		record.AvgPrice = o.AvgPrice
		record.Status = o.Status
		metrics.OrdersTotal.WithLabelValues(string(rec.Side), string(o.Status)).Inc()
		d.recordOrder(ctx, logger, record)
		c.order = &record
	}

	args := exchange.FetchOrderArgs{ID: record.ExchangeOrderID, InstrumentID: inst.ID}
	var last model.Order
	for i := 0; i < d.cfg.MaxPollIterations; i++ {
		if i > 0 {
			if err := d.sleep(ctx, d.cfg.PollInterval); err != nil {
				last.Status = model.OrderStatusExpired
				finish(last)
				return result.ErrKind[model.Order](result.KindOrderUnresolved, op, err)
			}
		}

		res := d.exchange.FetchOrder(ctx, args)
		if !res.OK() {
			if res.Kind() == result.KindNetwork {
				logger.Warn("order poll failed, retrying", "attempt", i+1, "err", res.Error())
				continue
			}
			last.Status = model.OrderStatusExpired
			finish(last)
			return result.Err[model.Order](res.Error())
		}

		last = res.Value()
		switch last.Status {
		case model.OrderStatusClosed:
			finish(last)
			logger.Info("market order filled", "filled", last.FilledContracts, "avg_price", last.AvgPrice)
			return result.Ok(last)
		case model.OrderStatusCanceled:
			finish(last)
			return result.Err[model.Order](result.Newf(result.KindOrderCanceled, op,
				"order %s canceled after %s of %s contracts", last.ID, last.FilledContracts, rec.Contracts))
		}
	}

	last.Status = model.OrderStatusExpired
	finish(last)
	return result.Err[model.Order](result.New(result.KindOrderUnresolved, op,
		fmt.Errorf("order %s not terminal after %d polls", record.ExchangeOrderID, d.cfg.MaxPollIterations)))
}
