package exchange

import (
	"context"
	"encoding/json"

	"github.com/GaloyMoney/dealer-sub001/internal/instrument"
	"github.com/GaloyMoney/dealer-sub001/internal/model"
	"github.com/GaloyMoney/dealer-sub001/internal/result"
)

// Adapter pairs a raw Client with its Configuration.
type Adapter struct {
	client Client
	cfg    Configuration
}

// NewAdapter creates an adapter.
func NewAdapter(client Client, cfg Configuration) *Adapter {
	return &Adapter{client: client, cfg: cfg}
}

// Name returns the venue name.
func (a *Adapter) Name() string { return a.cfg.Name() }

// Instrument returns the hedging instrument.
func (a *Adapter) Instrument() *instrument.SupportedInstrument { return a.cfg.Instrument() }

// run is validate → call → process. Validation errors are returned as-is
// (they already carry a kind); transport errors are classified NETWORK.
func run[T any](
	ctx context.Context,
	op string,
	validate func() error,
	call func(context.Context) (json.RawMessage, error),
	process func(json.RawMessage) (T, error),
) result.Result[T] {
	if validate != nil {
		if err := validate(); err != nil {
			return result.Err[T](result.Wrap(result.KindMissingParameters, op, err))
		}
	}
	raw, err := call(ctx)
	if err != nil {
		return result.Err[T](result.Wrap(result.KindNetwork, op, err))
	}
	v, err := process(raw)
	if err != nil {
		return result.Err[T](result.Wrap(result.KindUnsupportedAPIResponse, op, err))
	}
	return result.Ok(v)
}

func noValue(process func(json.RawMessage) error) func(json.RawMessage) (struct{}, error) {
	return func(raw json.RawMessage) (struct{}, error) {
		return struct{}{}, process(raw)
	}
}

func (a *Adapter) FetchTicker(ctx context.Context) result.Result[model.Ticker] {
	id := a.cfg.Instrument().ID
	return run(ctx, "exchange.FetchTicker",
		func() error { return a.cfg.ValidateInstrument(id) },
		func(ctx context.Context) (json.RawMessage, error) { return a.client.FetchTicker(ctx, id) },
		a.cfg.ProcessFetchTicker)
}

func (a *Adapter) FetchPosition(ctx context.Context) result.Result[model.PositionSnapshot] {
	id := a.cfg.Instrument().ID
	return run(ctx, "exchange.FetchPosition",
		func() error { return a.cfg.ValidateInstrument(id) },
		func(ctx context.Context) (json.RawMessage, error) { return a.client.FetchPosition(ctx, id) },
		a.cfg.ProcessFetchPosition)
}

func (a *Adapter) FetchBalance(ctx context.Context) result.Result[model.Balance] {
	return run(ctx, "exchange.FetchBalance", nil,
		a.client.FetchBalance,
		a.cfg.ProcessFetchBalance)
}

func (a *Adapter) FetchDepositAddress(ctx context.Context, args DepositAddressArgs) result.Result[model.DepositAddress] {
	return run(ctx, "exchange.FetchDepositAddress",
		func() error { return a.cfg.ValidateFetchDepositAddress(args) },
		func(ctx context.Context) (json.RawMessage, error) { return a.client.FetchDepositAddress(ctx, args) },
		a.cfg.ProcessFetchDepositAddress)
}

func (a *Adapter) FetchDeposits(ctx context.Context, args TransfersArgs) result.Result[[]model.Transfer] {
	return run(ctx, "exchange.FetchDeposits",
		func() error { return a.cfg.ValidateFetchTransfers(args) },
		func(ctx context.Context) (json.RawMessage, error) { return a.client.FetchDeposits(ctx, args) },
		a.cfg.ProcessFetchDeposits)
}

func (a *Adapter) FetchWithdrawals(ctx context.Context, args TransfersArgs) result.Result[[]model.Transfer] {
	return run(ctx, "exchange.FetchWithdrawals",
		func() error { return a.cfg.ValidateFetchTransfers(args) },
		func(ctx context.Context) (json.RawMessage, error) { return a.client.FetchWithdrawals(ctx, args) },
		a.cfg.ProcessFetchWithdrawals)
}

// CreateMarketOrder places the order and returns the exchange order id.
func (a *Adapter) CreateMarketOrder(ctx context.Context, args OrderArgs) result.Result[string] {
	return run(ctx, "exchange.CreateMarketOrder",
		func() error { return a.cfg.ValidateCreateMarketOrder(args) },
		func(ctx context.Context) (json.RawMessage, error) { return a.client.CreateMarketOrder(ctx, args) },
		a.cfg.ProcessCreateMarketOrder)
}

func (a *Adapter) FetchOrder(ctx context.Context, args FetchOrderArgs) result.Result[model.Order] {
	return run(ctx, "exchange.FetchOrder",
		func() error { return a.cfg.ValidateFetchOrder(args) },
		func(ctx context.Context) (json.RawMessage, error) { return a.client.FetchOrder(ctx, args) },
		a.cfg.ProcessFetchOrder)
}

func (a *Adapter) Withdraw(ctx context.Context, args WithdrawArgs) result.Result[WithdrawResult] {
	return run(ctx, "exchange.Withdraw",
		func() error { return a.cfg.ValidateWithdraw(args) },
		func(ctx context.Context) (json.RawMessage, error) { return a.client.Withdraw(ctx, args) },
		a.cfg.ProcessWithdraw)
}

func (a *Adapter) FetchFundingRate(ctx context.Context) result.Result[model.FundingRate] {
	id := a.cfg.Instrument().ID
	return run(ctx, "exchange.FetchFundingRate",
		func() error { return a.cfg.ValidateInstrument(id) },
		func(ctx context.Context) (json.RawMessage, error) { return a.client.FetchFundingRate(ctx, id) },
		a.cfg.ProcessFetchFundingRate)
}

func (a *Adapter) SetLeverage(ctx context.Context, args LeverageArgs) result.Result[struct{}] {
	return run(ctx, "exchange.SetLeverage",
		func() error { return a.cfg.ValidateSetLeverage(args) },
		func(ctx context.Context) (json.RawMessage, error) { return a.client.SetLeverage(ctx, args) },
		noValue(a.cfg.ProcessSetLeverage))
}

func (a *Adapter) SetPositionMode(ctx context.Context, args PositionModeArgs) result.Result[struct{}] {
	return run(ctx, "exchange.SetPositionMode",
		func() error { return a.cfg.ValidateSetPositionMode(args) },
		func(ctx context.Context) (json.RawMessage, error) { return a.client.SetPositionMode(ctx, args) },
		noValue(a.cfg.ProcessSetPositionMode))
}
