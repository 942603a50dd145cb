package dealer

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/GaloyMoney/dealer-sub001/internal/audit"
	"github.com/GaloyMoney/dealer-sub001/internal/model"
	"github.com/GaloyMoney/dealer-sub001/internal/result"
)

// Cycle outcomes, also used as the dealer_cycles_total label.
const (
	OutcomeOK      = "ok"
	OutcomePartial = "partial"
	OutcomeError   = "error"
)

// PhaseError is the serializable form of a failed phase.
type PhaseError struct {
	Kind    result.Kind `json:"kind"`
	Message string      `json:"message"`
}

func phaseErrorOf(err error) *PhaseError {
	if err == nil {
		return nil
	}
	return &PhaseError{Kind: result.KindOf(err), Message: err.Error()}
}

// Report is the JSON view of one cycle, served by the API and broadcast to
// WebSocket clients.
type Report struct {
	CycleID          string          `json:"cycle_id"`
	Outcome          string          `json:"outcome"`
	StartedAt        time.Time       `json:"started_at"`
	FinishedAt       time.Time       `json:"finished_at"`
	PriceInUsdPerBtc decimal.Decimal `json:"price_in_usd_per_btc"`
	LiabilityInUsd   decimal.Decimal `json:"liability_in_usd"`
	Error            *PhaseError     `json:"error,omitempty"`

	UpdatePositionSkipped bool                   `json:"update_position_skipped"`
	UpdatedPosition       *model.UpdatedPosition `json:"updated_position,omitempty"`
	PositionError         *PhaseError            `json:"position_error,omitempty"`
	Order                 *audit.OrderRecord     `json:"order,omitempty"`

	UpdateLeverageSkipped bool                    `json:"update_leverage_skipped"`
	UpdatedBalance        *model.UpdatedBalance   `json:"updated_balance,omitempty"`
	LeverageError         *PhaseError             `json:"leverage_error,omitempty"`
	Transfer              *model.InFlightTransfer `json:"transfer,omitempty"`

	ReconciledTransfers []model.InFlightTransfer `json:"reconciled_transfers"`
}

func newReport(c *cycle, res result.Result[CycleResult], finished time.Time) Report {
	r := Report{
		CycleID:             c.id,
		Outcome:             OutcomeOK,
		StartedAt:           c.started,
		FinishedAt:          finished,
		PriceInUsdPerBtc:    c.price,
		LiabilityInUsd:      c.liability,
		Order:               c.order,
		Transfer:            c.transfer,
		ReconciledTransfers: []model.InFlightTransfer{},
	}
	if !res.OK() {
		r.Outcome = OutcomeError
		r.Error = phaseErrorOf(res.Error())
		return r
	}

	cr := res.Value()
	if cr.ReconciledTransfers != nil {
		r.ReconciledTransfers = cr.ReconciledTransfers
	}

	r.UpdatePositionSkipped = cr.UpdatePositionSkipped
	if !cr.UpdatePositionSkipped {
		if cr.UpdatedPositionResult.OK() {
			p := cr.UpdatedPositionResult.Value()
			r.UpdatedPosition = &p
		} else {
			r.PositionError = phaseErrorOf(cr.UpdatedPositionResult.Error())
			r.Outcome = OutcomePartial
		}
	}

	r.UpdateLeverageSkipped = cr.UpdateLeverageSkipped
	if cr.UpdatedLeverageResult.OK() {
		b := cr.UpdatedLeverageResult.Value()
		r.UpdatedBalance = &b
	} else {
		r.LeverageError = phaseErrorOf(cr.UpdatedLeverageResult.Error())
		r.Outcome = OutcomePartial
	}
	return r
}
