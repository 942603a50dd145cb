// Package pricing converts between satoshis and cents using the cycle's
// exchange quote and the dealer's fee schedule.
//
// "Buy" quotes are the dealer buying BTC (paying cents for sats) and are
// valued at the bid less fees; "Sell" quotes are the dealer selling BTC and
// are valued at the ask plus fees. Every conversion rounds in the dealer's
// favour, so a buy quote never exceeds the no-fee conversion at the bid and a
// sell quote is never below the no-fee conversion at the ask, for any input
// down to 1 sat or 1 cent.
//
// Future quotes add the delayed spread scaled linearly by time to expiry,
// reaching the full delayed spread at one year.
package pricing

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/GaloyMoney/dealer-sub001/internal/model"
)

var (
	// ErrInvalidQuote is returned when bid or ask is not positive or the
	// book is crossed.
	ErrInvalidQuote = errors.New("pricing: bid and ask must be positive with bid <= ask")

	// ErrInvalidFeeSchedule is returned when a fee is negative or the total
	// fee reaches 100%.
	ErrInvalidFeeSchedule = errors.New("pricing: fees must be non-negative and sum below 1")
)

// SecondsPerYear scales the delayed spread for future quotes.
const SecondsPerYear = 365 * 24 * 60 * 60

var (
	one            = decimal.NewFromInt(1)
	secondsPerYear = decimal.NewFromInt(SecondsPerYear)
	// USD/BTC → cents/sat: * 100 / 1e8
	usdPerBtcToCentsPerSat = decimal.New(1, -6)
)

// Service is stateless apart from its quote; build one per cycle.
type Service struct {
	bidCentsPerSat decimal.Decimal
	askCentsPerSat decimal.Decimal
	fees           model.FeeSchedule
}

// ValidateFeeSchedule checks the fee invariants used by NewService.
func ValidateFeeSchedule(fees model.FeeSchedule) error {
	if fees.BaseFee.IsNegative() || fees.ImmediateSpread.IsNegative() || fees.DelayedSpread.IsNegative() {
		return ErrInvalidFeeSchedule
	}
	if fees.BaseFee.Add(fees.ImmediateSpread).Add(fees.DelayedSpread).GreaterThanOrEqual(one) {
		return ErrInvalidFeeSchedule
	}
	return nil
}

// NewService builds a quote service from an exchange quote.
func NewService(quote model.ExchangeQuote) (*Service, error) {
	bid, ask := quote.LastBidInUsdPerBtc, quote.LastAskInUsdPerBtc
	if !bid.IsPositive() || !ask.IsPositive() || bid.GreaterThan(ask) {
		return nil, ErrInvalidQuote
	}
	if err := ValidateFeeSchedule(quote.FeeSchedule); err != nil {
		return nil, err
	}
	return &Service{
		bidCentsPerSat: bid.Mul(usdPerBtcToCentsPerSat),
		askCentsPerSat: ask.Mul(usdPerBtcToCentsPerSat),
		fees:           quote.FeeSchedule,
	}, nil
}

// ImmediateFee is baseFee + immediateSpread.
func (s *Service) ImmediateFee() decimal.Decimal {
	return s.fees.BaseFee.Add(s.fees.ImmediateSpread)
}

// MaxFee is the largest fee any quote can carry (a future quote at one year
// or more).
func (s *Service) MaxFee() decimal.Decimal {
	return s.ImmediateFee().Add(s.fees.DelayedSpread)
}

// FutureFee is the fee for a quote settling secondsToExpiry from now.
func (s *Service) FutureFee(secondsToExpiry int64) decimal.Decimal {
	if secondsToExpiry <= 0 {
		return s.ImmediateFee()
	}
	if secondsToExpiry > SecondsPerYear {
		secondsToExpiry = SecondsPerYear
	}
	scaled := s.fees.DelayedSpread.Mul(decimal.NewFromInt(secondsToExpiry)).Div(secondsPerYear)
	return s.ImmediateFee().Add(scaled)
}

// GetCentsPerSatsExchangeMidRate returns the no-fee mid rate in cents per sat.
func (s *Service) GetCentsPerSatsExchangeMidRate() decimal.Decimal {
	return s.bidCentsPerSat.Add(s.askCentsPerSat).Div(decimal.NewFromInt(2))
}

// --- cents from sats ---

func (s *Service) GetCentsFromSatsForImmediateBuy(sats int64) int64 {
	return centsFromSatsBuy(sats, s.bidCentsPerSat, s.ImmediateFee())
}

func (s *Service) GetCentsFromSatsForImmediateSell(sats int64) int64 {
	return centsFromSatsSell(sats, s.askCentsPerSat, s.ImmediateFee())
}

func (s *Service) GetCentsFromSatsForFutureBuy(sats, secondsToExpiry int64) int64 {
	return centsFromSatsBuy(sats, s.bidCentsPerSat, s.FutureFee(secondsToExpiry))
}

func (s *Service) GetCentsFromSatsForFutureSell(sats, secondsToExpiry int64) int64 {
	return centsFromSatsSell(sats, s.askCentsPerSat, s.FutureFee(secondsToExpiry))
}

// --- sats from cents ---

// GetSatsFromCentsForImmediateBuy returns the sats the dealer requires in
// exchange for paying out cents.
func (s *Service) GetSatsFromCentsForImmediateBuy(cents int64) int64 {
	return satsFromCentsBuy(cents, s.bidCentsPerSat, s.ImmediateFee())
}

// GetSatsFromCentsForImmediateSell returns the sats the dealer delivers in
// exchange for receiving cents.
func (s *Service) GetSatsFromCentsForImmediateSell(cents int64) int64 {
	return satsFromCentsSell(cents, s.askCentsPerSat, s.ImmediateFee())
}

func (s *Service) GetSatsFromCentsForFutureBuy(cents, secondsToExpiry int64) int64 {
	return satsFromCentsBuy(cents, s.bidCentsPerSat, s.FutureFee(secondsToExpiry))
}

func (s *Service) GetSatsFromCentsForFutureSell(cents, secondsToExpiry int64) int64 {
	return satsFromCentsSell(cents, s.askCentsPerSat, s.FutureFee(secondsToExpiry))
}

// centsFromSatsBuy = floor(sats * bid * (1 - fee)).
func centsFromSatsBuy(sats int64, bidCentsPerSat, fee decimal.Decimal) int64 {
	if sats <= 0 {
		return 0
	}
	rate := bidCentsPerSat.Mul(one.Sub(fee))
	return decimal.NewFromInt(sats).Mul(rate).Floor().IntPart()
}

// centsFromSatsSell = ceil(sats * ask * (1 + fee)).
func centsFromSatsSell(sats int64, askCentsPerSat, fee decimal.Decimal) int64 {
	if sats <= 0 {
		return 0
	}
	rate := askCentsPerSat.Mul(one.Add(fee))
	return decimal.NewFromInt(sats).Mul(rate).Ceil().IntPart()
}

// satsFromCentsBuy = ceil(cents / (bid * (1 - fee))).
func satsFromCentsBuy(cents int64, bidCentsPerSat, fee decimal.Decimal) int64 {
	if cents <= 0 {
		return 0
	}
	rate := bidCentsPerSat.Mul(one.Sub(fee))
	return decimal.NewFromInt(cents).DivRound(rate, 16).Ceil().IntPart()
}

// satsFromCentsSell = floor(cents / (ask * (1 + fee))).
func satsFromCentsSell(cents int64, askCentsPerSat, fee decimal.Decimal) int64 {
	if cents <= 0 {
		return 0
	}
	rate := askCentsPerSat.Mul(one.Add(fee))
	return decimal.NewFromInt(cents).DivRound(rate, 16).Floor().IntPart()
}
