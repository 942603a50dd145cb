package model

import (
	"fmt"
	"time"
)

// Direction is the direction of a fund transfer between wallet and exchange.
type Direction string

const (
	DepositOnExchange Direction = "DEPOSIT_ON_EXCHANGE"
	WithdrawToWallet  Direction = "WITHDRAW_TO_WALLET"
)

// ParseDirection validates a direction string.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case DepositOnExchange, WithdrawToWallet:
		return Direction(s), nil
	}
	return "", fmt.Errorf("model: unknown transfer direction %q", s)
}

// InFlightTransfer is a fund movement that has been initiated and may not be
// settled yet. Records are append-and-update: they move PENDING → COMPLETED
// and are never deleted by the dealer.
type InFlightTransfer struct {
	ID                 int64     `json:"id"`
	Direction          Direction `json:"direction"`
	Address            string    `json:"address"`
	TransferSizeInSats int64     `json:"transfer_size_in_sats"`
	Memo               string    `json:"memo"`
	IsCompleted        bool      `json:"is_completed"`
	// SettlementID is the exchange feed entry that completed the transfer.
	// Empty for pending and manually completed records.
	SettlementID     string    `json:"settlement_id,omitempty"`
	CreatedTimestamp time.Time `json:"created_timestamp"`
	UpdatedTimestamp time.Time `json:"updated_timestamp"`
}

// State returns PENDING or COMPLETED.
func (t InFlightTransfer) State() string {
	if t.IsCompleted {
		return "COMPLETED"
	}
	return "PENDING"
}
