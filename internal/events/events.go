package events

import "time"

// Event types
const (
	AccountCreated  = "account.created"
	TransferSettled = "transfer.settled"
)

// Stream names
const (
	AccountEventsStream  = "account.events"
	TransferEventsStream = "transfer.events"
)

// Event is the envelope written to every stream entry.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

type AccountCreatedEvent struct {
	Address      string `json:"address"`
	BalanceMinor string `json:"balanceMinorUnits"`
	Email        string `json:"email,omitempty"`
}

// TransferSettledEvent amounts are decimal strings in minor units.
type TransferSettledEvent struct {
	TransactionID string `json:"transactionId"`
	From          string `json:"from"`
	To            string `json:"to"`
	AmountMinor   string `json:"amountMinorUnits"`
	DisplayAmount string `json:"amount"`
	FiatAmount    string `json:"fiatAmount,omitempty"`
	FromBalance   string `json:"fromBalanceMinorUnits"`
	ToBalance     string `json:"toBalanceMinorUnits"`
}
