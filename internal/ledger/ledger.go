package ledger

import (
	"context"
	"errors"
	"math/big"
	"time"
)

var (
	// ErrInsufficientFunds occurs when the source account lacks available balance
	// to cover a requested posting.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateTransaction indicates the posting's nonce was already consumed by
	// an earlier settled transfer.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrAccountNotFound is returned when an address has no account.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInvalidPosting rejects non-positive amounts and self transfers.
	ErrInvalidPosting = errors.New("invalid posting")
)

// Account is a balance held by an address. Balance is in minor units.
type Account struct {
	Address   string
	Balance   *big.Int
	Email     string
	CreatedAt time.Time
}

// TransferRecord is the append-only audit entry written for each settled transfer.
type TransferRecord struct {
	ID               string
	From             string
	To               string
	DisplayAmount    string
	AmountMinorUnits *big.Int
	FiatAmount       string
	Signature        string
	Nonce            string
	Timestamp        time.Time
}

// Settlement captures the outcome of an applied transfer.
type Settlement struct {
	FromBalance *big.Int
	ToBalance   *big.Int
	Record      TransferRecord
}

// Ledger defines the contract implemented by ledger backends (e.g. Postgres).
//
// ApplyTransfer is the single commit point: it debits From, credits To (creating
// the recipient if needed), consumes the nonce and appends the record, all or nothing.
type Ledger interface {
	GetAccount(ctx context.Context, address string) (Account, error)
	CreateAccount(ctx context.Context, address string, initialBalance *big.Int, email string) (Account, bool, error)
	SetEmail(ctx context.Context, address, email string) (Account, error)
	ApplyTransfer(ctx context.Context, record TransferRecord) (Settlement, error)
	ListRecords(ctx context.Context, address string) ([]TransferRecord, error)
}

func validatePosting(record TransferRecord) error {
	if record.AmountMinorUnits == nil || record.AmountMinorUnits.Sign() <= 0 {
		return ErrInvalidPosting
	}
	if record.From == "" || record.To == "" || record.From == record.To {
		return ErrInvalidPosting
	}
	if record.Nonce == "" {
		return ErrInvalidPosting
	}
	return nil
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
