package ledger

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type inMemoryLedger struct {
	mu       sync.RWMutex
	accounts map[string]Account
	records  []TransferRecord
	nonces   map[string]string

	// afterDebit lets tests inject a failure between the debit and the credit.
	afterDebit func() error
}

// NewInMemory creates a concurrency-safe in-memory ledger useful for unit tests
// and development runs without Postgres.
func NewInMemory() Ledger {
	return &inMemoryLedger{
		accounts: make(map[string]Account),
		nonces:   make(map[string]string),
	}
}

func (l *inMemoryLedger) GetAccount(_ context.Context, address string) (Account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acc, ok := l.accounts[address]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return copyAccount(acc), nil
}

func (l *inMemoryLedger) CreateAccount(_ context.Context, address string, initialBalance *big.Int, email string) (Account, bool, error) {
	if initialBalance != nil && initialBalance.Sign() < 0 {
		return Account{}, false, ErrInvalidPosting
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if acc, exists := l.accounts[address]; exists {
		return copyAccount(acc), false, nil
	}
	acc := Account{Address: address, Balance: cloneInt(initialBalance), Email: email, CreatedAt: time.Now().UTC()}
	l.accounts[address] = acc
	return copyAccount(acc), true, nil
}

func (l *inMemoryLedger) SetEmail(_ context.Context, address, email string) (Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[address]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	acc.Email = email
	l.accounts[address] = acc
	return copyAccount(acc), nil
}

func (l *inMemoryLedger) ApplyTransfer(_ context.Context, record TransferRecord) (Settlement, error) {
	if err := validatePosting(record); err != nil {
		return Settlement{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.nonces[record.Nonce]; exists {
		return Settlement{}, ErrDuplicateTransaction
	}

	from, ok := l.accounts[record.From]
	if !ok {
		return Settlement{}, ErrAccountNotFound
	}
	if from.Balance.Cmp(record.AmountMinorUnits) < 0 {
		return Settlement{}, ErrInsufficientFunds
	}

	// Every write below is journaled so a failure part-way restores the prior state.
	var undo []func()
	rollback := func() {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
	}

	prevFrom := from
	from.Balance = new(big.Int).Sub(from.Balance, record.AmountMinorUnits)
	l.accounts[record.From] = from
	undo = append(undo, func() { l.accounts[record.From] = prevFrom })

	if l.afterDebit != nil {
		if err := l.afterDebit(); err != nil {
			rollback()
			return Settlement{}, err
		}
	}

	to, exists := l.accounts[record.To]
	if exists {
		prevTo := to
		undo = append(undo, func() { l.accounts[record.To] = prevTo })
	} else {
		to = Account{Address: record.To, Balance: new(big.Int), CreatedAt: time.Now().UTC()}
		undo = append(undo, func() { delete(l.accounts, record.To) })
	}
	to.Balance = new(big.Int).Add(to.Balance, record.AmountMinorUnits)
	l.accounts[record.To] = to

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	record.AmountMinorUnits = cloneInt(record.AmountMinorUnits)
	l.records = append(l.records, record)
	l.nonces[record.Nonce] = record.ID

	return Settlement{
		FromBalance: cloneInt(from.Balance),
		ToBalance:   cloneInt(to.Balance),
		Record:      copyRecord(record),
	}, nil
}

func (l *inMemoryLedger) ListRecords(_ context.Context, address string) ([]TransferRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]TransferRecord, 0)
	for i := len(l.records) - 1; i >= 0; i-- {
		rec := l.records[i]
		if rec.From == address || rec.To == address {
			out = append(out, copyRecord(rec))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

func copyAccount(acc Account) Account {
	acc.Balance = cloneInt(acc.Balance)
	return acc
}

func copyRecord(rec TransferRecord) TransferRecord {
	rec.AmountMinorUnits = cloneInt(rec.AmountMinorUnits)
	return rec
}
