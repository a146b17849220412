package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/mail"
	"strings"

	"github.com/congo-pay/sigledger/internal/address"
	"github.com/congo-pay/sigledger/internal/events"
	"github.com/congo-pay/sigledger/internal/ledger"
	"github.com/congo-pay/sigledger/internal/logging"
)

var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrInvalidAddress   = errors.New("invalid address")
	ErrInvalidEmail     = errors.New("invalid email")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// EventPublisher appends domain events to a stream.
type EventPublisher interface {
	Publish(ctx context.Context, stream, eventType string, data any) error
}

// Service exposes account initialization and lookup over the ledger.
type Service struct {
	ledger         ledger.Ledger
	initialBalance *big.Int
	events         EventPublisher
	logger         *slog.Logger
}

// NewService builds a wallet service. New accounts start with initialBalance
// minor units; publisher may be nil.
func NewService(l ledger.Ledger, initialBalance *big.Int, publisher EventPublisher, logger *slog.Logger) *Service {
	if initialBalance == nil {
		initialBalance = new(big.Int)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{ledger: l, initialBalance: initialBalance, events: publisher, logger: logger}
}

// Init returns the account for addr, creating it if absent. The email is only
// applied when the account is created; use SetEmail to change it later.
func (s *Service) Init(ctx context.Context, addr, email string) (Wallet, bool, error) {
	normalized, err := address.Normalize(addr)
	if err != nil {
		return Wallet{}, false, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	email, err = normalizeEmail(email)
	if err != nil {
		return Wallet{}, false, err
	}

	acc, created, err := s.ledger.CreateAccount(ctx, normalized, s.initialBalance, email)
	if err != nil {
		return Wallet{}, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if created {
		s.logger.Info("account created", "address", normalized)
		s.publishCreated(ctx, acc)
	}
	return fromAccount(acc), created, nil
}

// Get returns the account for addr.
func (s *Service) Get(ctx context.Context, addr string) (Wallet, error) {
	normalized, err := address.Normalize(addr)
	if err != nil {
		return Wallet{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	acc, err := s.ledger.GetAccount(ctx, normalized)
	if err != nil {
		return Wallet{}, mapLedgerError(err)
	}
	return fromAccount(acc), nil
}

// SetEmail binds a notification address to an existing account. An empty
// email clears it.
func (s *Service) SetEmail(ctx context.Context, addr, email string) (Wallet, error) {
	normalized, err := address.Normalize(addr)
	if err != nil {
		return Wallet{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	email, err = normalizeEmail(email)
	if err != nil {
		return Wallet{}, err
	}
	acc, err := s.ledger.SetEmail(ctx, normalized, email)
	if err != nil {
		return Wallet{}, mapLedgerError(err)
	}
	return fromAccount(acc), nil
}

func (s *Service) publishCreated(ctx context.Context, acc ledger.Account) {
	if s.events == nil {
		return
	}
	err := s.events.Publish(ctx, events.AccountEventsStream, events.AccountCreated, events.AccountCreatedEvent{
		Address:      acc.Address,
		BalanceMinor: acc.Balance.String(),
		Email:        acc.Email,
	})
	if err != nil {
		s.logger.Warn("publish account event failed", "address", acc.Address, "error", err)
	}
}

func normalizeEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	if email == "" {
		return "", nil
	}
	parsed, err := mail.ParseAddress(email)
	if err != nil || parsed.Address != email {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, raw)
	}
	return email, nil
}

func mapLedgerError(err error) error {
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return ErrAccountNotFound
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
