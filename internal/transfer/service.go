package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/sigledger/internal/address"
	"github.com/congo-pay/sigledger/internal/ledger"
	"github.com/congo-pay/sigledger/internal/logging"
	"github.com/congo-pay/sigledger/internal/message"
	"github.com/congo-pay/sigledger/internal/notification"
	"github.com/congo-pay/sigledger/internal/quote"
	"github.com/congo-pay/sigledger/internal/signature"
	"github.com/congo-pay/sigledger/internal/units"
)

// Currency modes accepted by approve and execute.
const (
	ModeNative = "native"
	ModeFiat   = "fiat"
)

const (
	defaultApprovalWindow     = 30 * time.Second
	defaultFiatApprovalWindow = 60 * time.Second
	defaultSideEffectTimeout  = 10 * time.Second
)

// EventPublisher appends domain events to a stream.
type EventPublisher interface {
	Publish(ctx context.Context, stream, eventType string, data any) error
}

// Config tunes approval windows and post-commit side effects.
type Config struct {
	ApprovalWindow     time.Duration
	FiatApprovalWindow time.Duration
	SideEffectTimeout  time.Duration
	// QuoteKey authenticates quote references. A random key is generated when
	// empty, so references do not survive a restart.
	QuoteKey []byte
}

// Dependencies are the collaborators the engine is built from. Notifier and
// Events may be nil.
type Dependencies struct {
	Ledger   ledger.Ledger
	Oracle   quote.Oracle
	Notifier notification.Notifier
	Events   EventPublisher
	Logger   *slog.Logger
}

// Service runs the approve -> sign -> execute protocol. It holds no state
// between approve and execute; the signed message carries everything.
type Service struct {
	ledger   ledger.Ledger
	oracle   quote.Oracle
	notifier notification.Notifier
	events   EventPublisher
	logger   *slog.Logger
	seal     quoteSeal
	cfg      Config
	now      func() time.Time

	inflight sync.WaitGroup
}

// NewService constructs a transfer engine.
func NewService(deps Dependencies, cfg Config) (*Service, error) {
	if cfg.ApprovalWindow <= 0 {
		cfg.ApprovalWindow = defaultApprovalWindow
	}
	if cfg.FiatApprovalWindow <= 0 {
		cfg.FiatApprovalWindow = defaultFiatApprovalWindow
	}
	if cfg.SideEffectTimeout <= 0 {
		cfg.SideEffectTimeout = defaultSideEffectTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	seal, err := newQuoteSeal(cfg.QuoteKey)
	if err != nil {
		return nil, err
	}
	cfg.QuoteKey = nil
	return &Service{
		ledger:   deps.Ledger,
		oracle:   deps.Oracle,
		notifier: deps.Notifier,
		events:   deps.Events,
		logger:   logger,
		seal:     seal,
		cfg:      cfg,
		now:      time.Now,
	}, nil
}

// ApproveInput is a request to build an authorization message.
// Amount is in native display units, or in fiat units when Mode is fiat.
type ApproveInput struct {
	From   string
	To     string
	Amount string
	Mode   string
}

// Approval is the unsigned ticket returned to the client.
type Approval struct {
	Message          string
	ExpiresAt        time.Time
	Amount           string
	AmountMinorUnits *big.Int
	FiatAmount       string
	QuoteReference   string
	Nonce            string
}

// Approve quotes (for fiat) and builds the message the sender must sign. It
// never mutates the ledger.
func (s *Service) Approve(ctx context.Context, input ApproveInput) (Approval, error) {
	from, to, err := normalizeParties(input.From, input.To)
	if err != nil {
		return Approval{}, err
	}
	mode, err := normalizeMode(input.Mode)
	if err != nil {
		return Approval{}, err
	}

	terms := message.Terms{
		From:  from,
		To:    to,
		Unit:  units.NativeSymbol,
		Nonce: uuid.NewString(),
	}
	var (
		minor  *big.Int
		route  string
		window = s.windowFor(mode)
	)

	switch mode {
	case ModeFiat:
		fiat, err := units.ParseDecimal(input.Amount)
		if err != nil {
			return Approval{}, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
		}
		q, err := s.oracle.Quote(ctx, fiat)
		if err != nil {
			s.logger.Warn("quote failed", "from", from, "fiat_amount", fiat.String(), "error", err)
			return Approval{}, fmt.Errorf("%w: %v", ErrQuoteUnavailable, err)
		}
		if q.AmountMinorUnits == nil || q.AmountMinorUnits.Sign() <= 0 {
			return Approval{}, fmt.Errorf("%w: empty quote", ErrQuoteUnavailable)
		}
		minor = q.AmountMinorUnits
		route = q.Route
		terms.FiatAmount = fiat.String()
		terms.FiatUnit = units.FiatSymbol
	default:
		minor, err = units.ToMinor(input.Amount, units.NativeDecimals)
		if err != nil {
			return Approval{}, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
		}
	}

	if err := s.precheckBalance(ctx, from, minor); err != nil {
		return Approval{}, err
	}

	terms.Amount = units.FromMinor(minor, units.NativeDecimals)
	terms.ExpiresAt = time.UnixMilli(s.now().Add(window).UnixMilli())

	approval := Approval{
		Message:          message.Build(terms),
		ExpiresAt:        terms.ExpiresAt,
		Amount:           terms.Amount,
		AmountMinorUnits: new(big.Int).Set(minor),
		FiatAmount:       terms.FiatAmount,
		Nonce:            terms.Nonce,
	}
	if mode == ModeFiat {
		approval.QuoteReference = s.seal.issue(terms, minor, route)
	}
	return approval, nil
}

// precheckBalance is advisory: a missing sender passes, execute decides.
func (s *Service) precheckBalance(ctx context.Context, from string, amount *big.Int) error {
	acc, err := s.ledger.GetAccount(ctx, from)
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if acc.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	return nil
}

// ExecuteInput is a signed transfer submission.
type ExecuteInput struct {
	From           string
	To             string
	Amount         string
	Signature      string
	Message        string
	Mode           string
	QuoteReference string
	FiatAmount     string
}

// Execution is the outcome of a settled transfer.
type Execution struct {
	Record      ledger.TransferRecord
	FromBalance *big.Int
	ToBalance   *big.Int
}

// Execute verifies the signed message and settles the transfer. Everything
// before the ledger commit is pure validation.
func (s *Service) Execute(ctx context.Context, input ExecuteInput) (Execution, error) {
	mode, err := normalizeMode(input.Mode)
	if err != nil {
		return Execution{}, err
	}
	if strings.TrimSpace(input.From) == "" || strings.TrimSpace(input.To) == "" {
		return Execution{}, fmt.Errorf("%w: from and to are required", ErrValidation)
	}
	if mode == ModeNative && strings.TrimSpace(input.Amount) == "" {
		return Execution{}, fmt.Errorf("%w: amount is required", ErrValidation)
	}
	if input.Signature == "" || input.Message == "" {
		return Execution{}, fmt.Errorf("%w: signature and message are required", ErrValidation)
	}
	from, to, err := normalizeParties(input.From, input.To)
	if err != nil {
		return Execution{}, err
	}

	if err := signature.Verify(input.Message, input.Signature, from); err != nil {
		return Execution{}, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	expiresAt, err := message.ParseExpiry(input.Message)
	if err != nil {
		return Execution{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if s.now().After(expiresAt) {
		return Execution{}, ErrTransferExpired
	}

	terms, err := message.Parse(input.Message)
	if err != nil {
		return Execution{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	signedAmount, err := checkTerms(terms, from, to, mode)
	if err != nil {
		return Execution{}, err
	}
	if expiresAt.After(s.now().Add(s.windowFor(mode))) {
		return Execution{}, fmt.Errorf("%w: expiry beyond the approval window", ErrTermsMismatch)
	}

	switch mode {
	case ModeFiat:
		if err := s.checkQuote(input, terms, signedAmount); err != nil {
			return Execution{}, err
		}
	default:
		requested, err := units.ToMinor(input.Amount, units.NativeDecimals)
		if err != nil {
			return Execution{}, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
		}
		if requested.Cmp(signedAmount) != 0 {
			return Execution{}, fmt.Errorf("%w: amount", ErrTermsMismatch)
		}
	}

	settlement, err := s.ledger.ApplyTransfer(ctx, ledger.TransferRecord{
		From:             from,
		To:               to,
		DisplayAmount:    units.FromMinor(signedAmount, units.NativeDecimals),
		AmountMinorUnits: signedAmount,
		FiatAmount:       terms.FiatAmount,
		Signature:        input.Signature,
		Nonce:            terms.Nonce,
		Timestamp:        s.now().UTC(),
	})
	if err != nil {
		return Execution{}, s.mapLedgerError(err, from)
	}

	s.logger.Info("transfer settled",
		"transaction_id", settlement.Record.ID,
		"from", from,
		"to", to,
		"amount_minor", signedAmount.String(),
		"mode", mode,
	)
	s.afterSettlement(settlement)

	return Execution{
		Record:      settlement.Record,
		FromBalance: settlement.FromBalance,
		ToBalance:   settlement.ToBalance,
	}, nil
}

// History lists the transfers an address took part in, newest first.
func (s *Service) History(ctx context.Context, addr string) ([]ledger.TransferRecord, error) {
	normalized, err := address.Normalize(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	records, err := s.ledger.ListRecords(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return records, nil
}

// Wait blocks until in-flight notifications and events have finished.
func (s *Service) Wait() {
	s.inflight.Wait()
}

func (s *Service) windowFor(mode string) time.Duration {
	if mode == ModeFiat {
		return s.cfg.FiatApprovalWindow
	}
	return s.cfg.ApprovalWindow
}

func (s *Service) mapLedgerError(err error, from string) error {
	switch {
	case errors.Is(err, ledger.ErrDuplicateTransaction):
		return ErrTransferAlreadyExecuted
	case errors.Is(err, ledger.ErrAccountNotFound):
		return ErrSenderNotFound
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return ErrInsufficientBalance
	case errors.Is(err, ledger.ErrInvalidPosting):
		return fmt.Errorf("%w: %v", ErrValidation, err)
	default:
		s.logger.Error("ledger commit failed", "from", from, "error", err)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

func checkTerms(terms message.Terms, from, to, mode string) (*big.Int, error) {
	if !address.Equal(terms.From, from) || !address.Equal(terms.To, to) {
		return nil, fmt.Errorf("%w: parties", ErrTermsMismatch)
	}
	if terms.Unit != units.NativeSymbol {
		return nil, fmt.Errorf("%w: unit %q", ErrTermsMismatch, terms.Unit)
	}
	if terms.IsFiat() != (mode == ModeFiat) {
		return nil, fmt.Errorf("%w: currency mode", ErrTermsMismatch)
	}
	amount, err := units.ToMinor(terms.Amount, units.NativeDecimals)
	if err != nil {
		return nil, fmt.Errorf("%w: signed amount: %v", ErrValidation, err)
	}
	return amount, nil
}

// checkQuote accepts only a reference this service issued for exactly these
// signed terms.
func (s *Service) checkQuote(input ExecuteInput, terms message.Terms, signed *big.Int) error {
	ref := strings.TrimSpace(input.QuoteReference)
	if ref == "" {
		return ErrQuoteMissing
	}
	if err := s.seal.verify(ref, terms, signed); err != nil {
		return err
	}
	if input.FiatAmount != "" {
		requested, err := units.ParseDecimal(input.FiatAmount)
		if err != nil {
			return fmt.Errorf("%w: fiat amount", ErrInvalidAmount)
		}
		signedFiat, err := units.ParseDecimal(terms.FiatAmount)
		if err != nil || !requested.Equal(signedFiat) {
			return fmt.Errorf("%w: fiat amount", ErrTermsMismatch)
		}
	}
	return nil
}

func normalizeParties(rawFrom, rawTo string) (string, string, error) {
	from, err := address.Normalize(rawFrom)
	if err != nil {
		return "", "", fmt.Errorf("%w: from: %v", ErrValidation, err)
	}
	to, err := address.Normalize(rawTo)
	if err != nil {
		return "", "", fmt.Errorf("%w: to: %v", ErrValidation, err)
	}
	if from == to {
		return "", "", fmt.Errorf("%w: cannot transfer to self", ErrValidation)
	}
	return from, to, nil
}

func normalizeMode(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", ModeNative:
		return ModeNative, nil
	case ModeFiat:
		return ModeFiat, nil
	default:
		return "", fmt.Errorf("%w: unknown currency mode %q", ErrValidation, raw)
	}
}
