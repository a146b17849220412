package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/sigledger/internal/config"
	"github.com/congo-pay/sigledger/internal/events"
	"github.com/congo-pay/sigledger/internal/ledger"
	"github.com/congo-pay/sigledger/internal/logging"
	"github.com/congo-pay/sigledger/internal/middleware"
	"github.com/congo-pay/sigledger/internal/notification"
	"github.com/congo-pay/sigledger/internal/quote"
	"github.com/congo-pay/sigledger/internal/transfer"
	"github.com/congo-pay/sigledger/internal/units"
	"github.com/congo-pay/sigledger/internal/wallet"
)

const eventStreamMaxLen = 100_000

// Deps aggregates shared dependencies required to wire routes. Ledger, Oracle
// and Notifier override the backends otherwise derived from Cfg.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger

	Ledger   ledger.Ledger
	Oracle   quote.Oracle
	Notifier notification.Notifier
}

// Services exposes the wired services to the server for lifecycle management.
type Services struct {
	Wallet   *wallet.Service
	Transfer *transfer.Service
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) (Services, error) {
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	if !d.Cfg.IsDev() {
		if d.DB == nil && d.Ledger == nil {
			return Services{}, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return Services{}, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	ledgerBackend := d.Ledger
	if ledgerBackend == nil {
		if d.DB != nil {
			ledgerBackend = ledger.NewPostgresLedger(d.DB)
		} else {
			d.Logger.Warn("no database configured, using in-memory ledger")
			ledgerBackend = ledger.NewInMemory()
		}
	}

	oracle := d.Oracle
	if oracle == nil {
		var err error
		if oracle, err = newOracle(d.Cfg.Quote); err != nil {
			return Services{}, err
		}
	}

	notifier := d.Notifier
	if notifier == nil {
		if d.Cfg.SMTP.Enabled() {
			notifier = notification.NewSMTPNotifier(notification.SMTPConfig(d.Cfg.SMTP))
		} else {
			notifier = notification.NewLoggerNotifier(d.Logger)
		}
	}

	initialBalance, err := units.ToMinorNonNegative(d.Cfg.InitialBalance, units.NativeDecimals)
	if err != nil {
		return Services{}, fmt.Errorf("INITIAL_BALANCE: %w", err)
	}

	var publisher *events.Publisher
	if d.Cache != nil {
		publisher = events.NewPublisher(d.Cache, eventStreamMaxLen)
	}

	walletSvc := wallet.NewService(ledgerBackend, initialBalance, eventPublisher(publisher), d.Logger)
	if d.Cfg.QuoteSigningKey == "" {
		d.Logger.Warn("no QUOTE_SIGNING_KEY configured, quote references will not survive a restart")
	}
	transferSvc, err := transfer.NewService(transfer.Dependencies{
		Ledger:   ledgerBackend,
		Oracle:   oracle,
		Notifier: notifier,
		Events:   eventPublisher(publisher),
		Logger:   d.Logger,
	}, transfer.Config{
		ApprovalWindow:     d.Cfg.ApprovalWindow,
		FiatApprovalWindow: d.Cfg.FiatApprovalWindow,
		QuoteKey:           []byte(d.Cfg.QuoteSigningKey),
	})
	if err != nil {
		return Services{}, fmt.Errorf("transfer service: %w", err)
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))

	RegisterHealthRoutes(app, d)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c.UserContext()),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterWalletRoutes(api, wallet.NewHandler(walletSvc))
	RegisterTransferRoutes(api, transfer.NewHandler(transferSvc), middleware.ApproveRateLimit(d.Cache, d.Cfg.ApproveRateLimit, d.Logger))

	return Services{Wallet: walletSvc, Transfer: transferSvc}, nil
}

func newOracle(cfg config.QuoteConfig) (quote.Oracle, error) {
	switch cfg.Provider {
	case config.QuoteProviderSkip:
		return quote.NewSkipOracle(quote.SkipConfig{URL: cfg.URL, APIKey: cfg.APIKey, Timeout: cfg.Timeout}), nil
	default:
		o, err := quote.NewStaticOracle(cfg.StaticRate)
		if err != nil {
			return nil, fmt.Errorf("QUOTE_STATIC_RATE: %w", err)
		}
		return o, nil
	}
}

// eventPublisher keeps a nil *events.Publisher from becoming a non-nil interface.
func eventPublisher(p *events.Publisher) transfer.EventPublisher {
	if p == nil {
		return nil
	}
	return p
}
