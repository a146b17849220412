package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/sigledger/internal/config"
	"github.com/congo-pay/sigledger/internal/events"
	"github.com/congo-pay/sigledger/internal/ledger"
	"github.com/congo-pay/sigledger/internal/logging"
	"github.com/congo-pay/sigledger/internal/middleware"
	"github.com/congo-pay/sigledger/internal/signature"
)

type testEnv struct {
	app      *fiber.App
	cache    *redis.Client
	services Services
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	logger := logging.Discard()
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(logger)})
	services, err := Setup(app, Deps{
		Cfg: config.Config{
			AppEnv:           "test",
			IdempotencyTTL:   time.Minute,
			InitialBalance:   "5",
			ApproveRateLimit: 30,
			Quote:            config.QuoteConfig{Provider: config.QuoteProviderStatic, StaticRate: "2500"},
		},
		Cache:  cache,
		Logger: logger,
		Ledger: ledger.NewInMemory(),
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	return &testEnv{app: app, cache: cache, services: services}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := e.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, raw
}

func decodeMap(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return out
}

func TestTransferFlow(t *testing.T) {
	env := newTestEnv(t)

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	alice := crypto.PubkeyToAddress(key.PublicKey).Hex()
	bob := "0x742d35Cc6634C0532925a3b8D4C9db96c728b0B4"

	status, raw := env.do(t, fiber.MethodPost, "/api/v1/wallet/init", fiber.Map{"address": alice, "email": "alice@example.com"})
	if status != fiber.StatusCreated {
		t.Fatalf("init: expected 201 got %d (%s)", status, raw)
	}
	if got := decodeMap(t, raw); got["balance"] != "5" || got["balanceMinorUnits"] != "5000000000000000000" {
		t.Fatalf("unexpected init response %v", got)
	}

	status, raw = env.do(t, fiber.MethodGet, "/api/v1/wallet/"+alice, nil)
	if status != fiber.StatusOK || decodeMap(t, raw)["email"] != "alice@example.com" {
		t.Fatalf("get wallet: %d %s", status, raw)
	}

	status, raw = env.do(t, fiber.MethodPost, "/api/v1/transfer/approve", fiber.Map{
		"from": alice, "to": bob, "amount": "2", "currencyMode": "native",
	})
	if status != fiber.StatusOK {
		t.Fatalf("approve: expected 200 got %d (%s)", status, raw)
	}
	approval := decodeMap(t, raw)
	msg, _ := approval["message"].(string)
	if !strings.HasPrefix(msg, "Transfer 2 ETH to ") {
		t.Fatalf("unexpected message %q", msg)
	}
	sig, err := signature.Sign(msg, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	execute := fiber.Map{
		"from": alice, "to": bob, "amount": "2", "signature": sig, "message": msg, "currencyMode": "native",
	}
	status, raw = env.do(t, fiber.MethodPost, "/api/v1/transfer/execute", execute)
	if status != fiber.StatusCreated {
		t.Fatalf("execute: expected 201 got %d (%s)", status, raw)
	}
	result := decodeMap(t, raw)
	if result["success"] != true || result["newBalance"] != "3" {
		t.Fatalf("unexpected execute response %v", result)
	}

	status, raw = env.do(t, fiber.MethodPost, "/api/v1/transfer/execute", execute)
	if status != fiber.StatusConflict {
		t.Fatalf("replay: expected 409 got %d (%s)", status, raw)
	}

	status, raw = env.do(t, fiber.MethodGet, "/api/v1/transactions/"+bob, nil)
	if status != fiber.StatusOK {
		t.Fatalf("history: %d %s", status, raw)
	}
	var history []map[string]any
	if err := json.Unmarshal(raw, &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history) != 1 || history[0]["amountMinorUnits"] != "2000000000000000000" || history[0]["fiatAmount"] != nil {
		t.Fatalf("unexpected history %v", history)
	}

	env.services.Transfer.Wait()
	if n, err := env.cache.XLen(context.Background(), events.TransferEventsStream).Result(); err != nil || n != 1 {
		t.Fatalf("expected one transfer event, got %d (%v)", n, err)
	}
}

func TestTransferErrors(t *testing.T) {
	env := newTestEnv(t)
	key, _ := crypto.GenerateKey()
	alice := crypto.PubkeyToAddress(key.PublicKey).Hex()
	bob := "0x742d35Cc6634C0532925a3b8D4C9db96c728b0B4"

	status, raw := env.do(t, fiber.MethodGet, "/api/v1/wallet/"+bob, nil)
	if status != fiber.StatusNotFound || decodeMap(t, raw)["error"] != "account not found" {
		t.Fatalf("expected 404 account not found, got %d %s", status, raw)
	}

	status, raw = env.do(t, fiber.MethodPost, "/api/v1/wallet/"+bob+"/email", fiber.Map{"email": "bob@example.com"})
	if status != fiber.StatusNotFound {
		t.Fatalf("set email on missing account: expected 404 got %d (%s)", status, raw)
	}

	status, raw = env.do(t, fiber.MethodPost, "/api/v1/transfer/approve", fiber.Map{"from": "nope", "amount": "1"})
	if status != fiber.StatusBadRequest || decodeMap(t, raw)["details"] == nil {
		t.Fatalf("expected validation details, got %d %s", status, raw)
	}

	env.do(t, fiber.MethodPost, "/api/v1/wallet/init", fiber.Map{"address": alice})
	_, raw = env.do(t, fiber.MethodPost, "/api/v1/transfer/approve", fiber.Map{"from": alice, "to": bob, "amount": "1"})
	msg, _ := decodeMap(t, raw)["message"].(string)

	other, _ := crypto.GenerateKey()
	forged, _ := signature.Sign(msg, other)
	status, raw = env.do(t, fiber.MethodPost, "/api/v1/transfer/execute", fiber.Map{
		"from": alice, "to": bob, "amount": "1", "signature": forged, "message": msg,
	})
	if status != fiber.StatusUnauthorized {
		t.Fatalf("forged signature: expected 401 got %d (%s)", status, raw)
	}

	status, raw = env.do(t, fiber.MethodPost, "/api/v1/transfer/approve", fiber.Map{"from": alice, "to": bob, "amount": "50"})
	if status != fiber.StatusBadRequest || decodeMap(t, raw)["error"] != "insufficient balance" {
		t.Fatalf("expected insufficient balance, got %d %s", status, raw)
	}
}

func TestFiatApproveReturnsQuoteReference(t *testing.T) {
	env := newTestEnv(t)
	key, _ := crypto.GenerateKey()
	alice := crypto.PubkeyToAddress(key.PublicKey).Hex()
	bob := "0x742d35Cc6634C0532925a3b8D4C9db96c728b0B4"
	env.do(t, fiber.MethodPost, "/api/v1/wallet/init", fiber.Map{"address": alice})

	status, raw := env.do(t, fiber.MethodPost, "/api/v1/transfer/approve", fiber.Map{
		"from": alice, "to": bob, "amount": 100, "currencyMode": "fiat",
	})
	if status != fiber.StatusOK {
		t.Fatalf("fiat approve: %d %s", status, raw)
	}
	approval := decodeMap(t, raw)
	ref, _ := approval["quoteReference"].(string)
	if approval["amountMinorUnits"] != "40000000000000000" || !strings.HasPrefix(ref, "static:2500.") || approval["fiatAmount"] != "100" {
		t.Fatalf("unexpected fiat approval %v", approval)
	}
	msg, _ := approval["message"].(string)
	sig, _ := signature.Sign(msg, key)

	status, raw = env.do(t, fiber.MethodPost, "/api/v1/transfer/execute", fiber.Map{
		"from": alice, "to": bob, "signature": sig, "message": msg, "currencyMode": "fiat",
		"quoteReference": "40000000000000000", "fiatAmount": "100",
	})
	if msg, _ := decodeMap(t, raw)["error"].(string); status != fiber.StatusBadRequest || !strings.HasPrefix(msg, "quote reference does not match") {
		t.Fatalf("bare amount reference: expected 400 quote mismatch, got %d %s", status, raw)
	}

	status, raw = env.do(t, fiber.MethodPost, "/api/v1/transfer/execute", fiber.Map{
		"from": alice, "to": bob, "signature": sig, "message": msg, "currencyMode": "fiat",
		"quoteReference": ref, "fiatAmount": "100",
	})
	if status != fiber.StatusCreated || decodeMap(t, raw)["newBalance"] != "4.96" {
		t.Fatalf("fiat execute: %d %s", status, raw)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	status, raw := env.do(t, fiber.MethodGet, "/healthz", nil)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", status, raw)
	}
	checks, _ := decodeMap(t, raw)["status"].(map[string]any)
	if checks["redis"] != "ok" || checks["postgres"] != "disabled" {
		t.Fatalf("unexpected health %v", checks)
	}
}
