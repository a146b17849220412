package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestRequestIDAndAudit(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	app := fiber.New()
	app.Use(RequestID(), Audit(logger))
	var seen string
	app.Get("/ok", func(c *fiber.Ctx) error {
		seen = RequestIDFrom(c.UserContext())
		return c.SendStatus(fiber.StatusOK)
	})
	app.Get("/gone", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "account not found")
	})

	req := httptest.NewRequest(fiber.MethodGet, "/ok", nil)
	req.Header.Set(requestIDHeader, "req-42")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.Header.Get(requestIDHeader) != "req-42" || seen != "req-42" {
		t.Fatalf("request id not propagated: header=%q ctx=%q", resp.Header.Get(requestIDHeader), seen)
	}

	req = httptest.NewRequest(fiber.MethodGet, "/ok", nil)
	req.Header.Set(requestIDHeader, strings.Repeat("x", maxRequestIDLen+1))
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if got := resp.Header.Get(requestIDHeader); len(got) > maxRequestIDLen || got == "" {
		t.Fatalf("oversized request id should be replaced, got %q", got)
	}

	buf.Reset()
	if _, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/gone", nil)); err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode audit line %q: %v", buf.String(), err)
	}
	if entry["level"] != "WARN" || entry["status"] != float64(fiber.StatusNotFound) {
		t.Fatalf("unexpected audit entry %v", entry)
	}
}
