package middleware

import (
	"net/http/httptest"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/sigledger/internal/logging"
)

func TestApproveRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := fiber.New()
	app.Post("/approve", ApproveRateLimit(cache, 2, logging.Discard()), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	send := func(from string) int {
		req := httptest.NewRequest(fiber.MethodPost, "/approve", strings.NewReader(`{"from":"`+from+`"}`))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req, -1)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	for i := 0; i < 2; i++ {
		if status := send("0xAAAA"); status != fiber.StatusOK {
			t.Fatalf("request %d: expected 200 got %d", i, status)
		}
	}
	if status := send("0xaaaa"); status != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429 for third request, got %d", status)
	}
	if status := send("0xbbbb"); status != fiber.StatusOK {
		t.Fatalf("other senders must not be limited, got %d", status)
	}

	mr.Close()
	if status := send("0xaaaa"); status != fiber.StatusOK {
		t.Fatalf("expected fail-open with redis down, got %d", status)
	}
}
