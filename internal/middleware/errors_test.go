package middleware

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/sigledger/internal/logging"
)

func TestErrorHandlerRendersJSON(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logging.Discard())})
	app.Get("/expired", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusBadRequest, "transfer expired")
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("pq: connection reset")
	})
	app.Get("/invalid", func(c *fiber.Ctx) error {
		return &ValidationError{Details: []FieldError{{Field: "from", Message: "This field is required", Type: "required"}}}
	})

	cases := []struct {
		path   string
		status int
		msg    string
	}{
		{"/expired", fiber.StatusBadRequest, "transfer expired"},
		{"/boom", fiber.StatusInternalServerError, "internal server error"},
		{"/invalid", fiber.StatusBadRequest, "invalid request data"},
		{"/missing", fiber.StatusNotFound, "Cannot GET /missing"},
	}
	for _, tc := range cases {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, tc.path, nil))
		if err != nil {
			t.Fatalf("%s: %v", tc.path, err)
		}
		var body map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("%s: decode: %v", tc.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tc.status || body["error"] != tc.msg {
			t.Fatalf("%s: got %d %v", tc.path, resp.StatusCode, body)
		}
	}
}
