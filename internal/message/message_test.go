package message

import (
	"errors"
	"testing"
	"time"
)

const (
	fromAddr = "0x1111111111111111111111111111111111111111"
	toAddr   = "0x2222222222222222222222222222222222222222"
)

func TestBuildNative(t *testing.T) {
	expires := time.UnixMilli(1_700_000_030_000)
	msg := Build(Terms{From: fromAddr, To: toAddr, Amount: "2", Unit: "ETH", Nonce: "n-1", ExpiresAt: expires})

	want := "Transfer 2 ETH to " + toAddr + " from " + fromAddr + ". Nonce: n-1. Expires: 1700000030000"
	if msg != want {
		t.Fatalf("unexpected message\n got: %s\nwant: %s", msg, want)
	}

	got, err := ParseExpiry(msg)
	if err != nil {
		t.Fatalf("parse expiry: %v", err)
	}
	if !got.Equal(expires) {
		t.Fatalf("expected expiry %v, got %v", expires, got)
	}
}

func TestParseRoundTrip(t *testing.T) {
	in := Terms{
		From:       fromAddr,
		To:         toAddr,
		Amount:     "0.04",
		Unit:       "ETH",
		FiatAmount: "100",
		FiatUnit:   "USD",
		Nonce:      "8c1d6a0e-3f7a-4c1e-9a57-2d1f0f6b8a11",
		ExpiresAt:  time.UnixMilli(1_700_000_060_000),
	}
	out, err := Parse(Build(in))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !out.IsFiat() {
		t.Fatal("expected fiat terms")
	}
	if out.From != in.From || out.To != in.To || out.Amount != in.Amount || out.Unit != in.Unit ||
		out.FiatAmount != in.FiatAmount || out.FiatUnit != in.FiatUnit || out.Nonce != in.Nonce ||
		!out.ExpiresAt.Equal(in.ExpiresAt) {
		t.Fatalf("round trip mismatch: %+v vs %+v", out, in)
	}
}

func TestParseExpiryMalformed(t *testing.T) {
	for _, msg := range []string{
		"Transfer 1 ETH to a from b",
		"Transfer 1 ETH to a from b. Expires: soon",
		"Transfer 1 ETH to a from b. Expires: ",
		"Transfer 1 ETH to a from b. Expires: 123 extra",
	} {
		if _, err := ParseExpiry(msg); !errors.Is(err, ErrMalformed) {
			t.Fatalf("expected ErrMalformed for %q, got %v", msg, err)
		}
	}
}

func TestParseRejectsForeignText(t *testing.T) {
	if _, err := Parse("Sign in to example.com. Expires: 1700000000000"); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}
