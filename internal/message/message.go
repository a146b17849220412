// Package message builds and parses the authorization text a wallet signs to
// approve a transfer. The expiry is part of the signed text so it cannot be
// extended without invalidating the signature.
package message

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const expiryMarker = "Expires: "

// ErrMalformed is returned when a message does not follow the canonical layout.
var ErrMalformed = errors.New("malformed message")

// Terms are the transfer parameters embedded in an authorization message.
type Terms struct {
	From       string
	To         string
	Amount     string
	Unit       string
	FiatAmount string
	FiatUnit   string
	Nonce      string
	ExpiresAt  time.Time
}

// IsFiat reports whether the terms carry a fiat denomination.
func (t Terms) IsFiat() bool {
	return t.FiatAmount != ""
}

var layout = regexp.MustCompile(`^Transfer (\S+) (\S+)(?: \((\S+) (\S+)\))? to (\S+) from (\S+)\. Nonce: (\S+)\. Expires: (\d+)$`)

// Build renders the canonical message, e.g.
//
//	Transfer 2 ETH to 0xB0.. from 0xA1... Nonce: 5f1c.... Expires: 1700000030000
func Build(t Terms) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Transfer %s %s", t.Amount, t.Unit)
	if t.IsFiat() {
		fmt.Fprintf(&b, " (%s %s)", t.FiatAmount, t.FiatUnit)
	}
	fmt.Fprintf(&b, " to %s from %s. Nonce: %s. %s%d", t.To, t.From, t.Nonce, expiryMarker, t.ExpiresAt.UnixMilli())
	return b.String()
}

// ParseExpiry extracts the trailing expiry timestamp.
func ParseExpiry(msg string) (time.Time, error) {
	idx := strings.LastIndex(msg, expiryMarker)
	if idx < 0 {
		return time.Time{}, fmt.Errorf("%w: expiry marker not found", ErrMalformed)
	}
	raw := msg[idx+len(expiryMarker):]
	if raw == "" || strings.IndexFunc(raw, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return time.Time{}, fmt.Errorf("%w: expiry is not numeric", ErrMalformed)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return time.UnixMilli(ms), nil
}

// Parse extracts every term from a message produced by Build.
func Parse(msg string) (Terms, error) {
	m := layout.FindStringSubmatch(msg)
	if m == nil {
		return Terms{}, ErrMalformed
	}
	expiresAt, err := ParseExpiry(msg)
	if err != nil {
		return Terms{}, err
	}
	return Terms{
		Amount:     m[1],
		Unit:       m[2],
		FiatAmount: m[3],
		FiatUnit:   m[4],
		To:         m[5],
		From:       m[6],
		Nonce:      m[7],
		ExpiresAt:  expiresAt,
	}, nil
}
