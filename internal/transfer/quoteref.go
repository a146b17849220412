package transfer

import (
	"crypto/hmac"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/congo-pay/sigledger/internal/message"
)

const (
	quoteKeySize      = 32
	defaultQuoteRoute = "oracle"
)

// quoteSeal authenticates quote references so execute only settles fiat
// conversions this service quoted. A reference reads "<route>.<hex mac>".
type quoteSeal struct {
	key []byte
}

func newQuoteSeal(key []byte) (quoteSeal, error) {
	if len(key) == 0 {
		key = make([]byte, quoteKeySize)
		if _, err := rand.Read(key); err != nil {
			return quoteSeal{}, fmt.Errorf("generate quote key: %w", err)
		}
	}
	return quoteSeal{key: append([]byte(nil), key...)}, nil
}

func (s quoteSeal) issue(terms message.Terms, amount *big.Int, route string) string {
	if route == "" {
		route = defaultQuoteRoute
	}
	return route + "." + hex.EncodeToString(s.sum(terms, amount, route))
}

func (s quoteSeal) verify(ref string, terms message.Terms, amount *big.Int) error {
	idx := strings.LastIndex(ref, ".")
	if idx <= 0 {
		return fmt.Errorf("%w: malformed reference", ErrQuoteMismatch)
	}
	route := ref[:idx]
	mac, err := hex.DecodeString(ref[idx+1:])
	if err != nil {
		return fmt.Errorf("%w: malformed reference", ErrQuoteMismatch)
	}
	if !hmac.Equal(mac, s.sum(terms, amount, route)) {
		return ErrQuoteMismatch
	}
	return nil
}

func (s quoteSeal) sum(terms message.Terms, amount *big.Int, route string) []byte {
	h := hmac.New(sha3.New256, s.key)
	for _, field := range []string{
		terms.Nonce,
		strings.ToLower(terms.From),
		strings.ToLower(terms.To),
		amount.String(),
		terms.FiatAmount,
		terms.FiatUnit,
		strconv.FormatInt(terms.ExpiresAt.UnixMilli(), 10),
		route,
	} {
		h.Write([]byte(field))
		h.Write([]byte{0})
	}
	return h.Sum(nil)
}
