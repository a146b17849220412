package address

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalid is returned for strings that are not 20-byte hex addresses.
var ErrInvalid = errors.New("invalid address")

// Normalize validates a hex address and returns its lower-case 0x form, which is
// the key used by the ledger.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return "", ErrInvalid
	}
	return strings.ToLower(common.HexToAddress(raw).Hex()), nil
}

// Checksum returns the EIP-55 mixed-case rendering of a valid address.
func Checksum(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return "", ErrInvalid
	}
	return common.HexToAddress(raw).Hex(), nil
}

// Equal reports whether two address strings name the same account.
func Equal(a, b string) bool {
	na, err := Normalize(a)
	if err != nil {
		return false
	}
	nb, err := Normalize(b)
	if err != nil {
		return false
	}
	return na == nb
}
