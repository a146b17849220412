package signature

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"

	"github.com/congo-pay/sigledger/internal/address"
)

const signatureLength = 65

// ErrInvalid is returned when a signature cannot be decoded, cannot be
// recovered, or was produced by a key other than the claimed signer.
var ErrInvalid = errors.New("invalid signature")

// TextHash returns keccak256("\x19Ethereum Signed Message:\n" + len(msg) + msg),
// the digest wallets sign for personal_sign.
func TextHash(msg []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	fmt.Fprintf(h, "\x19Ethereum Signed Message:\n%d", len(msg))
	h.Write(msg)
	return h.Sum(nil)
}

// Recover returns the address that produced sigHex over the exact message text.
func Recover(message, sigHex string) (common.Address, error) {
	sigHex = strings.TrimSpace(sigHex)
	if !strings.HasPrefix(sigHex, "0x") && !strings.HasPrefix(sigHex, "0X") {
		sigHex = "0x" + sigHex
	}
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if len(sig) != signatureLength {
		return common.Address{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalid, signatureLength, len(sig))
	}
	// Wallets emit v as 27/28; recovery wants 0/1.
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return common.Address{}, fmt.Errorf("%w: bad recovery id", ErrInvalid)
	}
	pub, err := crypto.SigToPub(TextHash([]byte(message)), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify checks that sigHex over message was produced by claimed.
func Verify(message, sigHex, claimed string) error {
	signer, err := Recover(message, sigHex)
	if err != nil {
		return err
	}
	if !address.Equal(signer.Hex(), claimed) {
		return ErrInvalid
	}
	return nil
}

// Sign produces a personal_sign signature with v in 27/28 form.
func Sign(message string, key *ecdsa.PrivateKey) (string, error) {
	sig, err := crypto.Sign(TextHash([]byte(message)), key)
	if err != nil {
		return "", err
	}
	sig[64] += 27
	return hexutil.Encode(sig), nil
}
