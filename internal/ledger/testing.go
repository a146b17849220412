package ledger

import "math/big"

// SeedBalance is a test helper that sets the balance for an account when using
// the in-memory ledger, creating the account if needed.
func SeedBalance(l Ledger, address string, amount *big.Int) {
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		acc := mem.accounts[address]
		acc.Address = address
		acc.Balance = cloneInt(amount)
		mem.accounts[address] = acc
	}
}
