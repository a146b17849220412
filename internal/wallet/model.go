package wallet

import (
	"math/big"
	"time"

	"github.com/congo-pay/sigledger/internal/ledger"
	"github.com/congo-pay/sigledger/internal/units"
)

// Wallet is the read model of a ledger account.
type Wallet struct {
	Address           string
	Balance           string
	BalanceMinorUnits *big.Int
	Email             string
	CreatedAt         time.Time
}

func fromAccount(acc ledger.Account) Wallet {
	return Wallet{
		Address:           acc.Address,
		Balance:           units.FromMinor(acc.Balance, units.NativeDecimals),
		BalanceMinorUnits: new(big.Int).Set(acc.Balance),
		Email:             acc.Email,
		CreatedAt:         acc.CreatedAt,
	}
}
