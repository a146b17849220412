package ledger

import (
	"context"
	"math/big"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

func newTestPostgres(t *testing.T) *PostgresLedger {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	l := NewPostgresLedger(pool)
	if err := l.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return l
}

func randomAddress() string {
	return "0x" + strings.ReplaceAll(uuid.NewString(), "-", "")[:32] + "00000000"
}

func TestPostgresLedger_ApplyTransfer(t *testing.T) {
	l := newTestPostgres(t)
	ctx := context.Background()
	from, to := randomAddress(), randomAddress()

	if _, created, err := l.CreateAccount(ctx, from, big.NewInt(5_000), "from@example.com"); err != nil || !created {
		t.Fatalf("create sender: created=%v err=%v", created, err)
	}
	if acc, created, err := l.CreateAccount(ctx, from, big.NewInt(1), "other@example.com"); err != nil || created {
		t.Fatalf("second create must be a no-op: created=%v err=%v", created, err)
	} else if acc.Email != "from@example.com" || acc.Balance.Int64() != 5_000 {
		t.Fatalf("second create changed the account: %+v", acc)
	}

	rec := posting(from, to, 2_000, uuid.NewString())
	res, err := l.ApplyTransfer(ctx, rec)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.FromBalance.Int64() != 3_000 || res.ToBalance.Int64() != 2_000 {
		t.Fatalf("unexpected balances %s / %s", res.FromBalance, res.ToBalance)
	}

	if _, err := l.ApplyTransfer(ctx, rec); err != ErrDuplicateTransaction {
		t.Fatalf("expected duplicate, got %v", err)
	}
	if _, err := l.ApplyTransfer(ctx, posting(from, to, 10_000, uuid.NewString())); err != ErrInsufficientFunds {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	history, err := l.ListRecords(ctx, to)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(history) != 1 || history[0].AmountMinorUnits.Int64() != 2_000 {
		t.Fatalf("unexpected history %+v", history)
	}
}

func TestNumericToInt(t *testing.T) {
	v, err := numericToInt(pgtype.Numeric{Int: big.NewInt(12), Exp: 3, Valid: true})
	if err != nil || v.Int64() != 12_000 {
		t.Fatalf("expected 12000, got %v (%v)", v, err)
	}
	v, err = numericToInt(pgtype.Numeric{Int: big.NewInt(12_000), Exp: -3, Valid: true})
	if err != nil || v.Int64() != 12 {
		t.Fatalf("expected 12, got %v (%v)", v, err)
	}
	if _, err := numericToInt(pgtype.Numeric{Int: big.NewInt(12_345), Exp: -3, Valid: true}); err == nil {
		t.Fatal("expected fractional numeric to be rejected")
	}
}
