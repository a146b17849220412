package ledger

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "23505"

// PostgresLedger persists balances and transfer records in PostgreSQL.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// Migrate applies the embedded schema. It is safe to run on every start.
func (l *PostgresLedger) Migrate(ctx context.Context) error {
	if _, err := l.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply ledger schema: %w", err)
	}
	return nil
}

// GetAccount loads an account by normalized address.
func (l *PostgresLedger) GetAccount(ctx context.Context, address string) (Account, error) {
	const query = `SELECT address, balance, email, created_at FROM accounts WHERE address = $1`
	acc, err := scanAccount(l.db.QueryRow(ctx, query, address))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return acc, nil
}

// CreateAccount inserts the account with its email unless it already exists,
// in which case the stored row is returned unchanged.
func (l *PostgresLedger) CreateAccount(ctx context.Context, address string, initialBalance *big.Int, email string) (Account, bool, error) {
	if initialBalance != nil && initialBalance.Sign() < 0 {
		return Account{}, false, ErrInvalidPosting
	}
	const insert = `INSERT INTO accounts (address, balance, email, created_at) VALUES ($1, $2, NULLIF($3, ''), $4)
        ON CONFLICT (address) DO NOTHING
        RETURNING address, balance, email, created_at`
	acc, err := scanAccount(l.db.QueryRow(ctx, insert, address, toNumeric(cloneInt(initialBalance)), email, time.Now().UTC()))
	if err == nil {
		return acc, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Account{}, false, err
	}
	existing, err := l.GetAccount(ctx, address)
	if err != nil {
		return Account{}, false, err
	}
	return existing, false, nil
}

// SetEmail updates the notification address of an existing account.
func (l *PostgresLedger) SetEmail(ctx context.Context, address, email string) (Account, error) {
	const update = `UPDATE accounts SET email = NULLIF($2, '') WHERE address = $1
        RETURNING address, balance, email, created_at`
	acc, err := scanAccount(l.db.QueryRow(ctx, update, address, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return acc, nil
}

// ApplyTransfer moves funds and appends the record inside one transaction. Both
// account rows are locked in address order so concurrent debits of the same
// sender serialize on the balance check.
func (l *PostgresLedger) ApplyTransfer(ctx context.Context, record TransferRecord) (Settlement, error) {
	if err := validatePosting(record); err != nil {
		return Settlement{}, err
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	recordID, err := uuid.Parse(record.ID)
	if err != nil {
		return Settlement{}, fmt.Errorf("record id: %w", err)
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Settlement{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, `INSERT INTO accounts (address, balance, created_at) VALUES ($1, 0, $2)
        ON CONFLICT (address) DO NOTHING`, record.To, time.Now().UTC()); err != nil {
		return Settlement{}, err
	}

	balances, err := lockBalances(ctx, tx, record.From, record.To)
	if err != nil {
		return Settlement{}, err
	}
	fromBalance, ok := balances[record.From]
	if !ok {
		return Settlement{}, ErrAccountNotFound
	}

	var existing uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM transfer_records WHERE nonce = $1`, record.Nonce).Scan(&existing)
	if err == nil {
		return Settlement{}, ErrDuplicateTransaction
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Settlement{}, err
	}

	if fromBalance.Cmp(record.AmountMinorUnits) < 0 {
		return Settlement{}, ErrInsufficientFunds
	}

	amount := toNumeric(record.AmountMinorUnits)
	var newFrom, newTo pgtype.Numeric
	if err := tx.QueryRow(ctx, `UPDATE accounts SET balance = balance - $2 WHERE address = $1 RETURNING balance`,
		record.From, amount).Scan(&newFrom); err != nil {
		return Settlement{}, err
	}
	if err := tx.QueryRow(ctx, `UPDATE accounts SET balance = balance + $2 WHERE address = $1 RETURNING balance`,
		record.To, amount).Scan(&newTo); err != nil {
		return Settlement{}, err
	}

	if _, err := tx.Exec(ctx, `INSERT INTO transfer_records
        (id, nonce, from_address, to_address, display_amount, amount_minor, fiat_amount, signature, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)`,
		recordID, record.Nonce, record.From, record.To, record.DisplayAmount, amount,
		record.FiatAmount, record.Signature, record.Timestamp); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Settlement{}, ErrDuplicateTransaction
		}
		return Settlement{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Settlement{}, err
	}

	fromBal, err := numericToInt(newFrom)
	if err != nil {
		return Settlement{}, err
	}
	toBal, err := numericToInt(newTo)
	if err != nil {
		return Settlement{}, err
	}
	record.AmountMinorUnits = cloneInt(record.AmountMinorUnits)
	return Settlement{FromBalance: fromBal, ToBalance: toBal, Record: record}, nil
}

// ListRecords returns every record touching address, newest first.
func (l *PostgresLedger) ListRecords(ctx context.Context, address string) ([]TransferRecord, error) {
	const query = `
        SELECT id, nonce, from_address, to_address, display_amount, amount_minor, fiat_amount, signature, created_at
        FROM transfer_records
        WHERE from_address = $1 OR to_address = $1
        ORDER BY created_at DESC, id`
	rows, err := l.db.Query(ctx, query, address)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]TransferRecord, 0)
	for rows.Next() {
		var (
			rec    TransferRecord
			id     uuid.UUID
			amount pgtype.Numeric
			fiat   pgtype.Text
		)
		if err := rows.Scan(&id, &rec.Nonce, &rec.From, &rec.To, &rec.DisplayAmount, &amount, &fiat, &rec.Signature, &rec.Timestamp); err != nil {
			return nil, err
		}
		rec.ID = id.String()
		rec.FiatAmount = fiat.String
		rec.Timestamp = rec.Timestamp.UTC()
		if rec.AmountMinorUnits, err = numericToInt(amount); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func lockBalances(ctx context.Context, tx pgx.Tx, addresses ...string) (map[string]*big.Int, error) {
	const query = `SELECT address, balance FROM accounts WHERE address = ANY($1) ORDER BY address FOR UPDATE`
	rows, err := tx.Query(ctx, query, addresses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	balances := make(map[string]*big.Int, len(addresses))
	for rows.Next() {
		var (
			addr    string
			balance pgtype.Numeric
		)
		if err := rows.Scan(&addr, &balance); err != nil {
			return nil, err
		}
		v, err := numericToInt(balance)
		if err != nil {
			return nil, err
		}
		balances[addr] = v
	}
	return balances, rows.Err()
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		acc     Account
		balance pgtype.Numeric
		email   pgtype.Text
	)
	if err := row.Scan(&acc.Address, &balance, &email, &acc.CreatedAt); err != nil {
		return Account{}, err
	}
	v, err := numericToInt(balance)
	if err != nil {
		return Account{}, err
	}
	acc.Balance = v
	acc.Email = email.String
	acc.CreatedAt = acc.CreatedAt.UTC()
	return acc, nil
}

func toNumeric(v *big.Int) pgtype.Numeric {
	return pgtype.Numeric{Int: v, Exp: 0, Valid: true}
}

func numericToInt(n pgtype.Numeric) (*big.Int, error) {
	if !n.Valid || n.NaN || n.InfinityModifier != pgtype.Finite {
		return nil, fmt.Errorf("unexpected numeric value")
	}
	v := cloneInt(n.Int)
	if n.Exp == 0 {
		return v, nil
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(abs32(n.Exp))), nil)
	if n.Exp > 0 {
		return v.Mul(v, scale), nil
	}
	q, r := new(big.Int).QuoRem(v, scale, new(big.Int))
	if r.Sign() != 0 {
		return nil, fmt.Errorf("numeric %s has a fractional part", n.Int)
	}
	return q, nil
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
