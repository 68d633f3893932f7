/*
Package postgres provides a PostgreSQL-backed implementation of ledger.TxStore.

PURPOSE:
  Same tables and soft-delete rules as store/sqlite, on a pgxpool.Pool.
  Money columns are NUMERIC(20,2) and travel as text to keep them exact.

CONCURRENCY:
  Inside WithTx every GetAccount is SELECT ... FOR UPDATE. The ledger reads
  the accounts of a transfer in ascending id order first, so two service
  instances moving money between the same accounts queue on the first row
  instead of deadlocking. The in-process account locks only cover one
  instance.

  View runs in a read-only REPEATABLE READ transaction, so the several
  queries behind one history page see the same snapshot.

ERRORS:
  pgx.ErrNoRows        -> *ledger.NotFoundError
  SQLSTATE 23505       -> ledger.ErrDuplicate

USAGE:
  store, err := postgres.New(ctx, os.Getenv("DATABASE_URL"))
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - store/sqlite/sqlite.go: Embedded variant
  - ledger/store.go: Interface definitions
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/warp/backoffice/ledger"
)

// Store implements ledger.TxStore using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to databaseURL and migrates the schema.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	config.MaxConns = 20
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS document_types (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE TABLE IF NOT EXISTS account_types (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE TABLE IF NOT EXISTS customers (
		seq BIGSERIAL,
		id TEXT PRIMARY KEY,
		document_type_id TEXT NOT NULL REFERENCES document_types(id),
		document TEXT NOT NULL,
		full_name TEXT NOT NULL,
		email TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		avatar_url TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL,
		deleted_at TIMESTAMPTZ
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_customers_email
		ON customers(email) WHERE deleted_at IS NULL;
	CREATE UNIQUE INDEX IF NOT EXISTS idx_customers_document
		ON customers(document_type_id, document) WHERE deleted_at IS NULL;

	CREATE TABLE IF NOT EXISTS accounts (
		seq BIGSERIAL,
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL REFERENCES customers(id),
		account_type_id TEXT NOT NULL REFERENCES account_types(id),
		balance NUMERIC(20,2) NOT NULL CHECK (balance >= 0),
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL,
		deleted_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_customer
		ON accounts(customer_id) WHERE deleted_at IS NULL;

	CREATE TABLE IF NOT EXISTS deposits (
		seq BIGSERIAL,
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		amount NUMERIC(20,2) NOT NULL CHECK (amount > 0),
		at TIMESTAMPTZ NOT NULL,
		deleted_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_deposits_account
		ON deposits(account_id) WHERE deleted_at IS NULL;

	CREATE TABLE IF NOT EXISTS transfers (
		seq BIGSERIAL,
		id TEXT PRIMARY KEY,
		income_id TEXT NOT NULL REFERENCES accounts(id),
		outcome_id TEXT NOT NULL REFERENCES accounts(id),
		amount NUMERIC(20,2) NOT NULL CHECK (amount > 0),
		reason TEXT NOT NULL DEFAULT '',
		at TIMESTAMPTZ NOT NULL,
		deleted_at TIMESTAMPTZ,
		CHECK (income_id <> outcome_id)
	);

	CREATE INDEX IF NOT EXISTS idx_transfers_income
		ON transfers(income_id) WHERE deleted_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_transfers_outcome
		ON transfers(outcome_id) WHERE deleted_at IS NULL;
	`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return err
	}

	for _, dt := range ledger.SeedDocumentTypes() {
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO document_types (id, name, active) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
			string(dt.ID), dt.Name, dt.Active); err != nil {
			return err
		}
	}
	for _, at := range ledger.SeedAccountTypes() {
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO account_types (id, name, active) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
			string(at.ID), at.Name, at.Active); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// UNITS OF WORK
// =============================================================================

// View runs fn in a read-only REPEATABLE READ transaction.
func (s *Store) View(ctx context.Context, fn func(ledger.Store) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&queries{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// WithTx runs fn in a READ COMMITTED transaction with row-locking account reads.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&queries{q: tx, forUpdate: true}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// querier is the subset of pgx.Tx the queries use.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type queries struct {
	q         querier
	forUpdate bool
}

// =============================================================================
// REFERENCE DATA
// =============================================================================

func (qs *queries) GetDocumentType(ctx context.Context, id ledger.DocumentTypeID) (ledger.DocumentType, error) {
	var (
		dt   ledger.DocumentType
		dtID string
	)
	err := qs.q.QueryRow(ctx, `SELECT id, name, active FROM document_types WHERE id = $1`, string(id)).
		Scan(&dtID, &dt.Name, &dt.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return dt, &ledger.NotFoundError{Entity: "document type", ID: string(id)}
	}
	if err != nil {
		return dt, fmt.Errorf("failed to get document type: %w", err)
	}
	dt.ID = ledger.DocumentTypeID(dtID)
	return dt, nil
}

func (qs *queries) GetAccountType(ctx context.Context, id ledger.AccountTypeID) (ledger.AccountType, error) {
	var (
		at   ledger.AccountType
		atID string
	)
	err := qs.q.QueryRow(ctx, `SELECT id, name, active FROM account_types WHERE id = $1`, string(id)).
		Scan(&atID, &at.Name, &at.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return at, &ledger.NotFoundError{Entity: "account type", ID: string(id)}
	}
	if err != nil {
		return at, fmt.Errorf("failed to get account type: %w", err)
	}
	at.ID = ledger.AccountTypeID(atID)
	return at, nil
}

// =============================================================================
// CUSTOMERS
// =============================================================================

const customerColumns = `id, document_type_id, document, full_name, email, phone, password_hash, avatar_url, active, created_at`

func scanCustomer(row pgx.Row) (ledger.Customer, error) {
	var (
		c         ledger.Customer
		id, dtID  string
		createdAt time.Time
	)
	if err := row.Scan(&id, &dtID, &c.Document, &c.FullName, &c.Email,
		&c.Phone, &c.PasswordHash, &c.AvatarURL, &c.Active, &createdAt); err != nil {
		return c, err
	}
	c.ID = ledger.CustomerID(id)
	c.DocumentTypeID = ledger.DocumentTypeID(dtID)
	c.CreatedAt = createdAt.UTC()
	return c, nil
}

func (qs *queries) GetCustomer(ctx context.Context, id ledger.CustomerID) (ledger.Customer, error) {
	c, err := scanCustomer(qs.q.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = $1 AND deleted_at IS NULL`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return c, &ledger.NotFoundError{Entity: "customer", ID: string(id)}
	}
	if err != nil {
		return c, fmt.Errorf("failed to get customer: %w", err)
	}
	return c, nil
}

func (qs *queries) FindCustomerByEmail(ctx context.Context, email string) (ledger.Customer, error) {
	c, err := scanCustomer(qs.q.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE email = $1 AND deleted_at IS NULL`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return c, &ledger.NotFoundError{Entity: "customer", ID: email}
	}
	if err != nil {
		return c, fmt.Errorf("failed to find customer: %w", err)
	}
	return c, nil
}

func (qs *queries) InsertCustomer(ctx context.Context, c ledger.Customer) error {
	_, err := qs.q.Exec(ctx, `
		INSERT INTO customers (`+customerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		string(c.ID), string(c.DocumentTypeID), c.Document, c.FullName, c.Email,
		c.Phone, c.PasswordHash, c.AvatarURL, c.Active, c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.ErrDuplicate
		}
		return fmt.Errorf("failed to insert customer: %w", err)
	}
	return nil
}

func (qs *queries) UpdateCustomer(ctx context.Context, c ledger.Customer) error {
	tag, err := qs.q.Exec(ctx, `
		UPDATE customers
		SET full_name = $2, email = $3, phone = $4, password_hash = $5, avatar_url = $6, active = $7
		WHERE id = $1 AND deleted_at IS NULL`,
		string(c.ID), c.FullName, c.Email, c.Phone, c.PasswordHash, c.AvatarURL, c.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.ErrDuplicate
		}
		return fmt.Errorf("failed to update customer: %w", err)
	}
	return affected(tag, "customer", string(c.ID))
}

func (qs *queries) DeleteCustomer(ctx context.Context, id ledger.CustomerID, at time.Time) error {
	return qs.softDelete(ctx, "customers", "customer", string(id), at)
}

// =============================================================================
// ACCOUNTS
// =============================================================================

const accountColumns = `id, customer_id, account_type_id, balance::text, active, created_at`

func scanAccount(row pgx.Row) (ledger.Account, error) {
	var (
		a                  ledger.Account
		id, custID, typeID string
		balance            string
		createdAt          time.Time
	)
	if err := row.Scan(&id, &custID, &typeID, &balance, &a.Active, &createdAt); err != nil {
		return a, err
	}
	var err error
	if a.Balance, err = ledger.ParseAmount(balance); err != nil {
		return a, err
	}
	a.ID = ledger.AccountID(id)
	a.CustomerID = ledger.CustomerID(custID)
	a.AccountTypeID = ledger.AccountTypeID(typeID)
	a.CreatedAt = createdAt.UTC()
	return a, nil
}

func (qs *queries) GetAccount(ctx context.Context, id ledger.AccountID) (ledger.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 AND deleted_at IS NULL`
	if qs.forUpdate {
		query += ` FOR UPDATE`
	}
	a, err := scanAccount(qs.q.QueryRow(ctx, query, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return a, &ledger.NotFoundError{Entity: "account", ID: string(id)}
	}
	if err != nil {
		return a, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

func (qs *queries) ListAccountsByCustomer(ctx context.Context, id ledger.CustomerID) ([]ledger.Account, error) {
	rows, err := qs.q.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE customer_id = $1 AND deleted_at IS NULL ORDER BY seq`, string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var out []ledger.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (qs *queries) InsertAccount(ctx context.Context, a ledger.Account) error {
	_, err := qs.q.Exec(ctx, `
		INSERT INTO accounts (id, customer_id, account_type_id, balance, active, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6)`,
		string(a.ID), string(a.CustomerID), string(a.AccountTypeID), a.Balance.String(), a.Active, a.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.ErrDuplicate
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

func (qs *queries) UpdateAccount(ctx context.Context, a ledger.Account) error {
	tag, err := qs.q.Exec(ctx, `
		UPDATE accounts SET account_type_id = $2, balance = $3::numeric, active = $4
		WHERE id = $1 AND deleted_at IS NULL`,
		string(a.ID), string(a.AccountTypeID), a.Balance.String(), a.Active)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return affected(tag, "account", string(a.ID))
}

func (qs *queries) DeleteAccount(ctx context.Context, id ledger.AccountID, at time.Time) error {
	return qs.softDelete(ctx, "accounts", "account", string(id), at)
}

// =============================================================================
// DEPOSITS
// =============================================================================

const depositColumns = `id, account_id, amount::text, at`

func scanDeposit(row pgx.Row) (ledger.Deposit, error) {
	var (
		d          ledger.Deposit
		id, acctID string
		amount     string
		at         time.Time
	)
	if err := row.Scan(&id, &acctID, &amount, &at); err != nil {
		return d, err
	}
	var err error
	if d.Amount, err = ledger.ParseAmount(amount); err != nil {
		return d, err
	}
	d.ID = ledger.DepositID(id)
	d.AccountID = ledger.AccountID(acctID)
	d.At = at.UTC()
	return d, nil
}

func (qs *queries) GetDeposit(ctx context.Context, id ledger.DepositID) (ledger.Deposit, error) {
	d, err := scanDeposit(qs.q.QueryRow(ctx,
		`SELECT `+depositColumns+` FROM deposits WHERE id = $1 AND deleted_at IS NULL`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return d, &ledger.NotFoundError{Entity: "deposit", ID: string(id)}
	}
	if err != nil {
		return d, fmt.Errorf("failed to get deposit: %w", err)
	}
	return d, nil
}

func (qs *queries) ListDepositsByAccount(ctx context.Context, id ledger.AccountID) ([]ledger.Deposit, error) {
	rows, err := qs.q.Query(ctx,
		`SELECT `+depositColumns+` FROM deposits WHERE account_id = $1 AND deleted_at IS NULL ORDER BY seq`, string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to list deposits: %w", err)
	}
	defer rows.Close()

	var out []ledger.Deposit
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deposit: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (qs *queries) InsertDeposit(ctx context.Context, d ledger.Deposit) error {
	_, err := qs.q.Exec(ctx, `
		INSERT INTO deposits (id, account_id, amount, at) VALUES ($1, $2, $3::numeric, $4)`,
		string(d.ID), string(d.AccountID), d.Amount.String(), d.At)
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.ErrDuplicate
		}
		return fmt.Errorf("failed to insert deposit: %w", err)
	}
	return nil
}

func (qs *queries) DeleteDeposit(ctx context.Context, id ledger.DepositID, at time.Time) error {
	return qs.softDelete(ctx, "deposits", "deposit", string(id), at)
}

// =============================================================================
// TRANSFERS
// =============================================================================

const transferColumns = `id, income_id, outcome_id, amount::text, reason, at`

func scanTransfer(row pgx.Row) (ledger.Transfer, error) {
	var (
		tr              ledger.Transfer
		id, inID, outID string
		amount          string
		at              time.Time
	)
	if err := row.Scan(&id, &inID, &outID, &amount, &tr.Reason, &at); err != nil {
		return tr, err
	}
	var err error
	if tr.Amount, err = ledger.ParseAmount(amount); err != nil {
		return tr, err
	}
	tr.ID = ledger.TransferID(id)
	tr.IncomeID = ledger.AccountID(inID)
	tr.OutcomeID = ledger.AccountID(outID)
	tr.At = at.UTC()
	return tr, nil
}

func (qs *queries) GetTransfer(ctx context.Context, id ledger.TransferID) (ledger.Transfer, error) {
	tr, err := scanTransfer(qs.q.QueryRow(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE id = $1 AND deleted_at IS NULL`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return tr, &ledger.NotFoundError{Entity: "transfer", ID: string(id)}
	}
	if err != nil {
		return tr, fmt.Errorf("failed to get transfer: %w", err)
	}
	return tr, nil
}

func (qs *queries) ListTransfersByIncome(ctx context.Context, id ledger.AccountID) ([]ledger.Transfer, error) {
	return qs.listTransfers(ctx, "income_id", id)
}

func (qs *queries) ListTransfersByOutcome(ctx context.Context, id ledger.AccountID) ([]ledger.Transfer, error) {
	return qs.listTransfers(ctx, "outcome_id", id)
}

func (qs *queries) listTransfers(ctx context.Context, column string, id ledger.AccountID) ([]ledger.Transfer, error) {
	rows, err := qs.q.Query(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE `+column+` = $1 AND deleted_at IS NULL ORDER BY seq`, string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	defer rows.Close()

	var out []ledger.Transfer
	for rows.Next() {
		tr, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

func (qs *queries) InsertTransfer(ctx context.Context, tr ledger.Transfer) error {
	_, err := qs.q.Exec(ctx, `
		INSERT INTO transfers (id, income_id, outcome_id, amount, reason, at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6)`,
		string(tr.ID), string(tr.IncomeID), string(tr.OutcomeID), tr.Amount.String(), tr.Reason, tr.At)
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.ErrDuplicate
		}
		return fmt.Errorf("failed to insert transfer: %w", err)
	}
	return nil
}

func (qs *queries) DeleteTransfer(ctx context.Context, id ledger.TransferID, at time.Time) error {
	return qs.softDelete(ctx, "transfers", "transfer", string(id), at)
}

// =============================================================================
// HELPERS
// =============================================================================

func (qs *queries) softDelete(ctx context.Context, table, entity, id string, at time.Time) error {
	tag, err := qs.q.Exec(ctx,
		`UPDATE `+table+` SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, at)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", entity, err)
	}
	return affected(tag, entity, id)
}

func affected(tag pgconn.CommandTag, entity, id string) error {
	if tag.RowsAffected() == 0 {
		return &ledger.NotFoundError{Entity: entity, ID: id}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
