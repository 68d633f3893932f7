/*
Package sqlite provides a SQLite-backed implementation of ledger.TxStore.

PURPOSE:
  Persists customers, accounts, deposits and transfers in an embedded
  SQLite database. The PostgreSQL store in store/postgres follows the same
  layout with dialect differences only.

KEY TABLES:
  document_types, account_types  Reference data, seeded on migration
  customers                      Unique email and (document type, document)
  accounts                       Balance stored as fixed two-decimal text
  deposits, transfers            Money movements

SOFT DELETE:
  Every entity table has deleted_at. Queries only see rows where it is NULL.
  The unique indexes on customers are partial so a deleted customer's email
  can sign up again.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety: View takes the read lock, WithTx the
  write lock. The connection pool is limited to one connection so ":memory:"
  databases are shared by every query.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  l := ledger.New(store, ledger.Options{})

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/warp/backoffice/ledger"
)

// timeLayout sorts lexically in the same order as the instants it encodes.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema and seeds reference data.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS document_types (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS account_types (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		document_type_id TEXT NOT NULL REFERENCES document_types(id),
		document TEXT NOT NULL,
		full_name TEXT NOT NULL,
		email TEXT NOT NULL,
		phone TEXT,
		password_hash TEXT NOT NULL,
		avatar_url TEXT,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		deleted_at TEXT
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_customers_email
		ON customers(email) WHERE deleted_at IS NULL;
	CREATE UNIQUE INDEX IF NOT EXISTS idx_customers_document
		ON customers(document_type_id, document) WHERE deleted_at IS NULL;

	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL REFERENCES customers(id),
		account_type_id TEXT NOT NULL REFERENCES account_types(id),
		balance TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		deleted_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_customer
		ON accounts(customer_id) WHERE deleted_at IS NULL;

	CREATE TABLE IF NOT EXISTS deposits (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		amount TEXT NOT NULL,
		at TEXT NOT NULL,
		deleted_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_deposits_account
		ON deposits(account_id) WHERE deleted_at IS NULL;

	CREATE TABLE IF NOT EXISTS transfers (
		id TEXT PRIMARY KEY,
		income_id TEXT NOT NULL REFERENCES accounts(id),
		outcome_id TEXT NOT NULL REFERENCES accounts(id),
		amount TEXT NOT NULL,
		reason TEXT,
		at TEXT NOT NULL,
		deleted_at TEXT,
		CHECK (income_id <> outcome_id)
	);

	CREATE INDEX IF NOT EXISTS idx_transfers_income
		ON transfers(income_id) WHERE deleted_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_transfers_outcome
		ON transfers(outcome_id) WHERE deleted_at IS NULL;
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	for _, dt := range ledger.SeedDocumentTypes() {
		if _, err := s.db.Exec(`INSERT OR IGNORE INTO document_types (id, name, active) VALUES (?, ?, ?)`,
			dt.ID, dt.Name, dt.Active); err != nil {
			return err
		}
	}
	for _, at := range ledger.SeedAccountTypes() {
		if _, err := s.db.Exec(`INSERT OR IGNORE INTO account_types (id, name, active) VALUES (?, ?, ?)`,
			at.ID, at.Name, at.Active); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// UNITS OF WORK
// =============================================================================

// View runs fn against the database under the read lock.
func (s *Store) View(ctx context.Context, fn func(ledger.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&queries{q: s.db})
}

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements ledger.Store over a querier.
type queries struct {
	q querier
}

type scanner interface {
	Scan(dest ...any) error
}

// =============================================================================
// REFERENCE DATA
// =============================================================================

func (qs *queries) GetDocumentType(ctx context.Context, id ledger.DocumentTypeID) (ledger.DocumentType, error) {
	var dt ledger.DocumentType
	err := qs.q.QueryRowContext(ctx, `SELECT id, name, active FROM document_types WHERE id = ?`, id).
		Scan(&dt.ID, &dt.Name, &dt.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return dt, &ledger.NotFoundError{Entity: "document type", ID: string(id)}
	}
	if err != nil {
		return dt, fmt.Errorf("failed to get document type: %w", err)
	}
	return dt, nil
}

func (qs *queries) GetAccountType(ctx context.Context, id ledger.AccountTypeID) (ledger.AccountType, error) {
	var at ledger.AccountType
	err := qs.q.QueryRowContext(ctx, `SELECT id, name, active FROM account_types WHERE id = ?`, id).
		Scan(&at.ID, &at.Name, &at.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return at, &ledger.NotFoundError{Entity: "account type", ID: string(id)}
	}
	if err != nil {
		return at, fmt.Errorf("failed to get account type: %w", err)
	}
	return at, nil
}

// =============================================================================
// CUSTOMERS
// =============================================================================

const customerColumns = `id, document_type_id, document, full_name, email, phone, password_hash, avatar_url, active, created_at`

func scanCustomer(row scanner) (ledger.Customer, error) {
	var (
		c             ledger.Customer
		phone, avatar sql.NullString
		createdAt     string
	)
	if err := row.Scan(&c.ID, &c.DocumentTypeID, &c.Document, &c.FullName, &c.Email,
		&phone, &c.PasswordHash, &avatar, &c.Active, &createdAt); err != nil {
		return c, err
	}
	c.Phone = phone.String
	c.AvatarURL = avatar.String
	t, err := parseTime(createdAt)
	if err != nil {
		return c, err
	}
	c.CreatedAt = t
	return c, nil
}

func (qs *queries) GetCustomer(ctx context.Context, id ledger.CustomerID) (ledger.Customer, error) {
	c, err := scanCustomer(qs.q.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = ? AND deleted_at IS NULL`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return c, &ledger.NotFoundError{Entity: "customer", ID: string(id)}
	}
	if err != nil {
		return c, fmt.Errorf("failed to get customer: %w", err)
	}
	return c, nil
}

func (qs *queries) FindCustomerByEmail(ctx context.Context, email string) (ledger.Customer, error) {
	c, err := scanCustomer(qs.q.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE email = ? AND deleted_at IS NULL`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return c, &ledger.NotFoundError{Entity: "customer", ID: email}
	}
	if err != nil {
		return c, fmt.Errorf("failed to find customer: %w", err)
	}
	return c, nil
}

func (qs *queries) InsertCustomer(ctx context.Context, c ledger.Customer) error {
	_, err := qs.q.ExecContext(ctx, `
		INSERT INTO customers (`+customerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.DocumentTypeID, c.Document, c.FullName, c.Email,
		nullString(c.Phone), c.PasswordHash, nullString(c.AvatarURL), c.Active, formatTime(c.CreatedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicate
		}
		return fmt.Errorf("failed to insert customer: %w", err)
	}
	return nil
}

func (qs *queries) UpdateCustomer(ctx context.Context, c ledger.Customer) error {
	res, err := qs.q.ExecContext(ctx, `
		UPDATE customers
		SET full_name = ?, email = ?, phone = ?, password_hash = ?, avatar_url = ?, active = ?
		WHERE id = ? AND deleted_at IS NULL`,
		c.FullName, c.Email, nullString(c.Phone), c.PasswordHash, nullString(c.AvatarURL), c.Active, c.ID)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicate
		}
		return fmt.Errorf("failed to update customer: %w", err)
	}
	return affected(res, "customer", string(c.ID))
}

func (qs *queries) DeleteCustomer(ctx context.Context, id ledger.CustomerID, at time.Time) error {
	return qs.softDelete(ctx, "customers", "customer", string(id), at)
}

// =============================================================================
// ACCOUNTS
// =============================================================================

const accountColumns = `id, customer_id, account_type_id, balance, active, created_at`

func scanAccount(row scanner) (ledger.Account, error) {
	var (
		a                  ledger.Account
		balance, createdAt string
	)
	if err := row.Scan(&a.ID, &a.CustomerID, &a.AccountTypeID, &balance, &a.Active, &createdAt); err != nil {
		return a, err
	}
	var err error
	if a.Balance, err = ledger.ParseAmount(balance); err != nil {
		return a, err
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return a, err
	}
	return a, nil
}

func (qs *queries) GetAccount(ctx context.Context, id ledger.AccountID) (ledger.Account, error) {
	a, err := scanAccount(qs.q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ? AND deleted_at IS NULL`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return a, &ledger.NotFoundError{Entity: "account", ID: string(id)}
	}
	if err != nil {
		return a, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

func (qs *queries) ListAccountsByCustomer(ctx context.Context, id ledger.CustomerID) ([]ledger.Account, error) {
	rows, err := qs.q.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE customer_id = ? AND deleted_at IS NULL ORDER BY rowid`, id)
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
	_, err := qs.q.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.CustomerID, a.AccountTypeID, a.Balance.String(), a.Active, formatTime(a.CreatedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicate
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

func (qs *queries) UpdateAccount(ctx context.Context, a ledger.Account) error {
	res, err := qs.q.ExecContext(ctx, `
		UPDATE accounts SET account_type_id = ?, balance = ?, active = ?
		WHERE id = ? AND deleted_at IS NULL`,
		a.AccountTypeID, a.Balance.String(), a.Active, a.ID)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return affected(res, "account", string(a.ID))
}

func (qs *queries) DeleteAccount(ctx context.Context, id ledger.AccountID, at time.Time) error {
	return qs.softDelete(ctx, "accounts", "account", string(id), at)
}

// =============================================================================
// DEPOSITS
// =============================================================================

const depositColumns = `id, account_id, amount, at`

func scanDeposit(row scanner) (ledger.Deposit, error) {
	var (
		d         ledger.Deposit
		amount, t string
	)
	if err := row.Scan(&d.ID, &d.AccountID, &amount, &t); err != nil {
		return d, err
	}
	var err error
	if d.Amount, err = ledger.ParseAmount(amount); err != nil {
		return d, err
	}
	if d.At, err = parseTime(t); err != nil {
		return d, err
	}
	return d, nil
}

func (qs *queries) GetDeposit(ctx context.Context, id ledger.DepositID) (ledger.Deposit, error) {
	d, err := scanDeposit(qs.q.QueryRowContext(ctx,
		`SELECT `+depositColumns+` FROM deposits WHERE id = ? AND deleted_at IS NULL`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return d, &ledger.NotFoundError{Entity: "deposit", ID: string(id)}
	}
	if err != nil {
		return d, fmt.Errorf("failed to get deposit: %w", err)
	}
	return d, nil
}

func (qs *queries) ListDepositsByAccount(ctx context.Context, id ledger.AccountID) ([]ledger.Deposit, error) {
	rows, err := qs.q.QueryContext(ctx,
		`SELECT `+depositColumns+` FROM deposits WHERE account_id = ? AND deleted_at IS NULL ORDER BY rowid`, id)
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
	_, err := qs.q.ExecContext(ctx,
		`INSERT INTO deposits (`+depositColumns+`) VALUES (?, ?, ?, ?)`,
		d.ID, d.AccountID, d.Amount.String(), formatTime(d.At))
	if err != nil {
		if isUniqueConstraintError(err) {
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

const transferColumns = `id, income_id, outcome_id, amount, reason, at`

func scanTransfer(row scanner) (ledger.Transfer, error) {
	var (
		tr        ledger.Transfer
		amount, t string
		reason    sql.NullString
	)
	if err := row.Scan(&tr.ID, &tr.IncomeID, &tr.OutcomeID, &amount, &reason, &t); err != nil {
		return tr, err
	}
	tr.Reason = reason.String
	var err error
	if tr.Amount, err = ledger.ParseAmount(amount); err != nil {
		return tr, err
	}
	if tr.At, err = parseTime(t); err != nil {
		return tr, err
	}
	return tr, nil
}

func (qs *queries) GetTransfer(ctx context.Context, id ledger.TransferID) (ledger.Transfer, error) {
	tr, err := scanTransfer(qs.q.QueryRowContext(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE id = ? AND deleted_at IS NULL`, id))
	if errors.Is(err, sql.ErrNoRows) {
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

// listTransfers filters on column, which is always one of the two constants above.
func (qs *queries) listTransfers(ctx context.Context, column string, id ledger.AccountID) ([]ledger.Transfer, error) {
	rows, err := qs.q.QueryContext(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE `+column+` = ? AND deleted_at IS NULL ORDER BY rowid`, id)
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
	_, err := qs.q.ExecContext(ctx,
		`INSERT INTO transfers (`+transferColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		tr.ID, tr.IncomeID, tr.OutcomeID, tr.Amount.String(), nullString(tr.Reason), formatTime(tr.At))
	if err != nil {
		if isUniqueConstraintError(err) {
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

// softDelete stamps deleted_at. table is always a constant from this file.
func (qs *queries) softDelete(ctx context.Context, table, entity, id string, at time.Time) error {
	res, err := qs.q.ExecContext(ctx,
		`UPDATE `+table+` SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", entity, err)
	}
	return affected(res, entity, id)
}

func affected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &ledger.NotFoundError{Entity: entity, ID: id}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
}
