/*
store.go - Persistence interface for the ledger entities

PURPOSE:
  Defines the interface between the ledger rules and the database.
  Different implementations use SQLite, PostgreSQL, or in-memory storage.

KEY INTERFACES:
  Store:   Per-entity CRUD as seen by one unit of work
  TxStore: Opens read views and atomic write transactions over a Store

SOFT DELETE:
  Delete* methods stamp a deletion time. Deleted rows are invisible to
  every Get/List/Find method and never come back.

ORDERING:
  List* methods return rows in insertion order. Presentation order is
  decided by the history aggregator, never by the store.

ERRORS:
  Get/Find return a *NotFoundError (ErrNotFound) for unknown or deleted ids.
  Insert/Update return ErrDuplicate on unique violations (customer email,
  customer document).

ATOMICITY:
  WithTx runs fn against a transactional Store. Any error returned by fn
  rolls back every write made through that Store.

IMPLEMENTATIONS:
  - ledger/store/memory.go: In-memory for testing and dev
  - store/sqlite/sqlite.go: Embedded SQLite
  - store/postgres/postgres.go: PostgreSQL (row locks with FOR UPDATE)

SEE ALSO:
  - ledger.go: Uses TxStore for every operation
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Entity persistence
// =============================================================================

type Store interface {
	// Reference data
	GetDocumentType(ctx context.Context, id DocumentTypeID) (DocumentType, error)
	GetAccountType(ctx context.Context, id AccountTypeID) (AccountType, error)

	// Customers
	GetCustomer(ctx context.Context, id CustomerID) (Customer, error)
	FindCustomerByEmail(ctx context.Context, email string) (Customer, error)
	InsertCustomer(ctx context.Context, c Customer) error
	UpdateCustomer(ctx context.Context, c Customer) error
	DeleteCustomer(ctx context.Context, id CustomerID, at time.Time) error

	// Accounts. Inside WithTx, GetAccount may take a row lock.
	GetAccount(ctx context.Context, id AccountID) (Account, error)
	ListAccountsByCustomer(ctx context.Context, id CustomerID) ([]Account, error)
	InsertAccount(ctx context.Context, a Account) error
	UpdateAccount(ctx context.Context, a Account) error
	DeleteAccount(ctx context.Context, id AccountID, at time.Time) error

	// Deposits
	GetDeposit(ctx context.Context, id DepositID) (Deposit, error)
	ListDepositsByAccount(ctx context.Context, id AccountID) ([]Deposit, error)
	InsertDeposit(ctx context.Context, d Deposit) error
	DeleteDeposit(ctx context.Context, id DepositID, at time.Time) error

	// Transfers
	GetTransfer(ctx context.Context, id TransferID) (Transfer, error)
	ListTransfersByIncome(ctx context.Context, id AccountID) ([]Transfer, error)
	ListTransfersByOutcome(ctx context.Context, id AccountID) ([]Transfer, error)
	InsertTransfer(ctx context.Context, t Transfer) error
	DeleteTransfer(ctx context.Context, id TransferID, at time.Time) error
}

// =============================================================================
// TX STORE - Units of work
// =============================================================================

type TxStore interface {
	// View runs fn against a read view of the store.
	View(ctx context.Context, fn func(Store) error) error

	// WithTx runs fn inside a transaction. Returning an error rolls back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
