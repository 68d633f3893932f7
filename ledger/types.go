/*
Package ledger provides the back-office ledger core.

PURPOSE:
  Customers hold accounts, accounts receive deposits and take part in
  transfers. This package owns the rules that keep balances consistent
  (Balances, transfers, deposits) and the read side that merges deposits
  and transfers into one paginated history.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: Fixed-point money value (two decimal places, single currency)
  - Customer, Account, Deposit, Transfer: Persisted entities
  - AccountType, DocumentType: Reference data
  - Typed IDs: Prevent mixing account and customer identifiers

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal, never float64, for money
  2. Type Safety: Strong typing for IDs
  3. Balances are never negative

USAGE:
  amount := ledger.NewAmount(100)
  dep, err := l.CreateDeposit(ctx, customerID, accountID, amount)

SEE ALSO:
  - balance.go: Credit/debit rules
  - transfer.go: Transfer engine
  - history.go: Unified transaction history
*/
package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Fixed-point money
// =============================================================================

// AmountScale is the number of decimal places an Amount may carry.
const AmountScale = 2

type Amount struct {
	Value decimal.Decimal
}

func NewAmount(value int64) Amount {
	return Amount{Value: decimal.NewFromInt(value)}
}

// ParseAmount parses a decimal string such as "12.50".
// More than AmountScale decimal places is rejected.
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: amount %q is not a number", ErrInvalid, s)
	}
	if !d.Equal(d.Truncate(AmountScale)) {
		return Amount{}, fmt.Errorf("%w: amount %q has more than %d decimal places", ErrInvalid, s, AmountScale)
	}
	return Amount{Value: d}, nil
}

func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) Add(b Amount) Amount        { return Amount{Value: a.Value.Add(b.Value)} }
func (a Amount) Sub(b Amount) Amount        { return Amount{Value: a.Value.Sub(b.Value)} }
func (a Amount) Neg() Amount                { return Amount{Value: a.Value.Neg()} }
func (a Amount) IsZero() bool               { return a.Value.IsZero() }
func (a Amount) IsPositive() bool           { return a.Value.IsPositive() }
func (a Amount) IsNegative() bool           { return a.Value.IsNegative() }
func (a Amount) LessThan(b Amount) bool     { return a.Value.LessThan(b.Value) }
func (a Amount) Equal(b Amount) bool        { return a.Value.Equal(b.Value) }
func (a Amount) String() string             { return a.Value.StringFixed(AmountScale) }

// MarshalJSON writes the amount as a JSON number with two decimals.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts both a JSON number and a quoted decimal string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var raw json.Number
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = json.Number(s)
	} else {
		raw = json.Number(data)
	}
	parsed, err := ParseAmount(raw.String())
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CustomerID string
type AccountID string
type DepositID string
type TransferID string
type AccountTypeID string
type DocumentTypeID string

// newID returns a random UUID string for any of the typed IDs.
func newID() string { return uuid.NewString() }

// Reference rows seeded by every store on migration.
const (
	DefaultAccountTypeID  AccountTypeID  = "4edf3a27-98ef-43ac-b1b9-21976ae00183"
	DefaultDocumentTypeID DocumentTypeID = "e07aeb4c-3765-46cd-b8e2-944a928dd497"
)

// =============================================================================
// ENTITIES
// =============================================================================

type DocumentType struct {
	ID     DocumentTypeID
	Name   string
	Active bool
}

type AccountType struct {
	ID     AccountTypeID
	Name   string
	Active bool
}

// Customer owns accounts. PasswordHash is produced by the auth package.
type Customer struct {
	ID             CustomerID
	DocumentTypeID DocumentTypeID
	Document       string
	FullName       string
	Email          string
	Phone          string
	PasswordHash   string
	AvatarURL      string
	Active         bool
	CreatedAt      time.Time
}

// Account holds a non-negative balance. Inactive accounts reject credits and debits.
type Account struct {
	ID            AccountID
	CustomerID    CustomerID
	AccountTypeID AccountTypeID
	Balance       Amount
	Active        bool
	CreatedAt     time.Time
}

// Deposit is an external credit into one account.
type Deposit struct {
	ID        DepositID
	AccountID AccountID
	Amount    Amount
	At        time.Time
}

// Transfer moves Amount from OutcomeID to IncomeID.
type Transfer struct {
	ID        TransferID
	IncomeID  AccountID
	OutcomeID AccountID
	Amount    Amount
	Reason    string
	At        time.Time
}

// SeedDocumentTypes and SeedAccountTypes are inserted by every store on migration.
func SeedDocumentTypes() []DocumentType {
	return []DocumentType{
		{ID: DefaultDocumentTypeID, Name: "Cedula de ciudadania", Active: true},
		{ID: "a4b1c2d3-5e6f-4a7b-8c9d-0e1f2a3b4c5d", Name: "Pasaporte", Active: true},
	}
}

func SeedAccountTypes() []AccountType {
	return []AccountType{
		{ID: DefaultAccountTypeID, Name: "Ahorros", Active: true},
		{ID: "b7c8d9e0-1f2a-4b3c-9d4e-5f6a7b8c9d0e", Name: "Corriente", Active: true},
	}
}
