// Package store provides an in-memory ledger.TxStore.
package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/warp/backoffice/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex
	t  *tables
}

// tables holds every row. Deleted rows stay with a deletion time set.
type tables struct {
	seq           int64
	documentTypes map[ledger.DocumentTypeID]ledger.DocumentType
	accountTypes  map[ledger.AccountTypeID]ledger.AccountType
	customers     map[ledger.CustomerID]row[ledger.Customer]
	accounts      map[ledger.AccountID]row[ledger.Account]
	deposits      map[ledger.DepositID]row[ledger.Deposit]
	transfers     map[ledger.TransferID]row[ledger.Transfer]
}

type row[T any] struct {
	v       T
	seq     int64
	deleted *time.Time
}

func NewMemory() *Memory {
	t := &tables{
		documentTypes: make(map[ledger.DocumentTypeID]ledger.DocumentType),
		accountTypes:  make(map[ledger.AccountTypeID]ledger.AccountType),
		customers:     make(map[ledger.CustomerID]row[ledger.Customer]),
		accounts:      make(map[ledger.AccountID]row[ledger.Account]),
		deposits:      make(map[ledger.DepositID]row[ledger.Deposit]),
		transfers:     make(map[ledger.TransferID]row[ledger.Transfer]),
	}
	for _, dt := range ledger.SeedDocumentTypes() {
		t.documentTypes[dt.ID] = dt
	}
	for _, at := range ledger.SeedAccountTypes() {
		t.accountTypes[at.ID] = at
	}
	return &Memory{t: t}
}

// View runs fn under the read lock.
func (m *Memory) View(ctx context.Context, fn func(ledger.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(m.t)
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.t.clone()
	if err := fn(m.t); err != nil {
		m.t = snapshot
		return err
	}
	return nil
}

func (t *tables) clone() *tables {
	c := &tables{
		seq:           t.seq,
		documentTypes: t.documentTypes,
		accountTypes:  t.accountTypes,
		customers:     make(map[ledger.CustomerID]row[ledger.Customer], len(t.customers)),
		accounts:      make(map[ledger.AccountID]row[ledger.Account], len(t.accounts)),
		deposits:      make(map[ledger.DepositID]row[ledger.Deposit], len(t.deposits)),
		transfers:     make(map[ledger.TransferID]row[ledger.Transfer], len(t.transfers)),
	}
	for k, v := range t.customers {
		c.customers[k] = v
	}
	for k, v := range t.accounts {
		c.accounts[k] = v
	}
	for k, v := range t.deposits {
		c.deposits[k] = v
	}
	for k, v := range t.transfers {
		c.transfers[k] = v
	}
	return c
}

func (t *tables) next() int64 {
	t.seq++
	return t.seq
}

func notFound(entity, id string) error {
	return &ledger.NotFoundError{Entity: entity, ID: id}
}

// live returns the non-deleted rows of m ordered by insertion.
func live[K comparable, T any](m map[K]row[T], keep func(T) bool) []T {
	rows := make([]row[T], 0)
	for _, r := range m {
		if r.deleted == nil && keep(r.v) {
			rows = append(rows, r)
		}
	}
	slices.SortFunc(rows, func(a, b row[T]) int { return cmp.Compare(a.seq, b.seq) })
	out := make([]T, len(rows))
	for i, r := range rows {
		out[i] = r.v
	}
	return out
}

// =============================================================================
// REFERENCE DATA
// =============================================================================

func (t *tables) GetDocumentType(_ context.Context, id ledger.DocumentTypeID) (ledger.DocumentType, error) {
	dt, ok := t.documentTypes[id]
	if !ok {
		return ledger.DocumentType{}, notFound("document type", string(id))
	}
	return dt, nil
}

func (t *tables) GetAccountType(_ context.Context, id ledger.AccountTypeID) (ledger.AccountType, error) {
	at, ok := t.accountTypes[id]
	if !ok {
		return ledger.AccountType{}, notFound("account type", string(id))
	}
	return at, nil
}

// =============================================================================
// CUSTOMERS
// =============================================================================

func (t *tables) GetCustomer(_ context.Context, id ledger.CustomerID) (ledger.Customer, error) {
	r, ok := t.customers[id]
	if !ok || r.deleted != nil {
		return ledger.Customer{}, notFound("customer", string(id))
	}
	return r.v, nil
}

func (t *tables) FindCustomerByEmail(_ context.Context, email string) (ledger.Customer, error) {
	for _, r := range t.customers {
		if r.deleted == nil && r.v.Email == email {
			return r.v, nil
		}
	}
	return ledger.Customer{}, notFound("customer", email)
}

// uniqueCustomer enforces unique email and unique (document type, document).
func (t *tables) uniqueCustomer(c ledger.Customer) error {
	for id, r := range t.customers {
		if id == c.ID || r.deleted != nil {
			continue
		}
		if r.v.Email == c.Email ||
			(r.v.DocumentTypeID == c.DocumentTypeID && r.v.Document == c.Document) {
			return ledger.ErrDuplicate
		}
	}
	return nil
}

func (t *tables) InsertCustomer(_ context.Context, c ledger.Customer) error {
	if _, ok := t.customers[c.ID]; ok {
		return ledger.ErrDuplicate
	}
	if err := t.uniqueCustomer(c); err != nil {
		return err
	}
	t.customers[c.ID] = row[ledger.Customer]{v: c, seq: t.next()}
	return nil
}

func (t *tables) UpdateCustomer(_ context.Context, c ledger.Customer) error {
	r, ok := t.customers[c.ID]
	if !ok || r.deleted != nil {
		return notFound("customer", string(c.ID))
	}
	if err := t.uniqueCustomer(c); err != nil {
		return err
	}
	r.v = c
	t.customers[c.ID] = r
	return nil
}

func (t *tables) DeleteCustomer(_ context.Context, id ledger.CustomerID, at time.Time) error {
	r, ok := t.customers[id]
	if !ok || r.deleted != nil {
		return notFound("customer", string(id))
	}
	r.deleted = &at
	t.customers[id] = r
	return nil
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (t *tables) GetAccount(_ context.Context, id ledger.AccountID) (ledger.Account, error) {
	r, ok := t.accounts[id]
	if !ok || r.deleted != nil {
		return ledger.Account{}, notFound("account", string(id))
	}
	return r.v, nil
}

func (t *tables) ListAccountsByCustomer(_ context.Context, id ledger.CustomerID) ([]ledger.Account, error) {
	return live(t.accounts, func(a ledger.Account) bool { return a.CustomerID == id }), nil
}

func (t *tables) InsertAccount(_ context.Context, a ledger.Account) error {
	if _, ok := t.accounts[a.ID]; ok {
		return ledger.ErrDuplicate
	}
	t.accounts[a.ID] = row[ledger.Account]{v: a, seq: t.next()}
	return nil
}

func (t *tables) UpdateAccount(_ context.Context, a ledger.Account) error {
	r, ok := t.accounts[a.ID]
	if !ok || r.deleted != nil {
		return notFound("account", string(a.ID))
	}
	r.v = a
	t.accounts[a.ID] = r
	return nil
}

func (t *tables) DeleteAccount(_ context.Context, id ledger.AccountID, at time.Time) error {
	r, ok := t.accounts[id]
	if !ok || r.deleted != nil {
		return notFound("account", string(id))
	}
	r.deleted = &at
	t.accounts[id] = r
	return nil
}

// =============================================================================
// DEPOSITS
// =============================================================================

func (t *tables) GetDeposit(_ context.Context, id ledger.DepositID) (ledger.Deposit, error) {
	r, ok := t.deposits[id]
	if !ok || r.deleted != nil {
		return ledger.Deposit{}, notFound("deposit", string(id))
	}
	return r.v, nil
}

func (t *tables) ListDepositsByAccount(_ context.Context, id ledger.AccountID) ([]ledger.Deposit, error) {
	return live(t.deposits, func(d ledger.Deposit) bool { return d.AccountID == id }), nil
}

func (t *tables) InsertDeposit(_ context.Context, d ledger.Deposit) error {
	if _, ok := t.deposits[d.ID]; ok {
		return ledger.ErrDuplicate
	}
	t.deposits[d.ID] = row[ledger.Deposit]{v: d, seq: t.next()}
	return nil
}

func (t *tables) DeleteDeposit(_ context.Context, id ledger.DepositID, at time.Time) error {
	r, ok := t.deposits[id]
	if !ok || r.deleted != nil {
		return notFound("deposit", string(id))
	}
	r.deleted = &at
	t.deposits[id] = r
	return nil
}

// =============================================================================
// TRANSFERS
// =============================================================================

func (t *tables) GetTransfer(_ context.Context, id ledger.TransferID) (ledger.Transfer, error) {
	r, ok := t.transfers[id]
	if !ok || r.deleted != nil {
		return ledger.Transfer{}, notFound("transfer", string(id))
	}
	return r.v, nil
}

func (t *tables) ListTransfersByIncome(_ context.Context, id ledger.AccountID) ([]ledger.Transfer, error) {
	return live(t.transfers, func(tr ledger.Transfer) bool { return tr.IncomeID == id }), nil
}

func (t *tables) ListTransfersByOutcome(_ context.Context, id ledger.AccountID) ([]ledger.Transfer, error) {
	return live(t.transfers, func(tr ledger.Transfer) bool { return tr.OutcomeID == id }), nil
}

func (t *tables) InsertTransfer(_ context.Context, tr ledger.Transfer) error {
	if _, ok := t.transfers[tr.ID]; ok {
		return ledger.ErrDuplicate
	}
	t.transfers[tr.ID] = row[ledger.Transfer]{v: tr, seq: t.next()}
	return nil
}

func (t *tables) DeleteTransfer(_ context.Context, id ledger.TransferID, at time.Time) error {
	r, ok := t.transfers[id]
	if !ok || r.deleted != nil {
		return notFound("transfer", string(id))
	}
	r.deleted = &at
	t.transfers[id] = r
	return nil
}
