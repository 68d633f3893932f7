/*
ledger.go - The ledger service

PURPOSE:
  Ledger is the entry point for every operation that reads or moves money.
  It combines a TxStore with the in-process account locks, an injected
  clock and an event publisher.

WRITE PATH:
  1. Acquire the account locks (sorted, so two transfers never deadlock)
  2. Open a store transaction
  3. Validate and apply through Balances
  4. Commit, release locks
  5. Publish the event (failures are logged, never returned)

READ PATH:
  Reads run in a store View and take no account locks.

SEE ALSO:
  - balance.go: Credit/debit rules
  - transfer.go, deposit.go, account.go, customer.go: Operations
  - history.go: Read side
*/
package ledger

import (
	"context"
	"log/slog"
	"time"
)

// =============================================================================
// EVENTS
// =============================================================================

type EventType string

const (
	EventAccountOpened   EventType = "account.opened"
	EventAccountClosed   EventType = "account.closed"
	EventDepositCreated  EventType = "deposit.created"
	EventDepositDeleted  EventType = "deposit.deleted"
	EventTransferCreated EventType = "transfer.created"
	EventTransferDeleted EventType = "transfer.deleted"
)

// Event is published after a committed write.
type Event struct {
	Type       EventType  `json:"type"`
	CustomerID CustomerID `json:"customerId"`
	AccountID  AccountID  `json:"accountId"`
	RecordID   string     `json:"recordId"`
	Amount     Amount     `json:"amount"`
	At         time.Time  `json:"at"`
}

// Publisher delivers ledger events to an outside system.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }

// =============================================================================
// LEDGER
// =============================================================================

type Options struct {
	Clock Clock
	// HistoryFloor is the lower date bound when a history request has none.
	HistoryFloor time.Time
	// DefaultAccountType is used for signup and for OpenAccount without a type.
	DefaultAccountType AccountTypeID
	Publisher          Publisher
	Logger             *slog.Logger
}

type Ledger struct {
	store    TxStore
	balances Balances
	locks    *accountLocks
	clock    Clock
	floor    time.Time
	acctType AccountTypeID
	pub      Publisher
	log      *slog.Logger
}

func New(store TxStore, opts Options) *Ledger {
	l := &Ledger{
		store:    store,
		locks:    newAccountLocks(),
		clock:    opts.Clock,
		floor:    opts.HistoryFloor,
		acctType: opts.DefaultAccountType,
		pub:      opts.Publisher,
		log:      opts.Logger,
	}
	if l.clock == nil {
		l.clock = SystemClock{}
	}
	if l.floor.IsZero() {
		l.floor = DefaultHistoryFloor
	}
	if l.acctType == "" {
		l.acctType = DefaultAccountTypeID
	}
	if l.pub == nil {
		l.pub = nopPublisher{}
	}
	if l.log == nil {
		l.log = slog.Default()
	}
	return l
}

// Now returns the ledger clock's current time.
func (l *Ledger) Now() time.Time { return l.clock.Now() }

func (l *Ledger) publish(ctx context.Context, ev Event) {
	if err := l.pub.Publish(ctx, ev); err != nil {
		l.log.Warn("event publish failed",
			"component", "ledger", "event", ev.Type, "record_id", ev.RecordID, "error", err)
	}
}

// owned loads an account and checks it belongs to customerID.
func owned(ctx context.Context, s Store, customerID CustomerID, id AccountID) (Account, error) {
	acct, err := s.GetAccount(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if acct.CustomerID != customerID {
		return Account{}, ErrNotOwner
	}
	return acct, nil
}
