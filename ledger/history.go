/*
history.go - History Aggregator

PURPOSE:
  Merges deposits and transfers into one chronological, date-filtered,
  paginated view. One generic pipeline serves every variant:

    by account      deposits + transfers of one account
    by customer     deposits + transfers of every account of a customer
    deposits only   one account or every account of a customer
    transfers only  income, outcome or both

PIPELINE (History):
  1. Sort newest first (stable; equal timestamps keep their order)
  2. Keep items with dateInit <= t <= dateEnd
  3. Count and slice the requested page

  dateInit defaults to the configured history floor and dateEnd to now.

SIGN:
  Seen from an account, an outgoing transfer is negative. A transfer
  between two accounts of the same customer shows up twice in the
  customer view: once positive, once negative.
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// ENTRIES - Deposit | Transfer
// =============================================================================

type EntryKind string

const (
	KindDeposit  EntryKind = "Deposit"
	KindTransfer EntryKind = "Transfer"
)

// Entry is one line of a history. Implemented by DepositEntry and TransferEntry.
type Entry interface {
	EntryID() string
	Kind() EntryKind
	SignedAmount() Amount
	OccurredAt() time.Time
}

type DepositEntry struct {
	Deposit
}

func (e DepositEntry) EntryID() string       { return string(e.ID) }
func (e DepositEntry) Kind() EntryKind       { return KindDeposit }
func (e DepositEntry) SignedAmount() Amount  { return e.Amount }
func (e DepositEntry) OccurredAt() time.Time { return e.At }

// TransferEntry is a transfer seen from one of its accounts.
type TransferEntry struct {
	Transfer
	Outgoing bool
}

func (e TransferEntry) EntryID() string { return string(e.ID) }
func (e TransferEntry) Kind() EntryKind { return KindTransfer }
func (e TransferEntry) SignedAmount() Amount {
	if e.Outgoing {
		return e.Amount.Neg()
	}
	return e.Amount
}
func (e TransferEntry) OccurredAt() time.Time { return e.At }

// TransferDirection selects which side of an account's transfers to include.
type TransferDirection string

const (
	DirectionIn   TransferDirection = "in"
	DirectionOut  TransferDirection = "out"
	DirectionBoth TransferDirection = "both"
)

func ParseDirection(s string) (TransferDirection, bool) {
	switch TransferDirection(s) {
	case "", DirectionBoth:
		return DirectionBoth, true
	case DirectionIn, DirectionOut:
		return TransferDirection(s), true
	}
	return "", false
}

// =============================================================================
// GENERIC PIPELINE
// =============================================================================

// History sorts, filters and paginates items. items is not modified.
func History[T any](items []T, at func(T) time.Time, from, to time.Time, req PageRequest) Page[T] {
	sorted := make([]T, len(items))
	copy(sorted, items)
	sortNewestFirst(sorted, at)

	filtered := sorted[:0]
	for _, it := range sorted {
		if within(at(it), from, to) {
			filtered = append(filtered, it)
		}
	}

	page := Paginate(filtered, req)
	page.DateInit, page.DateEnd = &from, &to
	return page
}

func entryTime(e Entry) time.Time           { return e.OccurredAt() }
func depositTime(d Deposit) time.Time       { return d.At }
func transferTime(t TransferEntry) time.Time { return t.At }

// =============================================================================
// COLLECTION
// =============================================================================

func collectDeposits(ctx context.Context, s Store, ids []AccountID) ([]Deposit, error) {
	var out []Deposit
	for _, id := range ids {
		deps, err := s.ListDepositsByAccount(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, deps...)
	}
	return out, nil
}

func collectTransfers(ctx context.Context, s Store, ids []AccountID, dir TransferDirection) ([]TransferEntry, error) {
	var out []TransferEntry
	for _, id := range ids {
		if dir != DirectionOut {
			in, err := s.ListTransfersByIncome(ctx, id)
			if err != nil {
				return nil, err
			}
			for _, t := range in {
				out = append(out, TransferEntry{Transfer: t})
			}
		}
		if dir != DirectionIn {
			outgoing, err := s.ListTransfersByOutcome(ctx, id)
			if err != nil {
				return nil, err
			}
			for _, t := range outgoing {
				out = append(out, TransferEntry{Transfer: t, Outgoing: true})
			}
		}
	}
	return out, nil
}

// scope resolves the accounts a history covers: one owned account, or all
// of the customer's accounts when accountID is empty.
func scope(ctx context.Context, s Store, customerID CustomerID, accountID AccountID) ([]AccountID, error) {
	if accountID != "" {
		if _, err := owned(ctx, s, customerID, accountID); err != nil {
			return nil, err
		}
		return []AccountID{accountID}, nil
	}
	if _, err := s.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	accts, err := s.ListAccountsByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	ids := make([]AccountID, len(accts))
	for i, a := range accts {
		ids[i] = a.ID
	}
	return ids, nil
}

// =============================================================================
// LEDGER QUERIES
// =============================================================================

// Transactions returns deposits and transfers of one account, or of every
// account of the customer when accountID is empty.
func (l *Ledger) Transactions(ctx context.Context, customerID CustomerID, accountID AccountID, req PageRequest, dr DateRange) (Page[Entry], error) {
	var entries []Entry
	err := l.store.View(ctx, func(s Store) error {
		ids, err := scope(ctx, s, customerID, accountID)
		if err != nil {
			return err
		}
		deps, err := collectDeposits(ctx, s, ids)
		if err != nil {
			return err
		}
		trs, err := collectTransfers(ctx, s, ids, DirectionBoth)
		if err != nil {
			return err
		}
		entries = make([]Entry, 0, len(deps)+len(trs))
		for _, d := range deps {
			entries = append(entries, DepositEntry{Deposit: d})
		}
		for _, t := range trs {
			entries = append(entries, t)
		}
		return nil
	})
	if err != nil {
		return Page[Entry]{}, err
	}
	from, to := dr.resolve(l.floor, l.clock.Now())
	return History(entries, entryTime, from, to, req), nil
}

// Deposits returns the deposits of one account, or of every account of the customer.
func (l *Ledger) Deposits(ctx context.Context, customerID CustomerID, accountID AccountID, req PageRequest, dr DateRange) (Page[Deposit], error) {
	var deps []Deposit
	err := l.store.View(ctx, func(s Store) error {
		ids, err := scope(ctx, s, customerID, accountID)
		if err != nil {
			return err
		}
		deps, err = collectDeposits(ctx, s, ids)
		return err
	})
	if err != nil {
		return Page[Deposit]{}, err
	}
	from, to := dr.resolve(l.floor, l.clock.Now())
	return History(deps, depositTime, from, to, req), nil
}

// Transfers returns the transfers of one account, or of every account of the
// customer, restricted to dir.
func (l *Ledger) Transfers(ctx context.Context, customerID CustomerID, accountID AccountID, dir TransferDirection, req PageRequest, dr DateRange) (Page[TransferEntry], error) {
	var trs []TransferEntry
	err := l.store.View(ctx, func(s Store) error {
		ids, err := scope(ctx, s, customerID, accountID)
		if err != nil {
			return err
		}
		trs, err = collectTransfers(ctx, s, ids, dir)
		return err
	})
	if err != nil {
		return Page[TransferEntry]{}, err
	}
	from, to := dr.resolve(l.floor, l.clock.Now())
	return History(trs, transferTime, from, to, req), nil
}
