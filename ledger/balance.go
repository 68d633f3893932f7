/*
balance.go - Balance Manager

PURPOSE:
  The only code that changes Account.Balance. Credit and Debit run against
  the Store handed to them, so callers compose them inside one WithTx.

RULES:
  - Unknown account          -> NotFoundError
  - Inactive account         -> ErrInactiveAccount (credit, debit, balance read)
  - Debit above the balance  -> InsufficientFundsError, balance unchanged
  - Amount must be positive  -> ErrInvalidAmount

LOCKING:
  Balances takes no locks. Ledger methods hold the account lock and the
  store transaction around every call.
*/
package ledger

import (
	"context"
)

// Balances applies balance rules through a Store.
type Balances struct{}

func (Balances) Credit(ctx context.Context, s Store, id AccountID, amount Amount) (Account, error) {
	if !amount.IsPositive() {
		return Account{}, ErrInvalidAmount
	}
	acct, err := activeAccount(ctx, s, id)
	if err != nil {
		return Account{}, err
	}
	acct.Balance = acct.Balance.Add(amount)
	if err := s.UpdateAccount(ctx, acct); err != nil {
		return Account{}, err
	}
	return acct, nil
}

func (Balances) Debit(ctx context.Context, s Store, id AccountID, amount Amount) (Account, error) {
	if !amount.IsPositive() {
		return Account{}, ErrInvalidAmount
	}
	acct, err := activeAccount(ctx, s, id)
	if err != nil {
		return Account{}, err
	}
	if acct.Balance.LessThan(amount) {
		return Account{}, &InsufficientFundsError{AccountID: id, Available: acct.Balance, Requested: amount}
	}
	acct.Balance = acct.Balance.Sub(amount)
	if err := s.UpdateAccount(ctx, acct); err != nil {
		return Account{}, err
	}
	return acct, nil
}

func (Balances) Balance(ctx context.Context, s Store, id AccountID) (Amount, error) {
	acct, err := activeAccount(ctx, s, id)
	if err != nil {
		return Amount{}, err
	}
	return acct.Balance, nil
}

func activeAccount(ctx context.Context, s Store, id AccountID) (Account, error) {
	acct, err := s.GetAccount(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if !acct.Active {
		return Account{}, ErrInactiveAccount
	}
	return acct, nil
}

// =============================================================================
// LEDGER OPERATIONS
// =============================================================================

// Credit adds amount to an account outside of any deposit or transfer record.
func (l *Ledger) Credit(ctx context.Context, id AccountID, amount Amount) (Account, error) {
	unlock := l.locks.lock(id)
	defer unlock()

	var acct Account
	err := l.store.WithTx(ctx, func(s Store) error {
		var err error
		acct, err = l.balances.Credit(ctx, s, id, amount)
		return err
	})
	return acct, err
}

// Debit removes amount from an account outside of any deposit or transfer record.
func (l *Ledger) Debit(ctx context.Context, id AccountID, amount Amount) (Account, error) {
	unlock := l.locks.lock(id)
	defer unlock()

	var acct Account
	err := l.store.WithTx(ctx, func(s Store) error {
		var err error
		acct, err = l.balances.Debit(ctx, s, id, amount)
		return err
	})
	return acct, err
}

// Balance returns the balance of an account owned by customerID.
func (l *Ledger) Balance(ctx context.Context, customerID CustomerID, id AccountID) (Amount, error) {
	var bal Amount
	err := l.store.View(ctx, func(s Store) error {
		if _, err := owned(ctx, s, customerID, id); err != nil {
			return err
		}
		var err error
		bal, err = l.balances.Balance(ctx, s, id)
		return err
	})
	return bal, err
}

// TotalBalance sums the balances of every account of a customer.
func (l *Ledger) TotalBalance(ctx context.Context, customerID CustomerID) (Amount, error) {
	total := NewAmount(0)
	err := l.store.View(ctx, func(s Store) error {
		if _, err := s.GetCustomer(ctx, customerID); err != nil {
			return err
		}
		accts, err := s.ListAccountsByCustomer(ctx, customerID)
		if err != nil {
			return err
		}
		for _, a := range accts {
			total = total.Add(a.Balance)
		}
		return nil
	})
	if err != nil {
		return Amount{}, err
	}
	return total, nil
}
