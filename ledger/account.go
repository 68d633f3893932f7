/*
account.go - Account lifecycle

PURPOSE:
  Opening, reading, listing, state changes and closure of accounts.

CLOSURE:
  An account can only be closed with a zero balance. Closure soft-deletes
  its deposits, every transfer it took part in, then the account itself.
  Records are removed without balance reversal: the closed account holds
  nothing and the counterpart balances keep what they received. When the
  customer has no account left the customer is deleted too.

STATE:
  Deactivating requires a zero balance. Reactivating is always allowed.
*/
package ledger

import (
	"context"
	"time"
)

func (l *Ledger) OpenAccount(ctx context.Context, customerID CustomerID, typeID AccountTypeID) (Account, error) {
	var acct Account
	err := l.store.WithTx(ctx, func(s Store) error {
		if _, err := s.GetCustomer(ctx, customerID); err != nil {
			return err
		}
		var err error
		acct, err = l.openAccount(ctx, s, customerID, typeID)
		return err
	})
	if err != nil {
		return Account{}, err
	}
	l.publish(ctx, Event{Type: EventAccountOpened, CustomerID: customerID, AccountID: acct.ID,
		RecordID: string(acct.ID), Amount: acct.Balance, At: acct.CreatedAt})
	return acct, nil
}

func (l *Ledger) openAccount(ctx context.Context, s Store, customerID CustomerID, typeID AccountTypeID) (Account, error) {
	if typeID == "" {
		typeID = l.acctType
	}
	if _, err := s.GetAccountType(ctx, typeID); err != nil {
		return Account{}, err
	}
	acct := Account{
		ID:            AccountID(newID()),
		CustomerID:    customerID,
		AccountTypeID: typeID,
		Balance:       NewAmount(0),
		Active:        true,
		CreatedAt:     l.clock.Now(),
	}
	if err := s.InsertAccount(ctx, acct); err != nil {
		return Account{}, err
	}
	return acct, nil
}

// Account returns an account owned by customerID.
func (l *Ledger) Account(ctx context.Context, customerID CustomerID, id AccountID) (Account, error) {
	var acct Account
	err := l.store.View(ctx, func(s Store) error {
		var err error
		acct, err = owned(ctx, s, customerID, id)
		return err
	})
	return acct, err
}

// AnyAccount returns an account regardless of owner. Used to check a transfer destination.
func (l *Ledger) AnyAccount(ctx context.Context, id AccountID) (Account, error) {
	var acct Account
	err := l.store.View(ctx, func(s Store) error {
		var err error
		acct, err = s.GetAccount(ctx, id)
		return err
	})
	return acct, err
}

// AccountType returns reference data for an account type.
func (l *Ledger) AccountType(ctx context.Context, id AccountTypeID) (AccountType, error) {
	var t AccountType
	err := l.store.View(ctx, func(s Store) error {
		var err error
		t, err = s.GetAccountType(ctx, id)
		return err
	})
	return t, err
}

// Exists reports whether an account id is known. NotFound is not an error here.
func (l *Ledger) Exists(ctx context.Context, id AccountID) (bool, error) {
	_, err := l.AnyAccount(ctx, id)
	if IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Accounts lists a customer's accounts, newest first.
func (l *Ledger) Accounts(ctx context.Context, customerID CustomerID, req PageRequest) (Page[Account], error) {
	var accts []Account
	err := l.store.View(ctx, func(s Store) error {
		var err error
		accts, err = s.ListAccountsByCustomer(ctx, customerID)
		return err
	})
	if err != nil {
		return Page[Account]{}, err
	}
	sortNewestFirst(accts, func(a Account) time.Time { return a.CreatedAt })
	return Paginate(accts, req), nil
}

func (l *Ledger) SetAccountState(ctx context.Context, customerID CustomerID, id AccountID, active bool) (Account, error) {
	unlock := l.locks.lock(id)
	defer unlock()

	var acct Account
	err := l.store.WithTx(ctx, func(s Store) error {
		var err error
		acct, err = owned(ctx, s, customerID, id)
		if err != nil {
			return err
		}
		if !active && !acct.Balance.IsZero() {
			return ErrNonZeroBalance
		}
		acct.Active = active
		return s.UpdateAccount(ctx, acct)
	})
	if err != nil {
		return Account{}, err
	}
	return acct, nil
}

func (l *Ledger) ChangeAccountType(ctx context.Context, customerID CustomerID, id AccountID, typeID AccountTypeID) (Account, error) {
	unlock := l.locks.lock(id)
	defer unlock()

	var acct Account
	err := l.store.WithTx(ctx, func(s Store) error {
		var err error
		acct, err = owned(ctx, s, customerID, id)
		if err != nil {
			return err
		}
		if _, err := s.GetAccountType(ctx, typeID); err != nil {
			return err
		}
		acct.AccountTypeID = typeID
		return s.UpdateAccount(ctx, acct)
	})
	if err != nil {
		return Account{}, err
	}
	return acct, nil
}

// CloseAccount deletes a zero-balance account with its records.
// customerDeleted is true when it was the customer's last account.
func (l *Ledger) CloseAccount(ctx context.Context, customerID CustomerID, id AccountID) (customerDeleted bool, err error) {
	unlock := l.locks.lock(id)
	defer unlock()

	err = l.store.WithTx(ctx, func(s Store) error {
		acct, err := owned(ctx, s, customerID, id)
		if err != nil {
			return err
		}
		if !acct.Balance.IsZero() {
			return ErrNonZeroBalance
		}
		now := l.clock.Now()

		deps, err := s.ListDepositsByAccount(ctx, id)
		if err != nil {
			return err
		}
		for _, d := range deps {
			if err := s.DeleteDeposit(ctx, d.ID, now); err != nil {
				return err
			}
		}
		for _, list := range []func(context.Context, AccountID) ([]Transfer, error){
			s.ListTransfersByIncome, s.ListTransfersByOutcome,
		} {
			trs, err := list(ctx, id)
			if err != nil {
				return err
			}
			for _, t := range trs {
				if err := s.DeleteTransfer(ctx, t.ID, now); err != nil {
					return err
				}
			}
		}
		if err := s.DeleteAccount(ctx, id, now); err != nil {
			return err
		}

		rest, err := s.ListAccountsByCustomer(ctx, customerID)
		if err != nil {
			return err
		}
		if len(rest) == 0 {
			customerDeleted = true
			return s.DeleteCustomer(ctx, customerID, now)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	l.log.Info("account closed", "component", "ledger", "account_id", id, "customer_deleted", customerDeleted)
	l.publish(ctx, Event{Type: EventAccountClosed, CustomerID: customerID, AccountID: id,
		RecordID: string(id), Amount: NewAmount(0), At: l.clock.Now()})
	return customerDeleted, nil
}
