/*
deposit.go - Deposit Handler

PURPOSE:
  A deposit is an external credit into one account owned by the caller.
  Creating it writes the deposit record and credits the account in one
  transaction. Deleting it removes the record and debits the amount back.

ERRORS:
  - Account of another customer  -> ErrNotOwner
  - Inactive account             -> ErrInactiveAccount
  - Delete after the money moved -> InsufficientFundsError
*/
package ledger

import "context"

func (l *Ledger) CreateDeposit(ctx context.Context, customerID CustomerID, accountID AccountID, amount Amount) (Deposit, error) {
	if !amount.IsPositive() {
		return Deposit{}, ErrInvalidAmount
	}

	unlock := l.locks.lock(accountID)
	defer unlock()

	var dep Deposit
	err := l.store.WithTx(ctx, func(s Store) error {
		if _, err := owned(ctx, s, customerID, accountID); err != nil {
			return err
		}
		dep = Deposit{
			ID:        DepositID(newID()),
			AccountID: accountID,
			Amount:    amount,
			At:        l.clock.Now(),
		}
		if err := s.InsertDeposit(ctx, dep); err != nil {
			return err
		}
		_, err := l.balances.Credit(ctx, s, accountID, amount)
		return err
	})
	if err != nil {
		return Deposit{}, err
	}

	l.log.Info("deposit committed", "component", "ledger",
		"deposit_id", dep.ID, "account_id", dep.AccountID, "amount", dep.Amount.String())
	l.publish(ctx, Event{Type: EventDepositCreated, CustomerID: customerID, AccountID: accountID,
		RecordID: string(dep.ID), Amount: amount, At: dep.At})
	return dep, nil
}

func (l *Ledger) DeleteDeposit(ctx context.Context, customerID CustomerID, id DepositID) error {
	var dep Deposit
	err := l.store.View(ctx, func(s Store) error {
		var err error
		dep, err = s.GetDeposit(ctx, id)
		return err
	})
	if err != nil {
		return err
	}

	unlock := l.locks.lock(dep.AccountID)
	defer unlock()

	err = l.store.WithTx(ctx, func(s Store) error {
		dep, err := s.GetDeposit(ctx, id)
		if err != nil {
			return err
		}
		if _, err := owned(ctx, s, customerID, dep.AccountID); err != nil {
			return err
		}
		if err := s.DeleteDeposit(ctx, id, l.clock.Now()); err != nil {
			return err
		}
		_, err = l.balances.Debit(ctx, s, dep.AccountID, dep.Amount)
		return err
	})
	if err != nil {
		return err
	}

	l.publish(ctx, Event{Type: EventDepositDeleted, CustomerID: customerID, AccountID: dep.AccountID,
		RecordID: string(dep.ID), Amount: dep.Amount, At: l.clock.Now()})
	return nil
}
