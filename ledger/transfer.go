/*
transfer.go - Transfer Engine

PURPOSE:
  Moves money between two accounts. A transfer passes three stages and
  either completes all of them or leaves no trace:

    Validated  income != outcome, outcome belongs to the requester
    Funded     outcome balance >= amount
    Committed  transfer record + credit income + debit outcome, one transaction

  The income account may belong to any customer; it is looked up by id only.

DELETION:
  Only the owner of the outcome account may delete a transfer. Deleting
  reverses it: the income account is debited and the outcome account is
  credited inside the same transaction. If the income account no longer
  holds the amount the deletion fails with InsufficientFundsError.

SEE ALSO:
  - balance.go: Credit/debit rules used by the Committed stage
*/
package ledger

import (
	"context"
	"strings"
)

// TransferRequest is a customer's request to move Amount out of OutcomeID.
type TransferRequest struct {
	IncomeID  AccountID
	OutcomeID AccountID
	Amount    Amount
	Reason    string
}

func (l *Ledger) CreateTransfer(ctx context.Context, customerID CustomerID, req TransferRequest) (Transfer, error) {
	if req.IncomeID == req.OutcomeID {
		return Transfer{}, ErrSelfTransfer
	}
	if !req.Amount.IsPositive() {
		return Transfer{}, ErrInvalidAmount
	}

	unlock := l.locks.lock(req.IncomeID, req.OutcomeID)
	defer unlock()

	var tr Transfer
	err := l.store.WithTx(ctx, func(s Store) error {
		// Validated. Both accounts must exist; only the outcome is owner checked.
		if err := lockRows(ctx, s, req.IncomeID, req.OutcomeID); err != nil {
			return err
		}
		if _, err := owned(ctx, s, customerID, req.OutcomeID); err != nil {
			return err
		}

		// Funded
		available, err := l.balances.Balance(ctx, s, req.OutcomeID)
		if err != nil {
			return err
		}
		if available.LessThan(req.Amount) {
			return &InsufficientFundsError{AccountID: req.OutcomeID, Available: available, Requested: req.Amount}
		}

		// Committed
		tr = Transfer{
			ID:        TransferID(newID()),
			IncomeID:  req.IncomeID,
			OutcomeID: req.OutcomeID,
			Amount:    req.Amount,
			Reason:    strings.TrimSpace(req.Reason),
			At:        l.clock.Now(),
		}
		if err := s.InsertTransfer(ctx, tr); err != nil {
			return err
		}
		if _, err := l.balances.Debit(ctx, s, req.OutcomeID, req.Amount); err != nil {
			return err
		}
		_, err = l.balances.Credit(ctx, s, req.IncomeID, req.Amount)
		return err
	})
	if err != nil {
		return Transfer{}, err
	}

	l.log.Info("transfer committed", "component", "ledger",
		"transfer_id", tr.ID, "outcome_id", tr.OutcomeID, "income_id", tr.IncomeID, "amount", tr.Amount.String())
	l.publish(ctx, Event{Type: EventTransferCreated, CustomerID: customerID, AccountID: tr.OutcomeID,
		RecordID: string(tr.ID), Amount: tr.Amount, At: tr.At})
	return tr, nil
}

func (l *Ledger) DeleteTransfer(ctx context.Context, customerID CustomerID, id TransferID) error {
	var tr Transfer
	err := l.store.View(ctx, func(s Store) error {
		var err error
		tr, err = s.GetTransfer(ctx, id)
		return err
	})
	if err != nil {
		return err
	}

	unlock := l.locks.lock(tr.IncomeID, tr.OutcomeID)
	defer unlock()

	err = l.store.WithTx(ctx, func(s Store) error {
		// The accounts of a transfer never change, so the ids read above are
		// safe to lock before the transfer is read again.
		if err := lockRows(ctx, s, tr.IncomeID, tr.OutcomeID); err != nil {
			return err
		}
		tr, err := s.GetTransfer(ctx, id)
		if err != nil {
			return err
		}
		if _, err := owned(ctx, s, customerID, tr.OutcomeID); err != nil {
			return err
		}
		if err := s.DeleteTransfer(ctx, id, l.clock.Now()); err != nil {
			return err
		}
		if _, err := l.balances.Debit(ctx, s, tr.IncomeID, tr.Amount); err != nil {
			return err
		}
		_, err = l.balances.Credit(ctx, s, tr.OutcomeID, tr.Amount)
		return err
	})
	if err != nil {
		return err
	}

	l.publish(ctx, Event{Type: EventTransferDeleted, CustomerID: customerID, AccountID: tr.OutcomeID,
		RecordID: string(tr.ID), Amount: tr.Amount, At: l.clock.Now()})
	return nil
}
