package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/backoffice/ledger"
)

func TestCreateDeposit_CreditsAccount(t *testing.T) {
	// GIVEN: A new customer with an empty account
	f := newTestLedger(t)
	alice, acct := f.register(t)

	// WHEN: Two deposits are made
	first := f.deposit(t, alice, acct.ID, "100")
	f.deposit(t, alice, acct.ID, "0.50")

	// THEN: The balance is their sum
	assert.Equal(t, "100.50", f.balance(t, alice, acct.ID))
	assert.Equal(t, acct.ID, first.AccountID)
	assert.Equal(t, testStart.Add(2*time.Second), first.At, "third clock read after register")
}

func TestCreateDeposit_Rejections(t *testing.T) {
	f := newTestLedger(t)
	ctx := context.Background()
	alice, acct := f.register(t)
	mallory, _ := f.register(t)

	tests := []struct {
		name     string
		customer ledger.CustomerID
		account  ledger.AccountID
		amount   string
		check    func(error) bool
	}{
		{"zero amount", alice.ID, acct.ID, "0", func(err error) bool { return errors.Is(err, ledger.ErrInvalidAmount) }},
		{"negative amount", alice.ID, acct.ID, "-1", func(err error) bool { return errors.Is(err, ledger.ErrInvalid) }},
		{"unknown account", alice.ID, "missing", "10", ledger.IsNotFound},
		{"another customer's account", mallory.ID, acct.ID, "10", ledger.IsUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.l.CreateDeposit(ctx, tt.customer, tt.account, ledger.MustParseAmount(tt.amount))
			require.Error(t, err)
			assert.True(t, tt.check(err), "got %v", err)
		})
	}
	assert.Equal(t, "0.00", f.balance(t, alice, acct.ID))
}

func TestCreateDeposit_InactiveAccount(t *testing.T) {
	f := newTestLedger(t)
	ctx := context.Background()
	alice, acct := f.register(t)
	_, err := f.l.SetAccountState(ctx, alice.ID, acct.ID, false)
	require.NoError(t, err)

	_, err = f.l.CreateDeposit(ctx, alice.ID, acct.ID, ledger.NewAmount(10))

	assert.ErrorIs(t, err, ledger.ErrInactiveAccount)
	got, err := f.l.Deposits(ctx, alice.ID, acct.ID, ledger.PageRequest{}, ledger.DateRange{})
	require.NoError(t, err)
	assert.Empty(t, got.Items, "the deposit record is rolled back with the credit")
}

func TestDeleteDeposit_Reverses(t *testing.T) {
	// GIVEN: Two deposits
	f := newTestLedger(t)
	ctx := context.Background()
	alice, acct := f.register(t)
	dep := f.deposit(t, alice, acct.ID, "30")
	f.deposit(t, alice, acct.ID, "20")

	// WHEN: The first is deleted
	require.NoError(t, f.l.DeleteDeposit(ctx, alice.ID, dep.ID))

	// THEN: Its amount leaves the balance and the history
	assert.Equal(t, "20.00", f.balance(t, alice, acct.ID))
	got, err := f.l.Deposits(ctx, alice.ID, acct.ID, ledger.PageRequest{}, ledger.DateRange{})
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.NotEqual(t, dep.ID, got.Items[0].ID)
}

func TestDeleteDeposit_AlreadySpent(t *testing.T) {
	f := newTestLedger(t)
	ctx := context.Background()
	alice, acct := f.register(t)
	_, bobAcct := f.register(t)
	dep := f.deposit(t, alice, acct.ID, "30")
	_, err := f.l.CreateTransfer(ctx, alice.ID, transfer(acct.ID, bobAcct.ID, "25"))
	require.NoError(t, err)

	err = f.l.DeleteDeposit(ctx, alice.ID, dep.ID)

	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	assert.Equal(t, "5.00", f.balance(t, alice, acct.ID))
}

func TestDeleteDeposit_NotFoundAndNotOwner(t *testing.T) {
	f := newTestLedger(t)
	ctx := context.Background()
	alice, acct := f.register(t)
	mallory, _ := f.register(t)
	dep := f.deposit(t, alice, acct.ID, "30")

	assert.True(t, ledger.IsNotFound(f.l.DeleteDeposit(ctx, alice.ID, "missing")))
	assert.True(t, ledger.IsUnauthorized(f.l.DeleteDeposit(ctx, mallory.ID, dep.ID)))
	assert.Equal(t, "30.00", f.balance(t, alice, acct.ID))
}
