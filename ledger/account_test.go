package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/backoffice/ledger"
)

const currentAccountType ledger.AccountTypeID = "b7c8d9e0-1f2a-4b3c-9d4e-5f6a7b8c9d0e"

func TestOpenAccount(t *testing.T) {
	f := newTestLedger(t)
	ctx := context.Background()
	alice, _ := f.register(t)

	acct, err := f.l.OpenAccount(ctx, alice.ID, currentAccountType)
	require.NoError(t, err)
	assert.Equal(t, currentAccountType, acct.AccountTypeID)
	assert.True(t, acct.Active)
	assert.True(t, acct.Balance.IsZero())

	// empty type falls back to the default
	acct, err = f.l.OpenAccount(ctx, alice.ID, "")
	require.NoError(t, err)
	assert.Equal(t, ledger.DefaultAccountTypeID, acct.AccountTypeID)

	_, err = f.l.OpenAccount(ctx, alice.ID, "missing")
	assert.True(t, ledger.IsNotFound(err))
	_, err = f.l.OpenAccount(ctx, "nobody", "")
	assert.True(t, ledger.IsNotFound(err))
}

func TestAccounts_NewestFirstPaginated(t *testing.T) {
	// GIVEN: A customer with the signup account plus four more
	f := newTestLedger(t)
	ctx := context.Background()
	alice, first := f.register(t)
	var last ledger.Account
	for i := 0; i < 4; i++ {
		var err error
		last, err = f.l.OpenAccount(ctx, alice.ID, "")
		require.NoError(t, err)
	}

	// WHEN: Listing two per page
	page, err := f.l.Accounts(ctx, alice.ID, ledger.PageRequest{CurrentPage: 1, Range: 2})
	require.NoError(t, err)

	// THEN: The newest account leads and the signup account is on the last page
	assert.Equal(t, 5, page.Size)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, last.ID, page.Items[0].ID)

	page, err = f.l.Accounts(ctx, alice.ID, ledger.PageRequest{CurrentPage: 3, Range: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, first.ID, page.Items[0].ID)
}

func TestAccount_OwnershipAndExists(t *testing.T) {
	f := newTestLedger(t)
	ctx := context.Background()
	alice, acct := f.register(t)
	mallory, _ := f.register(t)

	got, err := f.l.Account(ctx, alice.ID, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, acct.ID, got.ID)

	_, err = f.l.Account(ctx, mallory.ID, acct.ID)
	assert.True(t, ledger.IsUnauthorized(err))
	_, err = f.l.Balance(ctx, mallory.ID, acct.ID)
	assert.True(t, ledger.IsUnauthorized(err))

	exists, err := f.l.Exists(ctx, acct.ID)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = f.l.Exists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSetAccountState(t *testing.T) {
	// GIVEN: A funded account
	f := newTestLedger(t)
	ctx := context.Background()
	alice, acct := f.register(t)
	_, bobAcct := f.register(t)
	f.deposit(t, alice, acct.ID, "10")

	// WHEN: Deactivating with money in it
	_, err := f.l.SetAccountState(ctx, alice.ID, acct.ID, false)

	// THEN: Rejected
	assert.ErrorIs(t, err, ledger.ErrNonZeroBalance)

	// WHEN: Emptied then deactivated
	_, err = f.l.CreateTransfer(ctx, alice.ID, transfer(acct.ID, bobAcct.ID, "10"))
	require.NoError(t, err)
	got, err := f.l.SetAccountState(ctx, alice.ID, acct.ID, false)
	require.NoError(t, err)
	assert.False(t, got.Active)

	// THEN: Balance reads fail until it is reactivated
	_, err = f.l.Balance(ctx, alice.ID, acct.ID)
	assert.ErrorIs(t, err, ledger.ErrInactiveAccount)

	got, err = f.l.SetAccountState(ctx, alice.ID, acct.ID, true)
	require.NoError(t, err)
	assert.True(t, got.Active)
	assert.Equal(t, "0.00", f.balance(t, alice, acct.ID))
}

func TestChangeAccountType(t *testing.T) {
	f := newTestLedger(t)
	ctx := context.Background()
	alice, acct := f.register(t)
	mallory, _ := f.register(t)

	got, err := f.l.ChangeAccountType(ctx, alice.ID, acct.ID, currentAccountType)
	require.NoError(t, err)
	assert.Equal(t, currentAccountType, got.AccountTypeID)

	_, err = f.l.ChangeAccountType(ctx, alice.ID, acct.ID, "missing")
	assert.True(t, ledger.IsNotFound(err))
	_, err = f.l.ChangeAccountType(ctx, mallory.ID, acct.ID, ledger.DefaultAccountTypeID)
	assert.True(t, ledger.IsUnauthorized(err))

	reloaded, err := f.l.Account(ctx, alice.ID, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, currentAccountType, reloaded.AccountTypeID)
}

// =============================================================================
// CLOSE ACCOUNT TESTS
// =============================================================================

func TestCloseAccount_NonZeroBalance(t *testing.T) {
	f := newTestLedger(t)
	alice, acct := f.register(t)
	f.deposit(t, alice, acct.ID, "1")

	_, err := f.l.CloseAccount(context.Background(), alice.ID, acct.ID)

	assert.ErrorIs(t, err, ledger.ErrNonZeroBalance)
	assert.True(t, ledger.IsConflict(err))
}

func TestCloseAccount_CascadesRecords(t *testing.T) {
	// GIVEN: Money went from savings to a second account and back
	f := newTestLedger(t)
	ctx := context.Background()
	alice, savings := f.register(t)
	spare, err := f.l.OpenAccount(ctx, alice.ID, currentAccountType)
	require.NoError(t, err)
	f.deposit(t, alice, savings.ID, "50")
	_, err = f.l.CreateTransfer(ctx, alice.ID, transfer(savings.ID, spare.ID, "50"))
	require.NoError(t, err)
	_, err = f.l.CreateTransfer(ctx, alice.ID, transfer(spare.ID, savings.ID, "50"))
	require.NoError(t, err)

	// WHEN: The empty second account is closed
	deleted, err := f.l.CloseAccount(ctx, alice.ID, spare.ID)
	require.NoError(t, err)

	// THEN: The customer survives, the account and its transfers are gone
	assert.False(t, deleted)
	exists, err := f.l.Exists(ctx, spare.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	history, err := f.l.Transactions(ctx, alice.ID, savings.ID, ledger.PageRequest{}, ledger.DateRange{})
	require.NoError(t, err)
	require.Len(t, history.Items, 1)
	assert.Equal(t, ledger.KindDeposit, history.Items[0].Kind())

	// AND: The remaining balance is untouched
	assert.Equal(t, "50.00", f.balance(t, alice, savings.ID))
	assert.Contains(t, f.pub.types(), ledger.EventAccountClosed)
}

func TestCloseAccount_LastAccountDeletesCustomer(t *testing.T) {
	f := newTestLedger(t)
	ctx := context.Background()
	alice, acct := f.register(t)

	deleted, err := f.l.CloseAccount(ctx, alice.ID, acct.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = f.l.Customer(ctx, alice.ID)
	assert.True(t, ledger.IsNotFound(err))
	_, err = f.l.CustomerByEmail(ctx, alice.Email)
	assert.True(t, ledger.IsNotFound(err))
}

func TestCloseAccount_NotOwner(t *testing.T) {
	f := newTestLedger(t)
	ctx := context.Background()
	_, acct := f.register(t)
	mallory, _ := f.register(t)

	_, err := f.l.CloseAccount(ctx, mallory.ID, acct.ID)

	assert.True(t, ledger.IsUnauthorized(err))
	exists, err := f.l.Exists(ctx, acct.ID)
	require.NoError(t, err)
	assert.True(t, exists)
}

// =============================================================================
// BALANCE TESTS
// =============================================================================

func TestTotalBalance(t *testing.T) {
	f := newTestLedger(t)
	ctx := context.Background()
	alice, savings := f.register(t)
	spare, err := f.l.OpenAccount(ctx, alice.ID, "")
	require.NoError(t, err)
	f.deposit(t, alice, savings.ID, "10.10")
	f.deposit(t, alice, spare.ID, "0.90")

	total, err := f.l.TotalBalance(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "11.00", total.String())

	_, err = f.l.TotalBalance(ctx, "nobody")
	assert.True(t, ledger.IsNotFound(err))
}

func TestCreditDebit(t *testing.T) {
	f := newTestLedger(t)
	ctx := context.Background()
	alice, acct := f.register(t)

	_, err := f.l.Credit(ctx, acct.ID, ledger.NewAmount(15))
	require.NoError(t, err)
	got, err := f.l.Debit(ctx, acct.ID, ledger.NewAmount(5))
	require.NoError(t, err)
	assert.Equal(t, "10.00", got.Balance.String())

	_, err = f.l.Debit(ctx, acct.ID, ledger.NewAmount(11))
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	assert.Equal(t, "10.00", f.balance(t, alice, acct.ID))
}
