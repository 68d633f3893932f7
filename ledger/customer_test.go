package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/backoffice/ledger"
	"github.com/warp/backoffice/ledger/store"
)

func newCustomer(email, document string) ledger.NewCustomer {
	return ledger.NewCustomer{
		Document:     document,
		FullName:     "  Ana Gómez ",
		Email:        email,
		Phone:        "3001234567",
		PasswordHash: "hash",
	}
}

func TestRegister_CreatesCustomerAndDefaultAccount(t *testing.T) {
	f := newTestLedger(t)
	ctx := context.Background()

	c, acct, err := f.l.Register(ctx, newCustomer(" Ana@Example.COM ", "52000001"))
	require.NoError(t, err)

	assert.Equal(t, "ana@example.com", c.Email)
	assert.Equal(t, "Ana Gómez", c.FullName)
	assert.Equal(t, ledger.DefaultDocumentTypeID, c.DocumentTypeID)
	assert.True(t, c.Active)
	assert.Equal(t, c.ID, acct.CustomerID)
	assert.Equal(t, ledger.DefaultAccountTypeID, acct.AccountTypeID)
	assert.True(t, acct.Balance.IsZero())

	byEmail, err := f.l.CustomerByEmail(ctx, "ANA@example.com")
	require.NoError(t, err)
	assert.Equal(t, c.ID, byEmail.ID)
}

func TestRegister_Duplicates(t *testing.T) {
	f := newTestLedger(t)
	ctx := context.Background()
	_, _, err := f.l.Register(ctx, newCustomer("ana@example.com", "52000001"))
	require.NoError(t, err)

	_, _, err = f.l.Register(ctx, newCustomer("ANA@example.com", "52000002"))
	assert.ErrorIs(t, err, ledger.ErrDuplicate)

	_, _, err = f.l.Register(ctx, newCustomer("other@example.com", "52000001"))
	assert.ErrorIs(t, err, ledger.ErrDuplicate)
	assert.True(t, ledger.IsConflict(err))
}

func TestRegister_UnknownDocumentType(t *testing.T) {
	f := newTestLedger(t)
	nc := newCustomer("ana@example.com", "52000001")
	nc.DocumentTypeID = "missing"

	_, _, err := f.l.Register(context.Background(), nc)

	assert.True(t, ledger.IsNotFound(err))
}

func TestRegister_AccountFailureLeavesNothing(t *testing.T) {
	// GIVEN: A ledger configured with an account type that does not exist
	l := ledger.New(store.NewMemory(), ledger.Options{DefaultAccountType: "missing"})
	ctx := context.Background()

	// WHEN: A customer signs up
	_, _, err := l.Register(ctx, newCustomer("ana@example.com", "52000001"))

	// THEN: The failure is internal and the customer was not kept
	assert.ErrorIs(t, err, ledger.ErrInternal)
	assert.False(t, ledger.IsClientError(err))
	_, err = l.CustomerByEmail(ctx, "ana@example.com")
	assert.True(t, ledger.IsNotFound(err))
}

func TestUpdateCustomer(t *testing.T) {
	f := newTestLedger(t)
	ctx := context.Background()
	c, _, err := f.l.Register(ctx, newCustomer("ana@example.com", "52000001"))
	require.NoError(t, err)
	other, _, err := f.l.Register(ctx, newCustomer("luis@example.com", "52000002"))
	require.NoError(t, err)

	name, phone := "Ana María Gómez", "3109876543"
	got, err := f.l.UpdateCustomer(ctx, c.ID, ledger.CustomerUpdate{FullName: &name, Phone: &phone})
	require.NoError(t, err)
	assert.Equal(t, name, got.FullName)
	assert.Equal(t, phone, got.Phone)
	assert.Equal(t, "ana@example.com", got.Email, "nil fields are kept")

	taken := "luis@example.com"
	_, err = f.l.UpdateCustomer(ctx, c.ID, ledger.CustomerUpdate{Email: &taken})
	assert.ErrorIs(t, err, ledger.ErrDuplicate)

	reloaded, err := f.l.Customer(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, "luis@example.com", reloaded.Email)

	_, err = f.l.UpdateCustomer(ctx, "nobody", ledger.CustomerUpdate{FullName: &name})
	assert.True(t, ledger.IsNotFound(err))
}
