package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/warp/backoffice/ledger"
	"github.com/warp/backoffice/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testStart = time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []ledger.Event
	fail   bool
}

func (r *recorder) Publish(_ context.Context, ev ledger.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	if r.fail {
		return errors.New("broker down")
	}
	return nil
}

func (r *recorder) types() []ledger.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ledger.EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	l     *ledger.Ledger
	clock *ledger.ManualClock
	pub   *recorder
}

// newTestLedger returns a ledger over a fresh memory store. Every clock read
// advances one second so records never share a timestamp unless a test
// stops the clock.
func newTestLedger(t *testing.T) fixture {
	t.Helper()
	clock := ledger.NewManualClock(testStart)
	clock.Step = time.Second
	pub := &recorder{}
	l := ledger.New(store.NewMemory(), ledger.Options{Clock: clock, Publisher: pub})
	return fixture{l: l, clock: clock, pub: pub}
}

var customerSeq atomic.Int64

func (f fixture) register(t *testing.T) (ledger.Customer, ledger.Account) {
	t.Helper()
	n := customerSeq.Add(1)
	c, acct, err := f.l.Register(context.Background(), ledger.NewCustomer{
		Document:     fmt.Sprintf("100%04d", n),
		FullName:     fmt.Sprintf("Customer %d", n),
		Email:        fmt.Sprintf("customer%d@example.com", n),
		PasswordHash: "hash",
	})
	require.NoError(t, err)
	return c, acct
}

func (f fixture) deposit(t *testing.T, c ledger.Customer, acct ledger.AccountID, amount string) ledger.Deposit {
	t.Helper()
	dep, err := f.l.CreateDeposit(context.Background(), c.ID, acct, ledger.MustParseAmount(amount))
	require.NoError(t, err)
	return dep
}

func (f fixture) balance(t *testing.T, c ledger.Customer, acct ledger.AccountID) string {
	t.Helper()
	bal, err := f.l.Balance(context.Background(), c.ID, acct)
	require.NoError(t, err)
	return bal.String()
}
