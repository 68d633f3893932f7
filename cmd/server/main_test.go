package main

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/backoffice/buildinfo"
	"github.com/warp/backoffice/config"
	"github.com/warp/backoffice/ledger"
	"github.com/warp/backoffice/ledger/store"
)

func TestNewLedger_UsesConfiguredFloor(t *testing.T) {
	// GIVEN: A configured history floor
	cfg := config.Config{HistoryFloor: "2020-06-01", DefaultAccountType: string(ledger.DefaultAccountTypeID)}

	// WHEN: Building the ledger and reading a history page without bounds
	l, err := newLedger(cfg, store.NewMemory(), nil, slog.Default())
	require.NoError(t, err)
	c, _, err := l.Register(context.Background(), ledger.NewCustomer{
		Document: "1", FullName: "Ana", Email: "ana@example.com", PasswordHash: "hash",
	})
	require.NoError(t, err)
	page, err := l.Transactions(context.Background(), c.ID, "", ledger.PageRequest{}, ledger.DateRange{})
	require.NoError(t, err)

	// THEN: The page starts at the floor
	require.NotNil(t, page.DateInit)
	assert.True(t, page.DateInit.Equal(time.Date(2020, time.June, 1, 0, 0, 0, 0, time.UTC)))
}

func TestNewLedger_BadFloor(t *testing.T) {
	cfg := config.Config{HistoryFloor: "last year"}

	l, err := newLedger(cfg, store.NewMemory(), nil, slog.Default())

	assert.ErrorContains(t, err, "HISTORY_FLOOR")
	assert.Nil(t, l)
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())

	assert.True(t, strings.HasPrefix(out.String(), buildinfo.Version))
}
