package ledger

import (
	"context"
	"sort"
	"sync"
)

// accountLocks serializes balance mutations per account.
// Entries are reference counted and dropped when nobody holds or waits on them.
type accountLocks struct {
	mu    sync.Mutex
	locks map[AccountID]*accountLock
}

type accountLock struct {
	mu   sync.Mutex
	refs int
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[AccountID]*accountLock)}
}

// lock acquires every distinct id in sorted order and returns the release func.
func (l *accountLocks) lock(ids ...AccountID) func() {
	uniq := sortedIDs(ids)

	held := make([]*accountLock, 0, len(uniq))
	for _, id := range uniq {
		l.mu.Lock()
		al, ok := l.locks[id]
		if !ok {
			al = &accountLock{}
			l.locks[id] = al
		}
		al.refs++
		l.mu.Unlock()

		al.mu.Lock()
		held = append(held, al)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			l.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(l.locks, uniq[i])
			}
			l.mu.Unlock()
		}
	}
}

// sortedIDs returns the distinct ids in ascending order. Every lock on
// accounts, in process or in the database, is taken in this order.
func sortedIDs(ids []AccountID) []AccountID {
	uniq := make([]AccountID, 0, len(ids))
	seen := make(map[AccountID]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			uniq = append(uniq, id)
		}
	}
	sort.Slice(uniq, func(i, j int) bool { return uniq[i] < uniq[j] })
	return uniq
}

// lockRows reads the accounts in sortedIDs order before anything else in a
// transaction. Stores whose account reads take row locks (PostgreSQL
// SELECT ... FOR UPDATE) then lock them in the same order on every instance.
func lockRows(ctx context.Context, s Store, ids ...AccountID) error {
	for _, id := range sortedIDs(ids) {
		if _, err := s.GetAccount(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
