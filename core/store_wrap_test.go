package core_test

import (
	"context"
	"strings"
	"sync"

	"github.com/PaulFidika/verifykit/core"
	memorystore "github.com/PaulFidika/verifykit/storage/memory"
)

// spyStore records the locks each unit takes. It can also fail account writes, or
// roll a unit back after fn succeeded as a failed commit would.
type spyStore struct {
	inner *memorystore.Store

	mu                sync.Mutex
	units             [][]string
	failAccountUpdate error
	failCommit        error
}

func (s *spyStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx core.Tx) error) error {
	return s.inner.WithinTx(ctx, func(ctx context.Context, tx core.Tx) error {
		st := &spyTx{Tx: tx, store: s}
		err := fn(ctx, st)
		s.mu.Lock()
		defer s.mu.Unlock()
		s.units = append(s.units, st.locks)
		if err == nil && s.failCommit != nil {
			return s.failCommit
		}
		return err
	})
}

func (s *spyStore) lastUnit() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.units) == 0 {
		return nil
	}
	return s.units[len(s.units)-1]
}

func (s *spyStore) setFailAccountUpdate(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAccountUpdate = err
}

func (s *spyStore) setFailCommit(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCommit = err
}

type spyTx struct {
	core.Tx
	store *spyStore
	locks []string
}

func (t *spyTx) LockAddress(ctx context.Context, address string) error {
	t.locks = append(t.locks, "address:"+address)
	return t.Tx.LockAddress(ctx, address)
}

func (t *spyTx) LockChallengePair(ctx context.Context, target string, purpose core.Purpose) error {
	t.locks = append(t.locks, "otp:"+string(purpose)+":"+target)
	return t.Tx.LockChallengePair(ctx, target, purpose)
}

func (t *spyTx) UpdateAccount(ctx context.Context, a *core.Account) error {
	t.store.mu.Lock()
	err := t.store.failAccountUpdate
	t.store.mu.Unlock()
	if err != nil {
		return err
	}
	return t.Tx.UpdateAccount(ctx, a)
}

// lockOrderConsistent reports whether no challenge-pair lock precedes an address lock.
func lockOrderConsistent(locks []string) bool {
	seenPair := false
	for _, l := range locks {
		switch {
		case strings.HasPrefix(l, "otp:"):
			seenPair = true
		case seenPair:
			return false
		}
	}
	return true
}
