package memorystore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/PaulFidika/verifykit/core"
)

type state struct {
	accounts    map[string]core.Account
	emails      map[string]core.EmailRecord
	challenges  map[string]core.OTPChallenge
	invitations map[string]core.Invitation
	teams       map[string]map[string]struct{}
	changeLog   []core.EmailChangeLog
}

func newState() *state {
	return &state{
		accounts:    make(map[string]core.Account),
		emails:      make(map[string]core.EmailRecord),
		challenges:  make(map[string]core.OTPChallenge),
		invitations: make(map[string]core.Invitation),
		teams:       make(map[string]map[string]struct{}),
	}
}

func (s *state) clone() *state {
	c := &state{
		accounts:    make(map[string]core.Account, len(s.accounts)),
		emails:      make(map[string]core.EmailRecord, len(s.emails)),
		challenges:  make(map[string]core.OTPChallenge, len(s.challenges)),
		invitations: make(map[string]core.Invitation, len(s.invitations)),
		teams:       make(map[string]map[string]struct{}, len(s.teams)),
		changeLog:   append([]core.EmailChangeLog(nil), s.changeLog...),
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.emails {
		c.emails[k] = v
	}
	for k, v := range s.challenges {
		c.challenges[k] = v
	}
	for k, v := range s.invitations {
		c.invitations[k] = v
	}
	for k, members := range s.teams {
		m := make(map[string]struct{}, len(members))
		for id := range members {
			m[id] = struct{}{}
		}
		c.teams[k] = m
	}
	return c
}

// Store is an in-memory core.Store. Units run one at a time against a copy of the
// state that replaces the live state on commit. It is only safe for single-process
// deployments and tests.
type Store struct {
	mu  sync.Mutex
	cur *state
}

func NewStore() *Store {
	return &Store{cur: newState()}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx core.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	work := &tx{st: s.cur.clone()}
	if err := fn(ctx, work); err != nil {
		return err
	}
	s.cur = work.st
	return nil
}

// TeamMembers returns the account ids linked to teamID.
func (s *Store) TeamMembers(teamID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.cur.teams[teamID]))
	for id := range s.cur.teams[teamID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Challenges returns every challenge ever issued for (target, purpose), oldest first.
func (s *Store) Challenges(target string, purpose core.Purpose) []core.OTPChallenge {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.OTPChallenge
	for _, c := range s.cur.challenges {
		if c.Target == target && c.Purpose == purpose {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.Before(out[j].IssuedAt) })
	return out
}

// AccountCount reports how many accounts exist.
func (s *Store) AccountCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cur.accounts)
}

type tx struct {
	st *state
}

// Locks are no-ops: the store mutex already serializes units.
func (t *tx) LockAddress(context.Context, string) error                     { return nil }
func (t *tx) LockChallengePair(context.Context, string, core.Purpose) error { return nil }

func (t *tx) GetAccount(_ context.Context, id string) (*core.Account, error) {
	a, ok := t.st.accounts[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &a, nil
}

func (t *tx) InsertAccount(_ context.Context, a *core.Account) error {
	if _, ok := t.st.accounts[a.ID]; ok {
		return core.ErrConflict
	}
	t.st.accounts[a.ID] = *a
	return nil
}

func (t *tx) UpdateAccount(_ context.Context, a *core.Account) error {
	if _, ok := t.st.accounts[a.ID]; !ok {
		return core.ErrNotFound
	}
	t.st.accounts[a.ID] = *a
	return nil
}

func (t *tx) AddTeamMember(_ context.Context, teamID, accountID string) error {
	m, ok := t.st.teams[teamID]
	if !ok {
		m = make(map[string]struct{})
		t.st.teams[teamID] = m
	}
	m[accountID] = struct{}{}
	return nil
}

func sortEmails(out []core.EmailRecord) []core.EmailRecord {
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (t *tx) EmailsByAccount(_ context.Context, accountID string) ([]core.EmailRecord, error) {
	var out []core.EmailRecord
	for _, e := range t.st.emails {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	return sortEmails(out), nil
}

func (t *tx) EmailsByAddress(_ context.Context, address string) ([]core.EmailRecord, error) {
	var out []core.EmailRecord
	for _, e := range t.st.emails {
		if e.Address == address {
			out = append(out, e)
		}
	}
	return sortEmails(out), nil
}

func (t *tx) InsertEmail(_ context.Context, e *core.EmailRecord) error {
	if _, ok := t.st.emails[e.ID]; ok {
		return core.ErrConflict
	}
	if err := t.checkPrimary(*e); err != nil {
		return err
	}
	t.st.emails[e.ID] = *e
	return nil
}

func (t *tx) UpdateEmail(_ context.Context, e *core.EmailRecord) error {
	if _, ok := t.st.emails[e.ID]; !ok {
		return core.ErrNotFound
	}
	if err := t.checkPrimary(*e); err != nil {
		return err
	}
	t.st.emails[e.ID] = *e
	return nil
}

// checkPrimary mirrors the unique indexes: one primary per account and per address.
func (t *tx) checkPrimary(e core.EmailRecord) error {
	if e.Status != core.EmailVerifiedPrimary {
		return nil
	}
	for id, other := range t.st.emails {
		if id == e.ID || other.Status != core.EmailVerifiedPrimary {
			continue
		}
		if other.AccountID == e.AccountID || other.Address == e.Address {
			return core.ErrConflict
		}
	}
	return nil
}

func (t *tx) LatestChallenge(_ context.Context, target string, purpose core.Purpose) (*core.OTPChallenge, error) {
	var latest *core.OTPChallenge
	for _, c := range t.st.challenges {
		if c.Target != target || c.Purpose != purpose {
			continue
		}
		if latest == nil || c.IssuedAt.After(latest.IssuedAt) {
			c := c
			latest = &c
		}
	}
	return latest, nil
}

func (t *tx) InsertChallenge(_ context.Context, c *core.OTPChallenge) error {
	for _, other := range t.st.challenges {
		if other.Target == c.Target && other.Purpose == c.Purpose && other.Open() {
			return core.ErrConflict
		}
	}
	t.st.challenges[c.ID] = *c
	return nil
}

func (t *tx) UpdateChallenge(_ context.Context, c *core.OTPChallenge) error {
	if _, ok := t.st.challenges[c.ID]; !ok {
		return core.ErrNotFound
	}
	t.st.challenges[c.ID] = *c
	return nil
}

func (t *tx) InsertInvitation(_ context.Context, inv *core.Invitation) error {
	for _, other := range t.st.invitations {
		if other.TokenHash == inv.TokenHash {
			return core.ErrConflict
		}
	}
	t.st.invitations[inv.ID] = *inv
	return nil
}

func (t *tx) GetInvitation(_ context.Context, id string) (*core.Invitation, error) {
	inv, ok := t.st.invitations[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &inv, nil
}

func (t *tx) InvitationByTokenHash(_ context.Context, tokenHash string) (*core.Invitation, error) {
	for _, inv := range t.st.invitations {
		if inv.TokenHash == tokenHash {
			inv := inv
			return &inv, nil
		}
	}
	return nil, core.ErrNotFound
}

func (t *tx) UpdateInvitation(_ context.Context, inv *core.Invitation) error {
	if _, ok := t.st.invitations[inv.ID]; !ok {
		return core.ErrNotFound
	}
	t.st.invitations[inv.ID] = *inv
	return nil
}

func sortInvitations(out []core.Invitation) []core.Invitation {
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (t *tx) PendingInvitations(_ context.Context, companyID, email string) ([]core.Invitation, error) {
	var out []core.Invitation
	for _, inv := range t.st.invitations {
		if inv.CompanyID == companyID && inv.Email == email && inv.Status == core.InvitationPending {
			out = append(out, inv)
		}
	}
	return sortInvitations(out), nil
}

func (t *tx) ListInvitations(_ context.Context, companyID string, status core.InvitationStatus) ([]core.Invitation, error) {
	var out []core.Invitation
	for _, inv := range t.st.invitations {
		if inv.CompanyID != companyID {
			continue
		}
		if status != "" && inv.Status != status {
			continue
		}
		out = append(out, inv)
	}
	return sortInvitations(out), nil
}

func (t *tx) ExpirePendingInvitations(_ context.Context, now time.Time, limit int) (int, error) {
	var due []core.Invitation
	for _, inv := range t.st.invitations {
		if inv.Status == core.InvitationPending && !now.Before(inv.ExpiresAt) {
			due = append(due, inv)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ExpiresAt.Before(due[j].ExpiresAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	for _, inv := range due {
		inv.Status = core.InvitationExpired
		inv.UpdatedAt = now
		t.st.invitations[inv.ID] = inv
	}
	return len(due), nil
}

func (t *tx) AppendChangeLog(_ context.Context, entry *core.EmailChangeLog) error {
	t.st.changeLog = append(t.st.changeLog, *entry)
	return nil
}

func (t *tx) ChangeLogByAccount(_ context.Context, accountID string) ([]core.EmailChangeLog, error) {
	var out []core.EmailChangeLog
	for _, e := range t.st.changeLog {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	return out, nil
}
