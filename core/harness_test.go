package core_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/PaulFidika/verifykit/core"
	"github.com/PaulFidika/verifykit/notify"
	pwhash "github.com/PaulFidika/verifykit/password"
	memorystore "github.com/PaulFidika/verifykit/storage/memory"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	pwhash.DefaultParams = pwhash.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	os.Exit(m.Run())
}

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

const testPassword = "s3cret-passw0rd"

type revoker struct {
	mu  sync.Mutex
	ids []string
}

func (r *revoker) RevokeAllSessions(_ context.Context, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, accountID)
	return nil
}

type harness struct {
	svc      *core.Service
	store    *memorystore.Store
	clock    *core.ManualClock
	outbox   *notify.Outbox
	sessions *revoker
	ctx      context.Context
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, func(s *memorystore.Store) core.Store { return s })
}

// newHarnessWith lets a test put a wrapper between the service and the memory store.
func newHarnessWith(t *testing.T, wrap func(*memorystore.Store) core.Store) *harness {
	t.Helper()
	h := &harness{
		store:    memorystore.NewStore(),
		clock:    core.NewManualClock(t0),
		outbox:   notify.NewOutbox(50),
		sessions: &revoker{},
		ctx:      context.Background(),
	}
	kv := memorystore.NewKV().WithClock(h.clock.Now)
	h.svc = core.NewService(core.Config{BaseURL: "https://app.example.com"}, wrap(h.store)).
		WithClock(h.clock).
		WithNotifier(h.outbox).
		WithSessionRevoker(h.sessions).
		WithEphemeralStore(kv, core.EphemeralMemory)
	return h
}

// code returns the plaintext of the last code sent to address.
func (h *harness) code(t *testing.T, address string) string {
	t.Helper()
	d, ok := h.outbox.Latest(address)
	require.True(t, ok, "no message for %s", address)
	require.NotEmpty(t, d.Msg.Code)
	return d.Msg.Code
}

func (h *harness) register(t *testing.T, kind core.AccountKind, companyID, email string) *core.Account {
	t.Helper()
	acc, err := h.svc.RegisterAccount(h.ctx, core.RegisterParams{
		Kind: kind, CompanyID: companyID, Email: email, Password: testPassword,
		FirstName: "Test", LastName: "User",
	})
	require.NoError(t, err)
	return acc
}

// verified registers an account and verifies email as its primary.
func (h *harness) verified(t *testing.T, kind core.AccountKind, companyID, email string) *core.Account {
	t.Helper()
	acc := h.register(t, kind, companyID, email)
	_, err := h.svc.RequestVerification(h.ctx, acc.ID, email)
	require.NoError(t, err)
	require.NoError(t, h.svc.ConfirmVerification(h.ctx, acc.ID, email, h.code(t, email)))
	return acc
}

func (h *harness) emails(t *testing.T, accountID string) map[string]core.EmailRecord {
	t.Helper()
	recs, err := h.svc.ListEmails(h.ctx, accountID)
	require.NoError(t, err)
	out := make(map[string]core.EmailRecord, len(recs))
	for _, r := range recs {
		out[r.Address] = r
	}
	return out
}

func primaryCount(recs map[string]core.EmailRecord) int {
	n := 0
	for _, r := range recs {
		if r.Status == core.EmailVerifiedPrimary {
			n++
		}
	}
	return n
}

// wrongCode returns a 6-digit code different from code.
func wrongCode(code string) string {
	if code == "000000" {
		return "000001"
	}
	return "000000"
}
