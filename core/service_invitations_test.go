package core_test

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/PaulFidika/verifykit/core"
	"github.com/stretchr/testify/require"
)

func inviteTokenFromLink(t *testing.T, h *harness, email string) string {
	t.Helper()
	d, ok := h.outbox.Latest(email)
	require.True(t, ok)
	require.Equal(t, core.MessageInvitation, d.Msg.Kind)
	u, err := url.Parse(d.Msg.Link)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(d.Msg.Link, "https://app.example.com/invitations/accept?token="))
	return u.Query().Get("token")
}

func TestInviteAndAccept(t *testing.T) {
	h := newHarness(t)
	company := h.verified(t, core.KindCompany, "", "owner@co.com")

	inv, token, err := h.svc.Invite(h.ctx, core.InviteParams{
		CompanyID: company.CompanyID, Email: "Bob@Co.com", Role: "MANAGER", TeamID: "team-1", InvitedBy: company.ID,
	})
	require.NoError(t, err)
	require.Equal(t, core.InvitationPending, inv.Status)
	require.Equal(t, core.KindManager, inv.Role)
	require.Equal(t, "bob@co.com", inv.Email)
	require.Equal(t, t0.Add(7*24*time.Hour), inv.ExpiresAt)
	require.NotEqual(t, token, inv.TokenHash)
	require.Equal(t, token, inviteTokenFromLink(t, h, "bob@co.com"))

	before := h.store.AccountCount()
	accountID, err := h.svc.Accept(h.ctx, core.AcceptParams{Token: token, Password: testPassword, FirstName: "Bob", LastName: "B"})
	require.NoError(t, err)
	require.Equal(t, before+1, h.store.AccountCount())

	acc, err := h.svc.GetAccount(h.ctx, accountID)
	require.NoError(t, err)
	require.Equal(t, core.KindManager, acc.Kind)
	require.Equal(t, company.CompanyID, acc.CompanyID)
	require.Equal(t, []string{accountID}, h.store.TeamMembers("team-1"))
	require.Equal(t, core.EmailVerifiedPrimary, h.emails(t, accountID)["bob@co.com"].Status)

	_, err = h.svc.Accept(h.ctx, core.AcceptParams{Token: token, Password: testPassword})
	require.ErrorIs(t, err, core.ErrInvalidToken)
	require.Equal(t, before+1, h.store.AccountCount())
}

func TestAccept_ExpiredAfterSevenDays(t *testing.T) {
	h := newHarness(t)
	company := h.verified(t, core.KindCompany, "", "owner@co.com")
	_, token, err := h.svc.Invite(h.ctx, core.InviteParams{CompanyID: company.ID, Email: "bob@co.com", Role: "MANAGER", InvitedBy: company.ID})
	require.NoError(t, err)

	h.clock.Advance(8 * 24 * time.Hour)
	before := h.store.AccountCount()
	_, err = h.svc.Accept(h.ctx, core.AcceptParams{Token: token, Password: testPassword})
	require.ErrorIs(t, err, core.ErrExpired)
	require.Equal(t, before, h.store.AccountCount())

	n, err := h.svc.ExpireStaleInvitations(h.ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	_, err = h.svc.Accept(h.ctx, core.AcceptParams{Token: token, Password: testPassword})
	require.ErrorIs(t, err, core.ErrExpired)

	list, err := h.svc.ListInvitations(h.ctx, company.ID, core.InvitationExpired)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestInvite_Authorization(t *testing.T) {
	h := newHarness(t)
	company := h.verified(t, core.KindCompany, "", "owner@co.com")
	employee := h.register(t, core.KindEmployee, company.ID, "emp@co.com")
	outsider := h.register(t, core.KindCompany, "", "other@corp.com")

	_, _, err := h.svc.Invite(h.ctx, core.InviteParams{CompanyID: company.ID, Email: "x@co.com", Role: "employee", InvitedBy: employee.ID})
	require.ErrorIs(t, err, core.ErrForbidden)
	_, _, err = h.svc.Invite(h.ctx, core.InviteParams{CompanyID: company.ID, Email: "x@co.com", Role: "employee", InvitedBy: outsider.ID})
	require.ErrorIs(t, err, core.ErrForbidden)
	_, _, err = h.svc.Invite(h.ctx, core.InviteParams{CompanyID: company.ID, Email: "x@co.com", Role: "company", InvitedBy: company.ID})
	require.ErrorIs(t, err, core.ErrInvalidRole)
	_, _, err = h.svc.Invite(h.ctx, core.InviteParams{CompanyID: company.ID, Email: "owner@co.com", Role: "employee", InvitedBy: company.ID})
	require.ErrorIs(t, err, core.ErrAlreadyExists)
}

func TestInvite_SupersedesPendingForSameAddress(t *testing.T) {
	h := newHarness(t)
	company := h.verified(t, core.KindCompany, "", "owner@co.com")
	first, oldToken, err := h.svc.Invite(h.ctx, core.InviteParams{CompanyID: company.ID, Email: "bob@co.com", Role: "employee", InvitedBy: company.ID})
	require.NoError(t, err)
	_, newToken, err := h.svc.Invite(h.ctx, core.InviteParams{CompanyID: company.ID, Email: "bob@co.com", Role: "client", InvitedBy: company.ID})
	require.NoError(t, err)

	_, err = h.svc.Accept(h.ctx, core.AcceptParams{Token: oldToken, Password: testPassword})
	require.ErrorIs(t, err, core.ErrInvalidToken)

	id, err := h.svc.Accept(h.ctx, core.AcceptParams{Token: newToken, Password: testPassword})
	require.NoError(t, err)
	acc, err := h.svc.GetAccount(h.ctx, id)
	require.NoError(t, err)
	require.Equal(t, core.KindClient, acc.Kind)

	revoked, err := h.svc.ListInvitations(h.ctx, company.ID, core.InvitationRevoked)
	require.NoError(t, err)
	require.Len(t, revoked, 1)
	require.Equal(t, first.ID, revoked[0].ID)
}

func TestRevoke(t *testing.T) {
	h := newHarness(t)
	company := h.verified(t, core.KindCompany, "", "owner@co.com")
	manager := h.register(t, core.KindManager, company.ID, "mgr@co.com")
	inv, token, err := h.svc.Invite(h.ctx, core.InviteParams{CompanyID: company.ID, Email: "bob@co.com", Role: "employee", InvitedBy: manager.ID})
	require.NoError(t, err)

	outsider := h.register(t, core.KindCompany, "", "other@corp.com")
	require.ErrorIs(t, h.svc.Revoke(h.ctx, outsider.ID, inv.ID), core.ErrForbidden)

	require.NoError(t, h.svc.Revoke(h.ctx, company.ID, inv.ID))
	require.ErrorIs(t, h.svc.Revoke(h.ctx, company.ID, inv.ID), core.ErrInvitationNotPending)

	_, err = h.svc.Accept(h.ctx, core.AcceptParams{Token: token, Password: testPassword})
	require.ErrorIs(t, err, core.ErrInvalidToken)

	_, err = h.svc.Accept(h.ctx, core.AcceptParams{Token: "does-not-exist", Password: testPassword})
	require.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestAccept_AddressClaimedMeanwhile(t *testing.T) {
	h := newHarness(t)
	company := h.verified(t, core.KindCompany, "", "owner@co.com")
	_, token, err := h.svc.Invite(h.ctx, core.InviteParams{CompanyID: company.ID, Email: "bob@co.com", Role: "employee", InvitedBy: company.ID})
	require.NoError(t, err)

	h.verified(t, core.KindClient, "", "bob@co.com")
	_, err = h.svc.Accept(h.ctx, core.AcceptParams{Token: token, Password: testPassword})
	require.ErrorIs(t, err, core.ErrAlreadyExists)

	list, err := h.svc.ListInvitations(h.ctx, company.ID, core.InvitationPending)
	require.NoError(t, err)
	require.Len(t, list, 1)
}
