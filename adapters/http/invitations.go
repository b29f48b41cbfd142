package authhttp

import (
	"net/http"
	"strings"

	"github.com/PaulFidika/verifykit/core"
)

func (s *Service) handleInvitationCreatePOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLInvitationCreate) {
		tooMany(w)
		return
	}
	cl, ok := s.account(w, r)
	if !ok {
		return
	}
	var req struct {
		Email  string `json:"email"`
		Role   string `json:"role"`
		TeamID string `json:"team_id"`
	}
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Email) == "" {
		badRequest(w, "invalid_request")
		return
	}
	// Invitations are always for the caller's own company.
	inv, token, err := s.svc.Invite(r.Context(), core.InviteParams{
		CompanyID: cl.CompanyID,
		Email:     req.Email,
		Role:      req.Role,
		TeamID:    req.TeamID,
		InvitedBy: cl.AccountID,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"invitation_id": inv.ID,
		"token":         token,
		"expires_at":    inv.ExpiresAt,
	})
}

func (s *Service) handleInvitationAcceptPOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLInvitationAccept) {
		tooMany(w)
		return
	}
	var req struct {
		Token     string `json:"token"`
		Password  string `json:"password"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Token) == "" {
		badRequest(w, "invalid_request")
		return
	}
	id, err := s.svc.Accept(r.Context(), core.AcceptParams{
		Token:     req.Token,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"account_id": id})
}

func (s *Service) handleInvitationsGET(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLInvitationList) {
		tooMany(w)
		return
	}
	cl, ok := s.account(w, r)
	if !ok {
		return
	}
	status := core.InvitationStatus(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))))
	switch status {
	case "", core.InvitationPending, core.InvitationAccepted, core.InvitationExpired, core.InvitationRevoked:
	default:
		badRequest(w, "invalid_status")
		return
	}
	list, err := s.svc.ListInvitations(r.Context(), cl.AccountID, status)
	if err != nil {
		writeErr(w, err)
		return
	}
	if list == nil {
		list = []core.Invitation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"invitations": list})
}

func (s *Service) handleInvitationRevokePOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLInvitationRevoke) {
		tooMany(w)
		return
	}
	cl, ok := s.account(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		badRequest(w, "invalid_request")
		return
	}
	if err := s.svc.Revoke(r.Context(), cl.AccountID, id); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"revoked": true})
}
