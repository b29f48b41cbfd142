package authhttp

import (
	"net/http"
	"strings"

	"github.com/PaulFidika/verifykit/core"
)

type codeRequest struct {
	Target      string `json:"target"`
	Purpose     string `json:"purpose"`
	AccountKind string `json:"account_kind"`
}

// handleSendCodePOST sends a code through the flow that owns the purpose. Password reset
// is anonymous and always accepted; email purposes act on the caller's own pending address.
func (s *Service) handleSendCodePOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLVerificationSendCode) {
		tooMany(w)
		return
	}
	var req codeRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Target) == "" {
		badRequest(w, "invalid_request")
		return
	}
	purpose, ok := parsePurpose(w, req.Purpose)
	if !ok {
		return
	}
	if _, err := core.NormalizeEmail(req.Target); err != nil {
		writeErr(w, err)
		return
	}
	if purpose == core.PurposePasswordReset {
		s.acceptReset(w, r, req.AccountKind, req.Target)
		return
	}
	cl, ok := s.account(w, r)
	if !ok {
		return
	}
	h, err := s.svc.SendCode(r.Context(), cl.AccountID, req.Target, purpose)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"accepted":            true,
		"challenge_id":        h.ID,
		"expires_at":          h.ExpiresAt,
		"resend_available_at": h.ResendAvailableAt,
	})
}

// handleVerifyCodePOST commits the transition the code proves: the caller's pending
// address becomes primary, or a password reset is authorized.
func (s *Service) handleVerifyCodePOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLVerificationVerifyCode) {
		tooMany(w)
		return
	}
	var req struct {
		codeRequest
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Target) == "" || strings.TrimSpace(req.Code) == "" {
		badRequest(w, "invalid_request")
		return
	}
	purpose, ok := parsePurpose(w, req.Purpose)
	if !ok {
		return
	}
	if purpose == core.PurposePasswordReset {
		kind, err := core.ParseAccountKind(req.AccountKind)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		if _, err := s.svc.VerifyReset(r.Context(), kind, req.Target, req.Code); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"verified": true, "reset_authorized": true})
		return
	}
	cl, ok := s.account(w, r)
	if !ok {
		return
	}
	if err := s.svc.ConfirmCode(r.Context(), cl.AccountID, req.Target, purpose, req.Code); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"verified": true})
}

// handleStatusGET only answers for addresses bound to the caller.
func (s *Service) handleStatusGET(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLVerificationStatus) {
		tooMany(w)
		return
	}
	cl, ok := s.account(w, r)
	if !ok {
		return
	}
	target := strings.TrimSpace(r.URL.Query().Get("target"))
	if target == "" {
		badRequest(w, "invalid_request")
		return
	}
	purpose, ok := parsePurpose(w, r.URL.Query().Get("purpose"))
	if !ok {
		return
	}
	address, err := core.NormalizeEmail(target)
	if err != nil {
		writeErr(w, err)
		return
	}
	recs, err := s.svc.ListEmails(r.Context(), cl.AccountID)
	if err != nil {
		writeErr(w, err)
		return
	}
	owned := false
	for _, rec := range recs {
		if rec.Address == address {
			owned = true
			break
		}
	}
	if !owned {
		writeErr(w, core.ErrNotFound)
		return
	}
	st, err := s.svc.Status(r.Context(), address, purpose)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
