package authhttp

import (
	"net/http"
	"strings"

	"github.com/PaulFidika/verifykit/core"
)

type resetRequest struct {
	Email       string `json:"email"`
	AccountKind string `json:"account_kind"`
}

var resetAccepted = map[string]any{"accepted": true, "message": "If this email is registered, a reset code will be sent."}

func (s *Service) handleRequestPasswordResetPOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLPasswordResetRequest) {
		tooMany(w)
		return
	}
	// Malformed input gets the same answer as an unknown account.
	var req resetRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Email) == "" {
		writeJSON(w, http.StatusAccepted, resetAccepted)
		return
	}
	s.acceptReset(w, r, req.AccountKind, req.Email)
}

// acceptReset answers 202 whether or not a code was sent.
func (s *Service) acceptReset(w http.ResponseWriter, r *http.Request, kind, email string) {
	if !s.svc.HasNotifier() {
		serverErr(w, "password_reset_unavailable")
		return
	}
	if err := s.svc.RequestReset(r.Context(), core.AccountKind(kind), email); err != nil {
		s.log.ErrorContext(r.Context(), "verifykit: password reset request failed", "err", err)
	}
	writeJSON(w, http.StatusAccepted, resetAccepted)
}

func (s *Service) handleVerifyResetCodePOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLPasswordResetVerify) {
		tooMany(w)
		return
	}
	var req struct {
		resetRequest
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Code) == "" {
		badRequest(w, "invalid_request")
		return
	}
	kind, err := core.ParseAccountKind(req.AccountKind)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if _, err := s.svc.VerifyReset(r.Context(), kind, req.Email, req.Code); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reset_authorized": true})
}

func (s *Service) handleCompleteResetPOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLPasswordResetComplete) {
		tooMany(w)
		return
	}
	var req struct {
		resetRequest
		Code             string `json:"code"`
		NewPassword      string `json:"new_password"`
		SecondFactorCode string `json:"second_factor_code"`
	}
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Code) == "" || req.NewPassword == "" {
		badRequest(w, "invalid_request")
		return
	}
	kind, err := core.ParseAccountKind(req.AccountKind)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := s.svc.CompletePasswordReset(r.Context(), kind, req.Email, req.Code, req.NewPassword, req.SecondFactorCode); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"done": true})
}
