package authhttp

import (
	"net/http"
	"strings"
)

func (s *Service) handleSecondFactorEnrollPOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLSecondFactorEnroll) {
		tooMany(w)
		return
	}
	cl, ok := s.account(w, r)
	if !ok {
		return
	}
	en, err := s.svc.EnrollSecondFactor(r.Context(), cl.AccountID, s.opts.SecondFactorIssuer)
	if err != nil {
		writeErr(w, err)
		return
	}
	// The secret is shown once; it cannot be read back later.
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, en)
}

func (s *Service) handleSecondFactorActivatePOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLSecondFactorActivate) {
		tooMany(w)
		return
	}
	cl, ok := s.account(w, r)
	if !ok {
		return
	}
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Code) == "" {
		badRequest(w, "invalid_request")
		return
	}
	if err := s.svc.ActivateSecondFactor(r.Context(), cl.AccountID, req.Code); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"enabled": true})
}

func (s *Service) handleSecondFactorDisablePOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLSecondFactorDisable) {
		tooMany(w)
		return
	}
	cl, ok := s.account(w, r)
	if !ok {
		return
	}
	var req struct {
		CurrentPassword string `json:"current_password"`
		Code            string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil || req.CurrentPassword == "" {
		badRequest(w, "invalid_request")
		return
	}
	if err := s.svc.DisableSecondFactor(r.Context(), cl.AccountID, req.CurrentPassword, req.Code); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
}
