package authhttp

import (
	"net/http"
	"strings"
	"time"

	"github.com/PaulFidika/verifykit/core"
)

type emailView struct {
	ID             string           `json:"id"`
	Address        string           `json:"address"`
	Status         core.EmailStatus `json:"status"`
	VerifiedAt     *time.Time       `json:"verified_at,omitempty"`
	DetachedAt     *time.Time       `json:"detached_at,omitempty"`
	GraceExpiresAt *time.Time       `json:"grace_expires_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

func toEmailViews(recs []core.EmailRecord) []emailView {
	out := make([]emailView, 0, len(recs))
	for _, r := range recs {
		out = append(out, emailView{
			ID:             r.ID,
			Address:        r.Address,
			Status:         r.Status,
			VerifiedAt:     r.VerifiedAt,
			DetachedAt:     r.DetachedAt,
			GraceExpiresAt: r.GraceExpiresAt,
			CreatedAt:      r.CreatedAt,
		})
	}
	return out
}

func (s *Service) handleRequestVerificationPOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLIdentityRequestVerification) {
		tooMany(w)
		return
	}
	cl, ok := s.account(w, r)
	if !ok {
		return
	}
	var req struct {
		Address string `json:"address"`
	}
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Address) == "" {
		badRequest(w, "invalid_request")
		return
	}
	h, err := s.svc.RequestVerification(r.Context(), cl.AccountID, req.Address)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, h)
}

func (s *Service) handleConfirmPOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLIdentityConfirm) {
		tooMany(w)
		return
	}
	cl, ok := s.account(w, r)
	if !ok {
		return
	}
	var req struct {
		Address string `json:"address"`
		Code    string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Address) == "" || strings.TrimSpace(req.Code) == "" {
		badRequest(w, "invalid_request")
		return
	}
	if err := s.svc.ConfirmVerification(r.Context(), cl.AccountID, req.Address, req.Code); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"verified": true})
}

func (s *Service) handleRequestChangePOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLIdentityRequestChange) {
		tooMany(w)
		return
	}
	cl, ok := s.account(w, r)
	if !ok {
		return
	}
	var req struct {
		NewAddress       string `json:"new_address"`
		CurrentPassword  string `json:"current_password"`
		SecondFactorCode string `json:"second_factor_code"`
	}
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.NewAddress) == "" {
		badRequest(w, "invalid_request")
		return
	}
	h, err := s.svc.RequestSecureChange(r.Context(), cl.AccountID, req.NewAddress, req.CurrentPassword, req.SecondFactorCode)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"pending_verification_of": h.Target,
		"expires_at":              h.ExpiresAt,
		"resend_available_at":     h.ResendAvailableAt,
	})
}

func (s *Service) handleEditUnverifiedPOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLIdentityEditUnverified) {
		tooMany(w)
		return
	}
	cl, ok := s.account(w, r)
	if !ok {
		return
	}
	var req struct {
		NewAddress string `json:"new_address"`
	}
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.NewAddress) == "" {
		badRequest(w, "invalid_request")
		return
	}
	if err := s.svc.EditUnverified(r.Context(), cl.AccountID, req.NewAddress); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (s *Service) handleResendChangeCodePOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLIdentityResendChangeCode) {
		tooMany(w)
		return
	}
	cl, ok := s.account(w, r)
	if !ok {
		return
	}
	h, err := s.svc.ResendCode(r.Context(), cl.AccountID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, h)
}

func (s *Service) handleEmailsGET(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLIdentityRead) {
		tooMany(w)
		return
	}
	cl, ok := s.account(w, r)
	if !ok {
		return
	}
	recs, err := s.svc.ListEmails(r.Context(), cl.AccountID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"emails": toEmailViews(recs)})
}

func (s *Service) handleChangeLogGET(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLIdentityRead) {
		tooMany(w)
		return
	}
	cl, ok := s.account(w, r)
	if !ok {
		return
	}
	entries, err := s.svc.ListChangeLog(r.Context(), cl.AccountID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if entries == nil {
		entries = []core.EmailChangeLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
