package authhttp

import (
	"net/http"

	"github.com/PaulFidika/verifykit/core"
)

func (s *Service) handleRegisterPOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLAccountRegister) {
		tooMany(w)
		return
	}
	var req struct {
		AccountKind string `json:"account_kind"`
		CompanyID   string `json:"company_id"`
		Email       string `json:"email"`
		Password    string `json:"password"`
		FirstName   string `json:"first_name"`
		LastName    string `json:"last_name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid_request")
		return
	}
	acc, err := s.svc.RegisterAccount(r.Context(), core.RegisterParams{
		Kind:      core.AccountKind(req.AccountKind),
		CompanyID: req.CompanyID,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"account_id": acc.ID, "company_id": acc.CompanyID})
}

func (s *Service) handleAccountMeGET(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLIdentityRead) {
		tooMany(w)
		return
	}
	cl, ok := s.account(w, r)
	if !ok {
		return
	}
	acc, err := s.svc.GetAccount(r.Context(), cl.AccountID)
	if err != nil {
		writeErr(w, err)
		return
	}
	verified, err := s.svc.IsVerified(r.Context(), cl.AccountID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account_id":            acc.ID,
		"account_kind":          acc.Kind,
		"company_id":            acc.CompanyID,
		"first_name":            acc.FirstName,
		"last_name":             acc.LastName,
		"email_verified":        verified,
		"second_factor_enabled": acc.SecondFactorEnabled,
	})
}
