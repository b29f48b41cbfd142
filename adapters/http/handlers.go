package authhttp

import (
	"net/http"

	"github.com/PaulFidika/verifykit/core"
)

// JWKSHandler returns a handler for GET /.well-known/jwks.json.
func (s *Service) JWKSHandler() http.Handler { return JWKSHandler(s.keys) }

// APIHandler returns a handler that serves the JSON API routes.
// It is intended to be mounted under the host's mux/router at any prefix.
func (s *Service) APIHandler() http.Handler {
	if s == nil || s.svc == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { serverErr(w, "verifykit_not_initialized") })
	}
	if !s.svc.HasNotifier() {
		s.log.Warn("verifykit: no notifier configured; codes and invitation links will not be delivered")
	}

	mux := http.NewServeMux()
	required := Required(s)
	optional := Optional(s)

	// One-time codes. Password reset codes are anonymous; email purposes need a token.
	mux.Handle("POST /verification/send-code", optional(http.HandlerFunc(s.handleSendCodePOST)))
	mux.Handle("POST /verification/verify-code", optional(http.HandlerFunc(s.handleVerifyCodePOST)))
	mux.Handle("GET /verification/status", required(http.HandlerFunc(s.handleStatusGET)))

	// Password reset (unauthenticated; the code is the proof)
	mux.Handle("POST /auth/request-password-reset", http.HandlerFunc(s.handleRequestPasswordResetPOST))
	mux.Handle("POST /auth/verify-reset-code", http.HandlerFunc(s.handleVerifyResetCodePOST))
	mux.Handle("POST /auth/complete-reset", http.HandlerFunc(s.handleCompleteResetPOST))

	// Accounts + invitation redemption
	mux.Handle("POST /accounts/register", http.HandlerFunc(s.handleRegisterPOST))
	mux.Handle("POST /invitations/accept", http.HandlerFunc(s.handleInvitationAcceptPOST))

	// Email identity
	mux.Handle("POST /identity/request-verification", required(http.HandlerFunc(s.handleRequestVerificationPOST)))
	mux.Handle("POST /identity/confirm", required(http.HandlerFunc(s.handleConfirmPOST)))
	mux.Handle("POST /identity/request-change", required(http.HandlerFunc(s.handleRequestChangePOST)))
	mux.Handle("POST /identity/edit-unverified", required(http.HandlerFunc(s.handleEditUnverifiedPOST)))
	mux.Handle("POST /identity/resend-change-code", required(http.HandlerFunc(s.handleResendChangeCodePOST)))
	mux.Handle("GET /identity/emails", required(http.HandlerFunc(s.handleEmailsGET)))
	mux.Handle("GET /identity/change-log", required(http.HandlerFunc(s.handleChangeLogGET)))
	mux.Handle("GET /accounts/me", required(http.HandlerFunc(s.handleAccountMeGET)))

	// Second factor
	mux.Handle("POST /identity/second-factor/enroll", required(http.HandlerFunc(s.handleSecondFactorEnrollPOST)))
	mux.Handle("POST /identity/second-factor/activate", required(http.HandlerFunc(s.handleSecondFactorActivatePOST)))
	mux.Handle("POST /identity/second-factor/disable", required(http.HandlerFunc(s.handleSecondFactorDisablePOST)))

	// Invitations
	mux.Handle("POST /invitations", required(http.HandlerFunc(s.handleInvitationCreatePOST)))
	mux.Handle("GET /invitations", required(http.HandlerFunc(s.handleInvitationsGET)))
	mux.Handle("POST /invitations/{id}/revoke", required(http.HandlerFunc(s.handleInvitationRevokePOST)))

	mux.Handle("GET /.well-known/jwks.json", s.JWKSHandler())

	return s.withRequestMeta(mux)
}

// account resolves the caller from claims; handlers mounted behind Required always have one.
func (s *Service) account(w http.ResponseWriter, r *http.Request) (Claims, bool) {
	cl, err := getClaims(r.Context())
	if err != nil {
		unauthorized(w, "unauthenticated")
		return Claims{}, false
	}
	return cl, true
}

func parsePurpose(w http.ResponseWriter, raw string) (core.Purpose, bool) {
	p, err := core.ParsePurpose(raw)
	if err != nil {
		badRequest(w, core.ErrInvalidPurpose.Error())
		return "", false
	}
	return p, true
}
