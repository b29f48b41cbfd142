package authhttp

// Bucket names used by verifykit endpoints.
const (
	RLVerificationSendCode   = "verify_send_code"
	RLVerificationVerifyCode = "verify_verify_code"
	RLVerificationStatus     = "verify_status"

	RLIdentityRequestVerification = "identity_request_verification"
	RLIdentityConfirm             = "identity_confirm"
	RLIdentityRequestChange       = "identity_request_change"
	RLIdentityEditUnverified      = "identity_edit_unverified"
	RLIdentityResendChangeCode    = "identity_resend_change_code"
	RLIdentityRead                = "identity_read"

	RLSecondFactorEnroll   = "second_factor_enroll"
	RLSecondFactorActivate = "second_factor_activate"
	RLSecondFactorDisable  = "second_factor_disable"

	RLPasswordResetRequest  = "pwd_reset_request"
	RLPasswordResetVerify   = "pwd_reset_verify"
	RLPasswordResetComplete = "pwd_reset_complete"

	RLAccountRegister = "account_register"

	RLInvitationCreate = "invitation_create"
	RLInvitationAccept = "invitation_accept"
	RLInvitationRevoke = "invitation_revoke"
	RLInvitationList   = "invitation_list"
)
