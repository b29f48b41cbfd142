package authhttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/PaulFidika/verifykit/core"
)

type errResp struct {
	Error             string `json:"error"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func sendErr(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, errResp{Error: code})
}

func badRequest(w http.ResponseWriter, code string)   { sendErr(w, http.StatusBadRequest, code) }
func unauthorized(w http.ResponseWriter, code string) { sendErr(w, http.StatusUnauthorized, code) }
func forbidden(w http.ResponseWriter, code string)    { sendErr(w, http.StatusForbidden, code) }
func tooMany(w http.ResponseWriter)                   { sendErr(w, http.StatusTooManyRequests, "rate_limited") }
func serverErr(w http.ResponseWriter, code string)    { sendErr(w, http.StatusInternalServerError, code) }

// statusFor maps a core error to its HTTP status and wire code.
func statusFor(err error) (int, string) {
	code := core.Code(err)
	switch {
	case errors.Is(err, core.ErrChallengeNotFound):
		// Indistinguishable from a wrong code so targets cannot be probed.
		return http.StatusUnauthorized, core.ErrInvalidCode.Error()
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden, code
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, code
	case errors.Is(err, core.ErrAddressClaimed), errors.Is(err, core.ErrAlreadyVerified), errors.Is(err, core.ErrAlreadyExists):
		return http.StatusConflict, code
	case errors.Is(err, core.ErrRateLimited), errors.Is(err, core.ErrTooSoon):
		return http.StatusTooManyRequests, code
	}
	switch core.Classify(err) {
	case core.ClassValidation:
		return http.StatusBadRequest, code
	case core.ClassSecurity:
		return http.StatusUnauthorized, code
	case core.ClassTemporal:
		return http.StatusGone, code
	case core.ClassConsistency:
		return http.StatusConflict, code
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeErr renders err as {"error":"<code>"} and sets Retry-After on cooldown errors.
func writeErr(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	resp := errResp{Error: code}
	var ce *core.CooldownError
	if errors.As(err, &ce) {
		resp.RetryAfterSeconds = ce.RetryAfterSeconds()
		w.Header().Set("Retry-After", strconv.Itoa(resp.RetryAfterSeconds))
	}
	writeJSON(w, status, resp)
}
