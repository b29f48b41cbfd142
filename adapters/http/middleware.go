package authhttp

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/PaulFidika/verifykit/core"
	jwt "github.com/golang-jwt/jwt/v5"
)

// Verifier supplies what Required needs to trust a bearer token.
type Verifier interface {
	Keyfunc() jwt.Keyfunc
	Issuer() string
	Audience() string
	Skew() time.Duration
}

// Required validates the Bearer token (JWT), enforces iss/aud/exp, and stores claims in request context.
func Required(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := bearerToken(r.Header.Get("Authorization"))
			if tokenStr == "" {
				unauthorized(w, "missing_token")
				return
			}
			claims := jwt.MapClaims{}
			parser := jwt.NewParser(jwt.WithoutClaimsValidation(), jwt.WithValidMethods([]string{"RS256"}))
			token, err := parser.ParseWithClaims(tokenStr, claims, v.Keyfunc())
			if err != nil || !token.Valid {
				unauthorized(w, "invalid_token")
				return
			}

			if iss, _ := claims["iss"].(string); iss != v.Issuer() {
				unauthorized(w, "bad_issuer")
				return
			}
			if aud := v.Audience(); aud != "" && !audContains(claims["aud"], aud) {
				unauthorized(w, "bad_audience")
				return
			}
			now := time.Now()
			skew := v.Skew()
			expUnix, ok := toUnix(claims["exp"])
			if !ok {
				unauthorized(w, "missing_exp")
				return
			}
			if time.Unix(expUnix, 0).Before(now.Add(-skew)) {
				unauthorized(w, "token_expired")
				return
			}
			if nbfUnix, ok := toUnix(claims["nbf"]); ok {
				if now.Add(skew).Before(time.Unix(nbfUnix, 0)) {
					unauthorized(w, "invalid_token")
					return
				}
			}
			if iatUnix, ok := toUnix(claims["iat"]); ok {
				if time.Unix(iatUnix, 0).After(now.Add(skew)) {
					unauthorized(w, "invalid_token")
					return
				}
			}

			cl := Claims{}
			cl.AccountID, _ = claims["sub"].(string)
			if cl.AccountID == "" {
				unauthorized(w, "invalid_token")
				return
			}
			if k, _ := claims["kind"].(string); k != "" {
				kind, err := core.ParseAccountKind(k)
				if err != nil {
					unauthorized(w, "invalid_token")
					return
				}
				cl.Kind = kind
			}
			cl.CompanyID, _ = claims["company_id"].(string)
			cl.Email, _ = claims["email"].(string)

			r = r.WithContext(setClaims(r.Context(), cl))
			next.ServeHTTP(w, r)
		})
	}
}

// Optional validates when Authorization is present; otherwise passes through.
func Optional(v Verifier) func(http.Handler) http.Handler {
	req := Required(v)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bearerToken(r.Header.Get("Authorization")) == "" {
				next.ServeHTTP(w, r)
				return
			}
			req(next).ServeHTTP(w, r)
		})
	}
}

func audContains(aud any, want string) bool {
	switch v := aud.(type) {
	case string:
		return v == want
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok && s == want {
				return true
			}
		}
	case []string:
		for _, e := range v {
			if e == want {
				return true
			}
		}
	}
	return false
}

func toUnix(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case int64:
		return t, true
	case json.Number:
		i, err := t.Int64()
		return i, err == nil
	}
	return 0, false
}
