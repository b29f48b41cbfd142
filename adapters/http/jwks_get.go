package authhttp

import (
	"net/http"

	jwtkit "github.com/PaulFidika/verifykit/jwt"
)

// JWKSHandler serves the public JWKS document.
func JWKSHandler(keys jwtkit.Keyset) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jwtkit.ServeJWKS(w, r, keys)
	})
}
