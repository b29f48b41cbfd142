// Package testing provides a throwaway token issuer for host applications that mount
// the verifykit HTTP adapter in their own tests.
package testing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"time"

	authhttp "github.com/PaulFidika/verifykit/adapters/http"
	"github.com/PaulFidika/verifykit/core"
	jwtkit "github.com/PaulFidika/verifykit/jwt"
	jwt "github.com/golang-jwt/jwt/v5"
)

const DefaultAudience = "verifykit-test"

// TestIssuer serves a JWKS document and signs account tokens with a fresh RSA key.
// It satisfies authhttp.Verifier.
type TestIssuer struct {
	srv      *httptest.Server
	signer   *jwtkit.RSASigner
	keys     jwtkit.Keyset
	audience string
}

// NewTestIssuer starts the issuer. It panics if no key can be generated, like httptest.
func NewTestIssuer() *TestIssuer {
	signer, err := jwtkit.NewRSASigner(2048, "test")
	if err != nil {
		panic("verifykit/testing: generate key: " + err.Error())
	}
	i := &TestIssuer{signer: signer, keys: jwtkit.NewKeyset(signer), audience: DefaultAudience}
	mux := http.NewServeMux()
	mux.Handle("GET /.well-known/jwks.json", authhttp.JWKSHandler(i.keys))
	i.srv = httptest.NewServer(mux)
	return i
}

func (i *TestIssuer) URL() string           { return i.srv.URL }
func (i *TestIssuer) Close()                { i.srv.Close() }
func (i *TestIssuer) Keyset() jwtkit.Keyset { return i.keys }
func (i *TestIssuer) Keyfunc() jwt.Keyfunc  { return i.keys.Keyfunc() }
func (i *TestIssuer) Issuer() string        { return i.srv.URL }
func (i *TestIssuer) Audience() string      { return i.audience }
func (i *TestIssuer) Skew() time.Duration   { return time.Second }
func (i *TestIssuer) Signer() jwtkit.Signer { return i.signer }
func (i *TestIssuer) Options() authhttp.Options {
	return authhttp.Options{Issuer: i.Issuer(), Audience: i.audience}
}

// TokenFor signs a token for acc that lives for ttl (one hour when ttl is zero).
func (i *TestIssuer) TokenFor(acc *core.Account, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	claims := jwtkit.BaseRegisteredClaims(acc.ID, []string{i.audience}, time.Now(), ttl)
	claims["iss"] = i.Issuer()
	claims["kind"] = string(acc.Kind)
	if acc.CompanyID != "" {
		claims["company_id"] = acc.CompanyID
	}
	return i.signer.Sign(context.Background(), claims)
}

// CreateToken signs arbitrary claims; iss is filled in when missing.
func (i *TestIssuer) CreateToken(claims map[string]any) (string, error) {
	if _, ok := claims["iss"]; !ok {
		claims["iss"] = i.Issuer()
	}
	return i.signer.Sign(context.Background(), claims)
}
