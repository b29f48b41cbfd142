package jwtkit

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// JWKS builds a deterministic key set (sorted by kid) from the public keys.
func (k Keyset) JWKS() (jwk.Set, error) {
	set := jwk.NewSet()
	for _, kid := range k.kids() {
		key, err := jwk.FromRaw(k.PublicKeys[kid])
		if err != nil {
			return nil, fmt.Errorf("jwk %s: %w", kid, err)
		}
		_ = key.Set(jwk.KeyIDKey, kid)
		_ = key.Set(jwk.KeyUsageKey, jwk.ForSignature)
		_ = key.Set(jwk.AlgorithmKey, jwa.RS256)
		if err := set.AddKey(key); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// ServeJWKS writes the key set with a short public cache lifetime.
func ServeJWKS(w http.ResponseWriter, _ *http.Request, k Keyset) {
	set, err := k.JWKS()
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal_error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300")
	_ = json.NewEncoder(w).Encode(set)
}

// ParseJWKS reads a JWKS document into a keyset usable for verification only.
func ParseJWKS(b []byte) (Keyset, error) {
	set, err := jwk.Parse(b)
	if err != nil {
		return Keyset{}, err
	}
	ks := Keyset{PublicKeys: make(map[string]*rsa.PublicKey, set.Len())}
	for i := 0; i < set.Len(); i++ {
		key, _ := set.Key(i)
		var pub rsa.PublicKey
		if err := key.Raw(&pub); err != nil {
			return Keyset{}, fmt.Errorf("jwk %s: %w", key.KeyID(), err)
		}
		ks.PublicKeys[key.KeyID()] = &pub
	}
	return ks, nil
}
