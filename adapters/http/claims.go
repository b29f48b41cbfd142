package authhttp

import (
	"context"
	"errors"

	"github.com/PaulFidika/verifykit/core"
)

// Claims is a typed view of the authenticated account attached by middleware.
type Claims struct {
	AccountID string
	Kind      core.AccountKind
	CompanyID string
	Email     string
}

type claimsCtxKey struct{}

func setClaims(ctx context.Context, cl Claims) context.Context {
	return context.WithValue(ctx, claimsCtxKey{}, cl)
}

func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	v := ctx.Value(claimsCtxKey{})
	if v == nil {
		return Claims{}, false
	}
	cl, ok := v.(Claims)
	return cl, ok
}

func getClaims(ctx context.Context) (Claims, error) {
	if cl, ok := ClaimsFromContext(ctx); ok && cl.AccountID != "" {
		return cl, nil
	}
	return Claims{}, errors.New("unauthenticated")
}
