package core

import "context"

type verifyCtxKey string

const verifyCtxKeyRequestMeta verifyCtxKey = "verifykit.request_meta"

// RequestMeta is the caller context recorded on change log rows.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// WithRequestMeta annotates ctx so change log rows carry the caller's address.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, verifyCtxKeyRequestMeta, meta)
}

func requestMetaFromContext(ctx context.Context) RequestMeta {
	if ctx == nil {
		return RequestMeta{}
	}
	meta, _ := ctx.Value(verifyCtxKeyRequestMeta).(RequestMeta)
	return meta
}
