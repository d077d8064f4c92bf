package middlewares

import "context"

type ctxKey string

const (
	ctxRequestIDKey ctxKey = "request_id"
	ctxClaimsKey    ctxKey = "claims"
)

func setRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, ctxRequestIDKey, rid)
}

// GetRequestID devuelve "" si WithRequestID no corrió.
func GetRequestID(ctx context.Context) string {
	s, _ := ctx.Value(ctxRequestIDKey).(string)
	return s
}

func withClaims(ctx context.Context, claims map[string]any) context.Context {
	return context.WithValue(ctx, ctxClaimsKey, claims)
}

// GetClaims devuelve las claims del token admin, nil si se autenticó por API key.
func GetClaims(ctx context.Context) map[string]any {
	m, _ := ctx.Value(ctxClaimsKey).(map[string]any)
	return m
}
