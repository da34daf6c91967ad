package auth

import "context"

type credentialsContextKey struct{}

// ContextWithCredentials attaches the authenticated identity to the
// context for downstream authorization.
func ContextWithCredentials(ctx context.Context, creds Credentials) context.Context {
	return context.WithValue(ctx, credentialsContextKey{}, &creds)
}

// CredentialsFromContext extracts the authenticated identity.
func CredentialsFromContext(ctx context.Context) (Credentials, bool) {
	if ctx == nil {
		return Credentials{}, false
	}
	v, ok := ctx.Value(credentialsContextKey{}).(*Credentials)
	if !ok || v == nil || v.User == nil {
		return Credentials{}, false
	}
	return *v, true
}
