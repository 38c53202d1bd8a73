package middleware

import (
	"net/http"
)

// BearerAuth sets the Authorization header unless the request already has one.
func BearerAuth(token func() string) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			tok := token()
			if tok == "" || r.Header.Get("Authorization") != "" {
				return next.RoundTrip(r)
			}
			// RoundTrippers must not mutate the caller's request
			r = r.Clone(r.Context())
			r.Header.Set("Authorization", "Bearer "+tok)
			return next.RoundTrip(r)
		})
	}
}

// StaticToken adapts a fixed token for BearerAuth.
func StaticToken(tok string) func() string {
	return func() string { return tok }
}
