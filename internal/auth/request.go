package auth

import (
	"net/http"
	"strings"
)

// DefaultCookieName is the cookie the web front-end stores the token in.
const DefaultCookieName = "token"

// TokenFromRequest returns the access token from, in order, the cookie
// named cookieName, an "Authorization: Bearer" header, or the "token" query
// parameter. It returns "" when none is present.
func TokenFromRequest(r *http.Request, cookieName string) string {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}
