package auth

import (
	"encoding/json"
	"errors"
	"slices"
)

// Authentication errors.
var (
	ErrTokenMissing = errors.New("token missing")
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("invalid token")
	ErrForbidden    = errors.New("insufficient permissions")
)

// Roles is the role claim. Older tokens carry a single string, newer ones
// an array; both decode to a list.
type Roles []string

// UnmarshalJSON accepts "admin", ["admin","user"] or null.
func (r *Roles) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one == "" {
			*r = nil
		} else {
			*r = Roles{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*r = many
	return nil
}

// Has reports whether role is in the list.
func (r Roles) Has(role string) bool {
	return slices.Contains(r, role)
}

// Any reports whether at least one of roles is in the list.
func (r Roles) Any(roles []string) bool {
	for _, role := range roles {
		if r.Has(role) {
			return true
		}
	}
	return false
}
