package oidc

import "fmt"

// Claims are the claims of a verified token. Every claim of the token is
// kept, including provider specific ones such as cognito:groups.
type Claims map[string]interface{}

// String returns the named claim when it's a string.
func (c Claims) String(name string) (string, bool) {
	s, ok := c[name].(string)
	return s, ok
}

// Subject returns the sub claim.
func (c Claims) Subject() string {
	s, _ := c.String("sub")
	return s
}

// Groups returns the list held by the named claim. The bool is false when
// the claim is absent. A claim that's present but isn't a list of strings is
// an error.
func (c Claims) Groups(claim string) ([]string, bool, error) {
	v, ok := c[claim]
	if !ok {
		return nil, false, nil
	}
	switch groups := v.(type) {
	case []string:
		return groups, true, nil
	case string:
		return []string{groups}, true, nil
	case []interface{}:
		out := make([]string, 0, len(groups))
		for _, g := range groups {
			s, ok := g.(string)
			if !ok {
				return nil, true, fmt.Errorf("%q holds a %T: %w", claim, g, ErrInvalidClaim)
			}
			out = append(out, s)
		}
		return out, true, nil
	default:
		return nil, true, fmt.Errorf("%q is a %T, not a list: %w", claim, v, ErrInvalidClaim)
	}
}
