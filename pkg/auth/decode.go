package auth

import (
	"fmt"
	"sort"

	"github.com/golang-jwt/jwt/v5"
)

// Claim names used by the identity backend. ASP.NET Core issues the long
// schema URIs; other issuers use the short registered names.
const (
	claimEmailURI = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress"
	claimNameURI  = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/name"
	claimIDURI    = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/nameidentifier"
	claimRoleURI  = "http://schemas.microsoft.com/ws/2008/06/identity/claims/role"
)

// DecodeIdentity derives a display identity from the token payload without
// verifying its signature. It never fails: a malformed token yields
// PlaceholderIdentity.
func DecodeIdentity(token string) *Identity {
	id, err := ParseClaims(token)
	if err != nil {
		return PlaceholderIdentity()
	}
	return id
}

// ParseClaims decodes the payload segment of token into an Identity.
// The signature is NOT checked.
func ParseClaims(token string) (*Identity, error) {
	if token == "" {
		return nil, fmt.Errorf("empty token")
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("decoding token payload: %w", err)
	}

	id := &Identity{
		Subject: firstString(claims, "sub", claimIDURI, "nameid", "id"),
		Email:   firstString(claims, "email", claimEmailURI),
		Name:    firstString(claims, "name", "nome", "unique_name", claimNameURI),
		Groups:  stringList(claims, "role", "roles", claimRoleURI),
	}

	known := map[string]bool{
		"sub": true, claimIDURI: true, "nameid": true, "id": true,
		"email": true, claimEmailURI: true,
		"name": true, "nome": true, "unique_name": true, claimNameURI: true,
		"role": true, "roles": true, claimRoleURI: true,
	}
	keys := make([]string, 0, len(claims))
	for k := range claims {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if known[k] {
			continue
		}
		if s, ok := claims[k].(string); ok {
			if id.Extra == nil {
				id.Extra = make(map[string][]string)
			}
			id.Extra[k] = []string{s}
		}
	}

	if id.IsPlaceholder() {
		return nil, fmt.Errorf("token payload carries no identity claims")
	}
	return id, nil
}

func firstString(claims jwt.MapClaims, names ...string) string {
	for _, n := range names {
		switch v := claims[n].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}

func stringList(claims jwt.MapClaims, names ...string) []string {
	var out []string
	for _, n := range names {
		switch v := claims[n].(type) {
		case string:
			out = append(out, v)
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}
