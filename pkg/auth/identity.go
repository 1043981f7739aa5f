// Package auth describes who the console believes is signed in.
//
// An Identity either comes from the backend's validation probe (Verified) or
// from decoding the stored token locally. Locally decoded identities are
// built from an unverified signature and serve as display labels only; they
// must never drive an authorization decision.
package auth

import "context"

// Identity represents the signed-in operator.
type Identity struct {
	// Subject is the primary identifier, usually the "sub" claim or user id.
	Subject string

	// Email is the login e-mail when known.
	Email string

	// Name is a human-readable display name when known.
	Name string

	// Groups contains role or group memberships reported by the backend.
	Groups []string

	// Extra holds any other string claims.
	Extra map[string][]string

	// Verified is true when the identity was returned by the backend for a
	// token it accepted.
	Verified bool
}

const placeholderName = "Usuário"

// PlaceholderIdentity is used when no identity can be derived.
func PlaceholderIdentity() *Identity {
	return &Identity{Name: placeholderName}
}

// IsPlaceholder reports whether id carries no identifying information.
func (id *Identity) IsPlaceholder() bool {
	return id == nil || (id.Subject == "" && id.Email == "" && (id.Name == "" || id.Name == placeholderName))
}

// Label returns the best display string for the identity.
func (id *Identity) Label() string {
	switch {
	case id == nil:
		return placeholderName
	case id.Name != "":
		return id.Name
	case id.Email != "":
		return id.Email
	case id.Subject != "":
		return id.Subject
	default:
		return placeholderName
	}
}

// Clone returns a deep copy so callers cannot mutate shared session state.
func (id *Identity) Clone() *Identity {
	if id == nil {
		return nil
	}
	out := *id
	if id.Groups != nil {
		out.Groups = append([]string(nil), id.Groups...)
	}
	if id.Extra != nil {
		out.Extra = make(map[string][]string, len(id.Extra))
		for k, v := range id.Extra {
			out.Extra[k] = append([]string(nil), v...)
		}
	}
	return &out
}

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey int

const (
	identityKey contextKey = iota
)

// IdentityFromContext retrieves the Identity attached by the route guard.
// Returns nil for requests that did not pass through it.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

// ContextWithIdentity returns a new context with the given Identity attached.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}
