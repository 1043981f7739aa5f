package apiclient

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/wrcelo/erpwebui/pkg/tokenstore"
)

// RequestIDHeader carries a per-request id for correlating client and
// backend logs.
const RequestIDHeader = "X-Request-ID"

// tokenTransport is the request interceptor. It reads the token store on
// every request, so a login or logout takes effect on the very next call.
type tokenTransport struct {
	store tokenstore.Store
	base  http.RoundTripper
}

// newTokenTransport wraps base. A nil base uses http.DefaultTransport.
func newTokenTransport(store tokenstore.Store, base http.RoundTripper) *tokenTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &tokenTransport{store: store, base: base}
}

// RoundTrip implements http.RoundTripper.
func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not modify the caller's request.
	r := req.Clone(req.Context())

	if token, ok := t.store.Get(); ok {
		r.Header.Set("Authorization", "Bearer "+token)
	} else {
		r.Header.Del("Authorization")
	}

	if r.Header.Get(RequestIDHeader) == "" {
		r.Header.Set(RequestIDHeader, uuid.NewString())
	}

	return t.base.RoundTrip(r)
}
