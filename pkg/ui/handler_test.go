package ui

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/wrcelo/erpwebui/pkg/apiclient"
	"github.com/wrcelo/erpwebui/pkg/auth"
	"github.com/wrcelo/erpwebui/pkg/session"
	"github.com/wrcelo/erpwebui/pkg/tokenstore"
)

// fakeIdentity accepts user@x.com / password123 and validates any stored token.
type fakeIdentity struct {
	store tokenstore.Store
}

func (f *fakeIdentity) Login(_ context.Context, email, password string) error {
	if email != "user@x.com" || password != "password123" {
		return apiclient.ErrLoginFailed
	}
	f.store.Set("tok-1")
	return nil
}

func (f *fakeIdentity) Probe(context.Context) (*auth.Identity, error) {
	if _, ok := f.store.Get(); !ok {
		return nil, &apiclient.Error{Status: 401, Err: apiclient.ErrUnauthorized}
	}
	return &auth.Identity{Email: "user@x.com", Name: "Ana", Verified: true}, nil
}

// fakeResources serves records from memory.
type fakeResources struct {
	mu      sync.Mutex
	records map[apiclient.Resource][]apiclient.Record
	err     error
	onCall  func()
	removed []string
}

func (f *fakeResources) List(_ context.Context, res apiclient.Resource) ([]apiclient.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onCall != nil {
		f.onCall()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.records[res], nil
}

func (f *fakeResources) Fetch(_ context.Context, res apiclient.Resource, id string) (apiclient.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, rec := range f.records[res] {
		if rec.ID() == id {
			return rec, nil
		}
	}
	return nil, &apiclient.Error{Status: 404, Message: "not found"}
}

func (f *fakeResources) Remove(_ context.Context, res apiclient.Resource, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onCall != nil {
		f.onCall()
	}
	if f.err != nil {
		return f.err
	}
	f.removed = append(f.removed, string(res)+"/"+id)
	return nil
}

type fixture struct {
	tokens    *tokenstore.MemoryNamespace
	sessions  *Sessions
	resources *fakeResources
	handler   *Handler
	server    http.Handler

	// cookie and csrf belong to the browser signed in by newFixture.
	cookie *http.Cookie
	csrf   string
}

func newFixture(t *testing.T, authenticated bool, opts ...func(*Options)) *fixture {
	t.Helper()
	tokens := tokenstore.NewMemoryNamespace()
	resources := &fakeResources{records: map[apiclient.Resource][]apiclient.Record{}}

	sessions, err := session.NewManager(session.ManagerOptions[Backend]{
		Tokens: tokens,
		Build: func(store tokenstore.Store, _ *session.Registry) (*session.Guard, Backend, error) {
			guard := session.NewGuard(session.Options{Store: store, Backend: &fakeIdentity{store: store}})
			return guard, resources, nil
		},
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	route := session.NewResolvingRouteGuard(sessions)

	o := Options{Sessions: sessions, Route: route, PageSize: 2}
	for _, fn := range opts {
		fn(&o)
	}

	handler, err := NewHandler(o)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	f := &fixture{
		tokens:    tokens,
		sessions:  sessions,
		resources: resources,
		handler:   handler,
		server:    route.Wrap(mux),
	}
	if authenticated {
		f.cookie, f.csrf = f.signIn(t)
	}
	return f
}

// signIn starts a signed-in browser without going through the login form.
func (f *fixture) signIn(t *testing.T) (*http.Cookie, string) {
	t.Helper()
	ctx := context.Background()
	b, err := f.sessions.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if !b.Guard.Login(ctx, "user@x.com", "password123") {
		t.Fatal("Login() = false")
	}
	w := httptest.NewRecorder()
	f.sessions.Commit(w, httptest.NewRequest("POST", "/login", nil), b)
	return sessionCookie(t, w), b.CSRF
}

// guard returns the guard of the fixture's browser.
func (f *fixture) guard(t *testing.T) *session.Guard {
	t.Helper()
	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(f.cookie)
	b := f.sessions.Lookup(req)
	if b == nil {
		t.Fatal("fixture browser has no session")
	}
	return b.Guard
}

// do serves req as the fixture's browser.
func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	if f.cookie != nil {
		req.AddCookie(f.cookie)
	}
	return f.doAnonymous(req)
}

// doAnonymous serves req as a browser without any session cookie.
func (f *fixture) doAnonymous(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.server.ServeHTTP(w, req)
	return w
}

func loginForm(email, password string) *http.Request {
	return postForm("/login", url.Values{"email": {email}, "password": {password}})
}

func postForm(path string, form url.Values) *http.Request {
	req := httptest.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// withCSRF posts to path carrying token in the form.
func withCSRF(path, token string) *http.Request {
	return postForm(path, url.Values{session.CSRFField: {token}})
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == session.DefaultCookieName {
			return c
		}
	}
	t.Fatal("response did not set the session cookie")
	return nil
}

func TestNewHandler_RequiresDependencies(t *testing.T) {
	if _, err := NewHandler(Options{}); err == nil {
		t.Fatal("expected error without dependencies")
	}
}

func TestLoginPage(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(httptest.NewRequest("GET", "/login", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `name="email"`) || !strings.Contains(body, `name="password"`) {
		t.Error("response should contain the login form")
	}
	if strings.Contains(body, "Seu login expirou!") {
		t.Error("expired notice should only show with expired=true")
	}

	w = f.do(httptest.NewRequest("GET", "/login?expired=true", nil))
	if !strings.Contains(w.Body.String(), "Seu login expirou!") {
		t.Error("response should contain the expired notice")
	}
}

func TestLoginPage_AuthenticatedRedirectsHome(t *testing.T) {
	f := newFixture(t, true)

	w := f.do(httptest.NewRequest("GET", "/login", nil))
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/" {
		t.Errorf("expected redirect to /, got %d %q", w.Code, w.Header().Get("Location"))
	}
}

func TestLoginSubmit(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		wantCode int
		wantBody string
		wantAuth bool
	}{
		{name: "success", email: "user@x.com", password: "password123", wantCode: http.StatusSeeOther, wantAuth: true},
		{name: "wrong password", email: "user@x.com", password: "password999", wantCode: http.StatusUnauthorized, wantBody: "Usuário e/ou senha inválido"},
		{name: "missing email", email: "", password: "password123", wantCode: http.StatusUnprocessableEntity, wantBody: "Informe o email"},
		{name: "invalid email", email: "not-an-email", password: "password123", wantCode: http.StatusUnprocessableEntity, wantBody: "Email inválido"},
		{name: "display name form rejected", email: "Ana <user@x.com>", password: "password123", wantCode: http.StatusUnprocessableEntity, wantBody: "Email inválido"},
		{name: "short password", email: "user@x.com", password: "short", wantCode: http.StatusUnprocessableEntity, wantBody: "pelo menos 8 caracteres"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, false)

			w := f.do(loginForm(tt.email, tt.password))
			if w.Code != tt.wantCode {
				t.Fatalf("expected status %d, got %d", tt.wantCode, w.Code)
			}
			if tt.wantBody != "" && !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("response should contain %q", tt.wantBody)
			}
			if !tt.wantAuth {
				if len(w.Result().Cookies()) != 0 {
					t.Error("failed login must not set a cookie")
				}
				if f.sessions.Len() != 0 || f.tokens.Len() != 0 {
					t.Errorf("failed login left state: sessions=%d slots=%d", f.sessions.Len(), f.tokens.Len())
				}
				return
			}
			if loc := w.Header().Get("Location"); loc != "/" {
				t.Errorf("expected redirect to /, got %q", loc)
			}
			f.cookie = sessionCookie(t, w)
			if !f.cookie.HttpOnly || f.cookie.SameSite != http.SameSiteStrictMode {
				t.Errorf("cookie attributes: HttpOnly=%v SameSite=%v", f.cookie.HttpOnly, f.cookie.SameSite)
			}
			if !f.guard(t).IsAuthenticated() {
				t.Error("the new cookie should carry an authenticated session")
			}
			if tok, _ := f.tokens.Store(f.cookie.Value).Get(); tok != "tok-1" {
				t.Errorf("stored token = %q, want tok-1", tok)
			}
		})
	}
}

func TestLoginSubmit_RateLimited(t *testing.T) {
	f := newFixture(t, false, func(o *Options) {
		o.LoginRate = 0.001
		o.LoginBurst = 2
	})

	for i := 0; i < 2; i++ {
		if w := f.do(loginForm("user@x.com", "password999")); w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, w.Code)
		}
	}

	w := f.do(loginForm("user@x.com", "password123"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if len(w.Result().Cookies()) != 0 || f.sessions.Len() != 0 {
		t.Error("rate-limited attempt must not sign in")
	}

	// Another client is unaffected.
	req := loginForm("user@x.com", "password123")
	req.RemoteAddr = "10.0.0.9:4000"
	if w := f.do(req); w.Code != http.StatusSeeOther {
		t.Errorf("expected other client to sign in, got %d", w.Code)
	}
}

func TestLoginSubmit_ForwardedForDoesNotBypassLimit(t *testing.T) {
	f := newFixture(t, false, func(o *Options) {
		o.LoginRate = 0.001
		o.LoginBurst = 2
	})

	limited := 0
	for i := 0; i < 50; i++ {
		req := loginForm("user@x.com", "password999")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
		if w := f.do(req); w.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	if limited != 48 {
		t.Errorf("rate limited %d of 50 attempts, want 48", limited)
	}
}

func TestLoginSubmit_TrustedProxyForwardsClient(t *testing.T) {
	f := newFixture(t, false, func(o *Options) {
		o.LoginRate = 0.001
		o.LoginBurst = 1
		o.TrustedProxies = []string{"10.0.0.0/8"}
	})

	attempt := func(client string) int {
		req := loginForm("user@x.com", "password999")
		req.RemoteAddr = "10.0.0.2:4000"
		req.Header.Set("X-Forwarded-For", client)
		return f.do(req).Code
	}

	if code := attempt("203.0.113.1"); code != http.StatusUnauthorized {
		t.Fatalf("first attempt: expected 401, got %d", code)
	}
	if code := attempt("203.0.113.1"); code != http.StatusTooManyRequests {
		t.Errorf("same client behind the proxy: expected 429, got %d", code)
	}
	if code := attempt("203.0.113.2"); code != http.StatusUnauthorized {
		t.Errorf("other client behind the proxy: expected 401, got %d", code)
	}
}

func TestNewHandler_InvalidTrustedProxy(t *testing.T) {
	f := newFixture(t, false)
	_, err := NewHandler(Options{Sessions: f.sessions, Route: session.NewResolvingRouteGuard(f.sessions), TrustedProxies: []string{"nope"}})
	if err == nil {
		t.Fatal("expected error for an invalid trusted proxy")
	}
}

func TestLogout(t *testing.T) {
	f := newFixture(t, true)

	w := f.do(httptest.NewRequest("GET", "/logout", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for GET, got %d", w.Code)
	}

	guard := f.guard(t)
	w = f.do(withCSRF("/logout", f.csrf))
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/login" {
		t.Errorf("expected redirect to /login, got %d %q", w.Code, w.Header().Get("Location"))
	}
	snap := guard.Snapshot()
	if snap.Status != session.StatusUnauthenticated || snap.Reason != session.ReasonLoggedOut {
		t.Errorf("state = %s/%s", snap.Status, snap.Reason)
	}
	if c := sessionCookie(t, w); c.MaxAge >= 0 {
		t.Errorf("logout should expire the cookie, MaxAge = %d", c.MaxAge)
	}
	if f.sessions.Len() != 0 || f.tokens.Len() != 0 {
		t.Errorf("logout left state: sessions=%d slots=%d", f.sessions.Len(), f.tokens.Len())
	}

	// Protected pages now redirect without the expired flag.
	w = f.do(httptest.NewRequest("GET", "/clientes", nil))
	if loc := w.Header().Get("Location"); loc != "/login" {
		t.Errorf("expected /login after logout, got %q", loc)
	}
}

func TestLogout_RequiresCSRFToken(t *testing.T) {
	tests := []struct {
		name string
		req  *http.Request
	}{
		{name: "missing", req: httptest.NewRequest("POST", "/logout", nil)},
		{name: "wrong", req: withCSRF("/logout", "not-the-token")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, true)

			w := f.do(tt.req)
			if w.Code != http.StatusForbidden {
				t.Errorf("expected 403, got %d", w.Code)
			}
			if !f.guard(t).IsAuthenticated() {
				t.Error("a rejected logout must keep the session")
			}
		})
	}
}

func TestLogout_HTMXHeaderToken(t *testing.T) {
	f := newFixture(t, true)

	req := httptest.NewRequest("POST", "/logout", nil)
	req.Header.Set("HX-Request", "true")
	req.Header.Set(session.CSRFHeader, f.csrf)
	w := f.do(req)
	if got := w.Header().Get("HX-Redirect"); got != "/login" {
		t.Errorf("HX-Redirect = %q, want /login", got)
	}
}

func TestSecondBrowserHasNoSession(t *testing.T) {
	f := newFixture(t, true)
	seedClientes(f)

	for _, path := range []string{"/", "/clientes", "/clientes/1"} {
		req := httptest.NewRequest("GET", path, nil)
		req.RemoteAddr = "198.51.100.20:5000"
		w := f.doAnonymous(req)
		if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/login" {
			t.Errorf("GET %s: expected redirect to /login, got %d %q", path, w.Code, w.Header().Get("Location"))
		}
	}

	// Even with a leaked CSRF token, a browser without the cookie cannot act.
	req := withCSRF("/clientes/1/delete", f.csrf)
	req.RemoteAddr = "198.51.100.20:5000"
	if w := f.doAnonymous(req); w.Header().Get("Location") != "/login" {
		t.Errorf("expected delete to redirect to /login, got %d %q", w.Code, w.Header().Get("Location"))
	}
	if len(f.resources.removed) != 0 {
		t.Errorf("removed = %v, want nothing", f.resources.removed)
	}

	// A forged cookie value is not a session either.
	req = httptest.NewRequest("GET", "/clientes", nil)
	req.AddCookie(&http.Cookie{Name: session.DefaultCookieName, Value: "0b7f3a52-8d0e-4c36-9a55-2f6f4c1d9e10"})
	if w := f.doAnonymous(req); w.Header().Get("Location") != "/login" {
		t.Errorf("forged cookie: expected redirect to /login, got %q", w.Header().Get("Location"))
	}

	// The first browser is untouched.
	if w := f.do(httptest.NewRequest("GET", "/clientes", nil)); w.Code != http.StatusOK {
		t.Errorf("signed-in browser: expected 200, got %d", w.Code)
	}
}

func TestHome(t *testing.T) {
	f := newFixture(t, true)

	w := f.do(httptest.NewRequest("GET", "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Ana") {
		t.Error("response should contain the identity label")
	}
	for _, res := range apiclient.Resources {
		if !strings.Contains(body, `href="/`+string(res)+`"`) {
			t.Errorf("response should link to %s", res)
		}
	}
}

func TestHome_Unauthenticated(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(httptest.NewRequest("GET", "/", nil))
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/login" {
		t.Errorf("expected redirect to /login, got %d %q", w.Code, w.Header().Get("Location"))
	}
}

func seedClientes(f *fixture) {
	f.resources.records[apiclient.Clientes] = []apiclient.Record{
		{"id": float64(1), "nome": "Acme Ltda", "cidade": "Curitiba"},
		{"id": float64(2), "nome": "Beta Comércio", "cidade": "Londrina"},
		{"id": float64(3), "nome": "Gama SA", "cidade": "Curitiba"},
	}
}

func TestList_Pagination(t *testing.T) {
	f := newFixture(t, true)
	seedClientes(f)

	w := f.do(httptest.NewRequest("GET", "/clientes", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Acme Ltda") || !strings.Contains(body, "Beta Comércio") {
		t.Error("first page should contain the first two records")
	}
	if strings.Contains(body, "Gama SA") {
		t.Error("first page should not contain the third record")
	}
	if !strings.Contains(body, "página 1 de 2") {
		t.Error("response should show page count")
	}

	w = f.do(httptest.NewRequest("GET", "/clientes?page=2", nil))
	body = w.Body.String()
	if !strings.Contains(body, "Gama SA") || strings.Contains(body, "Acme Ltda") {
		t.Error("second page should contain only the third record")
	}

	w = f.do(httptest.NewRequest("GET", "/clientes?page=99&size=10", nil))
	if !strings.Contains(w.Body.String(), "página 1 de 1") {
		t.Error("out of range page should clamp to the last page")
	}
}

func TestList_Filter(t *testing.T) {
	f := newFixture(t, true)
	seedClientes(f)

	w := f.do(httptest.NewRequest("GET", "/clientes?q=curitiba&size=10", nil))
	body := w.Body.String()
	if !strings.Contains(body, "Acme Ltda") || !strings.Contains(body, "Gama SA") {
		t.Error("response should contain matching records")
	}
	if strings.Contains(body, "Beta Comércio") {
		t.Error("response should not contain non-matching records")
	}
}

func TestList_HTMXRequest(t *testing.T) {
	f := newFixture(t, true)
	seedClientes(f)

	req := httptest.NewRequest("GET", "/clientes", nil)
	req.Header.Set("HX-Request", "true")
	w := f.do(req)

	body := w.Body.String()
	if !strings.Contains(body, "Acme Ltda") {
		t.Error("HTMX response should contain record data")
	}
	if strings.Contains(body, "<!DOCTYPE html>") {
		t.Error("HTMX response should not contain full HTML document")
	}
}

func TestList_UnknownResource(t *testing.T) {
	f := newFixture(t, true)

	w := f.do(httptest.NewRequest("GET", "/pedidos", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestList_UnauthorizedRedirectsExpired(t *testing.T) {
	f := newFixture(t, true)
	f.resources.err = &apiclient.Error{Status: 401, Message: "session expired", Err: apiclient.ErrUnauthorized}
	// The API client ends the session through the registry before returning.
	guard := f.guard(t)
	f.resources.onCall = func() { guard.SetAuthenticated(false) }

	w := f.do(httptest.NewRequest("GET", "/clientes", nil))
	if w.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/login?expired=true" {
		t.Errorf("expected /login?expired=true, got %q", loc)
	}
}

func TestList_BackendErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{
			name:     "connection failed",
			err:      &apiclient.Error{Status: apiclient.StatusNoResponse, Message: "connection failed"},
			wantCode: http.StatusBadGateway,
			wantBody: "connection failed",
		},
		{
			name:     "forbidden",
			err:      &apiclient.Error{Status: 403, Message: "acesso negado"},
			wantCode: http.StatusForbidden,
			wantBody: "acesso negado",
		},
		{
			name:     "undecodable body",
			err:      &apiclient.Error{Status: 200, Message: "invalid response body"},
			wantCode: http.StatusBadGateway,
			wantBody: "invalid response body",
		},
		{
			name:     "server error",
			err:      &apiclient.Error{Status: 500, Message: "internal server error"},
			wantCode: http.StatusInternalServerError,
			wantBody: "Status 500",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, true)
			f.resources.err = tt.err

			w := f.do(httptest.NewRequest("GET", "/produtos", nil))
			if w.Code != tt.wantCode {
				t.Errorf("expected status %d, got %d", tt.wantCode, w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("response should contain %q", tt.wantBody)
			}
			if !f.guard(t).IsAuthenticated() {
				t.Error("non-401 errors must not end the session")
			}
		})
	}
}

func TestDetail(t *testing.T) {
	f := newFixture(t, true)
	seedClientes(f)

	w := f.do(httptest.NewRequest("GET", "/clientes/2", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Beta Comércio") || !strings.Contains(body, "Londrina") {
		t.Error("response should contain record fields")
	}
	if !strings.Contains(body, `action="/clientes/2/delete"`) {
		t.Error("response should contain the delete form")
	}
	if !strings.Contains(body, `name="csrf_token" value="`+f.csrf+`"`) {
		t.Error("forms should carry the browser's CSRF token")
	}

	w = f.do(httptest.NewRequest("GET", "/clientes/99", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing record, got %d", w.Code)
	}
}

func TestDelete(t *testing.T) {
	f := newFixture(t, true)
	seedClientes(f)

	w := f.do(withCSRF("/clientes/3/delete", f.csrf))
	if w.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); !strings.HasPrefix(loc, "/clientes?message=") {
		t.Errorf("unexpected redirect %q", loc)
	}
	if len(f.resources.removed) != 1 || f.resources.removed[0] != "clientes/3" {
		t.Errorf("removed = %v", f.resources.removed)
	}

	// GET on the delete path is not an action.
	w = f.do(httptest.NewRequest("GET", "/clientes/3/delete", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for GET delete, got %d", w.Code)
	}
}

func TestDelete_Failure(t *testing.T) {
	f := newFixture(t, true)
	f.resources.err = &apiclient.Error{Status: 409, Message: "registro em uso"}

	w := f.do(withCSRF("/clientes/3/delete", f.csrf))
	loc := w.Header().Get("Location")
	if !strings.HasPrefix(loc, "/clientes/3?error=") || !strings.Contains(loc, "registro") {
		t.Errorf("unexpected redirect %q", loc)
	}
}

func TestDelete_Unauthorized(t *testing.T) {
	f := newFixture(t, true)
	f.resources.err = &apiclient.Error{Status: 401, Err: apiclient.ErrUnauthorized}
	guard := f.guard(t)
	f.resources.onCall = func() { guard.SetAuthenticated(false) }

	w := f.do(withCSRF("/clientes/3/delete", f.csrf))
	if loc := w.Header().Get("Location"); loc != "/login?expired=true" {
		t.Errorf("expected /login?expired=true, got %q", loc)
	}
}

func TestDelete_RequiresCSRFToken(t *testing.T) {
	f := newFixture(t, true)
	seedClientes(f)

	for _, req := range []*http.Request{
		httptest.NewRequest("POST", "/clientes/3/delete", nil),
		withCSRF("/clientes/3/delete", "not-the-token"),
	} {
		if w := f.do(req); w.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", w.Code)
		}
	}
	if len(f.resources.removed) != 0 {
		t.Errorf("removed = %v, want nothing", f.resources.removed)
	}
}

func TestStaticFiles(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(httptest.NewRequest("GET", "/static/style.css", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200 for static file, got %d", w.Code)
	}
}
