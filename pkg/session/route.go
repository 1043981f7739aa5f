package session

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/wrcelo/erpwebui/pkg/auth"
)

// DefaultLoginPath is where unauthenticated requests are sent.
const DefaultLoginPath = "/login"

var defaultExcluded = []string{"/login", "/healthz", "/readyz", "/metrics", "/static/"}

const loadingPage = `<!DOCTYPE html>
<html lang="pt-BR">
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="1">
<title>ERP</title>
</head>
<body>
<p class="loading">Verificando autenticação...</p>
</body>
</html>
`

// Resolver finds the guard owning a request. It returns nil when the request
// carries no session, which the route guard treats as a first visit.
type Resolver interface {
	Resolve(r *http.Request) *Guard
}

type staticResolver struct {
	guard *Guard
}

func (s staticResolver) Resolve(*http.Request) *Guard { return s.guard }

// RouteGuard gates HTTP handlers on the session state.
type RouteGuard struct {
	resolver  Resolver
	loginPath string
	excluded  []string
	loading   http.Handler
	logger    *slog.Logger
}

// RouteOption configures a RouteGuard.
type RouteOption func(*RouteGuard)

// WithLoginPath overrides the login path. Default: "/login".
func WithLoginPath(path string) RouteOption {
	return func(rg *RouteGuard) {
		rg.loginPath = path
	}
}

// WithExcludedPaths replaces the list of paths that bypass the guard. An
// entry ending in "/" matches every path beneath it.
func WithExcludedPaths(paths ...string) RouteOption {
	return func(rg *RouteGuard) {
		rg.excluded = append([]string(nil), paths...)
	}
}

// WithLoadingHandler replaces the placeholder served while the session is
// still being validated.
func WithLoadingHandler(h http.Handler) RouteOption {
	return func(rg *RouteGuard) {
		rg.loading = h
	}
}

// WithRouteLogger sets the logger.
func WithRouteLogger(logger *slog.Logger) RouteOption {
	return func(rg *RouteGuard) {
		rg.logger = logger
	}
}

// NewRouteGuard creates a RouteGuard for a single session and registers
// guard with registry, so 401s seen by the HTTP client end it. Every request
// is judged by that one session; servers reachable by more than one person
// use NewResolvingRouteGuard.
func NewRouteGuard(guard *Guard, registry *Registry, opts ...RouteOption) *RouteGuard {
	if registry != nil {
		registry.Register(guard)
	}
	return NewResolvingRouteGuard(staticResolver{guard: guard}, opts...)
}

// NewResolvingRouteGuard creates a RouteGuard that looks up the session of
// each request through res, such as a Manager keyed by cookie.
func NewResolvingRouteGuard(res Resolver, opts ...RouteOption) *RouteGuard {
	rg := &RouteGuard{
		resolver:  res,
		loginPath: DefaultLoginPath,
		excluded:  defaultExcluded,
		loading:   http.HandlerFunc(serveLoading),
	}
	for _, opt := range opts {
		opt(rg)
	}
	if rg.logger == nil {
		rg.logger = slog.Default()
	}
	rg.logger = rg.logger.With(slog.String("component", "route-guard"))
	return rg
}

// Wrap wraps next so it is only reached by authenticated sessions.
func (rg *RouteGuard) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rg.isExcluded(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		guard := rg.resolver.Resolve(r)
		if guard == nil {
			rg.redirect(w, r, ReasonNone)
			return
		}

		snap := guard.Snapshot()
		switch snap.Status {
		case StatusLoading:
			rg.loading.ServeHTTP(w, r)
		case StatusAuthenticated:
			next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), snap.Identity)))
		default:
			rg.redirect(w, r, snap.Reason)
		}
	})
}

// Redirect sends the request to the login page according to the current
// session state. Handlers call it after a backend call failed with
// apiclient.ErrUnauthorized.
func (rg *RouteGuard) Redirect(w http.ResponseWriter, r *http.Request) {
	rg.redirect(w, r, rg.reason(r))
}

// LoginTarget returns the login URL for the session of r.
func (rg *RouteGuard) LoginTarget(r *http.Request) string {
	return rg.loginTarget(rg.reason(r))
}

func (rg *RouteGuard) reason(r *http.Request) Reason {
	if guard := rg.resolver.Resolve(r); guard != nil {
		return guard.Snapshot().Reason
	}
	return ReasonNone
}

func (rg *RouteGuard) loginTarget(reason Reason) string {
	if reason == ReasonExpired {
		return rg.loginPath + "?expired=true"
	}
	return rg.loginPath
}

func (rg *RouteGuard) redirect(w http.ResponseWriter, r *http.Request, reason Reason) {
	target := rg.loginTarget(reason)
	rg.logger.Debug("redirecting to login",
		slog.String("path", r.URL.Path),
		slog.String("target", target),
		slog.String("reason", reason.String()),
	)

	// htmx swaps the body of a redirect into the page instead of navigating.
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (rg *RouteGuard) isExcluded(path string) bool {
	for _, p := range rg.excluded {
		if strings.HasSuffix(p, "/") {
			if strings.HasPrefix(path, p) {
				return true
			}
			continue
		}
		if path == p {
			return true
		}
	}
	return false
}

func serveLoading(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(loadingPage))
}
