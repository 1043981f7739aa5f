package session

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wrcelo/erpwebui/pkg/clock"
	"github.com/wrcelo/erpwebui/pkg/tokenstore"
)

const (
	// DefaultCookieName names the cookie carrying the browser session id.
	DefaultCookieName = "erp_session"

	// CSRFField is the form field holding the CSRF token.
	CSRFField = "csrf_token"

	// CSRFHeader carries the CSRF token on script-issued requests.
	CSRFHeader = "X-CSRF-Token"

	defaultIdleTimeout = 12 * time.Hour
	resumeTimeout      = 30 * time.Second
)

// Browser is one browser's session: its own token slot, guard and API
// client. A Browser is only reachable through the cookie issued for it.
type Browser[C any] struct {
	ID   string
	CSRF string

	Guard  *Guard
	Client C

	lastSeen time.Time
}

// BuildFunc assembles the guard and API client for one browser on top of
// store. The client must report 401s to registry so that only this
// browser's session ends.
type BuildFunc[C any] func(store tokenstore.Store, registry *Registry) (*Guard, C, error)

// ManagerOptions configures a Manager.
type ManagerOptions[C any] struct {
	Tokens tokenstore.Namespace
	Build  BuildFunc[C]

	// CookieName defaults to DefaultCookieName.
	CookieName string

	// SecureCookie forces the Secure attribute. Requests that arrived over
	// TLS always get it.
	SecureCookie bool

	// IdleTimeout ends browsers that made no request for this long.
	// Default: 12h.
	IdleTimeout time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Manager maps session cookies to Browsers. Requests without a known cookie
// have no session at all, whatever any other browser did.
type Manager[C any] struct {
	tokens tokenstore.Namespace
	build  BuildFunc[C]
	cookie string
	secure bool
	idle   time.Duration
	clock  clock.Clock
	logger *slog.Logger

	mu       sync.Mutex
	browsers map[string]*Browser[C]
}

// NewManager creates a Manager.
func NewManager[C any](opts ManagerOptions[C]) (*Manager[C], error) {
	if opts.Tokens == nil || opts.Build == nil {
		return nil, fmt.Errorf("token namespace and build function are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	name := opts.CookieName
	if name == "" {
		name = DefaultCookieName
	}
	idle := opts.IdleTimeout
	if idle <= 0 {
		idle = defaultIdleTimeout
	}
	return &Manager[C]{
		tokens:   opts.Tokens,
		build:    opts.Build,
		cookie:   name,
		secure:   opts.SecureCookie,
		idle:     idle,
		clock:    clk,
		logger:   logger.With(slog.String("component", "browser-sessions")),
		browsers: make(map[string]*Browser[C]),
	}, nil
}

// Lookup returns the Browser owning the request's session cookie, or nil.
// A cookie unknown to this process is resumed when the namespace still
// holds a token for it; the resumed guard validates that token in the
// background and stays loading meanwhile.
func (m *Manager[C]) Lookup(r *http.Request) *Browser[C] {
	id, ok := m.cookieID(r)
	if !ok {
		return nil
	}

	m.mu.Lock()
	if b, ok := m.browsers[id]; ok {
		b.lastSeen = m.clock.Now()
		m.mu.Unlock()
		return b
	}
	m.mu.Unlock()

	return m.resume(id)
}

// Resolve implements Resolver.
func (m *Manager[C]) Resolve(r *http.Request) *Guard {
	if b := m.Lookup(r); b != nil {
		return b.Guard
	}
	return nil
}

// Begin prepares a fresh Browser for a login attempt. It is not reachable
// by any cookie until Commit.
func (m *Manager[C]) Begin(ctx context.Context) (*Browser[C], error) {
	b, err := m.newBrowser(uuid.NewString())
	if err != nil {
		return nil, err
	}
	// Settle the empty slot so a failed login restores unauthenticated.
	b.Guard.CheckAuth(ctx)
	return b, nil
}

// Commit makes b the request's session and sets its cookie. A previous
// session carried by the request is ended, so the id changes on every
// login.
func (m *Manager[C]) Commit(w http.ResponseWriter, r *http.Request, b *Browser[C]) {
	prev, hadPrev := m.cookieID(r)

	m.mu.Lock()
	if hadPrev && prev != b.ID {
		delete(m.browsers, prev)
	}
	b.lastSeen = m.clock.Now()
	m.browsers[b.ID] = b
	m.mu.Unlock()

	if hadPrev && prev != b.ID {
		m.tokens.Remove(prev)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookie,
		Value:    b.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure || r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
	m.logger.Debug("browser session started", slog.Int("sessions", m.Len()))
}

// Discard drops a Browser from Begin that never got committed.
func (m *Manager[C]) Discard(b *Browser[C]) {
	m.tokens.Remove(b.ID)
}

// End forgets the request's session and expires its cookie. The caller
// logs the guard out first so the event is emitted.
func (m *Manager[C]) End(w http.ResponseWriter, r *http.Request) {
	if id, ok := m.cookieID(r); ok {
		m.mu.Lock()
		delete(m.browsers, id)
		m.mu.Unlock()
		m.tokens.Remove(id)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure || r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}

// CheckCSRF reports whether r carries b's CSRF token in the X-CSRF-Token
// header or the csrf_token form field.
func (m *Manager[C]) CheckCSRF(b *Browser[C], r *http.Request) bool {
	token := r.Header.Get(CSRFHeader)
	if token == "" {
		token = r.PostFormValue(CSRFField)
	}
	if token == "" || b == nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(b.CSRF)) == 1
}

// Sweep ends browsers idle for longer than the idle timeout and returns how
// many were removed.
func (m *Manager[C]) Sweep() int {
	now := m.clock.Now()

	var expired []string
	m.mu.Lock()
	for id, b := range m.browsers {
		if now.Sub(b.lastSeen) > m.idle {
			delete(m.browsers, id)
			expired = append(expired, id)
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		m.tokens.Remove(id)
	}
	if len(expired) > 0 {
		m.logger.Info("idle browser sessions ended", slog.Int("count", len(expired)))
	}
	return len(expired)
}

// Run sweeps idle browsers every interval until ctx is done.
func (m *Manager[C]) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Len returns the number of live browsers.
func (m *Manager[C]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.browsers)
}

func (m *Manager[C]) cookieID(r *http.Request) (string, bool) {
	c, err := r.Cookie(m.cookie)
	if err != nil || c.Value == "" {
		return "", false
	}
	// Ids address token files and Redis keys, so only canonical uuids pass.
	id, err := uuid.Parse(c.Value)
	if err != nil || id.String() != c.Value {
		return "", false
	}
	return c.Value, true
}

func (m *Manager[C]) newBrowser(id string) (*Browser[C], error) {
	registry := NewRegistry()
	guard, client, err := m.build(m.tokens.Store(id), registry)
	if err != nil {
		return nil, fmt.Errorf("building session %s: %w", id, err)
	}
	registry.Register(guard)
	return &Browser[C]{
		ID:       id,
		CSRF:     uuid.NewString(),
		Guard:    guard,
		Client:   client,
		lastSeen: m.clock.Now(),
	}, nil
}

func (m *Manager[C]) resume(id string) *Browser[C] {
	if _, ok := m.tokens.Store(id).Get(); !ok {
		m.tokens.Remove(id)
		return nil
	}

	b, err := m.newBrowser(id)
	if err != nil {
		m.logger.Error("failed to resume browser session", slog.String("error", err.Error()))
		return nil
	}

	m.mu.Lock()
	if existing, ok := m.browsers[id]; ok {
		m.mu.Unlock()
		return existing
	}
	m.browsers[id] = b
	m.mu.Unlock()

	m.logger.Info("resuming browser session")
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), resumeTimeout)
		defer cancel()
		b.Guard.CheckAuth(ctx)
	}()
	return b
}
