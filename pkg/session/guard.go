// Package session owns the console's belief about whether the operator is
// signed in.
//
// The Guard is a three-state machine (loading, authenticated,
// unauthenticated) rebuilt from the token store on every start. Only a
// successful backend probe moves it to authenticated; every error moves it to
// unauthenticated. The RouteGuard turns that state into HTTP behavior, and the
// Registry carries 401s from the HTTP client back into the Guard.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wrcelo/erpwebui/pkg/apiclient"
	"github.com/wrcelo/erpwebui/pkg/auth"
	"github.com/wrcelo/erpwebui/pkg/clock"
	"github.com/wrcelo/erpwebui/pkg/notify"
	"github.com/wrcelo/erpwebui/pkg/tokenstore"
)

// Status is the session state.
type Status int

const (
	StatusLoading Status = iota
	StatusAuthenticated
	StatusUnauthenticated
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// Reason records why the session last became unauthenticated.
type Reason int

const (
	// ReasonNone: never authenticated in this process.
	ReasonNone Reason = iota
	// ReasonLoggedOut: the operator logged out.
	ReasonLoggedOut
	// ReasonExpired: the backend answered 401.
	ReasonExpired
	// ReasonRejected: validation failed for any other reason (network, 5xx).
	ReasonRejected
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonLoggedOut:
		return "logged_out"
	case ReasonExpired:
		return "expired"
	case ReasonRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Backend is what the guard needs from the API client.
type Backend interface {
	// Login exchanges credentials and, on success, stores the token.
	Login(ctx context.Context, email, password string) error

	// Probe validates the stored token against a protected endpoint.
	Probe(ctx context.Context) (*auth.Identity, error)
}

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	Status    Status
	Identity  *auth.Identity
	Reason    Reason
	CheckedAt time.Time
}

// IsLoading reports whether a decision is still pending.
func (s Snapshot) IsLoading() bool { return s.Status == StatusLoading }

// IsAuthenticated reports whether the session is authenticated.
func (s Snapshot) IsAuthenticated() bool { return s.Status == StatusAuthenticated }

// Options configures a Guard.
type Options struct {
	Store    tokenstore.Store
	Backend  Backend
	Notifier notify.Notifier
	Clock    clock.Clock
	Logger   *slog.Logger
	Metrics  *Metrics
}

// Guard is the session state machine. It is safe for concurrent use.
//
// Every CheckAuth and every forced transition takes a new sequence number.
// A check may only settle the session if its number is still the latest, so
// a slow probe can never overwrite a newer result or resurrect a session
// that was ended while it was in flight.
type Guard struct {
	store    tokenstore.Store
	backend  Backend
	notifier notify.Notifier
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *Metrics

	mu        sync.Mutex
	status    Status
	identity  *auth.Identity
	reason    Reason
	checkedAt time.Time
	seq       uint64
	settled   chan struct{} // closed whenever status leaves loading

	// last terminal state observers were told about
	announced       Status
	announcedReason Reason
}

// NewGuard creates a Guard in the loading state. Call CheckAuth once at
// startup to settle it.
func NewGuard(opts Options) *Guard {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &Guard{
		store:     opts.Store,
		backend:   opts.Backend,
		notifier:  opts.Notifier,
		clock:     clk,
		logger:    logger.With(slog.String("component", "session")),
		metrics:   opts.Metrics,
		status:    StatusLoading,
		settled:   make(chan struct{}),
		announced: StatusLoading,
	}
}

// Snapshot returns a copy of the current state.
func (g *Guard) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Snapshot{
		Status:    g.status,
		Identity:  g.identity.Clone(),
		Reason:    g.reason,
		CheckedAt: g.checkedAt,
	}
}

// Status returns the current status.
func (g *Guard) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

// IsAuthenticated reports whether the session is authenticated.
func (g *Guard) IsAuthenticated() bool {
	return g.Status() == StatusAuthenticated
}

// Identity returns the current identity, or nil.
func (g *Guard) Identity() *auth.Identity {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.identity.Clone()
}

// WaitSettled blocks until the session is no longer loading.
func (g *Guard) WaitSettled(ctx context.Context) (Snapshot, error) {
	for {
		g.mu.Lock()
		if g.status != StatusLoading {
			g.mu.Unlock()
			return g.Snapshot(), nil
		}
		ch := g.settled
		g.mu.Unlock()

		select {
		case <-ctx.Done():
			return g.Snapshot(), ctx.Err()
		case <-ch:
		}
	}
}

// CheckAuth validates the stored token with the backend and settles the
// session. It returns true only when the session is authenticated afterwards.
func (g *Guard) CheckAuth(ctx context.Context) bool {
	g.mu.Lock()
	g.seq++
	seq := g.seq
	g.enterLoading()
	g.mu.Unlock()

	token, ok := g.store.Get()
	if !ok {
		g.mu.Lock()
		if seq != g.seq {
			authed := g.staleLocked(seq)
			g.mu.Unlock()
			return authed
		}
		g.identity = nil
		reason := g.reason
		if g.announced == StatusAuthenticated {
			// The token vanished underneath a live session.
			reason = ReasonExpired
		}
		ev := g.settleLocked(StatusUnauthenticated, reason)
		g.mu.Unlock()
		g.emit(ctx, ev)
		return false
	}

	identity, err := g.backend.Probe(ctx)

	g.mu.Lock()
	if seq != g.seq {
		authed := g.staleLocked(seq)
		g.mu.Unlock()
		return authed
	}

	if err != nil {
		g.store.Clear()
		g.identity = nil
		reason := ReasonRejected
		if apiclient.IsUnauthorized(err) {
			reason = ReasonExpired
		}
		g.logger.Warn("session validation failed",
			slog.String("reason", reason.String()),
			slog.String("error", err.Error()),
		)
		ev := g.settleLocked(StatusUnauthenticated, reason)
		g.mu.Unlock()
		g.emit(ctx, ev)
		return false
	}

	// The token may have been cleared while the probe was in flight by
	// something that does not go through the guard.
	if current, ok := g.store.Get(); !ok || current != token {
		g.identity = nil
		ev := g.settleLocked(StatusUnauthenticated, ReasonExpired)
		g.mu.Unlock()
		g.emit(ctx, ev)
		return false
	}

	g.identity = displayIdentity(identity, token)
	ev := g.settleLocked(StatusAuthenticated, ReasonNone)
	g.mu.Unlock()
	g.emit(ctx, ev)
	return true
}

// Login exchanges credentials with the backend. On success the session is
// re-derived through CheckAuth before returning, so a true result means the
// session is already authenticated. On failure the previous state is
// restored and false is returned.
func (g *Guard) Login(ctx context.Context, email, password string) bool {
	g.mu.Lock()
	seq := g.seq
	prevStatus, prevReason := g.status, g.reason
	g.enterLoading()
	g.mu.Unlock()

	if err := g.backend.Login(ctx, email, password); err != nil {
		g.logger.Info("login failed", slog.String("error", err.Error()))

		g.mu.Lock()
		// Put the state back unless something else settled it meanwhile.
		if g.seq == seq && g.status == StatusLoading {
			g.status = prevStatus
			g.reason = prevReason
			if prevStatus != StatusLoading {
				close(g.settled)
			}
		}
		g.mu.Unlock()

		g.emit(ctx, &notify.Event{
			Type:      notify.TypeRejected,
			Message:   "login rejected",
			Subject:   email,
			Timestamp: g.clock.Now().Unix(),
		})
		return false
	}

	return g.CheckAuth(ctx)
}

// SetAuthenticated forces the session state. false ends the session as
// expired and clears the token store; it is what the HTTP client triggers on
// a 401. true only takes effect while a token is stored.
// Both directions are idempotent.
func (g *Guard) SetAuthenticated(authenticated bool) {
	g.mu.Lock()
	if !authenticated {
		g.seq++
		g.store.Clear()
		g.identity = nil
		ev := g.settleLocked(StatusUnauthenticated, ReasonExpired)
		g.mu.Unlock()
		g.emit(context.Background(), ev)
		return
	}

	token, ok := g.store.Get()
	if !ok {
		g.mu.Unlock()
		g.logger.Warn("ignoring SetAuthenticated(true) without a stored token")
		return
	}
	g.seq++
	if g.identity == nil {
		g.identity = auth.DecodeIdentity(token)
	}
	ev := g.settleLocked(StatusAuthenticated, ReasonNone)
	g.mu.Unlock()
	g.emit(context.Background(), ev)
}

// Logout ends the session at the operator's request.
func (g *Guard) Logout() {
	g.mu.Lock()
	g.seq++
	g.store.Clear()
	g.identity = nil
	ev := g.settleLocked(StatusUnauthenticated, ReasonLoggedOut)
	g.mu.Unlock()
	g.emit(context.Background(), ev)
}

// enterLoading must be called with g.mu held.
func (g *Guard) enterLoading() {
	if g.status == StatusLoading {
		return
	}
	g.status = StatusLoading
	g.settled = make(chan struct{})
	g.metrics.transition(StatusLoading)
}

// settleLocked moves to a terminal state and returns the event to emit once
// the lock is released, or nil when observers already know this state.
// Must be called with g.mu held.
func (g *Guard) settleLocked(to Status, reason Reason) *notify.Event {
	from := g.status

	g.status = to
	g.reason = reason
	g.checkedAt = g.clock.Now()
	if from == StatusLoading {
		close(g.settled)
	}
	if from != to {
		g.metrics.transition(to)
	}

	if g.announced == to && g.announcedReason == reason {
		return nil
	}
	prev := g.announced
	g.announced, g.announcedReason = to, reason

	g.logger.Info("session state changed",
		slog.String("from", prev.String()),
		slog.String("to", to.String()),
		slog.String("reason", reason.String()),
	)

	ev := &notify.Event{Timestamp: g.checkedAt.Unix()}
	switch {
	case to == StatusAuthenticated:
		ev.Type = notify.TypeAuthenticated
		ev.Message = "signed in"
		ev.Subject = g.identity.Label()
	case reason == ReasonLoggedOut:
		ev.Type = notify.TypeLoggedOut
		ev.Message = "signed out"
	case reason == ReasonExpired:
		ev.Type = notify.TypeExpired
		ev.Message = "session expired"
	case reason == ReasonRejected:
		ev.Type = notify.TypeRejected
		ev.Message = "session could not be validated"
	default:
		// Unauthenticated without a prior session: nothing to announce.
		return nil
	}
	return ev
}

// staleLocked handles a check that lost the race. Must be called with g.mu held.
func (g *Guard) staleLocked(seq uint64) bool {
	g.metrics.staleCheck()
	g.logger.Debug("discarding stale authentication check",
		slog.Uint64("seq", seq),
		slog.Uint64("latest", g.seq),
	)
	return g.status == StatusAuthenticated
}

func (g *Guard) emit(ctx context.Context, ev *notify.Event) {
	if ev == nil || g.notifier == nil {
		return
	}
	if err := g.notifier.Notify(ctx, *ev); err != nil {
		g.logger.Warn("failed to deliver session event",
			slog.String("type", ev.Type),
			slog.String("error", err.Error()),
		)
	}
}

// displayIdentity prefers the backend's verified identity and falls back to
// an unverified, display-only decoding of the token.
func displayIdentity(verified *auth.Identity, token string) *auth.Identity {
	if verified != nil && !verified.IsPlaceholder() {
		return verified.Clone()
	}
	return auth.DecodeIdentity(token)
}
