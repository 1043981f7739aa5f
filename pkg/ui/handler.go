package ui

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"net/mail"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wrcelo/erpwebui/pkg/apiclient"
	"github.com/wrcelo/erpwebui/pkg/auth"
	"github.com/wrcelo/erpwebui/pkg/clock"
	"github.com/wrcelo/erpwebui/pkg/config"
	"github.com/wrcelo/erpwebui/pkg/session"
)

//go:embed templates/*.html static/*.css
var content embed.FS

const (
	minPasswordLength = 8
	maxPageSize       = 100
	maxColumns        = 6
)

// Backend is the part of the API client the views need.
type Backend interface {
	List(ctx context.Context, res apiclient.Resource) ([]apiclient.Record, error)
	Fetch(ctx context.Context, res apiclient.Resource, id string) (apiclient.Record, error)
	Remove(ctx context.Context, res apiclient.Resource, id string) error
}

// Sessions maps browser cookies to their guard and API client.
type Sessions = session.Manager[Backend]

// browser is one signed-in browser.
type browser = session.Browser[Backend]

// Options configures a Handler.
type Options struct {
	Sessions *Sessions
	Route    *session.RouteGuard

	// PageSize is the default number of rows per page. Default: 10.
	PageSize int

	// LoginRate is the sustained login attempts per second allowed per
	// client IP, with LoginBurst attempts allowed at once.
	LoginRate  float64
	LoginBurst int

	// TrustedProxies lists the peers (IPs or CIDRs) whose X-Forwarded-For
	// header is honored when identifying the client.
	TrustedProxies []string

	Clock  clock.Clock
	Logger *slog.Logger
}

// Handler serves the dashboard views.
type Handler struct {
	sessions  *Sessions
	route     *session.RouteGuard
	pageSize  int
	limiter   *loginLimiter
	trusted   []netip.Prefix
	templates *template.Template
	logger    *slog.Logger
}

// NewHandler creates a new UI handler.
func NewHandler(opts Options) (*Handler, error) {
	if opts.Sessions == nil || opts.Route == nil {
		return nil, fmt.Errorf("session manager and route guard are required")
	}
	trusted, err := config.ParseTrustedProxies(opts.TrustedProxies)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}
	loginRate, loginBurst := opts.LoginRate, opts.LoginBurst
	if loginRate <= 0 {
		loginRate = 0.2
	}
	if loginBurst <= 0 {
		loginBurst = 5
	}

	funcMap := template.FuncMap{
		"formatValue": apiclient.FormatValue,
		"formatTime":  formatTime,
		"cell":        func(rec apiclient.Record, col string) string { return apiclient.FormatValue(rec[col]) },
		"pathEscape":  url.PathEscape,
		"add":         func(a, b int) int { return a + b },
	}

	tmpl, err := template.New("").Funcs(funcMap).ParseFS(content, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	return &Handler{
		sessions:  opts.Sessions,
		route:     opts.Route,
		pageSize:  pageSize,
		limiter:   newLoginLimiter(loginRate, loginBurst, opts.Clock),
		trusted:   trusted,
		templates: tmpl,
		logger:    logger.With(slog.String("component", "ui")),
	}, nil
}

// RegisterRoutes registers all UI routes on the given mux. The mux is meant
// to be served behind the route guard.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/login", h.handleLogin)
	mux.HandleFunc("/logout", h.handleLogout)
	mux.HandleFunc("/", h.handleResources)

	// Serve static files from embedded filesystem
	staticFS, _ := fs.Sub(content, "static")
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))
}

// Shared page chrome

type pageData struct {
	Title     string
	User      string
	Resources []apiclient.Resource
	Active    apiclient.Resource
	Message   string
	Error     string
	CSRF      string
}

func (h *Handler) page(r *http.Request, b *browser, title string) pageData {
	user := ""
	if id := auth.IdentityFromContext(r.Context()); id != nil {
		user = id.Label()
	}
	csrf := ""
	if b != nil {
		csrf = b.CSRF
	}
	return pageData{
		Title:     title,
		User:      user,
		Resources: apiclient.Resources,
		Message:   r.URL.Query().Get("message"),
		Error:     r.URL.Query().Get("error"),
		CSRF:      csrf,
	}
}

// requireBrowser returns the session of r. Without one the request has already
// been answered with a redirect to the login page.
func (h *Handler) requireBrowser(w http.ResponseWriter, r *http.Request) *browser {
	b := h.sessions.Lookup(r)
	if b == nil {
		h.route.Redirect(w, r)
	}
	return b
}

// Login

type loginData struct {
	pageData
	Email   string
	Expired bool
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		if b := h.sessions.Lookup(r); b != nil && b.Guard.IsAuthenticated() {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		data := loginData{
			pageData: pageData{Title: "Login"},
			Expired:  r.URL.Query().Get("expired") == "true",
		}
		h.render(w, "login.html", data)

	case http.MethodPost:
		h.handleLoginSubmit(w, r)

	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r, h.trusted)
	if !h.limiter.allow(ip) {
		h.logger.Warn("login rate limit exceeded", slog.String("client_ip", ip))
		w.Header().Set("Retry-After", strconv.Itoa(h.limiter.retryAfter()))
		h.renderStatus(w, http.StatusTooManyRequests, "login.html", loginData{
			pageData: pageData{Title: "Login", Error: "Muitas tentativas. Aguarde alguns instantes."},
		})
		return
	}

	if err := r.ParseForm(); err != nil {
		h.renderStatus(w, http.StatusBadRequest, "login.html", loginData{
			pageData: pageData{Title: "Login", Error: "Formulário inválido"},
		})
		return
	}
	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")

	if msg := validateCredentials(email, password); msg != "" {
		h.renderStatus(w, http.StatusUnprocessableEntity, "login.html", loginData{
			pageData: pageData{Title: "Login", Error: msg},
			Email:    email,
		})
		return
	}

	b, err := h.sessions.Begin(r.Context())
	if err != nil {
		h.logger.Error("failed to start browser session", slog.String("error", err.Error()))
		h.renderStatus(w, http.StatusInternalServerError, "login.html", loginData{
			pageData: pageData{Title: "Login", Error: "Falha ao iniciar a sessão"},
			Email:    email,
		})
		return
	}
	if !b.Guard.Login(r.Context(), email, password) {
		h.sessions.Discard(b)
		h.renderStatus(w, http.StatusUnauthorized, "login.html", loginData{
			pageData: pageData{Title: "Login", Error: "Usuário e/ou senha inválido"},
			Email:    email,
		})
		return
	}
	h.sessions.Commit(w, r, b)

	h.logger.Info("operator signed in", slog.String("client_ip", ip))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// validateCredentials returns a user-facing message, or "" when the form is
// acceptable.
func validateCredentials(email, password string) string {
	if email == "" {
		return "Informe o email"
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "Email inválido"
	}
	if len([]rune(password)) < minPasswordLength {
		return fmt.Sprintf("A senha deve ter pelo menos %d caracteres", minPasswordLength)
	}
	return ""
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	b := h.sessions.Lookup(r)
	if b == nil {
		h.sessions.End(w, r)
		http.Redirect(w, r, session.DefaultLoginPath, http.StatusSeeOther)
		return
	}
	if !h.sessions.CheckCSRF(b, r) {
		h.logger.Warn("logout rejected: invalid CSRF token", slog.String("client_ip", clientIP(r, h.trusted)))
		http.Error(w, "invalid CSRF token", http.StatusForbidden)
		return
	}
	b.Guard.Logout()
	h.sessions.End(w, r)
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", session.DefaultLoginPath)
		return
	}
	http.Redirect(w, r, session.DefaultLoginPath, http.StatusSeeOther)
}

// Resource routing: /, /{resource}, /{resource}/{id}, /{resource}/{id}/delete

func (h *Handler) handleResources(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(r.URL.Path, "/")
	if path == "" {
		if b := h.requireBrowser(w, r); b != nil {
			h.handleHome(w, r, b)
		}
		return
	}

	parts := strings.Split(path, "/")
	res, err := apiclient.ParseResource(parts[0])
	if err != nil {
		http.NotFound(w, r)
		return
	}

	b := h.requireBrowser(w, r)
	if b == nil {
		return
	}

	switch {
	case len(parts) == 1:
		h.handleList(w, r, b, res)
	case len(parts) == 2 && parts[1] != "":
		h.handleDetail(w, r, b, res, parts[1])
	case len(parts) == 3 && parts[2] == "delete" && r.Method == http.MethodPost:
		h.handleDelete(w, r, b, res, parts[1])
	default:
		http.NotFound(w, r)
	}
}

// Home

type homeData struct {
	pageData
	CheckedAt time.Time
}

func (h *Handler) handleHome(w http.ResponseWriter, r *http.Request, b *browser) {
	data := homeData{
		pageData:  h.page(r, b, "Início"),
		CheckedAt: b.Guard.Snapshot().CheckedAt,
	}
	h.render(w, "home.html", data)
}

// Resource list

type listData struct {
	pageData
	Resource   apiclient.Resource
	Columns    []string
	Records    []apiclient.Record
	Query      string
	Page       int
	Size       int
	Total      int
	TotalPages int
}

func (d listData) HasPrev() bool { return d.Page > 1 }
func (d listData) HasNext() bool { return d.Page < d.TotalPages }

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request, b *browser, res apiclient.Resource) {
	records, err := b.Client.List(r.Context(), res)
	if err != nil {
		h.backendError(w, r, b, fmt.Sprintf("Falha ao carregar %s", res.Title()), err)
		return
	}

	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))
	page := positiveInt(q.Get("page"), 1)
	size := min(positiveInt(q.Get("size"), h.pageSize), maxPageSize)

	filtered := apiclient.FilterRecords(records, query)
	total := len(filtered)
	totalPages := max((total+size-1)/size, 1)
	page = min(page, totalPages)

	start := (page - 1) * size
	end := min(start+size, total)

	data := listData{
		pageData:   h.page(r, b, res.Title()),
		Resource:   res,
		Columns:    apiclient.Columns(filtered, maxColumns),
		Records:    filtered[start:end],
		Query:      query,
		Page:       page,
		Size:       size,
		Total:      total,
		TotalPages: totalPages,
	}
	data.Active = res

	// For HTMX requests, only render the table
	if r.Header.Get("HX-Request") == "true" {
		h.render(w, "list_table.html", data)
		return
	}
	h.render(w, "list.html", data)
}

// Record detail

type field struct {
	Name  string
	Value string
}

type detailData struct {
	pageData
	Resource apiclient.Resource
	ID       string
	Fields   []field
}

func (h *Handler) handleDetail(w http.ResponseWriter, r *http.Request, b *browser, res apiclient.Resource, id string) {
	rec, err := b.Client.Fetch(r.Context(), res, id)
	if err != nil {
		h.backendError(w, r, b, fmt.Sprintf("Falha ao carregar registro %s", id), err)
		return
	}

	keys := rec.Keys()
	fields := make([]field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, field{Name: k, Value: apiclient.FormatValue(rec[k])})
	}

	data := detailData{
		pageData: h.page(r, b, res.Title()),
		Resource: res,
		ID:       id,
		Fields:   fields,
	}
	data.Active = res
	h.render(w, "detail.html", data)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request, b *browser, res apiclient.Resource, id string) {
	if !h.sessions.CheckCSRF(b, r) {
		h.logger.Warn("delete rejected: invalid CSRF token",
			slog.String("resource", string(res)),
			slog.String("id", id),
		)
		http.Error(w, "invalid CSRF token", http.StatusForbidden)
		return
	}
	if err := b.Client.Remove(r.Context(), res, id); err != nil {
		if apiclient.IsUnauthorized(err) {
			h.route.Redirect(w, r)
			return
		}
		h.logger.Error("failed to delete record",
			slog.String("resource", string(res)),
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		target := fmt.Sprintf("/%s/%s?error=%s", res, url.PathEscape(id), url.QueryEscape(errorMessage(err)))
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}

	h.logger.Info("record deleted",
		slog.String("resource", string(res)),
		slog.String("id", id),
	)
	target := fmt.Sprintf("/%s?message=%s", res, url.QueryEscape("Registro removido com sucesso"))
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// Rendering helpers

type errorData struct {
	pageData
	Status  int
	Summary string
	Detail  string
}

// backendError renders a failed backend call. A 401 has already ended the
// session; the operator is sent to the login page instead.
func (h *Handler) backendError(w http.ResponseWriter, r *http.Request, b *browser, summary string, err error) {
	if apiclient.IsUnauthorized(err) {
		h.route.Redirect(w, r)
		return
	}

	status := apiclient.StatusOf(err)
	code := http.StatusInternalServerError
	switch {
	case status == apiclient.StatusNoResponse:
		code = http.StatusBadGateway
	case status >= 200 && status < 300:
		// The backend answered with a body we could not read.
		code = http.StatusBadGateway
	case status >= 400 && status < 600:
		code = status
	}

	h.logger.Error(summary, slog.Int("status", status), slog.String("error", err.Error()))
	data := errorData{
		pageData: h.page(r, b, "Erro"),
		Status:   status,
		Summary:  summary,
		Detail:   errorMessage(err),
	}
	h.renderStatus(w, code, "error.html", data)
}

func errorMessage(err error) string {
	if apiclient.IsConnectionError(err) {
		return "connection failed"
	}
	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}

func (h *Handler) render(w http.ResponseWriter, name string, data interface{}) {
	h.renderStatus(w, http.StatusOK, name, data)
}

func (h *Handler) renderStatus(w http.ResponseWriter, code int, name string, data interface{}) {
	var buf strings.Builder
	if err := h.templates.ExecuteTemplate(&buf, name, data); err != nil {
		h.logger.Error("template render failed", slog.String("template", name), slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(buf.String()))
}

// Table helpers

func positiveInt(raw string, fallback int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

// Template functions

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("02/01/2006 15:04:05")
}
