package config

import (
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Token store backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Config is the root configuration for the ERP console.
type Config struct {
	API        APIConfig        `yaml:"api"`
	TokenStore TokenStoreConfig `yaml:"token_store,omitempty"`
	Dashboard  DashboardConfig  `yaml:"dashboard,omitempty"`
}

// APIConfig locates the REST backend. Both base URLs are read once at startup.
type APIConfig struct {
	BaseURL     string        `yaml:"base_url"`
	IdentityURL string        `yaml:"identity_url"`
	ProbePath   string        `yaml:"probe_path,omitempty"` // Default: "v1/usuarios/me"
	Timeout     time.Duration `yaml:"timeout,omitempty"`    // 0 keeps the transport default
}

// TokenStoreConfig selects where the bearer token is persisted.
type TokenStoreConfig struct {
	Backend       string `yaml:"backend,omitempty"` // memory, file, redis. Default: file
	Path          string `yaml:"path,omitempty"`    // file backend. Default: <user config dir>/erp/authToken
	RedisAddr     string `yaml:"redis_addr,omitempty"`
	RedisPassword string `yaml:"redis_password,omitempty"`
	RedisDB       int    `yaml:"redis_db,omitempty"`
	RedisKey      string `yaml:"redis_key,omitempty"` // Default: "erp:authToken"
}

// DashboardConfig configures the web dashboard server.
type DashboardConfig struct {
	Address    string  `yaml:"address,omitempty"`     // Default: "127.0.0.1:8080"
	LoginRate  float64 `yaml:"login_rate,omitempty"`  // Login attempts per second per client. Default: 0.2
	LoginBurst int     `yaml:"login_burst,omitempty"` // Default: 5
	PageSize   int     `yaml:"page_size,omitempty"`   // Default: 10

	// TrustedProxies lists the peers (IPs or CIDRs) whose X-Forwarded-For
	// header is believed. Empty means the socket peer is always the client.
	TrustedProxies []string `yaml:"trusted_proxies,omitempty"`

	// SecureCookie marks the session cookie Secure even when the dashboard
	// itself is served over plain HTTP behind a TLS proxy.
	SecureCookie bool `yaml:"secure_cookie,omitempty"`

	// SessionIdleTimeout ends browser sessions that made no request for this
	// long. Default: 12h
	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout,omitempty"`
}

// Default returns a configuration with every default applied and no backend URLs.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads configuration from a YAML file, applies defaults and environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse builds a configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads path when it is set, otherwise builds the configuration
// from defaults and the environment alone.
func LoadOrDefault(path string) (*Config, error) {
	return Build(path)
}

// Build loads path (optional), applies defaults and the environment, then
// each override in order, and validates the result. Command-line flags are
// applied as overrides so they win over both the file and the environment.
func Build(path string, overrides ...func(*Config)) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if cfg, err = decode(data); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv(os.Getenv)
	for _, o := range overrides {
		o(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func decode(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// ApplyEnv overrides fields from environment variables. The VITE_REACT_APP_*
// names are accepted so an existing frontend .env file keeps working.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := firstNonEmpty(getenv("ERP_API_URL"), getenv("VITE_REACT_APP_API_URL")); v != "" {
		c.API.BaseURL = v
	}
	if v := firstNonEmpty(getenv("ERP_IDENTITY_URL"), getenv("VITE_REACT_APP_API_IDENTITY_URL")); v != "" {
		c.API.IdentityURL = v
	}
	if v := getenv("ERP_TOKEN_STORE"); v != "" {
		c.TokenStore.Backend = strings.ToLower(v)
	}
	if v := getenv("ERP_TOKEN_FILE"); v != "" {
		c.TokenStore.Path = v
	}
	if v := getenv("ERP_REDIS_ADDR"); v != "" {
		c.TokenStore.RedisAddr = v
	}
	if v := getenv("ERP_DASHBOARD_ADDR"); v != "" {
		c.Dashboard.Address = v
	}
	if v := getenv("ERP_TRUSTED_PROXIES"); v != "" {
		c.Dashboard.TrustedProxies = splitList(v)
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := validateURL("api.base_url", c.API.BaseURL); err != nil {
		return err
	}
	if err := validateURL("api.identity_url", c.API.IdentityURL); err != nil {
		return err
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("api.timeout must be >= 0")
	}

	switch c.TokenStore.Backend {
	case BackendMemory, BackendFile:
	case BackendRedis:
		if c.TokenStore.RedisAddr == "" {
			return fmt.Errorf("token_store: redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("token_store: unknown backend %q", c.TokenStore.Backend)
	}

	if c.Dashboard.LoginRate < 0 {
		return fmt.Errorf("dashboard.login_rate must be >= 0")
	}
	if c.Dashboard.PageSize <= 0 {
		return fmt.Errorf("dashboard.page_size must be > 0")
	}
	if c.Dashboard.SessionIdleTimeout < 0 {
		return fmt.Errorf("dashboard.session_idle_timeout must be >= 0")
	}
	if _, err := ParseTrustedProxies(c.Dashboard.TrustedProxies); err != nil {
		return fmt.Errorf("dashboard.trusted_proxies: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.ProbePath == "" {
		c.API.ProbePath = "v1/usuarios/me"
	}
	if c.TokenStore.Backend == "" {
		c.TokenStore.Backend = BackendFile
	}
	if c.TokenStore.Path == "" {
		c.TokenStore.Path = DefaultTokenPath()
	}
	if c.TokenStore.RedisKey == "" {
		c.TokenStore.RedisKey = "erp:authToken"
	}
	if c.Dashboard.Address == "" {
		c.Dashboard.Address = "127.0.0.1:8080"
	}
	if c.Dashboard.LoginRate == 0 {
		c.Dashboard.LoginRate = 0.2
	}
	if c.Dashboard.LoginBurst == 0 {
		c.Dashboard.LoginBurst = 5
	}
	if c.Dashboard.PageSize == 0 {
		c.Dashboard.PageSize = 10
	}
	if c.Dashboard.SessionIdleTimeout == 0 {
		c.Dashboard.SessionIdleTimeout = 12 * time.Hour
	}
}

// ParseTrustedProxies converts addresses and CIDRs into prefixes. A bare
// address becomes a single-host prefix.
func ParseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			p, err := netip.ParsePrefix(e)
			if err != nil {
				return nil, fmt.Errorf("invalid CIDR %q", e)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("invalid address %q", e)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// DefaultTokenPath returns the file the token is persisted to when no path is
// configured.
func DefaultTokenPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "erp", "authToken")
}

func validateURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: scheme must be http or https, got %q", field, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s: host is required", field)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
