package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/wrcelo/erpwebui/pkg/auth"
)

type loginRequest struct {
	Email string `json:"email"`
	Senha string `json:"senha"`
}

type loginResponse struct {
	AccessToken *string `json:"accessToken"`
}

// Login exchanges credentials for a bearer token at <IdentityURL>/login and
// stores it. Only a 200 response with a non-empty accessToken counts as
// success; in every other case the token store is left untouched and the
// returned error wraps ErrLoginFailed.
//
// Login bypasses the response interceptor: a 401 here means wrong
// credentials, not an expired session.
func (c *Client) Login(ctx context.Context, email, password string) error {
	req, err := newJSONRequest(ctx, http.MethodPost, resolve(c.identityURL, "login"), loginRequest{Email: email, Senha: password})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoginFailed, &Error{Status: StatusNotSent, Message: err.Error(), Err: err})
	}

	start := time.Now()
	resp, err := c.bare.Do(req)
	if err != nil {
		c.metrics.observe(http.MethodPost, StatusNoResponse, time.Since(start))
		c.logger.Error("login request failed", slog.String("error", err.Error()))
		return fmt.Errorf("%w: %w", ErrLoginFailed, &Error{Status: StatusNoResponse, Message: "connection failed", Err: err})
	}
	defer resp.Body.Close()
	c.metrics.observe(http.MethodPost, resp.StatusCode, time.Since(start))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("%w: reading response: %w", ErrLoginFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("login rejected", slog.Int("status", resp.StatusCode))
		return fmt.Errorf("%w: %w", ErrLoginFailed, &Error{
			Status:  resp.StatusCode,
			Data:    responseData(body),
			Message: responseMessage(resp.StatusCode, body),
		})
	}

	var out loginResponse
	if err := json.Unmarshal(body, &out); err != nil {
		c.logger.Warn("login response is not valid JSON", slog.String("error", err.Error()))
		return fmt.Errorf("%w: decoding response: %w", ErrLoginFailed, err)
	}
	if out.AccessToken == nil || strings.TrimSpace(*out.AccessToken) == "" {
		c.logger.Warn("login response carries no access token")
		return fmt.Errorf("%w: response carries no access token", ErrLoginFailed)
	}

	c.store.Set(*out.AccessToken)
	c.logger.Info("login succeeded")
	return nil
}

// Probe validates the stored token by calling the protected probe endpoint.
// A 200 response means the session is alive. Identity fields found in a JSON
// object body are returned as a verified identity; the identity is empty when
// the body has none.
func (c *Client) Probe(ctx context.Context) (*auth.Identity, error) {
	var body json.RawMessage
	if err := c.Get(ctx, c.probePath, &body); err != nil {
		return nil, err
	}
	id := identityFromBody(body)
	id.Verified = true
	return id, nil
}

// identityFromBody reads the usual user fields from a probe response. Keys
// are matched case-insensitively because the backend serializes with either
// camelCase or PascalCase.
func identityFromBody(body []byte) *auth.Identity {
	id := &auth.Identity{}

	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return id
	}
	lower := make(map[string]any, len(obj))
	for k, v := range obj {
		lower[strings.ToLower(k)] = v
	}

	id.Email = stringField(lower, "email")
	id.Name = stringField(lower, "nome", "name", "username")
	id.Subject = stringField(lower, "id", "sub", "userid")
	if roles, ok := lower["roles"].([]any); ok {
		for _, r := range roles {
			if s, ok := r.(string); ok {
				id.Groups = append(id.Groups, s)
			}
		}
	}
	return id
}

func stringField(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := obj[k].(type) {
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
