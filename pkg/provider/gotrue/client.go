// Package gotrue implements provisioning.IdentityProvider against a GoTrue
// (Supabase Auth) REST endpoint.
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tendant/account-provisioner/pkg/domain"
)

const (
	// DefaultTimeout bounds every request when no HTTP client is supplied.
	DefaultTimeout = 10 * time.Second

	maxResponseBytes = 1 << 20
)

// Config configures the GoTrue client.
type Config struct {
	// BaseURL is the auth endpoint root, e.g. https://project.supabase.co/auth/v1.
	BaseURL string
	// APIKey is sent as the apikey header on every request.
	APIKey string
	// RedirectURL is passed as redirect_to on password recovery, if set.
	RedirectURL string

	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *slog.Logger
}

// Client talks to GoTrue. It is safe for concurrent use.
type Client struct {
	baseURL     string
	apiKey      string
	redirectURL string
	httpClient  *http.Client
	logger      *slog.Logger
	now         func() time.Time
}

// New creates a GoTrue client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		redirectURL: cfg.RedirectURL,
		httpClient:  cfg.HTTPClient,
		logger:      cfg.Logger,
		now:         time.Now,
	}
}

type userResponse struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at"`
	ConfirmedAt      *time.Time     `json:"confirmed_at"`
	CreatedAt        time.Time      `json:"created_at"`
	UserMetadata     map[string]any `json:"user_metadata"`
}

type sessionResponse struct {
	AccessToken  string        `json:"access_token"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    int           `json:"expires_in"`
	ExpiresAt    int64         `json:"expires_at"`
	RefreshToken string        `json:"refresh_token"`
	User         *userResponse `json:"user"`
}

func (u *userResponse) account() *domain.Account {
	if u == nil || u.ID == "" {
		return nil
	}
	a := &domain.Account{
		ID:             u.ID,
		Email:          u.Email,
		EmailConfirmed: u.EmailConfirmedAt != nil || u.ConfirmedAt != nil,
		CreatedAt:      u.CreatedAt,
		Metadata:       u.UserMetadata,
	}
	if name, ok := u.UserMetadata["full_name"].(string); ok {
		a.DisplayName = name
	}
	return a
}

func (s *sessionResponse) session(now time.Time) *domain.Session {
	if s.AccessToken == "" {
		return nil
	}
	out := &domain.Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
		ExpiresIn:    s.ExpiresIn,
	}
	switch {
	case s.ExpiresAt > 0:
		out.ExpiresAt = time.Unix(s.ExpiresAt, 0).UTC()
	case s.ExpiresIn > 0:
		out.ExpiresAt = now.Add(time.Duration(s.ExpiresIn) * time.Second).UTC()
	}
	if s.User != nil {
		out.UserID = s.User.ID
	}
	return out
}

// SignUp creates an account. Depending on the project's confirmation
// settings GoTrue answers with a bare user or with a session and user.
func (c *Client) SignUp(ctx context.Context, creds domain.Credentials, meta domain.AccountMetadata) (*domain.Account, *domain.Session, error) {
	body := map[string]any{
		"email":    creds.Email,
		"password": creds.Password,
		"data":     map[string]any{"full_name": meta.DisplayName},
	}

	raw, err := c.do(ctx, http.MethodPost, "/signup", nil, "", body)
	if err != nil {
		return nil, nil, err
	}

	var sess sessionResponse
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, nil, c.decodeError("signup", err)
	}
	if sess.AccessToken != "" {
		return sess.User.account(), sess.session(c.now()), nil
	}

	var user userResponse
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, nil, c.decodeError("signup", err)
	}
	return user.account(), nil, nil
}

// SignInWithPassword exchanges email and password for a session.
func (c *Client) SignInWithPassword(ctx context.Context, creds domain.Credentials) (*domain.Account, *domain.Session, error) {
	query := url.Values{"grant_type": {"password"}}
	body := map[string]string{"email": creds.Email, "password": creds.Password}

	raw, err := c.do(ctx, http.MethodPost, "/token", query, "", body)
	if err != nil {
		return nil, nil, err
	}

	var sess sessionResponse
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, nil, c.decodeError("token", err)
	}
	return sess.User.account(), sess.session(c.now()), nil
}

// SignOut revokes the session's refresh tokens.
func (c *Client) SignOut(ctx context.Context, session domain.Session) error {
	_, err := c.do(ctx, http.MethodPost, "/logout", nil, session.AccessToken, nil)
	return err
}

// ResetPasswordForEmail asks GoTrue to mail a recovery link. GoTrue answers
// the same way whether or not the address has an account.
func (c *Client) ResetPasswordForEmail(ctx context.Context, email string) error {
	var query url.Values
	if c.redirectURL != "" {
		query = url.Values{"redirect_to": {c.redirectURL}}
	}
	_, err := c.do(ctx, http.MethodPost, "/recover", query, "", map[string]string{"email": email})
	return err
}

// UpdatePassword sets a new password for the session's user.
func (c *Client) UpdatePassword(ctx context.Context, session domain.Session, newPassword string) (*domain.Account, error) {
	raw, err := c.do(ctx, http.MethodPut, "/user", nil, session.AccessToken, map[string]string{"password": newPassword})
	if err != nil {
		return nil, err
	}
	var user userResponse
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, c.decodeError("user", err)
	}
	return user.account(), nil
}

// GetUser returns the account the session belongs to.
func (c *Client) GetUser(ctx context.Context, session domain.Session) (*domain.Account, error) {
	raw, err := c.do(ctx, http.MethodGet, "/user", nil, session.AccessToken, nil)
	if err != nil {
		return nil, err
	}
	var user userResponse
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, c.decodeError("user", err)
	}
	return user.account(), nil
}

// do sends one request and returns the body of a 2xx response.
// Non-2xx responses are decoded into *domain.Error.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, bearer string, body any) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, domain.WrapError(domain.KindInternal, "failed to encode request", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, "failed to build request", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("identity provider request failed",
			"error", err,
			"method", method,
			"path", path,
		)
		if ctx.Err() != nil {
			return nil, domain.AsError(ctx.Err())
		}
		return nil, domain.WrapError(domain.KindUnavailable, "identity provider unavailable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, domain.WrapError(domain.KindUnavailable, "failed to read identity provider response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e := decodeError(resp.StatusCode, raw)
		c.logger.Debug("identity provider returned error",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"code", e.Code,
		)
		return nil, e
	}
	return raw, nil
}

func (c *Client) decodeError(endpoint string, err error) *domain.Error {
	c.logger.Error("failed to decode identity provider response", "error", err, "endpoint", endpoint)
	return domain.WrapError(domain.KindUnavailable, fmt.Sprintf("unexpected %s response from identity provider", endpoint), err)
}
