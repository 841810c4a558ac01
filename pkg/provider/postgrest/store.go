// Package postgrest writes profiles through a PostgREST endpoint
// (the Supabase REST API) using a service-role key.
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tendant/account-provisioner/pkg/domain"
)

const (
	// DefaultTable is the table profiles are written to.
	DefaultTable = "profiles"
	// DefaultTimeout bounds every request when no HTTP client is supplied.
	DefaultTimeout = 10 * time.Second

	uniqueViolation = "23505"
)

// Config configures the store.
type Config struct {
	// BaseURL is the REST root, e.g. https://project.supabase.co/rest/v1.
	BaseURL    string
	ServiceKey string
	Table      string

	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *slog.Logger
}

// Store implements provisioning.RecordStore.
type Store struct {
	endpoint   string
	serviceKey string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a PostgREST profile store.
func New(cfg Config) *Store {
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Store{
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + "/" + url.PathEscape(cfg.Table),
		serviceKey: cfg.ServiceKey,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
	}
}

type profileRow struct {
	ID        string `json:"id"`
	FullName  string `json:"full_name"`
	Email     string `json:"email"`
	Role      int    `json:"role"`
	UpdatedAt string `json:"updated_at"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

// InsertProfile inserts the profile, ignoring a row that already exists
// with the same id.
func (s *Store) InsertProfile(ctx context.Context, p domain.Profile) error {
	payload, err := json.Marshal(profileRow{
		ID:        p.ID,
		FullName:  p.FullName,
		Email:     p.Email,
		Role:      p.Role,
		UpdatedAt: p.UpdatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return domain.WrapError(domain.KindInternal, "failed to encode profile", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"?on_conflict=id", bytes.NewReader(payload))
	if err != nil {
		return domain.WrapError(domain.KindInternal, "failed to build request", err)
	}
	req.Header.Set("apikey", s.serviceKey)
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=minimal,resolution=ignore-duplicates")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Error("profile insert request failed", "error", err, "account_id", p.ID)
		if ctx.Err() != nil {
			return domain.AsError(ctx.Err())
		}
		return domain.WrapError(domain.KindUnavailable, "record store unavailable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return decodeError(resp.StatusCode, body)
}

func decodeError(status int, body []byte) *domain.Error {
	var resp errorResponse
	_ = json.Unmarshal(body, &resp)

	message := resp.Message
	if message == "" {
		message = http.StatusText(status)
	}

	e := &domain.Error{Code: resp.Code, Message: message, Status: status}
	switch {
	case resp.Code == uniqueViolation || status == http.StatusConflict:
		if isPrimaryKeyConflict(resp) {
			e.Kind = domain.KindAlreadyExists
		} else {
			e.Kind, e.Code = domain.KindRejected, domain.CodeProfileConflict
		}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = domain.KindUnauthenticated
	case status == http.StatusTooManyRequests:
		e.Kind = domain.KindRateLimited
	case status >= 500:
		e.Kind = domain.KindUnavailable
	default:
		e.Kind = domain.KindRejected
	}
	return e
}

// isPrimaryKeyConflict reports whether a unique violation is on the id
// column. Postgres names the constraint <table>_pkey and lists the key in
// the details.
func isPrimaryKeyConflict(resp errorResponse) bool {
	return strings.Contains(resp.Message, "_pkey\"") || strings.HasPrefix(resp.Details, "Key (id)=")
}
