// Package servicetitan provides a client for the ServiceTitan REST API.
package servicetitan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// tokenExpiryBuffer forces a refresh this long before the reported expiry
// so a token never goes stale mid-request.
const tokenExpiryBuffer = 60 * time.Second

// Client defines the ServiceTitan operations used by the sync engine.
type Client interface {
	ListBusinessUnits(ctx context.Context) ([]BusinessUnit, error)
	ListJobTypes(ctx context.Context) ([]JobType, error)
	ListTechnicians(ctx context.Context) ([]Technician, error)
	ListCompletedJobs(ctx context.Context, since, until time.Time) ([]Job, error)
	ListScheduledJobs(ctx context.Context, from, to time.Time) ([]Job, error)
	ListAppointments(ctx context.Context, from, to time.Time) ([]Appointment, error)
	ListAssignments(ctx context.Context, appointmentIDs []int64) ([]Assignment, error)
	ListGrossPayItems(ctx context.Context, from, to time.Time) ([]GrossPayItem, error)

	GetBusinessUnit(ctx context.Context, id int64) (*BusinessUnit, error)
	GetCustomer(ctx context.Context, id int64) (*Customer, error)
	GetLocation(ctx context.Context, id int64) (*Location, error)
	GetInvoice(ctx context.Context, id int64) (*Invoice, error)
}

// APIError is a non-2xx response from the ServiceTitan API.
type APIError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("servicetitan: %s returned %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// AuthError is a credential-exchange failure. It is fatal for a sync run:
// no request can succeed without a token.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("servicetitan: token exchange failed with %d: %s", e.StatusCode, e.Body)
}

// IsAuthError reports whether err is (or wraps) a credential failure.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// Credentials holds the client-credentials grant material plus the tenant
// scoping required on every request.
type Credentials struct {
	ClientID     string
	ClientSecret string
	AppKey       string
	TenantID     string
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the API base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithAuthURL overrides the token endpoint. A bare host is normalized to
// its /connect/token path so configs may carry either form.
func WithAuthURL(u string) Option {
	return func(c *httpClient) { c.authURL = normalizeAuthURL(u) }
}

func normalizeAuthURL(u string) string {
	trimmed := strings.TrimSuffix(u, "/")
	if parsed, err := url.Parse(trimmed); err == nil && parsed.Path == "" {
		return trimmed + "/connect/token"
	}
	return trimmed
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRateLimit sets a per-second request rate limit. ServiceTitan
// enforces tenant-level quotas; pacing requests avoids burning retries.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

type httpClient struct {
	creds   Credentials
	baseURL string
	authURL string
	http    *http.Client
	limiter *rate.Limiter

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

// NewClient creates a ServiceTitan API client. The access token is fetched
// lazily on first use and refreshed 60 seconds before expiry.
func NewClient(creds Credentials, opts ...Option) Client {
	c := &httpClient{
		creds:   creds,
		baseURL: "https://api.servicetitan.io",
		authURL: "https://auth.servicetitan.io/connect/token",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// accessToken returns a cached token, exchanging credentials when the cache
// is empty or inside the expiry buffer.
func (c *httpClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExp.Add(-tokenExpiryBuffer)) {
		return c.token, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.creds.ClientID},
		"client_secret": {c.creds.ClientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", eris.Wrap(err, "servicetitan: create token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "servicetitan: token exchange")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "servicetitan: read token response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", &AuthError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", eris.Wrap(err, "servicetitan: unmarshal token response")
	}
	if tok.AccessToken == "" {
		return "", &AuthError{StatusCode: resp.StatusCode, Body: "empty access_token"}
	}

	expiresIn := tok.ExpiresIn
	if expiresIn == 0 {
		expiresIn = 900 // tokens last 15 minutes per ST docs
	}
	c.token = tok.AccessToken
	c.tokenExp = time.Now().Add(time.Duration(expiresIn) * time.Second)
	return c.token, nil
}

// retryableStatusCode returns true if the HTTP status code should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// getJSON performs an authenticated GET with retry on transient failures
// and decodes the response into out.
func (c *httpClient) getJSON(ctx context.Context, endpoint string, query url.Values, out any) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	reqURL := fmt.Sprintf("%s/%s/v2/tenant/%s/%s", c.baseURL, moduleOf(endpoint), c.creds.TenantID, endpoint)
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return eris.Wrapf(err, "servicetitan: create request for %s", endpoint)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("ST-App-Key", c.creds.AppKey)
	req.Header.Set("Accept", "application/json")

	body, status, err := c.retryDo(ctx, req)
	if err != nil {
		return eris.Wrapf(err, "servicetitan: %s", endpoint)
	}
	if status != http.StatusOK {
		return &APIError{StatusCode: status, Endpoint: endpoint, Body: truncate(string(body), 300)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrapf(err, "servicetitan: unmarshal %s response", endpoint)
	}
	return nil
}

// retryDo executes a request with exponential backoff on transient failures
// (429, 500, 502, 503). Returns the body and status of the final attempt.
func (c *httpClient) retryDo(ctx context.Context, req *http.Request) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, 0, eris.Wrap(err, "rate limiter wait")
			}
		}

		resp, err := c.http.Do(req.Clone(ctx))
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("status %d: %s", resp.StatusCode, truncate(string(body), 200))
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return body, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

// moduleOf maps an endpoint path to its ServiceTitan API module prefix.
func moduleOf(endpoint string) string {
	head := endpoint
	if i := strings.IndexByte(head, '/'); i >= 0 {
		head = head[:i]
	}
	if i := strings.IndexByte(head, '?'); i >= 0 {
		head = head[:i]
	}
	switch head {
	case "jobs", "job-types", "appointments":
		return "jpm"
	case "appointment-assignments":
		return "dispatch"
	case "gross-pay-items":
		return "payroll"
	case "invoices":
		return "accounting"
	case "customers", "locations":
		return "crm"
	default: // business-units, technicians
		return "settings"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
