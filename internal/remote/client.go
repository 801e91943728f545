package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	apperrors "github.com/kimhsiao/fieldsync/internal/errors"
	"github.com/kimhsiao/fieldsync/internal/logging"
)

const (
	defaultTimeout = 30 * time.Second
	// rateLimitBurst is the burst capacity for rate limiting
	rateLimitBurst = 20
)

// ClientConfig holds remote connection settings.
type ClientConfig struct {
	BaseURL         string
	APIKey          string
	AccessToken     string
	Timeout         time.Duration
	RateLimitPerSec float64
}

// rateLimitedTransport wraps an http.RoundTripper with rate limiting
type rateLimitedTransport struct {
	transport http.RoundTripper
	limiter   *rate.Limiter
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.transport.RoundTrip(req)
}

// Client is a minimal PostgREST client.
type Client struct {
	baseURL string
	apiKey  string
	token   string
	http    *http.Client
}

// NewClient creates a Client. A zero rate disables limiting.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	var transport http.RoundTripper = http.DefaultTransport
	if cfg.RateLimitPerSec > 0 {
		interval := time.Duration(float64(time.Second) / cfg.RateLimitPerSec)
		transport = &rateLimitedTransport{
			transport: transport,
			limiter:   rate.NewLimiter(rate.Every(interval), rateLimitBurst),
		}
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		token:   cfg.AccessToken,
		http:    &http.Client{Timeout: timeout, Transport: transport},
	}
}

func (c *Client) newRequest(ctx context.Context, method, table string, query url.Values, body []byte) (*http.Request, error) {
	endpoint := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, table)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, errors.Wrap(err, "constructing http request")
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	token := c.token
	if token == "" {
		token = c.apiKey
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// checkRespErr turns an error response into a PostgrestError when the body
// has one, or an HTTPError otherwise.
func checkRespErr(res *http.Response) error {
	if res.StatusCode < 400 {
		return nil
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return errors.Wrapf(err, "server responded with %d but the body could not be read", res.StatusCode)
	}

	var pgErr apperrors.PostgrestError
	if json.Unmarshal(body, &pgErr) == nil && (pgErr.Code != "" || pgErr.Message != "") {
		pgErr.Status = res.StatusCode
		return &pgErr
	}
	return &apperrors.HTTPError{
		Status:  res.StatusCode,
		Message: strings.TrimRight(string(body), "\n"),
	}
}

func (c *Client) do(req *http.Request, out interface{}) error {
	logging.Debug("Remote request", map[string]interface{}{
		"method": req.Method,
		"path":   req.URL.Path,
	})

	res, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "making http request")
	}
	defer res.Body.Close()

	if err := checkRespErr(res); err != nil {
		return errors.Wrapf(err, "%s %s", req.Method, req.URL.Path)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return apperrors.Wrap(apperrors.ErrRemoteResponse, "decoding response", err)
	}
	return nil
}

// Select runs a GET against table and decodes the rows into out.
func (c *Client) Select(ctx context.Context, table string, query url.Values, out interface{}) error {
	req, err := c.newRequest(ctx, http.MethodGet, table, query, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

// Upsert inserts or merges one row keyed on its primary key and returns the
// stored id and updated_at.
func (c *Client) Upsert(ctx context.Context, table string, row interface{}) (UpsertResult, error) {
	body, err := json.Marshal(row)
	if err != nil {
		return UpsertResult{}, errors.Wrap(err, "encoding row")
	}

	query := url.Values{}
	query.Set("on_conflict", "id")
	query.Set("select", "id,updated_at")
	req, err := c.newRequest(ctx, http.MethodPost, table, query, body)
	if err != nil {
		return UpsertResult{}, err
	}
	req.Header.Set("Prefer", "resolution=merge-duplicates,return=representation")

	var rows []UpsertResult
	if err := c.do(req, &rows); err != nil {
		return UpsertResult{}, err
	}
	if len(rows) == 0 {
		return UpsertResult{}, apperrors.New(apperrors.ErrRemoteResponse, "upsert returned no rows")
	}
	return rows[0], nil
}
