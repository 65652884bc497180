// Package client talks to the intake API on behalf of a kiosk or volunteer
// device: it loads the question schema, submits questionnaires and replays
// offline records.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vekaria04/hospital-management-system/pkg/intake"
	"github.com/vekaria04/hospital-management-system/pkg/offline"
)

// ErrSubmissionFailed wraps any failure to deliver a submission while online.
var ErrSubmissionFailed = errors.New("submission failed")

// Client is a minimal intake HTTP API client. It is safe for concurrent use
// once constructed; configure it through New's options.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
}

// Option configures a Client in New.
type Option func(*Client)

// WithTimeout bounds every request, including reading the response.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.HTTPClient.Timeout = d }
}

// WithBearerToken sends token as the Authorization header.
func WithBearerToken(token string) Option {
	return func(c *Client) { c.BearerToken = token }
}

// New creates a client with a 10s request timeout.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Permanent reports whether the server refused the request itself. 4xx
// answers other than 408 and 429 will not change on retry; offline replays
// drop such records.
func (e *APIError) Permanent() bool {
	switch {
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return false
	default:
		return e.StatusCode >= 400 && e.StatusCode < 500
	}
}

var _ offline.Rejection = (*APIError)(nil)

// SubmitResponse is the server's acknowledgement of a stored questionnaire.
type SubmitResponse struct {
	Message       string          `json:"message"`
	Questionnaire json.RawMessage `json:"questionnaire,omitempty"`
}

// LoadSchema fetches the ordered question list in lang. Any failure is
// returned wrapped in intake.ErrSchemaUnavailable; callers may simply call
// it again.
func (c *Client) LoadSchema(ctx context.Context, lang string) ([]intake.Question, error) {
	endpoint := "api/questions"
	if lang != "" {
		endpoint += "?lang=" + url.QueryEscape(lang)
	}
	var questions []intake.Question
	if err := c.do(ctx, http.MethodGet, c.url(endpoint), nil, &questions); err != nil {
		return nil, fmt.Errorf("%w: %w", intake.ErrSchemaUnavailable, err)
	}
	for i := range questions {
		if questions[i].Options == nil {
			questions[i].Options = []string{}
		}
	}
	return questions, nil
}

// Submit posts payload to the submission endpoint.
func (c *Client) Submit(ctx context.Context, payload intake.Payload) (SubmitResponse, error) {
	var resp SubmitResponse
	ep := intake.SubmitEndpoint(c.BaseURL)
	if err := c.do(ctx, ep.Method, ep.URL, payload, &resp); err != nil {
		return resp, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}
	return resp, nil
}

// Send replays an offline record verbatim. It satisfies offline.Transport.
func (c *Client) Send(ctx context.Context, rec offline.Record) error {
	return c.do(ctx, rec.Method, rec.URL, rec.Body, nil)
}

// Health reports whether the server answered its health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, c.url("health"), nil, nil)
}

func (c *Client) do(ctx context.Context, method, target string, body any, out any) error {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case json.RawMessage:
		buf.Write(b)
	default:
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) url(p string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(p, "/")
}
