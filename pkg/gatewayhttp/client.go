package gatewayhttp

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

	"github.com/sethvargo/go-retry"

	pkgerrors "github.com/angelmondragon/payvault-backend/pkg/errors"
	"github.com/angelmondragon/payvault-backend/pkg/logger"
	"github.com/angelmondragon/payvault-backend/pkg/metrics"
)

const (
	defaultTimeout     = 20 * time.Second
	defaultMaxAttempts = 3
	defaultBackoff     = time.Second
	maxResponseBytes   = 1 << 20
)

// Operation names a gateway call and declares whether repeating it is safe at the provider.
type Operation struct {
	Name       string
	Idempotent bool
}

// Request describes one outbound call relative to the client's base URL.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Body    any
	Headers map[string]string
}

// Response is the raw provider answer of a 2xx call.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Attempts   int
}

// Options configures a provider client.
type Options struct {
	Provider    string
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
	HTTPClient  *http.Client
	Authorize   func(*http.Request)
	Logger      *logger.Logger
	Metrics     *metrics.GatewayMetrics
}

// Client executes provider calls with a fixed per-attempt timeout and retries
// only operations declared idempotent.
type Client struct {
	provider    string
	baseURL     string
	timeout     time.Duration
	maxAttempts int
	backoff     time.Duration
	http        *http.Client
	authorize   func(*http.Request)
	logger      *logger.Logger
	metrics     *metrics.GatewayMetrics
}

// New builds a Client with defaults applied.
func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.Provider) == "" {
		return nil, errors.New("gateway provider name is required")
	}
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("%s base url is required", opts.Provider)
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("%s base url: %w", opts.Provider, err)
	}

	c := &Client{
		provider:    opts.Provider,
		baseURL:     base,
		timeout:     opts.Timeout,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		http:        opts.HTTPClient,
		authorize:   opts.Authorize,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = defaultMaxAttempts
	}
	if c.backoff <= 0 {
		c.backoff = defaultBackoff
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	return c, nil
}

// Provider returns the provider label used in logs and metrics.
func (c *Client) Provider() string {
	return c.provider
}

// DoJSON performs the call and decodes a 2xx body into out when out is non-nil.
func (c *Client) DoJSON(ctx context.Context, op Operation, req Request, out any) (*Response, error) {
	resp, err := c.Do(ctx, op, req)
	if err != nil {
		return nil, err
	}
	if out != nil && len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return resp, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("%s %s: decode response", c.provider, op.Name))
		}
	}
	return resp, nil
}

// Do executes req. Non-idempotent operations get exactly one attempt. Idempotent
// operations are retried with a constant backoff on timeouts, transport errors
// and 5xx responses; 4xx responses are never retried.
func (c *Client) Do(ctx context.Context, op Operation, req Request) (*Response, error) {
	payload, err := encodeBody(req.Body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("%s %s: encode request", c.provider, op.Name))
	}

	retries := uint64(0)
	if op.Idempotent && c.maxAttempts > 1 {
		retries = uint64(c.maxAttempts - 1)
	}
	backoff := retry.WithMaxRetries(retries, retry.NewConstant(c.backoff))

	started := time.Now()
	attempts := 0
	var result *Response

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		c.metrics.IncAttempt(c.provider, op.Name)
		resp, attemptErr := c.attempt(ctx, op, req, payload)
		if attemptErr == nil {
			result = resp
			return nil
		}
		c.log(ctx, "attempt_failed", op, map[string]any{"attempt": attempts, "error": attemptErr.Error()})
		var perr *ProviderError
		if errors.As(attemptErr, &perr) && perr.Transient && ctx.Err() == nil {
			return retry.RetryableError(attemptErr)
		}
		return attemptErr
	})

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.metrics.ObserveRequest(c.provider, op.Name, outcome, time.Since(started))

	if err != nil {
		return nil, c.toDomainError(ctx, op, attempts, err)
	}
	result.Attempts = attempts
	c.log(ctx, "success", op, map[string]any{"attempts": attempts, "status": result.StatusCode})
	return result, nil
}

func (c *Client) attempt(ctx context.Context, op Operation, req Request, payload []byte) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		endpoint += "?" + req.Query.Encode()
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(attemptCtx, method, endpoint, body)
	if err != nil {
		return nil, &ProviderError{Provider: c.provider, Operation: op.Name, Message: err.Error()}
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if c.authorize != nil {
		c.authorize(httpReq)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{
			Provider:  c.provider,
			Operation: op.Name,
			Message:   err.Error(),
			Transient: true,
			Timeout:   errors.Is(err, context.DeadlineExceeded) || isTimeout(err),
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &ProviderError{
			Provider:   c.provider,
			Operation:  op.Name,
			StatusCode: resp.StatusCode,
			Message:    err.Error(),
			Transient:  true,
		}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: raw}, nil
	}

	return nil, &ProviderError{
		Provider:   c.provider,
		Operation:  op.Name,
		StatusCode: resp.StatusCode,
		Message:    providerMessage(raw, resp.Status),
		Body:       Sanitize(raw),
		Transient:  resp.StatusCode >= 500,
	}
}

func (c *Client) toDomainError(ctx context.Context, op Operation, attempts int, err error) error {
	var perr *ProviderError
	if !errors.As(err, &perr) {
		if ctx.Err() != nil {
			perr = &ProviderError{Provider: c.provider, Operation: op.Name, Message: ctx.Err().Error(), Transient: true}
		} else {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("%s %s failed", c.provider, op.Name))
		}
	}
	perr.Attempts = attempts

	code := domainCodeFor(perr)
	c.log(ctx, "error", op, map[string]any{"attempts": attempts, "status": perr.StatusCode, "error": perr.Error()})

	wrapped := pkgerrors.Wrap(code, perr, fmt.Sprintf("%s %s failed", c.provider, op.Name))
	if code == pkgerrors.CodeGatewayRejected {
		wrapped = wrapped.WithDetails(perr.Details())
	}
	return wrapped
}

func domainCodeFor(perr *ProviderError) pkgerrors.Code {
	if perr.Transient {
		return pkgerrors.CodeGatewayTransient
	}
	if perr.StatusCode >= 400 && perr.StatusCode < 500 {
		return pkgerrors.CodeGatewayRejected
	}
	return pkgerrors.CodeDependency
}

func (c *Client) log(ctx context.Context, phase string, op Operation, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"provider":   c.provider,
		"operation":  op.Name,
		"idempotent": op.Idempotent,
		"phase":      phase,
	}
	for k, v := range fields {
		logFields[k] = redactField(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("%s %s", c.provider, op.Name), errors.New(fmt.Sprint(fields["error"])))
	case "attempt_failed":
		c.logger.Warn(ctx, fmt.Sprintf("%s %s attempt failed", c.provider, op.Name))
	default:
		c.logger.Debug(ctx, fmt.Sprintf("%s %s", c.provider, phase))
	}
}

func encodeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

func providerMessage(raw []byte, fallback string) string {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err == nil {
		for _, key := range []string{"message", "error", "text"} {
			if msg, ok := payload[key].(string); ok && msg != "" {
				return maskDigits(msg)
			}
		}
	}
	return fallback
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
