// Package apiclient is the HTTP client adapter for the school REST API. One
// Client is shared by every feature; it attaches the bearer token, enforces
// the request timeout, and replays a request once after a successful token
// refresh.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/config"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/observability"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/session"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/model"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 50 << 20

// Request describes one call to the school API.
type Request struct {
	Method string
	// Path is relative to the base URL, e.g. "/students/bulk/archive".
	Path  string
	Query url.Values
	// Body is JSON encoded when set. Ignored when Multipart is set.
	Body      any
	Multipart *Multipart
	Header    http.Header
	// NoRefresh disables the 401 refresh interception. Used by the auth
	// endpoints themselves.
	NoRefresh bool
	// NoAuth suppresses the stored bearer token.
	NoAuth bool
}

// Multipart is a multipart/form-data body with one file part.
type Multipart struct {
	Fields    map[string]string
	FileField string
	FileName  string
	File      []byte
}

// Response is a fully read backend response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Client is the shared school API client.
type Client struct {
	baseURL     string
	refreshPath string
	loginPath   string
	logoutPath  string
	http        *http.Client
	session     *session.Session
	logger      *zap.Logger
	metrics     *observability.Metrics
}

// Option customises a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a Client for the configured backend.
func New(cfg config.APIConfig, sess *session.Session, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	hc := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        20,
			MaxConnsPerHost:     10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
	if cfg.SendCredentials() {
		// cookiejar.New only fails for a non-nil options value.
		jar, _ := cookiejar.New(nil)
		hc.Jar = jar
	}

	c := &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		refreshPath: cfg.RefreshPath,
		loginPath:   cfg.LoginPath,
		logoutPath:  cfg.LogoutPath,
		http:        hc,
		session:     sess,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session returns the auth session the client uses.
func (c *Client) Session() *session.Session { return c.session }

// Do executes req. A 401 on a request that was not yet retried triggers the
// session refresh and one replay with the new token; a second 401 surfaces
// as UNAUTHORIZED. Any other status >= 400 is returned as a BACKEND_ERROR
// envelope carrying the backend message. The response is returned alongside
// backend errors so callers can inspect it.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	endpoint := endpointLabel(req.Path)
	ctx, span := observability.StartClientSpan(ctx, req.Method, endpoint)
	var spanErr error
	defer func() { observability.EndSpanWithError(span, spanErr) }()

	body, contentType, err := encodeBody(req)
	if err != nil {
		spanErr = err
		return nil, err
	}

	resp, err := c.send(ctx, req, body, contentType, "")
	if err != nil {
		spanErr = err
		return nil, err
	}

	if resp.Status == http.StatusUnauthorized && !req.NoRefresh && c.session != nil {
		token, err := c.session.Refresh(ctx, c.RefreshToken)
		if err != nil {
			spanErr = err
			return nil, err
		}
		c.metrics.RecordBackendReplay()
		span.SetAttributes(observability.AttrReplayed.Bool(true))

		resp, err = c.send(ctx, req, body, contentType, token)
		if err != nil {
			spanErr = err
			return nil, err
		}
		if resp.Status == http.StatusUnauthorized {
			spanErr = model.NewUnauthorizedError(backendMessage(resp.Body, "Not authorized"))
			return resp, spanErr
		}
	}

	if resp.Status >= 400 {
		spanErr = errorFromResponse(resp)
		return resp, spanErr
	}
	return resp, nil
}

// send performs one HTTP exchange. token overrides the stored token when set.
func (c *Client) send(ctx context.Context, req Request, body []byte, contentType, token string) (*Response, error) {
	reqURL := c.buildURL(req.Path, req.Query)

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, reqURL, rd)
	if err != nil {
		return nil, fmt.Errorf("apiclient: build request: %w", err)
	}

	httpReq.Header = c.buildHeaders(ctx, req, contentType)
	switch {
	case token != "":
		httpReq.Header.Set("Authorization", "Bearer "+sanitizeHeader(token))
	case !req.NoAuth && httpReq.Header.Get("Authorization") == "" && c.session != nil:
		stored, err := c.session.Token(ctx)
		if err != nil {
			c.logger.Warn("reading stored token", zap.Error(err))
		}
		if stored != "" {
			httpReq.Header.Set("Authorization", "Bearer "+sanitizeHeader(stored))
		}
	}
	observability.InjectTraceHeaders(ctx, httpReq.Header)

	if ce := c.logger.Check(zapcore.DebugLevel, "backend request"); ce != nil {
		ce.Write(
			zap.String("method", req.Method),
			zap.String("url", reqURL),
			zap.Any("body", observability.RedactJSON(body)),
		)
	}

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		c.metrics.RecordBackendRequest(endpointLabel(req.Path), req.Method, 0, time.Since(start))
		return nil, classifyTransportError(ctx, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	c.metrics.RecordBackendRequest(endpointLabel(req.Path), req.Method, httpResp.StatusCode, time.Since(start))
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}

	if httpResp.StatusCode >= 500 {
		c.logger.Error("backend error",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Int("status", httpResp.StatusCode),
		)
	} else if httpResp.StatusCode >= 400 && httpResp.StatusCode != http.StatusUnauthorized {
		c.logger.Warn("backend rejected request",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Int("status", httpResp.StatusCode),
		)
	}

	return &Response{
		Status: httpResp.StatusCode,
		Header: httpResp.Header,
		Body:   respBody,
	}, nil
}

func (c *Client) buildURL(path string, query url.Values) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) buildHeaders(ctx context.Context, req Request, contentType string) http.Header {
	h := make(http.Header)
	h.Set("Accept", "application/json")
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	if rctx := model.RequestContextFrom(ctx); rctx != nil && rctx.CorrelationID != "" {
		h.Set("X-Correlation-Id", sanitizeHeader(rctx.CorrelationID))
	}
	// Caller headers go last so they can override the defaults.
	for k, vs := range req.Header {
		for _, v := range vs {
			h.Set(sanitizeHeader(k), sanitizeHeader(v))
		}
	}
	return h
}

// encodeBody renders the request body once so it can be replayed.
func encodeBody(req Request) ([]byte, string, error) {
	if req.Multipart != nil {
		return encodeMultipart(req.Multipart)
	}
	if req.Body == nil {
		return nil, "", nil
	}
	data, err := json.Marshal(req.Body)
	if err != nil {
		return nil, "", fmt.Errorf("apiclient: encode body: %w", err)
	}
	return data, "application/json", nil
}

func encodeMultipart(m *Multipart) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	field := m.FileField
	if field == "" {
		field = "file"
	}
	part, err := w.CreateFormFile(field, m.FileName)
	if err != nil {
		return nil, "", fmt.Errorf("apiclient: multipart file: %w", err)
	}
	if _, err := part.Write(m.File); err != nil {
		return nil, "", fmt.Errorf("apiclient: multipart file: %w", err)
	}
	for k, v := range m.Fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("apiclient: multipart field %s: %w", k, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("apiclient: multipart close: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// sanitizeHeader strips newlines and carriage returns to prevent header injection.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return s
}

// classifyTransportError maps a failed exchange to the error taxonomy:
// cancellation stays context.Canceled, deadlines become BACKEND_TIMEOUT,
// connection failures become BACKEND_UNAVAILABLE.
func classifyTransportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("apiclient: %w", context.Canceled)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return model.NewBackendTimeoutError().WithCause(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.NewBackendTimeoutError().WithCause(err)
	}
	if isConnectionError(err) {
		return model.NewBackendUnavailableError().WithCause(err)
	}
	return fmt.Errorf("apiclient: request failed: %w", err)
}

func isConnectionError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// endpointLabel collapses identifier segments so metric labels stay bounded:
// "/students/507f1f77bcf86cd799439011" becomes "/students/:id".
func endpointLabel(path string) string {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segs {
		if looksLikeID(s) {
			segs[i] = ":id"
		}
	}
	return "/" + strings.Join(segs, "/")
}

func looksLikeID(s string) bool {
	if s == "" {
		return false
	}
	if model.ValidScope(s) {
		return true
	}
	digits := true
	for _, r := range s {
		if r < '0' || r > '9' {
			digits = false
			break
		}
	}
	if digits {
		return true
	}
	// uuid shape
	return len(s) == 36 && strings.Count(s, "-") == 4
}
