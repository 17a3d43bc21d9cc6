// Package api implements the passthrough executor for the remote HTTP API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/aretw0/fastly-mcp/internal/logging"
	"github.com/aretw0/fastly-mcp/pkg/domain"
)

// Doer issues HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Executor turns an APICallRequest into an authenticated HTTP exchange.
type Executor struct {
	baseURL    string
	credential domain.Credential
	header     string
	service    string
	client     Doer
	logger     *slog.Logger
}

// Option configures the Executor.
type Option func(*Executor)

// WithHTTPClient replaces the default client (no timeout, per-call context only).
func WithHTTPClient(c Doer) Option {
	return func(e *Executor) {
		e.client = c
	}
}

// WithCredentialHeader sets the header that carries the credential.
func WithCredentialHeader(name string) Option {
	return func(e *Executor) {
		e.header = name
	}
}

// WithServiceName sets the label used in error messages.
func WithServiceName(name string) Option {
	return func(e *Executor) {
		e.service = name
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// New creates an Executor rooted at baseURL.
func New(baseURL string, cred domain.Credential, opts ...Option) (*Executor, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host are required", baseURL)
	}

	e := &Executor{
		baseURL:    strings.TrimRight(baseURL, "/"),
		credential: cred,
		header:     "Fastly-Key",
		service:    "Fastly",
		client:     &http.Client{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.OrNop(e.logger)
	return e, nil
}

// Execute performs the call. Only a failure to complete the exchange is an error;
// any HTTP status is reported in the result.
func (e *Executor) Execute(ctx context.Context, call domain.APICallRequest) (*domain.APIResult, error) {
	e.logger.Info(fmt.Sprintf("Making %s request to %s", call.Method, call.Path))

	req, err := e.NewRequest(ctx, call)
	if err != nil {
		return nil, e.fail(call, err)
	}

	e.logger.Info(fmt.Sprintf("Sending request to %s", req.URL.Redacted()))
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, e.fail(call, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, e.fail(call, fmt.Errorf("read response body: %w", err))
	}

	result := &domain.APIResult{
		Status:     resp.StatusCode,
		StatusText: statusText(resp),
		Headers:    flattenHeaders(resp.Header),
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		data, err := decodeJSON(raw)
		if err != nil {
			e.logger.Warn("Response claimed JSON but did not parse", "error", err)
			result.Data = string(raw)
			result.ParseError = err.Error()
		} else {
			result.Data = data
		}
	} else {
		result.Data = string(raw)
	}

	e.logger.Info(fmt.Sprintf("Response status: %d", resp.StatusCode))
	return result, nil
}

// NewRequest builds the outbound request for call, including credential and content headers.
func (e *Executor) NewRequest(ctx context.Context, call domain.APICallRequest) (*http.Request, error) {
	target, err := e.Target(call.Path, call.QueryParams())
	if err != nil {
		return nil, err
	}

	method := strings.ToUpper(call.Method)
	var body io.Reader
	withBody := (method == http.MethodPost || method == http.MethodPut) && call.HasBody()
	if withBody {
		payload, err := encodeJSON(call.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set(e.header, e.credential.Reveal())
	req.Header.Set("Accept", "application/json")
	if withBody {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Target resolves path against the base URL and appends params as a query string,
// in the order given. At most one leading "/" is stripped from path.
func (e *Executor) Target(path string, params []domain.Param) (string, error) {
	target := e.baseURL + "/" + strings.TrimPrefix(path, "/")
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", path, err)
	}
	if len(params) == 0 {
		return u.String(), nil
	}

	var q strings.Builder
	q.WriteString(u.RawQuery)
	for _, p := range params {
		if q.Len() > 0 {
			q.WriteByte('&')
		}
		q.WriteString(url.QueryEscape(p.Key))
		q.WriteByte('=')
		q.WriteString(url.QueryEscape(stringify(p.Value)))
	}
	u.RawQuery = q.String()
	return u.String(), nil
}

func (e *Executor) fail(call domain.APICallRequest, err error) error {
	apiErr := &domain.APIError{Service: e.service, Method: call.Method, Path: call.Path, Err: err}
	e.logger.Error(e.credential.Redact("Error in API call: " + err.Error()))
	return apiErr
}

func statusText(resp *http.Response) string {
	code := strconv.Itoa(resp.StatusCode)
	if text := strings.TrimSpace(strings.TrimPrefix(resp.Status, code)); text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[strings.ToLower(k)] = strings.Join(v, ", ")
	}
	return out
}

func decodeJSON(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after top-level JSON value")
	}
	return v, nil
}

func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// stringify coerces a query parameter value to its string form.
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int, int64, int32, uint, uint64, uint32, json.Number:
		return fmt.Sprint(val)
	default:
		if b, err := encodeJSON(val); err == nil {
			return string(b)
		}
		return fmt.Sprint(val)
	}
}
