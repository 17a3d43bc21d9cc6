package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/fastly-mcp/pkg/adapters/api"
	"github.com/aretw0/fastly-mcp/pkg/domain"
)

const secret = "test-secret-key"

type captured struct {
	method      string
	uri         string
	key         string
	accept      string
	contentType string
	body        string
}

func newServer(t *testing.T, status int, contentType, body string) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		*got = captured{
			method:      r.Method,
			uri:         r.URL.RequestURI(),
			key:         r.Header.Get("Fastly-Key"),
			accept:      r.Header.Get("Accept"),
			contentType: r.Header.Get("Content-Type"),
			body:        string(raw),
		}
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.Header().Set("X-Served-By", "cache-a")
		w.Header().Add("X-Served-By", "cache-b")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestExecutor_GetInjectsCredentialAndParsesJSON(t *testing.T) {
	srv, got := newServer(t, http.StatusOK, "application/json; charset=utf-8", `[{"id":"SU1Z0isxPaozGVKXdv0eY","version":3}]`)

	exec, err := api.New(srv.URL, domain.NewCredential(secret))
	require.NoError(t, err)

	res, err := exec.Execute(context.Background(), domain.APICallRequest{Path: "/service", Method: "GET"})
	require.NoError(t, err)

	assert.Equal(t, "GET", got.method)
	assert.Equal(t, "/service", got.uri)
	assert.Equal(t, secret, got.key)
	assert.Equal(t, "application/json", got.accept)
	assert.Empty(t, got.contentType)
	assert.Empty(t, got.body)

	assert.Equal(t, 200, res.Status)
	assert.Equal(t, "OK", res.StatusText)
	assert.Equal(t, "cache-a, cache-b", res.Headers["x-served-by"])
	assert.Empty(t, res.ParseError)

	items, ok := res.Data.([]any)
	require.True(t, ok, "data should be decoded JSON, got %T", res.Data)
	require.Len(t, items, 1)
	assert.Equal(t, json.Number("3"), items[0].(map[string]any)["version"])
}

func TestExecutor_PathNormalization(t *testing.T) {
	exec, err := api.New("https://api.fastly.com", domain.NewCredential(secret))
	require.NoError(t, err)

	tests := []struct {
		path string
		want string
	}{
		{"/service", "https://api.fastly.com/service"},
		{"service", "https://api.fastly.com/service"},
		{"/service/abc/version/1/backend", "https://api.fastly.com/service/abc/version/1/backend"},
		{"//service", "https://api.fastly.com//service"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := exec.Target(tt.path, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExecutor_QueryParams(t *testing.T) {
	exec, err := api.New("https://api.fastly.com/", domain.NewCredential(secret))
	require.NoError(t, err)

	got, err := exec.Target("/stats", []domain.Param{
		{Key: "service_id", Value: "abc"},
		{Key: "to", Value: "now"},
		{Key: "from", Value: "1 day ago"},
		{Key: "page", Value: float64(2)},
		{Key: "raw", Value: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://api.fastly.com/stats?service_id=abc&to=now&from=1+day+ago&page=2&raw=true", got)
}

func TestExecutor_QueryParamsKeepPathQuery(t *testing.T) {
	exec, err := api.New("https://api.fastly.com", domain.NewCredential(secret))
	require.NoError(t, err)

	got, err := exec.Target("/stats?region=usa", []domain.Param{{Key: "by", Value: "day"}})
	require.NoError(t, err)
	assert.Equal(t, "https://api.fastly.com/stats?region=usa&by=day", got)
}

func TestExecutor_QueryOrderOnTheWire(t *testing.T) {
	srv, got := newServer(t, http.StatusOK, "application/json", `{}`)

	exec, err := api.New(srv.URL, domain.NewCredential(secret))
	require.NoError(t, err)

	_, err = exec.Execute(context.Background(), domain.APICallRequest{
		Path:   "/stats",
		Method: "GET",
		Query: []domain.Param{
			{Key: "service_id", Value: "abc"},
			{Key: "to", Value: "2"},
			{Key: "from", Value: "1"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "/stats?service_id=abc&to=2&from=1", got.uri)
}

func TestExecutor_ParamsWithoutOrderAreSorted(t *testing.T) {
	req := domain.APICallRequest{Params: map[string]any{"to": "2", "from": "1"}}
	assert.Equal(t, []domain.Param{{Key: "from", Value: "1"}, {Key: "to", Value: "2"}}, req.QueryParams())
}

func TestExecutor_LowercaseMethod(t *testing.T) {
	srv, got := newServer(t, http.StatusOK, "application/json", `{"id":"new-service"}`)

	exec, err := api.New(srv.URL, domain.NewCredential(secret))
	require.NoError(t, err)

	_, err = exec.Execute(context.Background(), domain.APICallRequest{
		Path:   "/service",
		Method: "post",
		Body:   map[string]any{"name": "My Site"},
	})
	require.NoError(t, err)

	assert.Equal(t, "POST", got.method)
	assert.Equal(t, "application/json", got.contentType)
	assert.Equal(t, `{"name":"My Site"}`, got.body)
}

func TestExecutor_PostSerializesBody(t *testing.T) {
	srv, got := newServer(t, http.StatusOK, "application/json", `{"id":"new-service"}`)

	exec, err := api.New(srv.URL, domain.NewCredential(secret))
	require.NoError(t, err)

	_, err = exec.Execute(context.Background(), domain.APICallRequest{
		Path:   "/service",
		Method: "POST",
		Body:   map[string]any{"name": "My Site"},
	})
	require.NoError(t, err)

	assert.Equal(t, "POST", got.method)
	assert.Equal(t, "application/json", got.contentType)
	assert.Equal(t, `{"name":"My Site"}`, got.body)
}

func TestExecutor_BodyIgnoredForGetAndDelete(t *testing.T) {
	exec, err := api.New("https://api.fastly.com", domain.NewCredential(secret))
	require.NoError(t, err)

	for _, method := range []string{"GET", "DELETE"} {
		req, err := exec.NewRequest(context.Background(), domain.APICallRequest{
			Path: "/service/abc", Method: method, Body: map[string]any{"x": 1},
		})
		require.NoError(t, err)
		assert.Nil(t, req.Body, method)
		assert.Empty(t, req.Header.Get("Content-Type"), method)
	}
}

func TestExecutor_NoHTMLEscapingInBody(t *testing.T) {
	exec, err := api.New("https://api.fastly.com", domain.NewCredential(secret))
	require.NoError(t, err)

	req, err := exec.NewRequest(context.Background(), domain.APICallRequest{
		Path: "/service/abc/version/1/condition", Method: "PUT",
		Body: map[string]any{"statement": `req.url ~ "^/a&b" && req.http.host == "<x>"`},
	})
	require.NoError(t, err)
	raw, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"statement":"req.url ~ \"^/a&b\" && req.http.host == \"<x>\""}`, string(raw))
}

func TestExecutor_StatusIsPassedThrough(t *testing.T) {
	srv, _ := newServer(t, http.StatusUnauthorized, "application/json", `{"msg":"Provided credentials are missing or invalid"}`)

	exec, err := api.New(srv.URL, domain.NewCredential(""))
	require.NoError(t, err)

	res, err := exec.Execute(context.Background(), domain.APICallRequest{Path: "/service", Method: "GET"})
	require.NoError(t, err, "4xx is not a transport failure")
	assert.Equal(t, 401, res.Status)
	assert.Equal(t, "Unauthorized", res.StatusText)
}

func TestExecutor_TextAndMalformedJSON(t *testing.T) {
	t.Run("plain text", func(t *testing.T) {
		srv, _ := newServer(t, http.StatusOK, "text/plain", "pong")
		exec, err := api.New(srv.URL, domain.NewCredential(secret))
		require.NoError(t, err)

		res, err := exec.Execute(context.Background(), domain.APICallRequest{Path: "/ping", Method: "GET"})
		require.NoError(t, err)
		assert.Equal(t, "pong", res.Data)
	})

	t.Run("malformed json is reported, not fatal", func(t *testing.T) {
		srv, _ := newServer(t, http.StatusBadGateway, "application/json", "<html>bad gateway</html>")
		exec, err := api.New(srv.URL, domain.NewCredential(secret))
		require.NoError(t, err)

		res, err := exec.Execute(context.Background(), domain.APICallRequest{Path: "/service", Method: "GET"})
		require.NoError(t, err)
		assert.Equal(t, 502, res.Status)
		assert.Equal(t, "<html>bad gateway</html>", res.Data)
		assert.NotEmpty(t, res.ParseError)
	})
}

func TestExecutor_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	exec, err := api.New(url, domain.NewCredential(secret))
	require.NoError(t, err)

	_, err = exec.Execute(context.Background(), domain.APICallRequest{Path: "/service", Method: "GET"})
	require.Error(t, err)

	var apiErr *domain.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, err.Error(), "Fastly API error:")
	assert.NotContains(t, err.Error(), secret)
}

func TestNew_RejectsRelativeBase(t *testing.T) {
	_, err := api.New("/relative", domain.NewCredential(secret))
	assert.Error(t, err)
}
