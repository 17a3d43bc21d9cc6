package dispatch_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/aretw0/fastly-mcp/pkg/adapters/api"
	"github.com/aretw0/fastly-mcp/pkg/adapters/process"
	"github.com/aretw0/fastly-mcp/pkg/dispatch"
	"github.com/aretw0/fastly-mcp/pkg/domain"
)

const secret = "sk-test-0123456789"

type fakeAPI struct {
	calls  atomic.Int32
	last   domain.APICallRequest
	result *domain.APIResult
	err    error
	panic  any
}

func (f *fakeAPI) Execute(_ context.Context, call domain.APICallRequest) (*domain.APIResult, error) {
	f.calls.Add(1)
	f.last = call
	if f.panic != nil {
		panic(f.panic)
	}
	return f.result, f.err
}

type fakeCLI struct {
	calls  atomic.Int32
	last   domain.CLICallRequest
	result *domain.CLIResult
	err    error
}

func (f *fakeCLI) Execute(_ context.Context, call domain.CLICallRequest) (*domain.CLIResult, error) {
	f.calls.Add(1)
	f.last = call
	return f.result, f.err
}

// fakeRunner stands in for the subprocess layer under a real CLI executor.
type fakeRunner struct {
	done process.Completion
	runs atomic.Int32
}

func (f *fakeRunner) Run(context.Context, process.Invocation) (process.Completion, error) {
	f.runs.Add(1)
	return f.done, nil
}

func call(name string, args map[string]any) domain.Invocation {
	return domain.Invocation{Name: name, Arguments: args}
}

func TestListTools(t *testing.T) {
	d := dispatch.New(&fakeAPI{}, &fakeCLI{})

	tools := d.ListTools()
	require.Len(t, tools, 2)
	assert.Equal(t, "fastly_api", tools[0].Name)
	assert.Equal(t, "fastly_cli", tools[1].Name)
	assert.Equal(t, []string{"path", "method"}, tools[0].InputSchema.Required)
	assert.Equal(t, []string{"command"}, tools[1].InputSchema.Required)

	raw, err := json.Marshal(tools[0].InputSchema)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"enum":["GET","POST","PUT","DELETE"]`)

	tools[0].Name = "mutated"
	assert.Equal(t, "fastly_api", d.ListTools()[0].Name, "catalog must not be mutable through ListTools")
}

func TestListTools_Overrides(t *testing.T) {
	d := dispatch.New(&fakeAPI{}, &fakeCLI{},
		dispatch.WithToolNames("acme_api", "acme_cli"),
		dispatch.WithDescription("acme_cli", "Run acme."),
	)
	tools := d.ListTools()
	assert.Equal(t, "acme_api", tools[0].Name)
	assert.Equal(t, "Run acme.", tools[1].Description)
	assert.True(t, d.Has("acme_cli"))
	assert.False(t, d.Has("fastly_cli"))
}

func TestCallTool_APIMissingArguments(t *testing.T) {
	cases := map[string]map[string]any{
		"nil args":       nil,
		"no method":      {"path": "/service"},
		"no path":        {"method": "GET"},
		"empty path":     {"path": "", "method": "GET"},
		"method is null": {"path": "/service", "method": nil},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			fake := &fakeAPI{}
			d := dispatch.New(fake, &fakeCLI{})

			env := d.CallTool(context.Background(), call("fastly_api", args))
			assert.True(t, env.IsError)
			assert.Equal(t, "Error: path and method are required", env.Text())
			assert.Zero(t, fake.calls.Load(), "no network call is attempted")
		})
	}
}

func TestCallTool_CLIMissingCommand(t *testing.T) {
	for name, args := range map[string]map[string]any{
		"nil args":      nil,
		"empty command": {"command": ""},
		"only dir":      {"working_directory": "/tmp"},
	} {
		t.Run(name, func(t *testing.T) {
			runner := &fakeRunner{}
			cli := process.NewExecutor(domain.NewCredential(secret), process.WithRunner(runner))
			d := dispatch.New(&fakeAPI{}, cli)

			env := d.CallTool(context.Background(), call("fastly_cli", args))
			assert.True(t, env.IsError)
			assert.Equal(t, "Error: command is required", env.Text())
			assert.Zero(t, runner.runs.Load(), "no subprocess is started")
		})
	}
}

func TestCallTool_WrongArgumentType(t *testing.T) {
	fake := &fakeAPI{}
	d := dispatch.New(fake, &fakeCLI{})

	env := d.CallTool(context.Background(), call("fastly_api", map[string]any{"path": float64(42), "method": "GET"}))
	assert.True(t, env.IsError)
	assert.True(t, strings.HasPrefix(env.Text(), "Error: "))
	assert.Contains(t, env.Text(), "path")
	assert.Zero(t, fake.calls.Load())
}

func TestCallTool_FalsyOptionalsAreAbsent(t *testing.T) {
	fake := &fakeAPI{result: &domain.APIResult{Status: 200}}
	d := dispatch.New(fake, &fakeCLI{})

	env := d.CallTool(context.Background(), call("fastly_api", map[string]any{
		"path": "/service", "method": "POST", "body": "", "params": nil,
	}))
	require.False(t, env.IsError, env.Text())
	assert.Nil(t, fake.last.Body)
	assert.Nil(t, fake.last.Params)

	env = d.CallTool(context.Background(), call("fastly_api", map[string]any{
		"path": "/stats", "method": "GET", "params": map[string]any{"service_id": "abc"},
	}))
	require.False(t, env.IsError, env.Text())
	assert.Equal(t, map[string]any{"service_id": "abc"}, fake.last.Params)
}

func TestCallTool_ParamsKeepWireOrder(t *testing.T) {
	fake := &fakeAPI{result: &domain.APIResult{Status: 200}}
	d := dispatch.New(fake, &fakeCLI{})

	raw := json.RawMessage(`{"path":"/stats","method":"GET","params":{"service_id":"abc","to":2,"from":"1","to":3}}`)
	var args map[string]any
	require.NoError(t, json.Unmarshal(raw, &args))

	env := d.CallTool(context.Background(), domain.Invocation{Name: "fastly_api", Arguments: args, RawArguments: raw})
	require.False(t, env.IsError, env.Text())

	assert.Equal(t, []domain.Param{
		{Key: "service_id", Value: "abc"},
		{Key: "to", Value: float64(3)},
		{Key: "from", Value: "1"},
	}, fake.last.QueryParams())
}

func TestCallTool_UnknownTool(t *testing.T) {
	d := dispatch.New(&fakeAPI{}, &fakeCLI{})

	env := d.CallTool(context.Background(), call("no_such_tool", map[string]any{"x": 1}))

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":[{"type":"text","text":"Unknown tool: no_such_tool"}],"isError":true}`, string(raw))
}

func TestCallTool_CLISuccess(t *testing.T) {
	runner := &fakeRunner{done: process.Completion{Stdout: "authenticated\n"}}
	cli := process.NewExecutor(domain.NewCredential(secret), process.WithRunner(runner))
	d := dispatch.New(&fakeAPI{}, cli, dispatch.WithCredential(domain.NewCredential(secret)))

	env := d.CallTool(context.Background(), call("fastly_cli", map[string]any{"command": "whoami"}))
	require.False(t, env.IsError, env.Text())

	var got struct {
		Stdout  string `json:"stdout"`
		Stderr  string `json:"stderr"`
		Success bool   `json:"success"`
	}
	require.NoError(t, json.Unmarshal([]byte(env.Text()), &got))
	assert.True(t, got.Success)
	assert.Equal(t, "authenticated", got.Stdout)
	assert.Equal(t, "{\n  \"stdout\": \"authenticated\",\n  \"stderr\": \"\",\n  \"success\": true\n}", env.Text())
}

func TestCallTool_CLIWorkingDirectory(t *testing.T) {
	fake := &fakeCLI{result: &domain.CLIResult{Success: true}}
	d := dispatch.New(&fakeAPI{}, fake)

	d.CallTool(context.Background(), call("fastly_cli", map[string]any{"command": "compute build", "working_directory": "/srv/app"}))
	assert.Equal(t, domain.CLICallRequest{Command: "compute build", WorkingDirectory: "/srv/app"}, fake.last)
}

func TestCallTool_ExecutorError(t *testing.T) {
	fake := &fakeAPI{err: &domain.APIError{Service: "Fastly", Err: errors.New("dial tcp: connection refused")}}
	d := dispatch.New(fake, &fakeCLI{})

	env := d.CallTool(context.Background(), call("fastly_api", map[string]any{"path": "/service", "method": "GET"}))
	assert.True(t, env.IsError)
	assert.Equal(t, "Error: Fastly API error: dial tcp: connection refused", env.Text())
}

func TestCallTool_PanicBecomesEnvelope(t *testing.T) {
	fake := &fakeAPI{panic: "boom " + secret}
	d := dispatch.New(fake, &fakeCLI{}, dispatch.WithCredential(domain.NewCredential(secret)))

	var env domain.Envelope
	require.NotPanics(t, func() {
		env = d.CallTool(context.Background(), call("fastly_api", map[string]any{"path": "/service", "method": "GET"}))
	})
	assert.True(t, env.IsError)
	assert.Equal(t, "Error: internal error handling fastly_api", env.Text())
}

func TestCallTool_NeverLeaksCredential(t *testing.T) {
	cred := domain.NewCredential(secret)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		// Echo the key back in both a header and the body.
		w.Header().Set("X-Echo", r.Header.Get("Fastly-Key"))
		_, _ = w.Write([]byte(`{"key":"` + r.Header.Get("Fastly-Key") + `"}`))
	}))
	defer srv.Close()

	apiExec, err := api.New(srv.URL, cred)
	require.NoError(t, err)

	failing := &fakeRunner{done: process.Completion{Stderr: "bad token " + secret, ExitCode: 2}}
	cliExec := process.NewExecutor(cred, process.WithRunner(failing))

	d := dispatch.New(apiExec, cliExec, dispatch.WithCredential(cred))

	envs := []domain.Envelope{
		d.CallTool(context.Background(), call("fastly_api", map[string]any{"path": "/service", "method": "GET"})),
		d.CallTool(context.Background(), call("fastly_cli", map[string]any{"command": "whoami"})),
		d.CallTool(context.Background(), call("fastly_api", map[string]any{"path": "/x"})),
		d.CallTool(context.Background(), call(secret, nil)),
	}
	for i, env := range envs {
		raw, err := json.Marshal(env)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), secret, "envelope %d", i)
	}
	assert.False(t, envs[0].IsError)
	assert.Contains(t, envs[0].Text(), domain.Redacted)
	assert.True(t, envs[1].IsError)
}

func TestCallTool_RedactsEscapedCredential(t *testing.T) {
	awkward := `to"k\en<1>`
	cred := domain.NewCredential(awkward)

	runner := &fakeRunner{done: process.Completion{Stdout: "key=" + awkward + "\n"}}
	cliExec := process.NewExecutor(cred, process.WithRunner(runner))
	d := dispatch.New(&fakeAPI{}, cliExec, dispatch.WithCredential(cred))

	env := d.CallTool(context.Background(), call("fastly_cli", map[string]any{"command": "whoami"}))
	require.False(t, env.IsError, env.Text())

	escaped, err := json.Marshal(awkward)
	require.NoError(t, err)
	inner := strings.Trim(string(escaped), `"`)

	assert.NotContains(t, env.Text(), awkward)
	assert.NotContains(t, env.Text(), inner)
	assert.NotContains(t, env.Text(), `to\"k\\en`)
	assert.Contains(t, env.Text(), domain.Redacted)
}

func TestCallTool_HandlerErrorIsNotUnknownTool(t *testing.T) {
	reg := prometheus.NewRegistry()
	fake := &fakeAPI{err: errors.New("unknown tool in upstream response")}
	d := dispatch.New(fake, &fakeCLI{}, dispatch.WithMetrics(reg))

	env := d.CallTool(context.Background(), call("fastly_api", map[string]any{"path": "/service", "method": "GET"}))
	assert.True(t, env.IsError)
	assert.Equal(t, "Error: unknown tool in upstream response", env.Text())

	expected := `
# HELP fastly_mcp_tool_calls_total Total number of tool calls by tool and outcome
# TYPE fastly_mcp_tool_calls_total counter
fastly_mcp_tool_calls_total{outcome="error",tool="fastly_api"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "fastly_mcp_tool_calls_total"))
}

func TestCallTool_RepeatableEnvelopes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Date", "Mon, 02 Jan 2006 15:04:05 GMT")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	apiExec, err := api.New(srv.URL, domain.NewCredential(secret))
	require.NoError(t, err)
	d := dispatch.New(apiExec, &fakeCLI{})

	args := map[string]any{"path": "/service", "method": "GET"}
	first := d.CallTool(context.Background(), call("fastly_api", args))
	second := d.CallTool(context.Background(), call("fastly_api", args))

	require.False(t, first.IsError, first.Text())
	assert.Equal(t, first, second)

	var got domain.APIResult
	require.NoError(t, json.Unmarshal([]byte(first.Text()), &got))
	assert.Equal(t, 200, got.Status)
	assert.Equal(t, map[string]any{"ok": true}, got.Data)
}

func TestCallTool_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	d := dispatch.New(&fakeAPI{result: &domain.APIResult{Status: 200}}, &fakeCLI{}, dispatch.WithMetrics(reg))

	ctx := context.Background()
	d.CallTool(ctx, call("fastly_api", map[string]any{"path": "/service", "method": "GET"}))
	d.CallTool(ctx, call("fastly_api", map[string]any{"path": "/service"}))
	d.CallTool(ctx, call("fastly_cli", nil))
	d.CallTool(ctx, call("whatever", nil))

	expected := `
# HELP fastly_mcp_tool_calls_total Total number of tool calls by tool and outcome
# TYPE fastly_mcp_tool_calls_total counter
fastly_mcp_tool_calls_total{outcome="invalid",tool="fastly_api"} 1
fastly_mcp_tool_calls_total{outcome="invalid",tool="fastly_cli"} 1
fastly_mcp_tool_calls_total{outcome="success",tool="fastly_api"} 1
fastly_mcp_tool_calls_total{outcome="unknown",tool="_unknown"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "fastly_mcp_tool_calls_total"))
	series, err := testutil.GatherAndCount(reg, "fastly_mcp_tool_call_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 3, series)
}

func TestCallTool_Spans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	d := dispatch.New(&fakeAPI{result: &domain.APIResult{Status: 200}}, &fakeCLI{}, dispatch.WithTracer(tp.Tracer("test")))

	d.CallTool(context.Background(), domain.Invocation{ID: "call-1", Name: "fastly_api", Arguments: map[string]any{"path": "/service", "method": "GET"}})
	d.CallTool(context.Background(), domain.Invocation{ID: "call-2", Name: "fastly_cli"})

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	assert.Equal(t, "tools/call fastly_api", spans[0].Name)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
	assert.Contains(t, spans[0].Attributes, attribute.String("mcp.tool.call_id", "call-1"))

	assert.Equal(t, "tools/call fastly_cli", spans[1].Name)
	assert.Equal(t, codes.Error, spans[1].Status.Code)
	assert.Equal(t, dispatch.OutcomeInvalid, spans[1].Status.Description)
}
