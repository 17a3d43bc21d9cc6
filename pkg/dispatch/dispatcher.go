// Package dispatch routes tool invocations to their executors and turns every
// outcome, including failures, into a domain.Envelope.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/aretw0/fastly-mcp/internal/logging"
	"github.com/aretw0/fastly-mcp/pkg/domain"
	"github.com/aretw0/fastly-mcp/pkg/registry"
)

// APIExecutor performs an API passthrough call.
type APIExecutor interface {
	Execute(ctx context.Context, call domain.APICallRequest) (*domain.APIResult, error)
}

// CLIExecutor runs one CLI command.
type CLIExecutor interface {
	Execute(ctx context.Context, call domain.CLICallRequest) (*domain.CLIResult, error)
}

// Dispatcher owns the tool registry and is the single error boundary:
// CallTool never returns an error and never panics.
type Dispatcher struct {
	api     APIExecutor
	cli     CLIExecutor
	apiName string
	cliName string

	descriptions map[string]string
	catalog      []domain.ToolDescriptor
	tools        *registry.Registry

	credential domain.Credential
	logger     *slog.Logger
	metrics    *metrics
	tracer     trace.Tracer
}

// Option configures the Dispatcher.
type Option func(*Dispatcher)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithCredential sets the secret scrubbed from every envelope.
func WithCredential(cred domain.Credential) Option {
	return func(d *Dispatcher) {
		d.credential = cred
	}
}

// WithMetrics registers the tool call collectors on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(d *Dispatcher) {
		d.metrics = newMetrics(reg)
	}
}

// WithTracer sets the tracer used for per-call spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(d *Dispatcher) {
		d.tracer = tracer
	}
}

// WithToolNames renames the advertised tools.
func WithToolNames(api, cli string) Option {
	return func(d *Dispatcher) {
		d.apiName = api
		d.cliName = cli
	}
}

// WithDescription overrides the advertised description of a tool.
func WithDescription(tool, description string) Option {
	return func(d *Dispatcher) {
		if d.descriptions == nil {
			d.descriptions = make(map[string]string)
		}
		d.descriptions[tool] = description
	}
}

// New creates a Dispatcher over the two executors.
func New(api APIExecutor, cli CLIExecutor, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		api:     api,
		cli:     cli,
		apiName: DefaultAPITool,
		cliName: DefaultCLITool,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logging.OrNop(d.logger)
	if d.tracer == nil {
		d.tracer = noop.NewTracerProvider().Tracer("")
	}

	d.tools = registry.NewRegistry()
	d.tools.Register(d.apiName, d.callAPI)
	d.tools.Register(d.cliName, d.callCLI)

	d.catalog = Catalog(d.apiName, d.cliName)
	for i := range d.catalog {
		if desc, ok := d.descriptions[d.catalog[i].Name]; ok {
			d.catalog[i].Description = desc
		}
	}
	return d
}

// ListTools answers a client listing request with the advertised tools in catalog order.
func (d *Dispatcher) ListTools() []domain.ToolDescriptor {
	d.logger.Info("Handling ListTools request")
	return d.Descriptors()
}

// Descriptors returns a copy of the catalog.
func (d *Dispatcher) Descriptors() []domain.ToolDescriptor {
	out := make([]domain.ToolDescriptor, len(d.catalog))
	copy(out, d.catalog)
	return out
}

// Has reports whether name is a registered tool.
func (d *Dispatcher) Has(name string) bool {
	_, ok := d.tools.Lookup(name)
	return ok
}

// CallTool executes an invocation and reports the outcome as an envelope.
// Envelope text never contains the credential.
func (d *Dispatcher) CallTool(ctx context.Context, inv domain.Invocation) (env domain.Envelope) {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	start := time.Now()
	label := inv.Name
	if !d.Has(inv.Name) {
		label = unknownToolLabel
	}

	ctx, span := d.tracer.Start(ctx, "tools/call "+label, trace.WithAttributes(
		attribute.String("mcp.tool.name", inv.Name),
		attribute.String("mcp.tool.call_id", inv.ID),
	))
	outcome := OutcomeSuccess

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error(d.credential.Redact(fmt.Sprintf("Panic handling %s: %v", inv.Name, r)), "call_id", inv.ID)
			outcome = OutcomePanic
			env = domain.ErrorEnvelope("Error: internal error handling " + inv.Name)
		}
		env = env.MapText(d.credential.Redact)

		d.metrics.observe(label, outcome, time.Since(start))
		span.SetAttributes(attribute.Bool("mcp.tool.is_error", env.IsError))
		if env.IsError {
			span.SetStatus(codes.Error, outcome)
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	d.logger.Info("Handling CallTool request for tool: "+inv.Name, "call_id", inv.ID)
	env, outcome = d.route(ctx, inv)
	return env
}

func (d *Dispatcher) route(ctx context.Context, inv domain.Invocation) (domain.Envelope, string) {
	result, err := d.tools.Execute(ctx, inv)
	if errors.Is(err, domain.ErrUnknownTool) {
		d.logger.Warn("Unknown tool: "+inv.Name, "call_id", inv.ID)
		return domain.ErrorEnvelope("Unknown tool: " + inv.Name), OutcomeUnknown
	}
	if err != nil {
		return d.failure(inv, err)
	}

	text, err := indentJSON(result)
	if err != nil {
		return d.failure(inv, fmt.Errorf("encode result: %w", err))
	}
	return domain.TextEnvelope(text), OutcomeSuccess
}

func (d *Dispatcher) callAPI(ctx context.Context, inv domain.Invocation) (any, error) {
	req, err := decodeAPICall(inv.Name, inv.Arguments, inv.RawArguments)
	if err != nil {
		return nil, err
	}
	d.logger.Info(fmt.Sprintf("Executing %s call: %s %s", inv.Name, req.Method, req.Path), "call_id", inv.ID)
	return d.api.Execute(ctx, req)
}

func (d *Dispatcher) callCLI(ctx context.Context, inv domain.Invocation) (any, error) {
	req, err := decodeCLICall(inv.Name, inv.Arguments)
	if err != nil {
		return nil, err
	}
	d.logger.Info(fmt.Sprintf("Executing %s command: %s", inv.Name, req.Command), "call_id", inv.ID)
	return d.cli.Execute(ctx, req)
}

func (d *Dispatcher) failure(inv domain.Invocation, err error) (domain.Envelope, string) {
	outcome := OutcomeError
	var invalid *domain.ValidationError
	if errors.As(err, &invalid) {
		outcome = OutcomeInvalid
	}
	msg := d.credential.Redact(err.Error())
	d.logger.Error("Error handling request: "+msg, "call_id", inv.ID, "tool", inv.Name)
	return domain.ErrorEnvelope("Error: " + msg), outcome
}

// indentJSON renders v with two-space indentation and no HTML escaping.
func indentJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
