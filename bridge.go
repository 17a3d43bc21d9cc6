package fastlymcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	backend "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"github.com/aretw0/fastly-mcp/internal/config"
	"github.com/aretw0/fastly-mcp/internal/diagnostics"
	"github.com/aretw0/fastly-mcp/internal/logging"
	"github.com/aretw0/fastly-mcp/pkg/adapters/api"
	httpadapter "github.com/aretw0/fastly-mcp/pkg/adapters/http"
	mcpadapter "github.com/aretw0/fastly-mcp/pkg/adapters/mcp"
	"github.com/aretw0/fastly-mcp/pkg/adapters/process"
	"github.com/aretw0/fastly-mcp/pkg/dispatch"
	"github.com/aretw0/fastly-mcp/pkg/domain"
)

// Version is the server version reported to clients. Overridden at build time.
var Version = "dev"

// Config is the server configuration.
type Config = config.Config

// DefaultConfig returns the configuration of the stock Fastly server.
func DefaultConfig() Config {
	return config.Default()
}

// LoadConfig reads the YAML file at path over the defaults and applies environment overrides.
func LoadConfig(path string) (Config, error) {
	return config.Load(path, os.Getenv)
}

// Bridge wires the configuration, the executors and the MCP server together.
type Bridge struct {
	cfg        Config
	credential domain.Credential
	credSet    bool

	level      slog.Level
	diagWriter io.Writer
	registry   *prometheus.Registry
	tracer     trace.Tracer
	httpClient api.Doer
	runner     process.Runner

	sink       *diagnostics.Sink
	redis      backend.UniversalClient
	logger     *slog.Logger
	dispatcher *dispatch.Dispatcher
	server     *mcpadapter.Server
}

// Option configures the Bridge.
type Option func(*Bridge)

// WithCredential sets the credential instead of reading it from the environment.
func WithCredential(cred domain.Credential) Option {
	return func(b *Bridge) {
		b.credential = cred
		b.credSet = true
	}
}

// WithLogLevel sets the minimum level written to the diagnostic log.
func WithLogLevel(level slog.Level) Option {
	return func(b *Bridge) {
		b.level = level
	}
}

// WithDiagnosticWriter sends diagnostic lines to w instead of the configured file and stderr.
func WithDiagnosticWriter(w io.Writer) Option {
	return func(b *Bridge) {
		b.diagWriter = w
	}
}

// WithRegistry sets the Prometheus registry for tool call metrics.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(b *Bridge) {
		b.registry = reg
	}
}

// WithTracer sets the tracer used for tool call spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(b *Bridge) {
		b.tracer = tracer
	}
}

// WithHTTPClient replaces the client used for API calls.
func WithHTTPClient(c api.Doer) Option {
	return func(b *Bridge) {
		b.httpClient = c
	}
}

// WithRunner replaces the subprocess runner used for CLI calls.
func WithRunner(r process.Runner) Option {
	return func(b *Bridge) {
		b.runner = r
	}
}

// New builds a Bridge from cfg.
func New(cfg Config, opts ...Option) (*Bridge, error) {
	b := &Bridge{
		cfg:   cfg,
		level: slog.LevelInfo,
	}
	for _, opt := range opts {
		opt(b)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !b.credSet {
		b.credential = cfg.Credential(os.Getenv)
	}

	if err := b.openSink(); err != nil {
		return nil, err
	}
	b.logger = logging.NewDiagnostic(b.sink, b.level)
	b.logger.Info("=== Fastly MCP Server Starting ===")

	apiOpts := []api.Option{
		api.WithCredentialHeader(cfg.API.CredentialHeader),
		api.WithServiceName(cfg.ServiceName),
		api.WithLogger(b.logger),
	}
	if b.httpClient != nil {
		apiOpts = append(apiOpts, api.WithHTTPClient(b.httpClient))
	}
	apiExec, err := api.New(cfg.API.BaseURL, b.credential, apiOpts...)
	if err != nil {
		_ = b.Close()
		return nil, err
	}

	cliOpts := []process.Option{
		process.WithProgram(cfg.CLI.Program),
		process.WithTokenFlag(cfg.CLI.TokenFlag),
		process.WithShell(cfg.CLI.Shell...),
		process.WithBaseDir(cfg.CLI.BaseDir),
		process.WithServiceName(cfg.ServiceName),
		process.WithLogger(b.logger),
	}
	if b.runner != nil {
		cliOpts = append(cliOpts, process.WithRunner(b.runner))
	}
	cliExec := process.NewExecutor(b.credential, cliOpts...)

	if b.registry == nil {
		b.registry = prometheus.NewRegistry()
		b.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	dispatchOpts := []dispatch.Option{
		dispatch.WithLogger(b.logger),
		dispatch.WithCredential(b.credential),
		dispatch.WithMetrics(b.registry),
		dispatch.WithToolNames(cfg.Tools.API, cfg.Tools.CLI),
	}
	if b.tracer != nil {
		dispatchOpts = append(dispatchOpts, dispatch.WithTracer(b.tracer))
	}
	b.dispatcher = dispatch.New(apiExec, cliExec, dispatchOpts...)

	b.server = mcpadapter.NewServer(b.dispatcher,
		mcpadapter.WithVersion(Version),
		mcpadapter.WithLogger(b.logger),
	)

	b.logger.Info(fmt.Sprintf("API key configured: %s", yesNo(b.credential.IsSet())))
	return b, nil
}

func (b *Bridge) openSink() error {
	opts := []diagnostics.Option{
		diagnostics.WithRedactor(b.credential.Redact),
		diagnostics.WithBuffer(b.cfg.Log.Buffer),
	}

	if b.diagWriter != nil {
		opts = append(opts, diagnostics.WithWriter(b.diagWriter))
	} else {
		if b.cfg.Log.File != "" {
			f, err := diagnostics.OpenFile(b.cfg.Log.File)
			if err != nil {
				return err
			}
			opts = append(opts, diagnostics.WithFile(f))
		}
		if b.cfg.Log.Console {
			opts = append(opts, diagnostics.WithWriter(os.Stderr))
		}
	}

	if rc := b.cfg.Log.Redis; rc.Addr != "" {
		b.redis = backend.NewClient(&backend.Options{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
		})
		opts = append(opts, diagnostics.WithWriter(
			diagnostics.NewRedisStream(b.redis, rc.Stream, diagnostics.WithMaxLen(rc.MaxLen)),
		))
	}

	b.sink = diagnostics.New(opts...)
	return nil
}

// Logger returns the diagnostic logger.
func (b *Bridge) Logger() *slog.Logger {
	return b.logger
}

// Dispatcher returns the tool dispatcher.
func (b *Bridge) Dispatcher() *dispatch.Dispatcher {
	return b.dispatcher
}

// Server returns the MCP protocol adapter.
func (b *Bridge) Server() *mcpadapter.Server {
	return b.server
}

// Registry returns the metrics registry.
func (b *Bridge) Registry() *prometheus.Registry {
	return b.registry
}

// Tools returns the advertised tool descriptors without logging a listing.
func (b *Bridge) Tools() []domain.ToolDescriptor {
	return b.dispatcher.Descriptors()
}

// Config returns the configuration the bridge was built from.
func (b *Bridge) Config() Config {
	return b.cfg
}

// Handler returns the HTTP handler serving MCP, health and metrics routes.
// Browser origins and the bearer token follow the serve section of the config.
func (b *Bridge) Handler() http.Handler {
	return httpadapter.NewHandler(b.server, b.registry,
		httpadapter.WithVersion(Version),
		httpadapter.WithLogger(b.logger),
		httpadapter.WithAllowedOrigins(b.cfg.Serve.AllowedOrigins...),
		httpadapter.WithToken(b.cfg.Serve.Token),
	)
}

// ServeStdio serves newline-delimited JSON-RPC on in/out until EOF or ctx is done.
func (b *Bridge) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	return b.server.ServeStdio(ctx, in, out)
}

// Close flushes the diagnostic log and releases the Redis client.
func (b *Bridge) Close() error {
	var errs []error
	if b.sink != nil {
		errs = append(errs, b.sink.Close())
	}
	if b.redis != nil {
		errs = append(errs, b.redis.Close())
	}
	return errors.Join(errs...)
}

func yesNo(ok bool) string {
	if ok {
		return "Yes"
	}
	return "No"
}
