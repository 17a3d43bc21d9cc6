// Package config loads the server configuration from an optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/fastly-mcp/pkg/domain"
)

// Environment variables recognised by the server.
const (
	EnvConfigPath = "FASTLY_MCP_CONFIG"
	EnvBaseURL    = "FASTLY_MCP_BASE_URL"
	EnvRedisAddr  = "FASTLY_MCP_REDIS_ADDR"
	EnvLogFile    = "FASTLY_MCP_LOG_FILE"
	EnvServeToken = "FASTLY_MCP_SERVE_TOKEN"
)

// Config is the full server configuration.
type Config struct {
	ServiceName string      `yaml:"service_name"`
	API         APIConfig   `yaml:"api"`
	CLI         CLIConfig   `yaml:"cli"`
	Tools       ToolsConfig `yaml:"tools"`
	Log         LogConfig   `yaml:"log"`
	Serve       ServeConfig `yaml:"serve"`
}

// ServeConfig configures the HTTP transport.
type ServeConfig struct {
	Addr  string `yaml:"addr"`
	Token string `yaml:"token"`
	// AllowedOrigins lists the browser origins accepted on every route.
	// Requests without an Origin header are not affected. "*" accepts any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// APIConfig configures the API passthrough tool.
type APIConfig struct {
	BaseURL          string `yaml:"base_url"`
	CredentialHeader string `yaml:"credential_header"`
	CredentialEnv    string `yaml:"credential_env"`
}

// CLIConfig configures the command-line tool.
type CLIConfig struct {
	Program   string   `yaml:"program"`
	TokenFlag string   `yaml:"token_flag"`
	Shell     []string `yaml:"shell"`
	BaseDir   string   `yaml:"base_dir"`
}

// ToolsConfig names the advertised tools.
type ToolsConfig struct {
	API string `yaml:"api"`
	CLI string `yaml:"cli"`
}

// LogConfig configures the diagnostic sink.
type LogConfig struct {
	File    string      `yaml:"file"`
	Console bool        `yaml:"console"`
	Buffer  int         `yaml:"buffer"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig configures the optional Redis stream mirror. Empty Addr disables it.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Stream   string `yaml:"stream"`
	MaxLen   int64  `yaml:"max_len"`
}

// Default returns the configuration of the stock Fastly server.
func Default() Config {
	return Config{
		ServiceName: "Fastly",
		API: APIConfig{
			BaseURL:          "https://api.fastly.com",
			CredentialHeader: "Fastly-Key",
			CredentialEnv:    "FASTLY_API_KEY",
		},
		CLI: CLIConfig{
			Program:   "fastly",
			TokenFlag: "--token",
			Shell:     DefaultShell(),
		},
		Tools: ToolsConfig{
			API: "fastly_api",
			CLI: "fastly_cli",
		},
		Log: LogConfig{
			File:    "fastly-mcp-debug.log",
			Console: true,
			Buffer:  1024,
			Redis: RedisConfig{
				Stream: "fastly-mcp:diagnostics",
				MaxLen: 10000,
			},
		},
		Serve: ServeConfig{
			Addr: "127.0.0.1:8080",
		},
	}
}

// DefaultShell returns the interpreter argv for the host OS.
func DefaultShell() []string {
	if runtime.GOOS == "windows" {
		return []string{"powershell", "-NoProfile", "-NonInteractive", "-Command"}
	}
	return []string{"sh", "-c"}
}

// Load reads the YAML file at path (if any) over the defaults, then applies environment overrides.
// A missing file is only an error when the path was given explicitly.
func Load(path string, getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = getenv(EnvConfigPath)
		explicit = path != ""
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if v := getenv(EnvBaseURL); v != "" {
		cfg.API.BaseURL = v
	}
	if v := getenv(EnvRedisAddr); v != "" {
		cfg.Log.Redis.Addr = v
	}
	if v := getenv(EnvLogFile); v != "" {
		cfg.Log.File = v
	}
	if v := getenv(EnvServeToken); v != "" {
		cfg.Serve.Token = v
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the fields the server cannot run without.
func (c Config) Validate() error {
	var errs []error
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("api.base_url %q is not an absolute URL", c.API.BaseURL))
	}
	if c.API.CredentialHeader == "" {
		errs = append(errs, errors.New("api.credential_header is required"))
	}
	if c.CLI.Program == "" {
		errs = append(errs, errors.New("cli.program is required"))
	}
	if len(c.CLI.Shell) == 0 {
		errs = append(errs, errors.New("cli.shell is required"))
	}
	if c.Tools.API == "" || c.Tools.CLI == "" {
		errs = append(errs, errors.New("tools.api and tools.cli are required"))
	}
	if c.Tools.API == c.Tools.CLI {
		errs = append(errs, fmt.Errorf("tool names must be unique, both are %q", c.Tools.API))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// CheckExposure rejects listening on a non-loopback address without a token.
func (s ServeConfig) CheckExposure() error {
	host, _, err := net.SplitHostPort(s.Addr)
	if err != nil {
		return fmt.Errorf("serve.addr %q: %w", s.Addr, err)
	}
	if s.Token != "" || isLoopback(host) {
		return nil
	}
	return fmt.Errorf("refusing to serve on %q without a token: set serve.token or %s, or bind to 127.0.0.1", s.Addr, EnvServeToken)
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Credential reads the API credential from the configured environment variable.
// Absence is tolerated: the remote API rejects the calls instead.
func (c Config) Credential(getenv func(string) string) domain.Credential {
	if getenv == nil {
		getenv = os.Getenv
	}
	return domain.NewCredential(getenv(c.API.CredentialEnv))
}
