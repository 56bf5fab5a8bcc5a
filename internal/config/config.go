// Package config loads the typed configuration this server runs with,
// layering CLI flags over environment variables over an optional YAML file,
// the way evalgo-org-eve's config package layers environment variables over
// defaults and the pack's cobra/pflag CLI tooling layers flags on top of
// that. The loader is a boundary collaborator: the rest of the server only
// ever consumes a populated *Config, never re-implements flag parsing.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the fully-resolved configuration for one server run.
type Config struct {
	Organization string `validate:"required"`
	Project      string
	AreaPath     string
	AreaPaths    []string
	CopilotGUID  string

	Verbose           bool
	AutoLaunchBrowser bool

	// ForceNewline and ForceContentLength pick the transport's output
	// framing. If both are set, ForceContentLength wins.
	ForceNewline       bool
	ForceContentLength bool
	Debug              bool

	BaseURL string

	// SamplingBackend selects the optional AI sampling implementation this
	// process provides when no sampling-capable host is present: "",
	// "anthropic", "openai", or "bedrock". Empty means sampling-requiring
	// tools fail with the deterministic unavailable envelope.
	SamplingBackend string
	SamplingAPIKey  string
	SamplingModel   string

	// DebugHTTPAddr, when non-empty, starts the debug/introspection HTTP
	// surface (internal/httpapi) alongside the JSON-RPC transport. Empty
	// leaves it off, per its off-by-default contract.
	DebugHTTPAddr string
}

const defaultBaseURL = "https://dev.azure.com"

// RegisterFlags attaches this server's CLI surface to cmd, grounded on the
// pack's own "important flags first, SortFlags off" cobra style.
func RegisterFlags(cmd *cobra.Command) *pflag.FlagSet {
	f := cmd.Flags()
	f.SortFlags = false

	f.String("organization", "", "Azure DevOps organization name (required).")
	f.String("project", "", "Azure DevOps project name. Required unless --area-path is given.")
	f.String("area-path", "", "Azure DevOps area path. Its first segment is used as the project if --project is omitted.")
	f.StringSlice("area-paths", nil, "Additional area paths, stored in the configuration; queries are not filtered by them.")
	f.String("copilot-guid", "", "Copilot correlation identifier, stored in the configuration; not sent on ADO requests.")
	f.BoolP("verbose", "v", false, "Enable verbose logging (equivalent to MCP_DEBUG=1).")
	f.Bool("auto-launch-browser", false, "Allow the credential source to open an interactive browser login.")
	f.String("base-url", defaultBaseURL, "Azure DevOps REST API base URL.")
	f.String("config", "", "Optional path to a YAML configuration file.")
	f.String("sampling-backend", "", "AI sampling backend to run when no sampling-capable host is present: anthropic, openai, or bedrock.")
	f.String("sampling-api-key", "", "API key for the configured sampling backend (unused for bedrock, which uses AWS credentials).")
	f.String("sampling-model", "", "Default model identifier for the configured sampling backend.")
	f.String("debug-http-addr", "", "Address to serve /healthz, /metrics, and /openapi.json on (disabled when empty).")

	return f
}

// Load resolves a Config from flags, then ADO_MCP_-prefixed environment
// variables, then an optional YAML file named by --config, applying
// viper's usual flag > env > file > default precedence.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ADO_MCP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("config: bind flags: %w", err)
	}

	if path, _ := flags.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read config file %q: %w", path, err)
		}
	}

	v.SetDefault("base-url", defaultBaseURL)

	cfg := &Config{
		Organization:      v.GetString("organization"),
		Project:           v.GetString("project"),
		AreaPath:          v.GetString("area-path"),
		AreaPaths:         v.GetStringSlice("area-paths"),
		CopilotGUID:       v.GetString("copilot-guid"),
		Verbose:           v.GetBool("verbose"),
		AutoLaunchBrowser: v.GetBool("auto-launch-browser"),
		BaseURL:           v.GetString("base-url"),
		SamplingBackend:   v.GetString("sampling-backend"),
		SamplingAPIKey:    v.GetString("sampling-api-key"),
		SamplingModel:     v.GetString("sampling-model"),
		DebugHTTPAddr:     v.GetString("debug-http-addr"),
	}

	// MCP_* variables are unprefixed by spec, layered on top of everything
	// above so they always win regardless of the ADO_MCP_ equivalents.
	applyUnprefixedOverrides(cfg)

	if cfg.Verbose {
		cfg.Debug = true
	}

	return cfg, nil
}

func applyUnprefixedOverrides(cfg *Config) {
	env := viper.New()
	env.AutomaticEnv()
	if env.IsSet("MCP_FORCE_NEWLINE") {
		cfg.ForceNewline = env.GetBool("MCP_FORCE_NEWLINE")
	}
	if env.IsSet("MCP_FORCE_CONTENT_LENGTH") {
		cfg.ForceContentLength = env.GetBool("MCP_FORCE_CONTENT_LENGTH")
	}
	if env.IsSet("MCP_DEBUG") {
		cfg.Debug = env.GetBool("MCP_DEBUG")
	}
}

// EffectiveProject returns Project if set, otherwise the first
// backslash-separated segment of AreaPath.
func (c *Config) EffectiveProject() string {
	if c.Project != "" {
		return c.Project
	}
	if c.AreaPath == "" {
		return ""
	}
	if idx := strings.Index(c.AreaPath, `\`); idx >= 0 {
		return c.AreaPath[:idx]
	}
	return c.AreaPath
}

// Validate enforces struct-tag rules plus the "project or areaPath
// required" constraint that validator's tag syntax can't express directly
// across two optional fields.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Project == "" && c.AreaPath == "" {
		return fmt.Errorf("config: either project or areaPath must be provided")
	}
	return nil
}
