package config

// Default values applied to any field the YAML leaves unset.
const (
	DefaultPort                = 8080
	DefaultMaxRows             = int64(200)
	DefaultMaxToolCallsPerPlan = 10
	DefaultPlannerTemperature  = float32(0.1)
	DefaultPlannerMaxRetries   = 2
	DefaultToolTimeoutMs       = int64(30000)
	DefaultPreviewRows         = 10
	DefaultLLMModel            = "gpt-4o-mini"
)

// DefaultAllowedTools is the tool vocabulary when none is configured.
func DefaultAllowedTools() []string {
	return []string{"sql.query", "rag.search"}
}

// DefaultForbiddenFunctions blocks sleep, link, filesystem, and
// session-modifying functions as a second line behind the AST gate.
func DefaultForbiddenFunctions() []string {
	return []string{
		"pg_sleep",
		"pg_sleep_for",
		"pg_sleep_until",
		"dblink",
		"dblink_exec",
		"pg_read_file",
		"pg_read_binary_file",
		"pg_ls_dir",
		"lo_import",
		"lo_export",
		"set_config",
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Policy.MaxRows == 0 {
		cfg.Policy.MaxRows = DefaultMaxRows
	}
	if len(cfg.Policy.AllowedTools) == 0 {
		cfg.Policy.AllowedTools = DefaultAllowedTools()
	}
	if len(cfg.Policy.ForbiddenFunctions) == 0 {
		cfg.Policy.ForbiddenFunctions = DefaultForbiddenFunctions()
	}
	if cfg.Policy.MaxToolCallsPerPlan == 0 {
		cfg.Policy.MaxToolCallsPerPlan = DefaultMaxToolCallsPerPlan
	}
	if cfg.Planner.Temperature == 0 {
		cfg.Planner.Temperature = DefaultPlannerTemperature
	}
	if cfg.Planner.MaxRetries == 0 {
		cfg.Planner.MaxRetries = DefaultPlannerMaxRetries
	}
	if cfg.Tools.TimeoutMs == 0 {
		cfg.Tools.TimeoutMs = DefaultToolTimeoutMs
	}
	if cfg.Tools.PreviewRows == 0 {
		cfg.Tools.PreviewRows = DefaultPreviewRows
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = DefaultLLMModel
	}
	if cfg.Weaviate.Scheme == "" {
		cfg.Weaviate.Scheme = "http"
	}
}
