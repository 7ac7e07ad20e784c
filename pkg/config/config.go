// Package config loads groundquery.yaml, expands environment references,
// applies defaults, and validates the result. Database credentials are
// environment-only and live in pkg/database.
package config

import (
	"fmt"
	"time"
)

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Policy   PolicyConfig   `yaml:"policy"`
	Planner  PlannerConfig  `yaml:"planner"`
	Tools    ToolsConfig    `yaml:"tools"`
	LLM      LLMConfig      `yaml:"llm"`
	Weaviate WeaviateConfig `yaml:"weaviate"`
}

// ServerConfig holds the HTTP edge settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// PolicyConfig holds the SQL safety gate and tool gate settings.
type PolicyConfig struct {
	MaxRows             int64    `yaml:"max_rows"`
	AllowedTables       []string `yaml:"allowed_tables"`
	AllowedTools        []string `yaml:"allowed_tools"`
	ForbiddenFunctions  []string `yaml:"forbidden_functions"`
	MaxToolCallsPerPlan int      `yaml:"max_tool_calls_per_plan"`
}

// PlannerConfig holds planner tuning.
type PlannerConfig struct {
	Temperature   float32 `yaml:"temperature"`
	MaxRetries    int     `yaml:"max_retries"`
	SystemContext string  `yaml:"system_context"`
}

// ToolsConfig holds tool runtime settings.
type ToolsConfig struct {
	TimeoutMs   int64 `yaml:"timeout_ms"`
	PreviewRows int   `yaml:"preview_rows"`
}

// Timeout returns the per-call deadline as a duration.
func (c ToolsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// LLMConfig holds the language model adapter settings. APIKey is expected
// to arrive via environment expansion, never as a literal in the file.
type LLMConfig struct {
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// WeaviateConfig holds the RAG connector settings. When Host is empty the
// connector is left unconfigured and rag.search actions fail gracefully.
type WeaviateConfig struct {
	Scheme string `yaml:"scheme"`
	Host   string `yaml:"host"`
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", cfg.Server.Port)
	}
	if cfg.Policy.MaxRows < 0 {
		return fmt.Errorf("policy.max_rows must not be negative")
	}
	if cfg.Policy.MaxToolCallsPerPlan <= 0 {
		return fmt.Errorf("policy.max_tool_calls_per_plan must be positive")
	}
	if cfg.Planner.MaxRetries < 0 {
		return fmt.Errorf("planner.max_retries must not be negative")
	}
	if cfg.Planner.Temperature < 0 || cfg.Planner.Temperature > 2 {
		return fmt.Errorf("planner.temperature %v is out of range", cfg.Planner.Temperature)
	}
	if cfg.Tools.TimeoutMs <= 0 {
		return fmt.Errorf("tools.timeout_ms must be positive")
	}
	return nil
}
