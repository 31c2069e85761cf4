// Package config loads steward configuration from defaults, YAML files,
// STEWARD_ environment variables and command line overrides, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment overrides. The first underscore
// after the prefix separates the section from the key, so
// STEWARD_HOOKS_LOOP_WINDOW sets hooks.loop_window.
const EnvPrefix = "STEWARD_"

type Config struct {
	Log        LogConfig        `koanf:"log"`
	LLM        LLMConfig        `koanf:"llm"`
	Resilience ResilienceConfig `koanf:"resilience"`
	Hooks      HooksConfig      `koanf:"hooks"`
	Memory     MemoryConfig     `koanf:"memory"`
	Delegation DelegationConfig `koanf:"delegation"`
	Agent      AgentConfig      `koanf:"agent"`
	Governance GovernanceConfig `koanf:"governance"`
	Workflow   WorkflowConfig   `koanf:"workflow"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Tools      ToolsConfig      `koanf:"tools"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type LLMConfig struct {
	Provider       string   `koanf:"provider"` // ollama, anthropic, gemini
	Model          string   `koanf:"model"`
	BaseURL        string   `koanf:"base_url"`
	APIKey         string   `koanf:"api_key"`
	FallbackModels []string `koanf:"fallback_models"`
	Temperature    float64  `koanf:"temperature"`
	MaxTokens      int      `koanf:"max_tokens"`
}

type ResilienceConfig struct {
	MaxAttempts      int           `koanf:"max_attempts"`
	NetworkInitial   time.Duration `koanf:"network_initial"`
	NetworkMax       time.Duration `koanf:"network_max"`
	NetworkFactor    float64       `koanf:"network_factor"`
	NetworkJitter    float64       `koanf:"network_jitter"`
	RateLimitInitial time.Duration `koanf:"rate_limit_initial"`
	RateLimitMax     time.Duration `koanf:"rate_limit_max"`
	RateLimitFactor  float64       `koanf:"rate_limit_factor"`
	RateLimitJitter  float64       `koanf:"rate_limit_jitter"`
	CooldownBase     time.Duration `koanf:"cooldown_base"`
	CooldownCeiling  time.Duration `koanf:"cooldown_ceiling"`
	// OperationTimeout bounds every registry call except spawn_agent and
	// execute_workflow, whose leaf calls are bounded instead. Zero disables it.
	OperationTimeout time.Duration `koanf:"operation_timeout"`
}

type HooksConfig struct {
	LoopWindow         int           `koanf:"loop_window"`
	LoopThreshold      int           `koanf:"loop_threshold"`
	MemoryEnabled      bool          `koanf:"memory_enabled"`
	MemoryTTL          time.Duration `koanf:"memory_ttl"`
	MemoryMinText      int           `koanf:"memory_min_text"`
	ExecLogPath        string        `koanf:"exec_log_path"`
	ExecLogMaxBytes    int64         `koanf:"exec_log_max_bytes"`
	ExecLogGenerations int           `koanf:"exec_log_generations"`
}

type MemoryConfig struct {
	Provider        string `koanf:"provider"` // dir, qdrant, none
	Dir             string `koanf:"dir"`
	QdrantAddr      string `koanf:"qdrant_addr"`
	Collection      string `koanf:"collection"`
	EmbedderBaseURL string `koanf:"embedder_base_url"`
	EmbedderModel   string `koanf:"embedder_model"`
	SearchLimit     int    `koanf:"search_limit"`
}

type DelegationConfig struct {
	StorageDir    string `koanf:"storage_dir"`
	MaxIterations int    `koanf:"max_iterations"`
}

type AgentConfig struct {
	MaxIterations int    `koanf:"max_iterations"`
	SystemPrompt  string `koanf:"system_prompt"`
}

type GovernanceConfig struct {
	Deny                 []string           `koanf:"deny"`
	RequiresVerification []string           `koanf:"requires_verification"`
	Policies             []PolicyRuleConfig `koanf:"policies"`
}

type PolicyRuleConfig struct {
	ID     string `koanf:"id"`
	Effect string `koanf:"effect"` // allow, deny
	Type   string `koanf:"type"`   // tool, agent, mcp
	Name   string `koanf:"name"`   // glob pattern
	Reason string `koanf:"reason"`
}

type WorkflowConfig struct {
	// AuditDSN is a sqlite DSN for step audit events. Empty keeps them in memory.
	AuditDSN string `koanf:"audit_dsn"`
}

type TelemetryConfig struct {
	Enabled      bool   `koanf:"enabled"`
	Exporter     string `koanf:"exporter"` // stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

type ToolsConfig struct {
	Workspace  string            `koanf:"workspace"`
	MCPServers []MCPServerConfig `koanf:"mcp_servers"`
}

type MCPServerConfig struct {
	Name    string        `koanf:"name"`
	Command string        `koanf:"command"`
	Args    []string      `koanf:"args"`
	Env     []string      `koanf:"env"`
	Timeout time.Duration `koanf:"timeout"`
}

func setDefaults(k *koanf.Koanf) {
	k.Set("log.level", "info")
	k.Set("log.format", "text")

	k.Set("llm.provider", "ollama")
	k.Set("llm.model", "qwen2.5-coder:7b-instruct-q5_K_M")
	k.Set("llm.base_url", "http://localhost:11434")
	k.Set("llm.max_tokens", 4096)

	k.Set("resilience.max_attempts", 5)
	k.Set("resilience.network_initial", time.Second)
	k.Set("resilience.network_max", 60*time.Second)
	k.Set("resilience.network_factor", 2.0)
	k.Set("resilience.network_jitter", 0.1)
	k.Set("resilience.rate_limit_initial", 5*time.Second)
	k.Set("resilience.rate_limit_max", 300*time.Second)
	k.Set("resilience.rate_limit_factor", 2.0)
	k.Set("resilience.rate_limit_jitter", 0.2)
	k.Set("resilience.cooldown_base", 30*time.Second)
	k.Set("resilience.cooldown_ceiling", 600*time.Second)

	k.Set("hooks.loop_window", 8)
	k.Set("hooks.loop_threshold", 3)
	k.Set("hooks.memory_enabled", true)
	k.Set("hooks.memory_ttl", 5*time.Minute)
	k.Set("hooks.memory_min_text", 10)
	k.Set("hooks.exec_log_path", filepath.Join(".steward", "logs", "tool_exec.jsonl"))
	k.Set("hooks.exec_log_max_bytes", int64(10*1024*1024))
	k.Set("hooks.exec_log_generations", 3)

	k.Set("memory.provider", "dir")
	k.Set("memory.dir", filepath.Join(".steward", "memory"))
	k.Set("memory.qdrant_addr", "localhost:6334")
	k.Set("memory.collection", "steward_memory")
	k.Set("memory.embedder_base_url", "http://localhost:11434")
	k.Set("memory.embedder_model", "nomic-embed-text")
	k.Set("memory.search_limit", 10)

	k.Set("delegation.storage_dir", ".steward")
	k.Set("delegation.max_iterations", 25)
	k.Set("agent.max_iterations", 10)

	k.Set("governance.deny", []string{"web_search", "web_fetch", "browser"})
	k.Set("governance.requires_verification", []string{"log_memory", "bash", "write_file", "edit_file"})

	k.Set("telemetry.exporter", "stdout")
	k.Set("tools.workspace", ".")
}

// Load reads defaults, the YAML file at path (if any) and the environment.
func Load(path string) (*Config, error) {
	return LoadWithOverrides(path, "", nil)
}

// LoadWithProfile loads path and then merges <name>.<profile><ext> from the
// same directory when it exists.
func LoadWithProfile(path, profile string) (*Config, error) {
	return LoadWithOverrides(path, profile, nil)
}

// LoadWithOverrides is LoadWithProfile followed by key=value overrides, as
// given with --set on the command line.
func LoadWithOverrides(path, profile string, overrides []string) (*Config, error) {
	k := koanf.New(".")
	setDefaults(k)

	for _, p := range []string{path, profileConfigPath(path, profile)} {
		if p == "" {
			continue
		}
		if err := k.Load(file.Provider(p), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", p, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}

	for _, o := range overrides {
		key, value, ok := strings.Cut(o, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid override %q: expected key=value", o)
		}
		k.Set(strings.TrimSpace(key), parseValue(strings.TrimSpace(value)))
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps STEWARD_LLM_BASE_URL to llm.base_url.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, key, ok := strings.Cut(s, "_")
	if !ok {
		return section
	}
	return section + "." + key
}

func parseValue(v string) any {
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	if strings.Contains(v, ",") {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return v
}

// profileConfigPath returns the profile file next to base, or "" when it
// does not exist.
func profileConfigPath(base, profile string) string {
	if base == "" || profile == "" {
		return ""
	}
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(filepath.Base(base), ext)
	p := filepath.Join(filepath.Dir(base), name+"."+profile+ext)
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}
