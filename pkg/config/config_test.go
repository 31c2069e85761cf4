package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LLM.Provider != "ollama" {
		t.Errorf("expected default provider ollama, got %s", cfg.LLM.Provider)
	}
	if cfg.Resilience.MaxAttempts != 5 {
		t.Errorf("expected 5 attempts, got %d", cfg.Resilience.MaxAttempts)
	}
	if cfg.Resilience.NetworkInitial != time.Second || cfg.Resilience.RateLimitMax != 300*time.Second {
		t.Errorf("unexpected backoff defaults: %+v", cfg.Resilience)
	}
	if cfg.Resilience.CooldownBase != 30*time.Second || cfg.Resilience.CooldownCeiling != 600*time.Second {
		t.Errorf("unexpected cooldown defaults: %+v", cfg.Resilience)
	}
	if cfg.Hooks.LoopWindow != 8 || cfg.Hooks.LoopThreshold != 3 {
		t.Errorf("unexpected loop defaults: %+v", cfg.Hooks)
	}
	if cfg.Hooks.MemoryTTL != 5*time.Minute || cfg.Hooks.ExecLogMaxBytes != 10*1024*1024 {
		t.Errorf("unexpected hook defaults: %+v", cfg.Hooks)
	}
	if diff := cmp.Diff([]string{"web_search", "web_fetch", "browser"}, cfg.Governance.Deny); diff != "" {
		t.Errorf("deny defaults mismatch (-want +got):\n%s", diff)
	}
	if cfg.Delegation.MaxIterations != 25 {
		t.Errorf("expected 25 delegation iterations, got %d", cfg.Delegation.MaxIterations)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "steward.yaml")
	writeFile(t, path, `
llm:
  provider: anthropic
  model: claude-sonnet-4-20250514
  fallback_models: [claude-haiku, claude-opus]
resilience:
  cooldown_base: 10s
hooks:
  memory_ttl: 1m
governance:
  policies:
    - id: no-shell
      effect: deny
      type: tool
      name: bash
      reason: shell disabled
tools:
  mcp_servers:
    - name: search
      command: search-mcp
      args: ["--stdio"]
      timeout: 5s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("provider: got %s", cfg.LLM.Provider)
	}
	if diff := cmp.Diff([]string{"claude-haiku", "claude-opus"}, cfg.LLM.FallbackModels); diff != "" {
		t.Errorf("fallbacks mismatch (-want +got):\n%s", diff)
	}
	if cfg.Resilience.CooldownBase != 10*time.Second || cfg.Hooks.MemoryTTL != time.Minute {
		t.Errorf("durations not parsed: %v %v", cfg.Resilience.CooldownBase, cfg.Hooks.MemoryTTL)
	}
	if len(cfg.Governance.Policies) != 1 || cfg.Governance.Policies[0].Name != "bash" {
		t.Errorf("policies not parsed: %+v", cfg.Governance.Policies)
	}
	if len(cfg.Tools.MCPServers) != 1 || cfg.Tools.MCPServers[0].Args[0] != "--stdio" ||
		cfg.Tools.MCPServers[0].Timeout != 5*time.Second {
		t.Errorf("mcp servers not parsed: %+v", cfg.Tools.MCPServers)
	}
	// Defaults survive a partial file.
	if cfg.Resilience.CooldownCeiling != 600*time.Second {
		t.Errorf("expected default ceiling, got %v", cfg.Resilience.CooldownCeiling)
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("STEWARD_LLM_PROVIDER", "gemini")
	t.Setenv("STEWARD_HOOKS_LOOP_WINDOW", "12")
	t.Setenv("STEWARD_LLM_BASE_URL", "http://gpu:11434")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.Provider != "gemini" {
		t.Errorf("expected provider gemini from env, got %s", cfg.LLM.Provider)
	}
	if cfg.Hooks.LoopWindow != 12 {
		t.Errorf("expected loop window 12 from env, got %d", cfg.Hooks.LoopWindow)
	}
	if cfg.LLM.BaseURL != "http://gpu:11434" {
		t.Errorf("expected base url from env, got %s", cfg.LLM.BaseURL)
	}
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"STEWARD_LLM_PROVIDER":          "llm.provider",
		"STEWARD_HOOKS_EXEC_LOG_PATH":   "hooks.exec_log_path",
		"STEWARD_DELEGATION_STORAGE_DIR": "delegation.storage_dir",
		"STEWARD_LOG":                   "log",
	}
	for in, want := range tests {
		if got := envKey(in); got != want {
			t.Errorf("envKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadWithProfile(t *testing.T) {
	tmpDir := t.TempDir()
	basePath := filepath.Join(tmpDir, "config.yaml")
	writeFile(t, basePath, `
llm:
  provider: "ollama"
  model: "llama3.1"
log:
  level: "info"
`)
	writeFile(t, filepath.Join(tmpDir, "config.dev.yaml"), `
llm:
  provider: "gemini"
log:
  level: "debug"
`)

	tests := []struct {
		name         string
		profile      string
		wantProvider string
		wantLogLevel string
	}{
		{"no profile", "", "ollama", "info"},
		{"dev profile", "dev", "gemini", "debug"},
		{"missing profile falls back to base", "staging", "ollama", "info"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadWithProfile(basePath, tc.profile)
			if err != nil {
				t.Fatalf("LoadWithProfile failed: %v", err)
			}
			if cfg.LLM.Provider != tc.wantProvider {
				t.Errorf("provider: got %s, want %s", cfg.LLM.Provider, tc.wantProvider)
			}
			if cfg.Log.Level != tc.wantLogLevel {
				t.Errorf("log level: got %s, want %s", cfg.Log.Level, tc.wantLogLevel)
			}
			if cfg.LLM.Model != "llama3.1" {
				t.Errorf("model should come from base, got %s", cfg.LLM.Model)
			}
		})
	}
}

func TestLoadWithOverrides(t *testing.T) {
	cfg, err := LoadWithOverrides("", "", []string{
		"llm.provider=anthropic",
		"hooks.memory_enabled=false",
		"delegation.max_iterations=7",
		"resilience.operation_timeout=2m",
		"llm.fallback_models=a, b",
	})
	if err != nil {
		t.Fatalf("LoadWithOverrides failed: %v", err)
	}
	if cfg.LLM.Provider != "anthropic" || cfg.Hooks.MemoryEnabled || cfg.Delegation.MaxIterations != 7 {
		t.Errorf("overrides not applied: %+v %+v %+v", cfg.LLM, cfg.Hooks, cfg.Delegation)
	}
	if cfg.Resilience.OperationTimeout != 2*time.Minute {
		t.Errorf("expected 2m timeout, got %v", cfg.Resilience.OperationTimeout)
	}
	if diff := cmp.Diff([]string{"a", "b"}, cfg.LLM.FallbackModels); diff != "" {
		t.Errorf("fallback override mismatch (-want +got):\n%s", diff)
	}

	if _, err := LoadWithOverrides("", "", []string{"novalue"}); err == nil {
		t.Error("expected error for malformed override")
	}
}

func TestProfileConfigPath(t *testing.T) {
	tmpDir := t.TempDir()
	devPath := filepath.Join(tmpDir, "config.dev.yaml")
	writeFile(t, devPath, "log: {}")
	basePath := filepath.Join(tmpDir, "config.yaml")

	tests := []struct {
		name     string
		base     string
		profile  string
		wantPath string
	}{
		{"existing profile", basePath, "dev", devPath},
		{"nonexistent profile", basePath, "prod", ""},
		{"empty profile", basePath, "", ""},
		{"empty base", "", "dev", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := profileConfigPath(tc.base, tc.profile); got != tc.wantPath {
				t.Errorf("profileConfigPath(%q, %q) = %q, want %q", tc.base, tc.profile, got, tc.wantPath)
			}
		})
	}
}
