package conf

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DevRickLin/chat-relay/internal/biz/usecase"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PROMPTS_CONFIG_PATH", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "relay.db"))
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg := LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected valid config, got %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("Expected :8080, got %s", cfg.ListenAddr)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("Expected sqlite driver, got %s", cfg.Store.Driver)
	}
	if cfg.OpenAI.Model != "gpt-3.5-turbo" || cfg.OpenAI.Temperature != 0.7 || cfg.OpenAI.MaxTokens != 300 {
		t.Errorf("Unexpected model defaults: %+v", cfg.OpenAI)
	}
	if cfg.WindowSize != 20 {
		t.Errorf("Expected window 20, got %d", cfg.WindowSize)
	}
	if cfg.ReasoningTimeout != 30*time.Second {
		t.Errorf("Expected 30s timeout, got %v", cfg.ReasoningTimeout)
	}
	if cfg.Feishu.EventMode != FeishuModeWebhook {
		t.Errorf("Expected webhook mode, got %s", cfg.Feishu.EventMode)
	}

	trigger := cfg.ToTriggerConfig()
	if trigger.Kind != usecase.PolicyCount || trigger.MinUserMessages != 2 {
		t.Errorf("Unexpected trigger defaults: %+v", trigger)
	}
	if cfg.ToPromptConfig().FallbackNotice == "" {
		t.Error("Expected default fallback notice")
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("STORE_DRIVER", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("TRIGGER_POLICY", "diversity")
	t.Setenv("TRIGGER_MIN_DISTINCT_AUTHORS", "3")
	t.Setenv("CONTEXT_WINDOW_SIZE", "10")
	t.Setenv("REASONING_TIMEOUT_SECONDS", "5")

	cfg := LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected valid config, got %v", err)
	}
	if cfg.ToStoreConfig().RedisURL != "redis://localhost:6379/0" {
		t.Errorf("Unexpected store config: %+v", cfg.ToStoreConfig())
	}
	reply := cfg.ToReplyConfig()
	if reply.WindowSize != 10 || reply.ReasoningTimeout != 5*time.Second {
		t.Errorf("Unexpected reply config: %+v", reply)
	}
	if cfg.ToTriggerConfig().MinDistinctAuthors != 3 {
		t.Errorf("Expected 3 distinct authors, got %d", cfg.ToTriggerConfig().MinDistinctAuthors)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		field string
	}{
		{"no platform", map[string]string{"TELEGRAM_BOT_TOKEN": ""}, "FEISHU_APP_ID/FEISHU_APP_SECRET or TELEGRAM_BOT_TOKEN"},
		{"no api key", map[string]string{"OPENAI_API_KEY": ""}, "OPENAI_API_KEY"},
		{"bad temperature", map[string]string{"OPENAI_TEMPERATURE": "2.5"}, "OPENAI_TEMPERATURE"},
		{"unknown driver", map[string]string{"STORE_DRIVER": "mongo"}, "STORE_DRIVER"},
		{"postgres without url", map[string]string{"STORE_DRIVER": "postgres"}, "DATABASE_URL"},
		{"unknown policy", map[string]string{"TRIGGER_POLICY": "random"}, "TRIGGER_POLICY"},
		{"zero threshold", map[string]string{"TRIGGER_MIN_USER_MESSAGES": "0"}, "TRIGGER_MIN_USER_MESSAGES"},
		{"unselected author threshold", map[string]string{"TRIGGER_POLICY": "count", "TRIGGER_MIN_DISTINCT_AUTHORS": "0"}, "TRIGGER_MIN_DISTINCT_AUTHORS"},
		{"unselected buffer threshold", map[string]string{"TRIGGER_POLICY": "diversity", "TRIGGER_MIN_BUFFERED": "-2"}, "TRIGGER_MIN_BUFFERED"},
		{"unparsable buffer threshold", map[string]string{"TRIGGER_MIN_BUFFERED": "many"}, "TRIGGER_MIN_BUFFERED"},
		{"unparsable window", map[string]string{"CONTEXT_WINDOW_SIZE": "lots"}, "CONTEXT_WINDOW_SIZE"},
		{"bad event mode", map[string]string{"FEISHU_EVENT_MODE": "poll"}, "FEISHU_EVENT_MODE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBaseEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			err := LoadFromEnv().Validate()
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Expected ConfigError, got %v", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("Expected field %s, got %s", tt.field, cfgErr.Field)
			}
		})
	}
}

func TestLoadPromptsConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	content := "relay:\n  system_prompt: \"You are a pirate.\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, source, err := LoadPromptsConfig(path)
	if err != nil {
		t.Fatalf("LoadPromptsConfig failed: %v", err)
	}
	if source != path {
		t.Errorf("Expected source %s, got %s", path, source)
	}
	if cfg.Relay.SystemPrompt != "You are a pirate." {
		t.Errorf("Unexpected system prompt %q", cfg.Relay.SystemPrompt)
	}
	// Missing keys are filled from defaults
	if cfg.Relay.AuthorFormat != usecase.DefaultPromptConfig.AuthorFormat {
		t.Errorf("Expected default author format, got %q", cfg.Relay.AuthorFormat)
	}
}

func TestLoadPromptsConfig_Errors(t *testing.T) {
	if _, _, err := LoadPromptsConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing explicit path")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("relay: [unclosed"), 0o644)
	if _, _, err := LoadPromptsConfig(path); err == nil {
		t.Error("Expected error for invalid YAML")
	}

	t.Setenv("PROMPTS_CONFIG_PATH", path)
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	var cfgErr *ConfigError
	if err := LoadFromEnv().Validate(); !errors.As(err, &cfgErr) || cfgErr.Field != "PROMPTS_CONFIG_PATH" {
		t.Errorf("Expected PROMPTS_CONFIG_PATH error, got %v", err)
	}
}
