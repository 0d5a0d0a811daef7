package conf

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/DevRickLin/chat-relay/internal/biz/usecase"
	"github.com/DevRickLin/chat-relay/internal/data"
	"github.com/DevRickLin/chat-relay/internal/infra/feishu"
	"github.com/DevRickLin/chat-relay/internal/infra/telegram"
)

// Feishu event delivery modes
const (
	FeishuModeWebhook   = "webhook"
	FeishuModeWebSocket = "ws"
)

// Config represents application configuration
type Config struct {
	// HTTP listen address for webhooks, health, metrics and the admin API
	ListenAddr string

	// Bearer token guarding /api (empty disables auth)
	APIToken string

	Store    StoreConfig
	OpenAI   OpenAIConfig
	Trigger  TriggerConfig
	Feishu   FeishuConfig
	Telegram TelegramConfig

	// Prompts loaded from YAML, and the file they came from ("" = defaults)
	Prompts       *PromptsConfig
	PromptsSource string

	// Context window size K
	WindowSize int

	// Upper bound on one reasoning call
	ReasoningTimeout time.Duration

	// Store health check period
	HealthInterval time.Duration

	// Debug mode
	Debug bool

	promptsErr error
}

// StoreConfig selects the durable store
type StoreConfig struct {
	Driver      string
	SQLitePath  string
	RedisURL    string
	DatabaseURL string
}

// OpenAIConfig contains reasoning engine configuration
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
}

// TriggerConfig contains trigger policy configuration
type TriggerConfig struct {
	Policy             string
	MinUserMessages    int
	MinDistinctAuthors int
	MinBuffered        int
}

// FeishuConfig contains Feishu configuration
type FeishuConfig struct {
	AppID             string
	AppSecret         string
	VerificationToken string
	EncryptKey        string
	EventMode         string
}

// TelegramConfig contains Telegram configuration
type TelegramConfig struct {
	BotToken      string
	WebhookSecret string
	WebhookURL    string
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	sqlitePath := os.Getenv("SQLITE_PATH")
	if sqlitePath == "" {
		homeDir, _ := os.UserHomeDir()
		sqlitePath = filepath.Join(homeDir, ".chat-relay", "relay.db")
	}

	// Load prompts from YAML
	promptsConfig, promptsSource, promptsErr := LoadPromptsConfig(os.Getenv("PROMPTS_CONFIG_PATH"))

	return &Config{
		ListenAddr: envString("LISTEN_ADDR", ":8080"),
		APIToken:   os.Getenv("API_TOKEN"),
		Store: StoreConfig{
			Driver:      envString("STORE_DRIVER", data.DriverSQLite),
			SQLitePath:  sqlitePath,
			RedisURL:    os.Getenv("REDIS_URL"),
			DatabaseURL: os.Getenv("DATABASE_URL"),
		},
		OpenAI: OpenAIConfig{
			APIKey:      os.Getenv("OPENAI_API_KEY"),
			BaseURL:     os.Getenv("OPENAI_BASE_URL"),
			Model:       envString("OPENAI_MODEL", "gpt-3.5-turbo"),
			Temperature: envFloat("OPENAI_TEMPERATURE", 0.7),
			MaxTokens:   envInt("OPENAI_MAX_TOKENS", 300),
		},
		Trigger: TriggerConfig{
			Policy:             envString("TRIGGER_POLICY", string(usecase.PolicyCount)),
			MinUserMessages:    envInt("TRIGGER_MIN_USER_MESSAGES", 2),
			MinDistinctAuthors: envInt("TRIGGER_MIN_DISTINCT_AUTHORS", 2),
			MinBuffered:        envInt("TRIGGER_MIN_BUFFERED", 2),
		},
		Feishu: FeishuConfig{
			AppID:             os.Getenv("FEISHU_APP_ID"),
			AppSecret:         os.Getenv("FEISHU_APP_SECRET"),
			VerificationToken: os.Getenv("FEISHU_VERIFICATION_TOKEN"),
			EncryptKey:        os.Getenv("FEISHU_ENCRYPT_KEY"),
			EventMode:         envString("FEISHU_EVENT_MODE", FeishuModeWebhook),
		},
		Telegram: TelegramConfig{
			BotToken:      os.Getenv("TELEGRAM_BOT_TOKEN"),
			WebhookSecret: os.Getenv("TELEGRAM_WEBHOOK_SECRET"),
			WebhookURL:    os.Getenv("TELEGRAM_WEBHOOK_URL"),
		},
		Prompts:          promptsConfig,
		PromptsSource:    promptsSource,
		promptsErr:       promptsErr,
		WindowSize:       envInt("CONTEXT_WINDOW_SIZE", 20),
		ReasoningTimeout: time.Duration(envInt("REASONING_TIMEOUT_SECONDS", 30)) * time.Second,
		HealthInterval:   time.Duration(envInt("HEALTH_INTERVAL_SECONDS", 15)) * time.Second,
		Debug:            os.Getenv("DEBUG") == "true",
	}
}

// FeishuEnabled reports whether Feishu credentials are configured
func (c *Config) FeishuEnabled() bool {
	return c.Feishu.AppID != "" && c.Feishu.AppSecret != ""
}

// TelegramEnabled reports whether a Telegram bot token is configured
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != ""
}

// ToStoreConfig converts to data store configuration
func (c *Config) ToStoreConfig() data.StoreConfig {
	return data.StoreConfig{
		Driver:      c.Store.Driver,
		SQLitePath:  c.Store.SQLitePath,
		RedisURL:    c.Store.RedisURL,
		DatabaseURL: c.Store.DatabaseURL,
	}
}

// ToOpenAIConfig converts to reasoning adapter configuration
func (c *Config) ToOpenAIConfig() data.OpenAIConfig {
	return data.OpenAIConfig{
		APIKey:      c.OpenAI.APIKey,
		BaseURL:     c.OpenAI.BaseURL,
		Model:       c.OpenAI.Model,
		Temperature: float32(c.OpenAI.Temperature),
		MaxTokens:   c.OpenAI.MaxTokens,
	}
}

// ToTriggerConfig converts to trigger policy configuration
func (c *Config) ToTriggerConfig() usecase.TriggerConfig {
	return usecase.TriggerConfig{
		Kind:               usecase.PolicyKind(c.Trigger.Policy),
		MinUserMessages:    c.Trigger.MinUserMessages,
		MinDistinctAuthors: c.Trigger.MinDistinctAuthors,
		MinBuffered:        c.Trigger.MinBuffered,
	}
}

// ToPromptConfig converts to prompt configuration
func (c *Config) ToPromptConfig() usecase.PromptConfig {
	if c.Prompts == nil {
		return usecase.DefaultPromptConfig
	}
	return usecase.PromptConfig{
		SystemPrompt:   c.Prompts.Relay.SystemPrompt,
		AuthorFormat:   c.Prompts.Relay.AuthorFormat,
		FallbackNotice: c.Prompts.Relay.FallbackNotice,
	}
}

// ToReplyConfig converts to reply cycle configuration
func (c *Config) ToReplyConfig() usecase.ReplyConfig {
	cfg := usecase.DefaultReplyConfig()
	cfg.WindowSize = c.WindowSize
	cfg.ReasoningTimeout = c.ReasoningTimeout
	cfg.FallbackNotice = c.ToPromptConfig().FallbackNotice
	return cfg
}

// ToFeishuConfig converts to Feishu client configuration
func (c *Config) ToFeishuConfig() feishu.Config {
	return feishu.Config{
		AppID:             c.Feishu.AppID,
		AppSecret:         c.Feishu.AppSecret,
		VerificationToken: c.Feishu.VerificationToken,
		EncryptKey:        c.Feishu.EncryptKey,
	}
}

// ToTelegramConfig converts to Telegram client configuration
func (c *Config) ToTelegramConfig() telegram.Config {
	return telegram.Config{
		Token:         c.Telegram.BotToken,
		WebhookSecret: c.Telegram.WebhookSecret,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.promptsErr != nil {
		return &ConfigError{Field: "PROMPTS_CONFIG_PATH", Message: c.promptsErr.Error()}
	}
	if !c.FeishuEnabled() && !c.TelegramEnabled() {
		return &ConfigError{Field: "FEISHU_APP_ID/FEISHU_APP_SECRET or TELEGRAM_BOT_TOKEN", Message: "at least one platform is required"}
	}
	if c.Feishu.EventMode != FeishuModeWebhook && c.Feishu.EventMode != FeishuModeWebSocket {
		return &ConfigError{Field: "FEISHU_EVENT_MODE", Message: "must be webhook or ws"}
	}
	if c.OpenAI.APIKey == "" {
		return &ConfigError{Field: "OPENAI_API_KEY", Message: "required"}
	}
	if c.OpenAI.Temperature < 0 || c.OpenAI.Temperature > 2 {
		return &ConfigError{Field: "OPENAI_TEMPERATURE", Message: "must be between 0 and 2"}
	}
	if c.OpenAI.MaxTokens < 1 {
		return &ConfigError{Field: "OPENAI_MAX_TOKENS", Message: "must be positive"}
	}

	switch c.Store.Driver {
	case data.DriverSQLite:
		if c.Store.SQLitePath == "" {
			return &ConfigError{Field: "SQLITE_PATH", Message: "required"}
		}
	case data.DriverRedis:
		if c.Store.RedisURL == "" {
			return &ConfigError{Field: "REDIS_URL", Message: "required for the redis store"}
		}
	case data.DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return &ConfigError{Field: "DATABASE_URL", Message: "required for the postgres store"}
		}
	default:
		return &ConfigError{Field: "STORE_DRIVER", Message: "must be sqlite, redis or postgres"}
	}

	// Every threshold is checked, not only the selected policy's
	if c.Trigger.MinUserMessages < 1 {
		return &ConfigError{Field: "TRIGGER_MIN_USER_MESSAGES", Message: "must be positive"}
	}
	if c.Trigger.MinDistinctAuthors < 1 {
		return &ConfigError{Field: "TRIGGER_MIN_DISTINCT_AUTHORS", Message: "must be positive"}
	}
	if c.Trigger.MinBuffered < 1 {
		return &ConfigError{Field: "TRIGGER_MIN_BUFFERED", Message: "must be positive"}
	}
	if _, err := usecase.NewTriggerPolicy(c.ToTriggerConfig()); err != nil {
		return &ConfigError{Field: "TRIGGER_POLICY", Message: err.Error()}
	}
	if c.WindowSize < 1 {
		return &ConfigError{Field: "CONTEXT_WINDOW_SIZE", Message: "must be positive"}
	}
	if c.ReasoningTimeout <= 0 {
		return &ConfigError{Field: "REASONING_TIMEOUT_SECONDS", Message: "must be positive"}
	}
	if c.HealthInterval <= 0 {
		return &ConfigError{Field: "HEALTH_INTERVAL_SECONDS", Message: "must be positive"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}

func envString(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

// envInt returns defaultValue when the variable is unset. A value that does
// not parse becomes -1 so Validate reports it instead of silently ignoring it.
func envInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return -1
	}
	return parsed
}

func envFloat(key string, defaultValue float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return -1
	}
	return parsed
}
