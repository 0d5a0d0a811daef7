package conf

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/DevRickLin/chat-relay/internal/biz/usecase"
)

// PromptsConfig contains all prompt configurations loaded from YAML
type PromptsConfig struct {
	Relay RelayPrompts `yaml:"relay"`
}

// RelayPrompts contains the texts the reply cycle sends
type RelayPrompts struct {
	SystemPrompt   string `yaml:"system_prompt"`
	AuthorFormat   string `yaml:"author_format"`
	FallbackNotice string `yaml:"fallback_notice"`
}

// LoadPromptsConfig loads prompts configuration from a YAML file and returns
// it with the path it was read from. With an empty configPath the usual
// locations are tried and a missing file yields the defaults.
func LoadPromptsConfig(configPath string) (*PromptsConfig, string, error) {
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return DefaultPromptsConfig(), "", fmt.Errorf("failed to read prompts config: %w", err)
		}
		cfg, err := parsePromptsConfig(data)
		if err != nil {
			return DefaultPromptsConfig(), "", err
		}
		return cfg, configPath, nil
	}

	paths := []string{
		"configs/prompts.yaml",
		"/etc/chat-relay/prompts.yaml",
	}
	// Add path relative to executable
	if execPath, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(execPath), "configs", "prompts.yaml"))
	}

	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		cfg, err := parsePromptsConfig(data)
		if err != nil {
			return DefaultPromptsConfig(), "", fmt.Errorf("%s: %w", p, err)
		}
		return cfg, p, nil
	}

	return DefaultPromptsConfig(), "", nil
}

func parsePromptsConfig(data []byte) (*PromptsConfig, error) {
	var config PromptsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse prompts.yaml: %w", err)
	}

	// Fill in defaults for empty values
	config.fillDefaults()
	return &config, nil
}

// fillDefaults fills in default values for empty fields
func (c *PromptsConfig) fillDefaults() {
	defaults := DefaultPromptsConfig()

	if c.Relay.SystemPrompt == "" {
		c.Relay.SystemPrompt = defaults.Relay.SystemPrompt
	}
	if c.Relay.AuthorFormat == "" {
		c.Relay.AuthorFormat = defaults.Relay.AuthorFormat
	}
	if c.Relay.FallbackNotice == "" {
		c.Relay.FallbackNotice = defaults.Relay.FallbackNotice
	}
}

// DefaultPromptsConfig returns the default prompts configuration
func DefaultPromptsConfig() *PromptsConfig {
	return &PromptsConfig{
		Relay: RelayPrompts{
			SystemPrompt:   usecase.DefaultPromptConfig.SystemPrompt,
			AuthorFormat:   usecase.DefaultPromptConfig.AuthorFormat,
			FallbackNotice: usecase.DefaultPromptConfig.FallbackNotice,
		},
	}
}
