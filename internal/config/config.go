// Package config provides configuration management for the PDF translation service.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"pdf-translator/internal/logger"
	"pdf-translator/internal/types"
)

const (
	// DefaultConfigFileName is the default configuration file name
	DefaultConfigFileName = "pdf-translator-config.json"
	// EnvOpenAIAPIKey is the environment variable name for OpenAI API key
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	// EnvOpenAIBaseURL is the environment variable name for OpenAI base URL
	EnvOpenAIBaseURL = "OPENAI_BASE_URL"
	// DefaultBaseURL is the default OpenAI API base URL
	DefaultBaseURL = "https://api.openai.com/v1"
	// DefaultModel is the default translation model
	DefaultModel = "gpt-4o-mini"
	// DefaultTargetLanguage is the default target language code
	DefaultTargetLanguage = "en"
	// DefaultConfidence is the default layout detection threshold,
	// balancing precision and recall
	DefaultConfidence = 0.45
	// DefaultRenderDPI is the default rasterization resolution
	DefaultRenderDPI = 300
	// DefaultMaxBatchChars bounds a single translation request
	DefaultMaxBatchChars = 4000
	// DefaultPageConcurrency is the default per-document page parallelism
	DefaultPageConcurrency = 4
	// DefaultTranslateConcurrency bounds in-flight translation API calls
	DefaultTranslateConcurrency = 3
	// DefaultListenAddr is the default HTTP listen address
	DefaultListenAddr = ":8080"
	// DefaultMaxUploadBytes is the default upload size limit (50 MB)
	DefaultMaxUploadBytes = 50 * 1024 * 1024

	// MinConfidence and MaxConfidence bound the detection threshold.
	MinConfidence = 0.1
	MaxConfidence = 0.9
)

// SupportedModels is the closed set of recognized translation models.
var SupportedModels = map[string]bool{
	"gpt-4o":        true,
	"gpt-4o-mini":   true,
	"gpt-4.1":       true,
	"gpt-4.1-mini":  true,
	"deepseek-chat": true,
}

// Manager manages application configuration
type Manager struct {
	configPath string
	config     *types.Config
}

// NewManager creates a new Manager with the specified config path.
// If configPath is empty, it uses the default path in user's home directory.
func NewManager(configPath string) (*Manager, error) {
	if configPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			logger.Error("failed to get user home directory", err)
			return nil, types.NewValidationError("failed to get user home directory", err)
		}
		configPath = filepath.Join(homeDir, ".config", "pdf-translator", DefaultConfigFileName)
	}

	logger.Info("config manager initialized", logger.String("configPath", configPath))
	return &Manager{
		configPath: configPath,
		config:     defaultConfig(),
	}, nil
}

// defaultConfig returns a Config with default values
func defaultConfig() *types.Config {
	return &types.Config{
		OpenAIAPIKey:         "",
		OpenAIBaseURL:        DefaultBaseURL,
		OpenAIModel:          DefaultModel,
		TargetLanguage:       DefaultTargetLanguage,
		Confidence:           DefaultConfidence,
		RenderDPI:            DefaultRenderDPI,
		MaxBatchChars:        DefaultMaxBatchChars,
		PageConcurrency:      DefaultPageConcurrency,
		TranslateConcurrency: DefaultTranslateConcurrency,
		DataDirectory:        "",
		ListenAddr:           DefaultListenAddr,
		MaxUploadBytes:       DefaultMaxUploadBytes,
	}
}

// Load loads configuration from the config file.
// If the file doesn't exist, it uses default values.
// Environment variables take precedence for API key if config file value is empty.
func (m *Manager) Load() error {
	logger.Debug("loading configuration", logger.String("path", m.configPath))

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("config file not found, using defaults", logger.String("path", m.configPath))
			m.config = defaultConfig()
		} else {
			logger.Error("failed to read config file", err, logger.String("path", m.configPath))
			return types.NewValidationError("failed to read config file", err)
		}
	} else {
		config := &types.Config{}
		if err := json.Unmarshal(data, config); err != nil {
			logger.Warn("invalid config file format, using defaults", logger.String("path", m.configPath), logger.Err(err))
			m.config = defaultConfig()
		} else {
			logger.Info("configuration loaded",
				logger.String("path", m.configPath),
				logger.Int("apiKeyLength", len(config.OpenAIAPIKey)),
				logger.String("baseURL", config.OpenAIBaseURL),
				logger.String("model", config.OpenAIModel))
			m.config = config
		}
	}

	m.applyDefaults()
	return m.Validate()
}

// applyDefaults fills zero-valued fields with defaults
func (m *Manager) applyDefaults() {
	if m.config.OpenAIModel == "" {
		m.config.OpenAIModel = DefaultModel
	}
	if m.config.OpenAIBaseURL == "" {
		m.config.OpenAIBaseURL = DefaultBaseURL
	}
	if m.config.TargetLanguage == "" {
		m.config.TargetLanguage = DefaultTargetLanguage
	}
	if m.config.Confidence == 0 {
		m.config.Confidence = DefaultConfidence
	}
	if m.config.RenderDPI == 0 {
		m.config.RenderDPI = DefaultRenderDPI
	}
	if m.config.MaxBatchChars == 0 {
		m.config.MaxBatchChars = DefaultMaxBatchChars
	}
	if m.config.PageConcurrency == 0 {
		m.config.PageConcurrency = DefaultPageConcurrency
	}
	if m.config.TranslateConcurrency == 0 {
		m.config.TranslateConcurrency = DefaultTranslateConcurrency
	}
	if m.config.ListenAddr == "" {
		m.config.ListenAddr = DefaultListenAddr
	}
	if m.config.MaxUploadBytes == 0 {
		m.config.MaxUploadBytes = DefaultMaxUploadBytes
	}
}

// Validate checks configuration values against their documented bounds.
// Free-form values are rejected at this boundary so components downstream
// can assume validated input.
func (m *Manager) Validate() error {
	c := m.config

	if c.Confidence < MinConfidence || c.Confidence > MaxConfidence {
		return types.NewValidationError(
			fmt.Sprintf("confidence %.2f out of range [%.1f, %.1f]", c.Confidence, MinConfidence, MaxConfidence), nil)
	}
	if !SupportedModels[c.OpenAIModel] {
		return types.NewValidationError(fmt.Sprintf("unsupported model %q", c.OpenAIModel), nil)
	}
	if c.RenderDPI < 72 || c.RenderDPI > 600 {
		return types.NewValidationError(fmt.Sprintf("render DPI %d out of range [72, 600]", c.RenderDPI), nil)
	}
	if c.PageConcurrency < 1 || c.PageConcurrency > 64 {
		return types.NewValidationError(fmt.Sprintf("page concurrency %d out of range [1, 64]", c.PageConcurrency), nil)
	}
	if c.TranslateConcurrency < 1 || c.TranslateConcurrency > 32 {
		return types.NewValidationError(fmt.Sprintf("translate concurrency %d out of range [1, 32]", c.TranslateConcurrency), nil)
	}
	if c.MaxBatchChars < 500 {
		return types.NewValidationError(fmt.Sprintf("max batch chars %d below minimum 500", c.MaxBatchChars), nil)
	}

	return nil
}

// Save saves the current configuration to the config file.
func (m *Manager) Save() error {
	logger.Debug("saving configuration", logger.String("path", m.configPath))

	dir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Error("failed to create config directory", err, logger.String("dir", dir))
		return types.NewStorageError("failed to create config directory", err)
	}

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		logger.Error("failed to marshal config", err)
		return types.NewStorageError("failed to marshal config", err)
	}

	if err := os.WriteFile(m.configPath, data, 0600); err != nil {
		logger.Error("failed to write config file", err, logger.String("path", m.configPath))
		return types.NewStorageError("failed to write config file", err)
	}

	logger.Info("configuration saved", logger.String("path", m.configPath))
	return nil
}

// GetAPIKey returns the OpenAI API key.
// It first checks the config file value, then falls back to the environment variable.
func (m *Manager) GetAPIKey() string {
	if m.config != nil && m.config.OpenAIAPIKey != "" {
		return m.config.OpenAIAPIKey
	}
	return os.Getenv(EnvOpenAIAPIKey)
}

// GetBaseURL returns the OpenAI API base URL.
// It first checks the config file value, then falls back to the environment variable.
func (m *Manager) GetBaseURL() string {
	if m.config != nil && m.config.OpenAIBaseURL != "" {
		return m.config.OpenAIBaseURL
	}

	envURL := os.Getenv(EnvOpenAIBaseURL)
	if envURL != "" {
		return envURL
	}

	return DefaultBaseURL
}

// GetModel returns the translation model to use.
func (m *Manager) GetModel() string {
	if m.config != nil && m.config.OpenAIModel != "" {
		return m.config.OpenAIModel
	}
	return DefaultModel
}

// GetConfig returns the current configuration.
func (m *Manager) GetConfig() *types.Config {
	if m.config == nil {
		return defaultConfig()
	}
	return m.config
}

// SetConfig replaces the configuration. The new value is validated first.
func (m *Manager) SetConfig(config *types.Config) error {
	old := m.config
	m.config = config
	m.applyDefaults()
	if err := m.Validate(); err != nil {
		m.config = old
		return err
	}
	return nil
}

// GetConfigPath returns the path to the config file.
func (m *Manager) GetConfigPath() string {
	return m.configPath
}
