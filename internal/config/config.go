package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for noise
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Ollama    OllamaConfig    `mapstructure:"ollama"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Chat      ChatConfig      `mapstructure:"chat"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds gateway server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	AllowOrigins    []string      `mapstructure:"allow_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// OllamaConfig holds inference backend configuration
type OllamaConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	ModelsPath     string        `mapstructure:"models_path"`
	ChatPath       string        `mapstructure:"chat_path"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// GatewayConfig tells the CLI where the gateway listens
type GatewayConfig struct {
	URL string `mapstructure:"url"`
}

// RetrievalConfig holds knowledge source endpoints and context limits
type RetrievalConfig struct {
	SemanticURL string        `mapstructure:"semantic_url"`
	VectorURL   string        `mapstructure:"vector_url"`
	GraphURL    string        `mapstructure:"graph_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxItems    int           `mapstructure:"max_items"`
	MaxChars    int           `mapstructure:"max_chars"`
}

// ChatConfig holds chat defaults
type ChatConfig struct {
	Model           string `mapstructure:"model"`
	IncludeRAG      bool   `mapstructure:"include_rag"`
	HistoryWindow   int    `mapstructure:"history_window"`
	AttachmentLimit int    `mapstructure:"attachment_limit"`
}

// DatabaseConfig holds local state database configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load loads configuration from defaults, an optional file, .env and the environment
func Load(configPath string) (*Config, error) {
	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("NOISE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Variables the original server read directly.
	if err := v.BindEnv("server.port", "NOISE_SERVER_PORT", "API_PORT"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("ollama.base_url", "NOISE_OLLAMA_BASE_URL", "OLLAMA_BASE_URL"); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.max_body_bytes", 2<<20)
	v.SetDefault("server.allow_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("ollama.models_path", "/api/tags")
	v.SetDefault("ollama.chat_path", "/api/chat")
	v.SetDefault("ollama.connect_timeout", 5*time.Second)

	v.SetDefault("gateway.url", "http://localhost:3001")

	v.SetDefault("retrieval.semantic_url", "")
	v.SetDefault("retrieval.vector_url", "")
	v.SetDefault("retrieval.graph_url", "")
	v.SetDefault("retrieval.timeout", 10*time.Second)
	v.SetDefault("retrieval.max_items", 5)
	v.SetDefault("retrieval.max_chars", 6000)

	v.SetDefault("chat.model", "")
	v.SetDefault("chat.include_rag", true)
	v.SetDefault("chat.history_window", 12)
	v.SetDefault("chat.attachment_limit", 8000)

	v.SetDefault("database.path", "./data/noise.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Address returns the server address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
