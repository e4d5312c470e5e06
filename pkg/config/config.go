// Package config loads the widget configuration from YAML and the process
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Duration accepts "5s"-style strings or integer seconds in YAML.
type Duration time.Duration

func (d Duration) ToDuration() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		*d = 0
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar")
	}

	if value.Tag == "!!int" {
		i, err := strconv.ParseInt(value.Value, 10, 64)
		if err != nil {
			return err
		}
		*d = Duration(time.Duration(i) * time.Second)
		return nil
	}
	if value.Value == "" {
		*d = 0
		return nil
	}
	if dur, err := time.ParseDuration(value.Value); err == nil {
		*d = Duration(dur)
		return nil
	}
	if i, err := strconv.ParseInt(value.Value, 10, 64); err == nil {
		*d = Duration(time.Duration(i) * time.Second)
		return nil
	}
	return fmt.Errorf("invalid duration: %q", value.Value)
}

// Chat providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// FallbackAPIKeyEnv is consulted when the configured Gemini variable is empty.
const FallbackAPIKeyEnv = "API_KEY"

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Gemini  GeminiConfig  `yaml:"gemini"`
	OpenAI  OpenAIConfig  `yaml:"openai"`
	Chat    ChatConfig    `yaml:"chat"`
	Audio   AudioConfig   `yaml:"audio"`
	Widget  WidgetConfig  `yaml:"widget"`
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
}

type ServerConfig struct {
	Bind              string   `yaml:"bind"`
	Port              int      `yaml:"port"`
	ReadHeaderTimeout Duration `yaml:"read_header_timeout"`
	// AuthToken enables bearer authentication on /v1/widget when set.
	AuthToken         string   `yaml:"auth_token"`
	MaxSessionsPerIP  int      `yaml:"max_sessions_per_ip"`
	// TrustProxyHeaders honours X-Forwarded-For and X-Real-IP.
	TrustProxyHeaders bool     `yaml:"trust_proxy_headers"`
	AllowedOrigins    []string `yaml:"allowed_origins"`
	WriteTimeout      Duration `yaml:"write_timeout"`
	PingInterval      Duration `yaml:"ping_interval"`
	ShutdownTimeout   Duration `yaml:"shutdown_timeout"`
}

type GeminiConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
	TextModel string `yaml:"text_model"`
	LiveModel string `yaml:"live_model"`
}

type OpenAIConfig struct {
	APIKeyEnv string   `yaml:"api_key_env"`
	BaseURL   string   `yaml:"base_url"`
	Model     string   `yaml:"model"`
	Timeout   Duration `yaml:"timeout"`
}

type ChatConfig struct {
	Provider   string `yaml:"provider"` // gemini or openai
	MaxHistory int    `yaml:"max_history"`
}

type AudioConfig struct {
	InputRate  int `yaml:"input_rate"`
	OutputRate int `yaml:"output_rate"`
	FrameSize  int `yaml:"frame_size"`
	SendQueue  int `yaml:"send_queue"`
}

type WidgetConfig struct {
	DefaultLanguage string `yaml:"default_language"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

type TracingConfig struct {
	Exporter     string  `yaml:"exporter"` // none, stdout, otlp
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind:              "0.0.0.0",
			Port:              8080,
			ReadHeaderTimeout: Duration(5 * time.Second),
			MaxSessionsPerIP:  4,
			WriteTimeout:      Duration(10 * time.Second),
			PingInterval:      Duration(30 * time.Second),
			ShutdownTimeout:   Duration(10 * time.Second),
		},
		Gemini: GeminiConfig{
			APIKeyEnv: "GEMINI_API_KEY",
			TextModel: "gemini-2.5-flash",
			LiveModel: "gemini-2.5-flash-native-audio-preview-09-2025",
		},
		OpenAI: OpenAIConfig{
			APIKeyEnv: "OPENAI_API_KEY",
			BaseURL:   "https://api.openai.com/v1",
			Model:     "gpt-4o-mini",
			Timeout:   Duration(60 * time.Second),
		},
		Chat: ChatConfig{
			Provider:   ProviderGemini,
			MaxHistory: 10,
		},
		Audio: AudioConfig{
			InputRate:  16000,
			OutputRate: 24000,
			FrameSize:  4096,
			SendQueue:  64,
		},
		Widget: WidgetConfig{
			DefaultLanguage: "ar",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Exporter:     "none",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}

// Load reads path on top of Default and repairs zero or out-of-range
// values. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, err
		default:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}
	cfg.sanitize()
	return cfg, cfg.Validate()
}

func (c *Config) sanitize() {
	def := Default()

	if c.Server.Port == 0 {
		c.Server.Port = def.Server.Port
	}
	if c.Server.Bind == "" {
		c.Server.Bind = def.Server.Bind
	}
	if c.Server.ReadHeaderTimeout.ToDuration() <= 0 {
		c.Server.ReadHeaderTimeout = def.Server.ReadHeaderTimeout
	}
	if c.Server.WriteTimeout.ToDuration() <= 0 {
		c.Server.WriteTimeout = def.Server.WriteTimeout
	}
	if c.Server.PingInterval.ToDuration() <= 0 {
		c.Server.PingInterval = def.Server.PingInterval
	}
	if c.Server.ShutdownTimeout.ToDuration() <= 0 {
		c.Server.ShutdownTimeout = def.Server.ShutdownTimeout
	}
	if c.Server.MaxSessionsPerIP < 0 {
		c.Server.MaxSessionsPerIP = 0
	}

	if c.Gemini.APIKeyEnv == "" {
		c.Gemini.APIKeyEnv = def.Gemini.APIKeyEnv
	}
	if c.Gemini.TextModel == "" {
		c.Gemini.TextModel = def.Gemini.TextModel
	}
	if c.Gemini.LiveModel == "" {
		c.Gemini.LiveModel = def.Gemini.LiveModel
	}

	if c.OpenAI.APIKeyEnv == "" {
		c.OpenAI.APIKeyEnv = def.OpenAI.APIKeyEnv
	}
	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = def.OpenAI.BaseURL
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = def.OpenAI.Model
	}
	if c.OpenAI.Timeout.ToDuration() <= 0 {
		c.OpenAI.Timeout = def.OpenAI.Timeout
	}

	c.Chat.Provider = strings.ToLower(strings.TrimSpace(c.Chat.Provider))
	if c.Chat.Provider == "" {
		c.Chat.Provider = def.Chat.Provider
	}
	if c.Chat.MaxHistory <= 0 {
		c.Chat.MaxHistory = def.Chat.MaxHistory
	}

	if c.Audio.InputRate <= 0 {
		c.Audio.InputRate = def.Audio.InputRate
	}
	if c.Audio.OutputRate <= 0 {
		c.Audio.OutputRate = def.Audio.OutputRate
	}
	if c.Audio.FrameSize <= 0 {
		c.Audio.FrameSize = def.Audio.FrameSize
	}
	if c.Audio.SendQueue <= 0 {
		c.Audio.SendQueue = def.Audio.SendQueue
	}

	if c.Widget.DefaultLanguage == "" {
		c.Widget.DefaultLanguage = def.Widget.DefaultLanguage
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = def.Logging.Format
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = def.Tracing.Exporter
	}
	if c.Tracing.Endpoint == "" {
		c.Tracing.Endpoint = def.Tracing.Endpoint
	}
	if c.Tracing.SamplingRate <= 0 || c.Tracing.SamplingRate > 1 {
		c.Tracing.SamplingRate = def.Tracing.SamplingRate
	}
}

// Validate rejects values that sanitize cannot repair.
func (c Config) Validate() error {
	switch c.Chat.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("%w: chat.provider %q", ErrInvalidConfig, c.Chat.Provider)
	}
	switch c.Widget.DefaultLanguage {
	case "en", "ar":
	default:
		return fmt.Errorf("%w: widget.default_language %q", ErrInvalidConfig, c.Widget.DefaultLanguage)
	}
	switch c.Tracing.Exporter {
	case "none", "stdout", "otlp":
	default:
		return fmt.Errorf("%w: tracing.exporter %q", ErrInvalidConfig, c.Tracing.Exporter)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: logging.format %q", ErrInvalidConfig, c.Logging.Format)
	}
	return nil
}

func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// LoadEnv loads KEY=VALUE pairs from the given dotenv files into the
// process environment. Variables already set win. Missing files are
// ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// GeminiAPIKey returns the model credential, or "" when none is set.
func (c Config) GeminiAPIKey() string {
	if v := strings.TrimSpace(os.Getenv(c.Gemini.APIKeyEnv)); v != "" {
		return v
	}
	return strings.TrimSpace(os.Getenv(FallbackAPIKeyEnv))
}

func (c Config) OpenAIAPIKey() string {
	return strings.TrimSpace(os.Getenv(c.OpenAI.APIKeyEnv))
}
