package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for difyrelay. Credentials are not part
// of it; see Credentials.
type Config struct {
	General             GeneralConfig       `yaml:"general"`
	Backend             BackendConfig       `yaml:"backend"`
	Speech              SpeechConfig        `yaml:"speech"`
	Server              ServerConfig        `yaml:"server"`
	Channels            ChannelsConfig      `yaml:"channels"`
	Prompts             PromptsConfig       `yaml:"prompts"`
	Messages            MessagesConfig      `yaml:"messages"`
	AudioRequestPhrases []string            `yaml:"audioRequestPhrases"`
	Formats             map[string][]string `yaml:"formats,omitempty"` // overrides the built-in allow-list per category
	Dedup               DedupConfig         `yaml:"dedup"`
	Metrics             MetricsConfig       `yaml:"metrics"`
}

type GeneralConfig struct {
	LogLevel           string `yaml:"logLevel"`  // debug | info | warn | error
	LogFormat          string `yaml:"logFormat"` // text | json
	LogFile            string `yaml:"logFile,omitempty"`
	TempDir            string `yaml:"tempDir,omitempty"` // concatenation scratch space; empty = OS default
	FFmpegPath         string `yaml:"ffmpegPath"`
	MaxBlockLength     int    `yaml:"maxBlockLength"`
	HTTPTimeoutSeconds int    `yaml:"httpTimeoutSeconds"`
	BusBuffer          int    `yaml:"busBuffer"`
}

type BackendConfig struct {
	ResponseMode string `yaml:"responseMode"`
	MaxRetries   int    `yaml:"maxRetries"` // 0 sends every request once
}

type SpeechConfig struct {
	SpeakerID string  `yaml:"speakerId"`
	Speed     float64 `yaml:"speed"`
}

type ServerConfig struct {
	Listen string `yaml:"listen"` // webhook and metrics endpoint
}

type ChannelsConfig struct {
	WhatsApp WhatsAppConfig `yaml:"whatsapp"`
	Telegram TelegramConfig `yaml:"telegram"`
}

type WhatsAppConfig struct {
	Enabled       bool   `yaml:"enabled"`
	PhoneNumberID string `yaml:"phoneNumberId,omitempty"` // falls back to WHATSAPP_PHONE_NUMBER_ID
	WebhookPath   string `yaml:"webhookPath"`
	GraphBase     string `yaml:"graphBase"`
}

type TelegramConfig struct {
	Enabled            bool `yaml:"enabled"`
	PollTimeoutSeconds int  `yaml:"pollTimeoutSeconds"`
}

type PromptsConfig struct {
	Image    string `yaml:"image,omitempty"`
	Video    string `yaml:"video,omitempty"`
	Document string `yaml:"document,omitempty"`
}

// MessagesConfig overrides user-facing fallback texts. Empty fields keep the
// built-in text.
type MessagesConfig struct {
	Unsupported     string                   `yaml:"unsupported,omitempty"`
	Generic         string                   `yaml:"generic,omitempty"`
	ImageSend       string                   `yaml:"imageSend,omitempty"`
	AudioGeneration string                   `yaml:"audioGeneration,omitempty"`
	SpeechFailed    string                   `yaml:"speechFailed,omitempty"`
	AudioSend       string                   `yaml:"audioSend,omitempty"`
	Failures        map[string]FailureConfig `yaml:"failures,omitempty"` // keyed by text | image | audio | video | document
}

type FailureConfig struct {
	ContentPolicy   string `yaml:"contentPolicy,omitempty"`
	EmptyQuery      string `yaml:"emptyQuery,omitempty"`
	Generic         string `yaml:"generic,omitempty"`
	SuppressGeneric *bool  `yaml:"suppressGeneric,omitempty"`
}

type DedupConfig struct {
	Enabled  bool   `yaml:"enabled"`
	DBPath   string `yaml:"dbPath"`
	TTLHours int    `yaml:"ttlHours"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultConfigDir returns the default config directory (~/.difyrelay).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".difyrelay"
	}
	return filepath.Join(home, ".difyrelay")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Load reads path, expands environment references, overlays the result on
// Defaults and validates it. A missing file at the default path yields the
// defaults.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && path == DefaultConfigPath() {
			cfg := Defaults()
			expandPaths(cfg)
			return cfg, Validate(cfg)
		}
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML config data over the defaults and validates it.
func Parse(data []byte) (*Config, error) {
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config: %w", err)
	}

	expandPaths(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func expandPaths(cfg *Config) {
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.General.TempDir = ExpandPath(cfg.General.TempDir)
	cfg.Dedup.DBPath = ExpandPath(cfg.Dedup.DBPath)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty. References
// without a value or default are left as is.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		hasDefault := len(groups) >= 3 && groups[2] != ""

		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return groups[2]
			}
			return match
		}
		return val
	})
}

// Save writes cfg as YAML, creating the parent directory.
func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

var knownCategories = map[string]bool{"text": true, "image": true, "audio": true, "video": true, "document": true}

// Validate checks that the config has valid values, reporting every problem
// at once.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	switch cfg.General.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, "general.logFormat must be one of: text, json")
	}
	if cfg.General.MaxBlockLength < 1 {
		errs = append(errs, "general.maxBlockLength must be >= 1")
	}
	if cfg.General.HTTPTimeoutSeconds < 1 {
		errs = append(errs, "general.httpTimeoutSeconds must be >= 1")
	}
	if cfg.General.FFmpegPath == "" {
		errs = append(errs, "general.ffmpegPath is required")
	}

	if cfg.Backend.ResponseMode != "blocking" {
		errs = append(errs, "backend.responseMode must be blocking")
	}
	if cfg.Backend.MaxRetries < 0 || cfg.Backend.MaxRetries > 5 {
		errs = append(errs, "backend.maxRetries must be between 0 and 5")
	}
	if cfg.Speech.SpeakerID == "" {
		errs = append(errs, "speech.speakerId is required")
	}
	if cfg.Speech.Speed <= 0 || cfg.Speech.Speed > 4 {
		errs = append(errs, "speech.speed must be in (0, 4]")
	}

	needsServer := cfg.Channels.WhatsApp.Enabled || cfg.Metrics.Enabled
	if needsServer && cfg.Server.Listen == "" {
		errs = append(errs, "server.listen is required when whatsapp or metrics is enabled")
	}
	if wa := cfg.Channels.WhatsApp; wa.Enabled && !strings.HasPrefix(wa.WebhookPath, "/") {
		errs = append(errs, "channels.whatsapp.webhookPath must start with /")
	}
	if !cfg.Channels.WhatsApp.Enabled && !cfg.Channels.Telegram.Enabled {
		errs = append(errs, "at least one channel must be enabled")
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, "metrics.path must start with /")
	}
	if cfg.Dedup.Enabled {
		if cfg.Dedup.DBPath == "" {
			errs = append(errs, "dedup.dbPath is required when enabled")
		}
		if cfg.Dedup.TTLHours < 1 {
			errs = append(errs, "dedup.ttlHours must be >= 1")
		}
	}

	for cat := range cfg.Formats {
		if !knownCategories[cat] || cat == "text" {
			errs = append(errs, fmt.Sprintf("formats: unknown category %q", cat))
		}
	}
	for cat := range cfg.Messages.Failures {
		if !knownCategories[cat] {
			errs = append(errs, fmt.Sprintf("messages.failures: unknown category %q", cat))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
