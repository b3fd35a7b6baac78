// Package config loads the SafeSchool runtime configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// environment variables (a .env file is loaded by the CLI before this runs),
// then command-line flags applied by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for the recognition pipeline.
const (
	DefaultThreshold     = 0.38
	DefaultStableWindow  = 2 * time.Second
	DefaultCooldown      = 120 * time.Second
	DefaultSendTimeout   = 5 * time.Second
	DefaultCaptureSource = "0"
	DefaultGalleryPath   = "faces_db.json"
	DefaultDatabasePath  = "safeschool.db"
	DefaultDetector      = "insightface"
)

// Config holds every tunable of the application.
type Config struct {
	Pipeline PipelineConfig `yaml:"pipeline"`
	Capture  CaptureConfig  `yaml:"capture"`
	Detector DetectorConfig `yaml:"detector"`
	Telegram TelegramConfig `yaml:"telegram"`
	Storage  StorageConfig  `yaml:"storage"`
	HTTP     HTTPConfig     `yaml:"http"`
}

// PipelineConfig controls matching, debouncing and rate limiting.
type PipelineConfig struct {
	Threshold    float64       `yaml:"threshold"`
	StableWindow time.Duration `yaml:"stable_window"`
	Cooldown     time.Duration `yaml:"cooldown"`
}

// CaptureConfig selects the frame source and the local display.
type CaptureConfig struct {
	Source  string `yaml:"source"`  // device index ("0") or a file/stream URL
	Display bool   `yaml:"display"` // open a preview window
	Tray    bool   `yaml:"tray"`
}

// DetectorConfig selects the face detection/embedding backend.
type DetectorConfig struct {
	Backend  string `yaml:"backend"`   // "insightface" or "dlib"
	ModelDir string `yaml:"model_dir"` // dlib model directory
	Script   string `yaml:"script"`    // insightface service script, searched when empty
}

// TelegramConfig holds the bot credentials.
type TelegramConfig struct {
	Token       string        `yaml:"token"`
	BotUsername string        `yaml:"bot_username"`
	AdminChats  []int64       `yaml:"admin_chats"`
	Timeout     time.Duration `yaml:"timeout"`
	APIURL      string        `yaml:"api_url"` // empty means the public Bot API
}

// StorageConfig locates the persisted state.
type StorageConfig struct {
	GalleryPath  string `yaml:"gallery_path"`
	DatabasePath string `yaml:"database_path"`
}

// HTTPConfig configures the optional admin API. An empty Addr disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a Config populated with the built-in defaults.
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			Threshold:    DefaultThreshold,
			StableWindow: DefaultStableWindow,
			Cooldown:     DefaultCooldown,
		},
		Capture: CaptureConfig{
			Source: DefaultCaptureSource,
		},
		Detector: DetectorConfig{
			Backend: DefaultDetector,
		},
		Telegram: TelegramConfig{
			Timeout: DefaultSendTimeout,
		},
		Storage: StorageConfig{
			GalleryPath:  DefaultGalleryPath,
			DatabasePath: DefaultDatabasePath,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at path
// and the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Pipeline.Threshold = envFloat("SAFESCHOOL_THRESHOLD", c.Pipeline.Threshold)
	c.Pipeline.StableWindow = envDuration("SAFESCHOOL_STABLE_WINDOW", c.Pipeline.StableWindow)
	c.Pipeline.Cooldown = envDuration("SAFESCHOOL_COOLDOWN", c.Pipeline.Cooldown)

	c.Capture.Source = envString("SAFESCHOOL_CAPTURE_SOURCE", c.Capture.Source)
	c.Detector.Backend = envString("SAFESCHOOL_DETECTOR", c.Detector.Backend)
	c.Detector.ModelDir = envString("SAFESCHOOL_MODEL_DIR", c.Detector.ModelDir)

	c.Storage.GalleryPath = envString("SAFESCHOOL_GALLERY", c.Storage.GalleryPath)
	c.Storage.DatabasePath = envString("SAFESCHOOL_DB", c.Storage.DatabasePath)
	c.HTTP.Addr = envString("SAFESCHOOL_HTTP_ADDR", c.HTTP.Addr)

	c.Telegram.Token = envString("TELEGRAM_BOT_TOKEN", c.Telegram.Token)
	c.Telegram.BotUsername = envString("BOT_USERNAME", c.Telegram.BotUsername)
	c.Telegram.APIURL = envString("TELEGRAM_API_URL", c.Telegram.APIURL)
	if ids := os.Getenv("ADMIN_CHAT_ID"); ids != "" {
		c.Telegram.AdminChats = parseChatIDs(ids)
	}
}

// Validate reports configuration values the pipeline cannot work with.
func (c *Config) Validate() error {
	var errs []error
	if c.Pipeline.Threshold < -1 || c.Pipeline.Threshold > 1 {
		errs = append(errs, fmt.Errorf("threshold %.3f outside [-1, 1]", c.Pipeline.Threshold))
	}
	if c.Pipeline.StableWindow <= 0 {
		errs = append(errs, errors.New("stable window must be positive"))
	}
	if c.Pipeline.Cooldown <= 0 {
		errs = append(errs, errors.New("cooldown must be positive"))
	}
	if c.Telegram.Timeout <= 0 {
		errs = append(errs, errors.New("telegram timeout must be positive"))
	}
	if c.Capture.Display && c.Capture.Tray {
		errs = append(errs, errors.New("display and tray both need the main thread, enable only one"))
	}
	switch c.Detector.Backend {
	case "insightface", "dlib", "mock":
	default:
		errs = append(errs, fmt.Errorf("unknown detector backend %q", c.Detector.Backend))
	}
	return errors.Join(errs...)
}

// IsAdmin reports whether chatID may issue binding tokens.
func (c *TelegramConfig) IsAdmin(chatID int64) bool {
	for _, id := range c.AdminChats {
		if id == chatID {
			return true
		}
	}
	return false
}

func envString(key, defaultVal string) string {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		return s
	}
	return defaultVal
}

// envFloat returns the default when the variable is unset or unparsable.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

// envDuration accepts Go durations ("2s") and plain seconds ("2.5").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(f * float64(time.Second))
	}
	return defaultVal
}

func parseChatIDs(s string) []int64 {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id == 0 {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
