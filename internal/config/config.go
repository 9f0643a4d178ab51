package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the root of the relay configuration.
type Config struct {
	Gateway GatewayConfig `mapstructure:"gateway" yaml:"gateway"`
	Engine  EngineConfig  `mapstructure:"engine" yaml:"engine"`
	Viewer  ViewerConfig  `mapstructure:"viewer" yaml:"viewer"`
	Journal JournalConfig `mapstructure:"journal" yaml:"journal"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// GatewayConfig configures the HTTP/WebSocket listener.
type GatewayConfig struct {
	Port            int             `mapstructure:"port" yaml:"port"`
	Host            string          `mapstructure:"host" yaml:"host"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// RateLimitConfig limits new viewer connections per client IP.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled" yaml:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Burst             int  `mapstructure:"burst" yaml:"burst"`
}

// Addr returns host:port.
func (g GatewayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// EngineConfig describes the supervised engine process.
type EngineConfig struct {
	Path string   `mapstructure:"path" yaml:"path"`
	Args []string `mapstructure:"args" yaml:"args"`
	Env  []string `mapstructure:"env" yaml:"env"`
	Dir  string   `mapstructure:"dir" yaml:"dir"`

	// RestartDelay and MaxRestarts default to zero: restart at once, forever.
	RestartDelay time.Duration `mapstructure:"restart_delay" yaml:"restart_delay"`
	MaxRestarts  int           `mapstructure:"max_restarts" yaml:"max_restarts"`

	// WatchBinary restarts the engine when its executable changes on disk.
	WatchBinary bool `mapstructure:"watch_binary" yaml:"watch_binary"`
}

// ViewerConfig tunes WebSocket viewer connections.
type ViewerConfig struct {
	WriteWait      time.Duration `mapstructure:"write_wait" yaml:"write_wait"`
	PongWait       time.Duration `mapstructure:"pong_wait" yaml:"pong_wait"`
	PingPeriod     time.Duration `mapstructure:"ping_period" yaml:"ping_period"`
	MaxMessageSize int64         `mapstructure:"max_message_size" yaml:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer" yaml:"send_buffer"`
	AllowedOrigins []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// JournalConfig configures the SQLite event journal.
type JournalConfig struct {
	Enabled       bool          `mapstructure:"enabled" yaml:"enabled"`
	Path          string        `mapstructure:"path" yaml:"path"`
	Retention     time.Duration `mapstructure:"retention" yaml:"retention"`
	PruneSchedule string        `mapstructure:"prune_schedule" yaml:"prune_schedule"`
	BufferSize    int           `mapstructure:"buffer_size" yaml:"buffer_size"`
}

// LogConfig configures pkg/logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// Validate reports settings the relay cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Gateway.Port < 0 || c.Gateway.Port > 65535 {
		errs = append(errs, fmt.Errorf("gateway.port %d out of range", c.Gateway.Port))
	}
	if strings.TrimSpace(c.Engine.Path) == "" {
		errs = append(errs, errors.New("engine.path is required"))
	}
	if c.Engine.RestartDelay < 0 {
		errs = append(errs, errors.New("engine.restart_delay must not be negative"))
	}
	if c.Engine.MaxRestarts < 0 {
		errs = append(errs, errors.New("engine.max_restarts must not be negative"))
	}
	if c.Journal.Enabled {
		if strings.TrimSpace(c.Journal.Path) == "" {
			errs = append(errs, errors.New("journal.path is required when the journal is enabled"))
		}
		if c.Journal.Retention <= 0 {
			errs = append(errs, errors.New("journal.retention must be positive"))
		}
	}
	return errors.Join(errs...)
}

var (
	globalConfig *Config
	configPath   string
	mu           sync.RWMutex
)

// EnvPrefix is the prefix of environment variables overriding config keys,
// e.g. OTHELLO_RELAY_GATEWAY_PORT.
const EnvPrefix = "OTHELLO_RELAY"

// Load reads the configuration.
// Precedence: ENV > config file > defaults.
func Load(path string) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	SetDefaults()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		expandedPath, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		configPath = expandedPath

		viper.SetConfigFile(expandedPath)
		if err := viper.ReadInConfig(); err != nil {
			// A missing file is fine; a broken one is not.
			var pathErr *os.PathError
			if !errors.As(err, &pathErr) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", expandedPath, err)
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	globalConfig = &cfg
	return &cfg, nil
}

// GetConfig returns the last loaded configuration.
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return globalConfig
}

// Get returns a raw config value.
func Get(key string) any {
	return viper.Get(key)
}

// GetString returns a config value as a string.
func GetString(key string) string {
	return viper.GetString(key)
}

// Set updates a key and persists it when a config file is in use.
func Set(key string, value any) error {
	mu.Lock()
	defer mu.Unlock()

	viper.Set(key, value)

	if configPath != "" {
		return save()
	}
	return nil
}

// save writes all settings to configPath. Callers hold mu.
func save() error {
	if configPath == "" {
		return errors.New("config path not set")
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return err
	}
	return os.WriteFile(configPath, data, 0644)
}

// SaveTo writes cfg to path as YAML.
func SaveTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Default returns the configuration produced by the defaults alone.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Port:            8080,
			Host:            "127.0.0.1",
			ShutdownTimeout: 5 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 60,
				Burst:             10,
			},
		},
		Engine: EngineConfig{
			Path: DefaultEnginePath,
			Args: []string{},
			Env:  []string{},
		},
		Viewer: ViewerConfig{
			WriteWait:      10 * time.Second,
			PongWait:       60 * time.Second,
			PingPeriod:     30 * time.Second,
			MaxMessageSize: 64 * 1024,
			SendBuffer:     256,
			AllowedOrigins: []string{},
		},
		Journal: JournalConfig{
			Path:          DefaultJournalPath,
			Retention:     24 * time.Hour,
			PruneSchedule: "@hourly",
			BufferSize:    1024,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Reset clears loaded state. Used by tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	configPath = ""
	viper.Reset()
}
