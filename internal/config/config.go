package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/cevalogistics/launcher/internal/logger"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment overrides, e.g. CEVA_PROXY_LISTEN.
const EnvPrefix = "CEVA"

// Address is a host:port pair identifying a running service.
type Address string

// URL returns the http URL for path on this address. path may omit the
// leading slash.
func (a Address) URL(path string) string {
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "http://" + string(a) + path
}

func (a Address) String() string { return string(a) }

// BackendConfig describes the robot-control backend and how to start it.
type BackendConfig struct {
	Addr          Address       `mapstructure:"addr"`
	StatusPath    string        `mapstructure:"status_path"`
	Command       string        `mapstructure:"command"`
	Args          []string      `mapstructure:"args"`
	WorkDir       string        `mapstructure:"workdir"`
	Env           []string      `mapstructure:"env"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`
	DeviceTimeout time.Duration `mapstructure:"device_timeout"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	StartAttempts int           `mapstructure:"start_attempts"`
	StartGrace    time.Duration `mapstructure:"start_grace"`
}

// FrontendConfig describes the dashboard proxy process.
// An empty Command means the launcher starts itself with the proxy subcommand.
type FrontendConfig struct {
	Addr          Address       `mapstructure:"addr"`
	Command       string        `mapstructure:"command"`
	Args          []string      `mapstructure:"args"`
	WorkDir       string        `mapstructure:"workdir"`
	Env           []string      `mapstructure:"env"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	StartAttempts int           `mapstructure:"start_attempts"`
	StartGrace    time.Duration `mapstructure:"start_grace"`
}

// ProxyConfig configures the request router.
type ProxyConfig struct {
	Listen          string        `mapstructure:"listen"`
	BackendOrigin   string        `mapstructure:"backend_origin"`
	BundleDir       string        `mapstructure:"bundle_dir"`
	DevOrigin       string        `mapstructure:"dev_origin"`
	UpstreamTimeout time.Duration `mapstructure:"upstream_timeout"`
	CORS            bool          `mapstructure:"cors"`
}

// ConsoleConfig configures the optional control API. Empty Listen disables it.
type ConsoleConfig struct {
	Listen string `mapstructure:"listen"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// HistoryConfig lists launch history sinks by DSN.
type HistoryConfig struct {
	Sinks []string `mapstructure:"sinks"`
}

// Config is the top-level TOML structure.
type Config struct {
	Env      []string       `mapstructure:"env"`
	UseOSEnv bool           `mapstructure:"use_os_env"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Frontend FrontendConfig `mapstructure:"frontend"`
	Proxy    ProxyConfig    `mapstructure:"proxy"`
	Console  ConsoleConfig  `mapstructure:"console"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	History  HistoryConfig  `mapstructure:"history"`
	Log      logger.Config  `mapstructure:"log"`

	// Path is the file the config was loaded from, empty for defaults only.
	Path string `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", []string{})
	v.SetDefault("use_os_env", true)

	v.SetDefault("backend.addr", "127.0.0.1:8080")
	v.SetDefault("backend.status_path", "/status")
	v.SetDefault("backend.command", "phosphobot")
	v.SetDefault("backend.args", []string{"run", "--port=8080", "--host=127.0.0.1", "--no-telemetry"})
	v.SetDefault("backend.workdir", "")
	v.SetDefault("backend.env", []string{})
	v.SetDefault("backend.probe_timeout", 2*time.Second)
	v.SetDefault("backend.device_timeout", 5*time.Second)
	v.SetDefault("backend.poll_interval", time.Second)
	v.SetDefault("backend.start_attempts", 30)
	v.SetDefault("backend.start_grace", 300*time.Millisecond)

	v.SetDefault("frontend.addr", "127.0.0.1:3000")
	v.SetDefault("frontend.command", "")
	v.SetDefault("frontend.args", []string{})
	v.SetDefault("frontend.workdir", "")
	v.SetDefault("frontend.env", []string{})
	v.SetDefault("frontend.probe_timeout", 2*time.Second)
	v.SetDefault("frontend.poll_interval", time.Second)
	v.SetDefault("frontend.start_attempts", 10)
	v.SetDefault("frontend.start_grace", 300*time.Millisecond)

	v.SetDefault("proxy.listen", "127.0.0.1:3000")
	v.SetDefault("proxy.backend_origin", "http://localhost:8080")
	v.SetDefault("proxy.bundle_dir", "cevalogistics-sg/dashboard/dist")
	v.SetDefault("proxy.dev_origin", "http://localhost:5173")
	v.SetDefault("proxy.upstream_timeout", 30*time.Second)
	v.SetDefault("proxy.cors", true)

	v.SetDefault("console.listen", "")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "")
	v.SetDefault("history.sinks", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.no_color", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.process_dir", "")
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.compress", false)
}

// Default returns the built-in configuration without reading files or env.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var c Config
	// defaults are static and always decode
	_ = v.Unmarshal(&c)
	return c
}

// Load reads the TOML file at path (optional) on top of the defaults and
// applies CEVA_* environment overrides. The result is validated.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.Path = path
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate reports configuration that would make the launcher misbehave.
func (c *Config) Validate() error {
	var errs []error
	if err := validAddr("backend.addr", c.Backend.Addr); err != nil {
		errs = append(errs, err)
	}
	if err := validAddr("frontend.addr", c.Frontend.Addr); err != nil {
		errs = append(errs, err)
	}
	if c.Backend.Command == "" {
		errs = append(errs, errors.New("backend.command must be set"))
	}
	if c.Backend.StartAttempts <= 0 {
		errs = append(errs, errors.New("backend.start_attempts must be positive"))
	}
	if c.Frontend.StartAttempts <= 0 {
		errs = append(errs, errors.New("frontend.start_attempts must be positive"))
	}
	if c.Backend.ProbeTimeout <= 0 || c.Backend.DeviceTimeout <= 0 || c.Frontend.ProbeTimeout <= 0 {
		errs = append(errs, errors.New("probe timeouts must be positive"))
	}
	if c.Backend.PollInterval < 0 || c.Frontend.PollInterval < 0 {
		errs = append(errs, errors.New("poll intervals must not be negative"))
	}
	if c.Proxy.Listen == "" {
		errs = append(errs, errors.New("proxy.listen must be set"))
	}
	if !strings.HasPrefix(c.Proxy.BackendOrigin, "http://") && !strings.HasPrefix(c.Proxy.BackendOrigin, "https://") {
		errs = append(errs, fmt.Errorf("proxy.backend_origin must be an http(s) origin, got %q", c.Proxy.BackendOrigin))
	}
	if c.Proxy.UpstreamTimeout <= 0 {
		errs = append(errs, errors.New("proxy.upstream_timeout must be positive"))
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" && c.Console.Listen == "" {
		errs = append(errs, errors.New("metrics.enabled requires metrics.listen or console.listen"))
	}
	return errors.Join(errs...)
}

func validAddr(field string, a Address) error {
	if _, _, err := net.SplitHostPort(string(a)); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	return nil
}
