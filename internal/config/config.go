// Package config resolves client settings from defaults, an optional TOML
// file, the environment and command-line flags, in that order.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/rexlx/drizzle/internal/api"
	"github.com/rexlx/drizzle/internal/session"
)

const (
	EnvAPIURL      = "DRIZZLE_API_URL"
	EnvSessionFile = "DRIZZLE_SESSION_FILE"
	EnvLogFile     = "DRIZZLE_LOG_FILE"
	EnvRateLimit   = "DRIZZLE_RATE_LIMIT"
)

type Config struct {
	APIURL      string  `toml:"api_url"`
	SessionFile string  `toml:"session_file"`
	LogFile     string  `toml:"log_file"`
	RateLimit   float64 `toml:"rate_limit"`
	Burst       int     `toml:"burst"`
}

func Default() Config {
	cfg := Config{
		APIURL:  api.DefaultBaseURL,
		LogFile: "drizzle.log",
		Burst:   1,
	}
	if path, err := session.DefaultPath(); err == nil {
		cfg.SessionFile = path
	}
	return cfg
}

// DefaultPath is where Load looks when no file is named.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "drizzle", "config.toml")
}

// LoadFile overlays the TOML file at path onto cfg. A missing file is not an
// error when optional is set.
func LoadFile(cfg *Config, path string, optional bool) error {
	if path == "" {
		return nil
	}
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("config %s: unknown keys %v", path, undecoded)
	}
	return nil
}

// ApplyEnv overlays the DRIZZLE_* variables that are set.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv(EnvAPIURL); v != "" {
		cfg.APIURL = v
	}
	if v := getenv(EnvSessionFile); v != "" {
		cfg.SessionFile = v
	}
	if v := getenv(EnvLogFile); v != "" {
		cfg.LogFile = v
	}
	if v := getenv(EnvRateLimit); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRateLimit, err)
		}
		cfg.RateLimit = rps
	}
	return nil
}

// Flags are the command-line overrides. Empty or zero values leave the
// setting alone.
type Flags struct {
	ConfigFile  string
	APIURL      string
	SessionFile string
	LogFile     string
	RateLimit   float64
}

// Register binds the shared flags on set.
func (f *Flags) Register(set *flag.FlagSet) {
	set.StringVar(&f.ConfigFile, "config", "", "config file (default "+DefaultPath()+")")
	set.StringVar(&f.APIURL, "api", "", "API base URL (default "+api.DefaultBaseURL+")")
	set.StringVar(&f.SessionFile, "session", "", "session file")
	set.StringVar(&f.LogFile, "log", "", "log file")
	set.Float64Var(&f.RateLimit, "rate", 0, "max requests per second (0 = unlimited)")
}

func (f Flags) apply(cfg *Config) {
	if f.APIURL != "" {
		cfg.APIURL = f.APIURL
	}
	if f.SessionFile != "" {
		cfg.SessionFile = f.SessionFile
	}
	if f.LogFile != "" {
		cfg.LogFile = f.LogFile
	}
	if f.RateLimit > 0 {
		cfg.RateLimit = f.RateLimit
	}
}

// Load resolves the full configuration. The default file is optional; one
// named with -config must exist.
func Load(f Flags, getenv func(string) string) (Config, error) {
	cfg := Default()

	path, optional := f.ConfigFile, false
	if path == "" {
		path, optional = DefaultPath(), true
	}
	if err := LoadFile(&cfg, path, optional); err != nil {
		return cfg, err
	}
	if err := ApplyEnv(&cfg, getenv); err != nil {
		return cfg, err
	}
	f.apply(&cfg)
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	return cfg, nil
}

// ClientOptions turns the rate settings into API client options.
func (c Config) ClientOptions() []api.Option {
	var opts []api.Option
	if c.RateLimit > 0 {
		opts = append(opts, api.WithRateLimit(c.RateLimit, c.Burst))
	}
	return opts
}
