package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "BILLMATCH"

type Config struct {
	Storage  StorageConfig
	Log      LogConfig
	Batch    BatchConfig
	Matching MatchingConfig
	Server   ServerConfig
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type BatchConfig struct {
	Size           int
	MaxConcurrent  int
	Workers        int
	MinSections    int
	SectionTimeout string
	MaxRetries     int
	RetryDelay     string
	YearStart      int // 0 = unbounded
	YearEnd        int
}

type MatchingConfig struct {
	CacheSize       int
	TitleCandidates int
}

type ServerConfig struct {
	Port  int
	Token string
}

func defaults() Config {
	return Config{
		Storage: StorageConfig{DataDir: defaultDataDir()},
		Log:     LogConfig{Level: "info"},
		Batch: BatchConfig{
			Size:           50,
			MaxConcurrent:  2,
			Workers:        max(2, runtime.NumCPU()/4),
			MinSections:    1,
			SectionTimeout: "30s",
			MaxRetries:     3,
			RetryDelay:     "1s",
		},
		Matching: MatchingConfig{CacheSize: 10000},
		Server:   ServerConfig{Port: 4100},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "billmatch-data"
		}
	}
	return filepath.Join(dir, "billmatch")
}

// FilePath is the YAML config file read by Load and written by SetKey.
func FilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "billmatch", "config.yaml")
}

// Load assembles the configuration from defaults, the config file,
// BILLMATCH_* environment variables and, when flags is non-nil, any flags
// the user set. Later layers win.
func Load(flags *pflag.FlagSet) (Config, error) {
	return loadFrom(FilePath(), flags)
}

func loadFrom(path string, flags *pflag.FlagSet) (Config, error) {
	v := newViper(path)

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if flags != nil {
		for _, s := range specs {
			if s.flag == "" {
				continue
			}
			if f := flags.Lookup(s.flag); f != nil {
				if err := v.BindPFlag(s.key, f); err != nil {
					return Config{}, fmt.Errorf("binding flag --%s: %w", s.flag, err)
				}
			}
		}
	}

	cfg := defaults()
	for _, s := range specs {
		if s.secret {
			if raw := os.Getenv(s.env); raw != "" {
				s.apply(&cfg, raw)
			}
			continue
		}
		switch s.typ {
		case kString, kDuration:
			s.apply(&cfg, v.GetString(s.key))
		case kInt:
			s.apply(&cfg, v.GetInt(s.key))
		}
	}
	return cfg, nil
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	def := defaults()
	for _, s := range specs {
		if s.secret {
			continue
		}
		v.SetDefault(s.key, s.extract(def))
		_ = v.BindEnv(s.key, s.env)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	return v
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	positive := map[string]int{
		"batch.size":           c.Batch.Size,
		"batch.max_concurrent": c.Batch.MaxConcurrent,
		"batch.workers":        c.Batch.Workers,
		"batch.max_retries":    c.Batch.MaxRetries,
	}
	for _, s := range specs {
		if n, ok := positive[s.key]; ok && n <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", s.key, n))
		}
	}
	if c.Batch.MinSections < 0 {
		errs = append(errs, fmt.Errorf("batch.min_sections must not be negative, got %d", c.Batch.MinSections))
	}
	if c.Batch.YearStart > 0 && c.Batch.YearEnd > 0 && c.Batch.YearStart > c.Batch.YearEnd {
		errs = append(errs, fmt.Errorf("year range %d-%d is empty", c.Batch.YearStart, c.Batch.YearEnd))
	}
	if c.Matching.CacheSize < 0 || c.Matching.TitleCandidates < 0 {
		errs = append(errs, errors.New("matching sizes must not be negative"))
	}
	for _, kv := range [][2]string{
		{"batch.section_timeout", c.Batch.SectionTimeout},
		{"batch.retry_delay", c.Batch.RetryDelay},
	} {
		key, raw := kv[0], kv[1]
		if d, err := time.ParseDuration(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		} else if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", key, raw))
		}
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	return errors.Join(errs...)
}

// SectionTimeoutDuration returns the parsed per-section timeout. Call after Validate.
func (b BatchConfig) SectionTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(b.SectionTimeout)
	return d
}

// RetryDelayDuration returns the parsed initial retry delay. Call after Validate.
func (b BatchConfig) RetryDelayDuration() time.Duration {
	d, _ := time.ParseDuration(b.RetryDelay)
	return d
}

// SlogLevel maps Level onto slog, falling back to Info.
func (l LogConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
