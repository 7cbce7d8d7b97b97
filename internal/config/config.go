// Package config resolves kr's flags and KR_* environment variables into the
// settings of a supervisor run. Configuration files are not supported.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Paintersrp/kr/internal/engine"
	"github.com/Paintersrp/kr/internal/logmux"
	"github.com/Paintersrp/kr/internal/policy"
	"github.com/Paintersrp/kr/internal/runtime/process"
)

const EnvPrefix = "KR"

const (
	FlagPerMinute     = "per-minute"
	FlagPerHour       = "per-hour"
	FlagDelay         = "delay"
	FlagCrashLogLines = "crash-log-lines"
	FlagLogFile       = "log-file"
	FlagLogMaxSize    = "log-max-size"
	FlagLogMaxBackups = "log-max-backups"
	FlagLogMaxAge     = "log-max-age"
	FlagLogCompress   = "log-compress"
	FlagMetricsAddr   = "metrics-addr"
)

const (
	defaultLogMaxSize    = 100
	defaultLogMaxBackups = 3
	defaultLogMaxAge     = 28
)

var (
	ErrInvalid        = errors.New("invalid configuration")
	ErrMissingCommand = errors.New("a command to supervise is required")
)

// Run is the fully resolved configuration of a supervisor run.
type Run struct {
	Command       string             `yaml:"command"`
	Argv          []string           `yaml:"argv"`
	Policy        policy.Settings    `yaml:"policy"`
	CrashLogLines int                `yaml:"crash_log_lines"`
	Capture       bool               `yaml:"capture"`
	LogFile       *logmux.FileConfig `yaml:"log_file,omitempty"`
	MetricsAddr   string             `yaml:"metrics_addr,omitempty"`
}

// RegisterFlags declares every configuration flag on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.Int(FlagPerMinute, 0, "Crashes tolerated within a minute before restarting stops (0-255)")
	fs.Int(FlagPerHour, 0, "Crashes tolerated within an hour before restarting stops (0-255)")
	fs.Int(FlagDelay, 0, "Seconds to wait before restarting a crashed command (0-255)")
	fs.Int(FlagCrashLogLines, engine.DefaultCrashLogLines, "Output lines kept per crash and shown when restarting stops (0 disables capture)")
	fs.String(FlagLogFile, "", "Write structured supervisor and child logs to this rotating file")
	fs.Int(FlagLogMaxSize, defaultLogMaxSize, "Maximum size in megabytes of the log file before rotation")
	fs.Int(FlagLogMaxBackups, defaultLogMaxBackups, "Maximum number of rotated log files to keep")
	fs.Int(FlagLogMaxAge, defaultLogMaxAge, "Maximum age in days of rotated log files")
	fs.Bool(FlagLogCompress, false, "Compress rotated log files")
	fs.String(FlagMetricsAddr, "", "Serve /metrics and /status on this address (e.g. 127.0.0.1:9464)")
}

// NewViper binds fs to a viper instance that also reads KR_* environment
// variables. Explicit flags win over the environment, which wins over flag
// defaults.
func NewViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}
	return v, nil
}

// Load resolves the run configuration for the supervised command line.
func Load(v *viper.Viper, command string) (Run, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return Run{}, ErrMissingCommand
	}
	argv, err := process.SplitCommand(command)
	if err != nil {
		return Run{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	ints, err := intSettings(v, FlagPerMinute, FlagPerHour, FlagDelay, FlagCrashLogLines)
	if err != nil {
		return Run{}, err
	}
	settings, err := policy.Resolve(ints[FlagPerMinute], ints[FlagPerHour], ints[FlagDelay])
	if err != nil {
		return Run{}, err
	}

	run := Run{
		Command:       command,
		Argv:          argv,
		Policy:        settings,
		CrashLogLines: ints[FlagCrashLogLines],
		MetricsAddr:   strings.TrimSpace(v.GetString(FlagMetricsAddr)),
	}
	if run.CrashLogLines < 0 {
		return Run{}, fmt.Errorf("%w: %s must not be negative, got %d", ErrInvalid, FlagCrashLogLines, run.CrashLogLines)
	}

	if path := strings.TrimSpace(v.GetString(FlagLogFile)); path != "" {
		sizes, err := intSettings(v, FlagLogMaxSize, FlagLogMaxBackups, FlagLogMaxAge)
		if err != nil {
			return Run{}, err
		}
		compress, err := cast.ToBoolE(v.Get(FlagLogCompress))
		if err != nil {
			return Run{}, fmt.Errorf("%w: %s: %q is not a boolean", ErrInvalid, FlagLogCompress, v.GetString(FlagLogCompress))
		}
		lf := &logmux.FileConfig{
			Path:       path,
			MaxSizeMB:  sizes[FlagLogMaxSize],
			MaxBackups: sizes[FlagLogMaxBackups],
			MaxAgeDays: sizes[FlagLogMaxAge],
			Compress:   compress,
		}
		for name, value := range map[string]int{
			FlagLogMaxSize:    lf.MaxSizeMB,
			FlagLogMaxBackups: lf.MaxBackups,
			FlagLogMaxAge:     lf.MaxAgeDays,
		} {
			if value < 0 {
				return Run{}, fmt.Errorf("%w: %s must not be negative, got %d", ErrInvalid, name, value)
			}
		}
		run.LogFile = lf
	}

	run.Capture = run.CrashLogLines > 0 || run.LogFile != nil
	return run, nil
}

// intSettings reads integer settings strictly. viper's GetInt turns a
// malformed KR_* value into 0, which would silently select a default.
func intSettings(v *viper.Viper, keys ...string) (map[string]int, error) {
	out := make(map[string]int, len(keys))
	for _, key := range keys {
		value, err := cast.ToIntE(v.Get(key))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %q is not an integer", ErrInvalid, key, v.GetString(key))
		}
		out[key] = value
	}
	return out, nil
}

// EngineConfig converts the run into supervisor configuration.
func (r Run) EngineConfig(runID string) engine.Config {
	return engine.Config{
		Command:       r.Command,
		Settings:      r.Policy,
		Capture:       r.Capture,
		CrashLogLines: r.CrashLogLines,
		RunID:         runID,
	}
}

// YAML renders the resolved configuration.
func (r Run) YAML() ([]byte, error) {
	out, err := yaml.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return out, nil
}
