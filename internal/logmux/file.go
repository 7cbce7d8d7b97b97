package logmux

import (
	"errors"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Paintersrp/kr/internal/engine"
)

// FileConfig controls the rotating JSON log written by FileSink.
type FileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// FileSink persists every event as a structured JSON record. Rotation is
// delegated to lumberjack.
type FileSink struct {
	logger *zap.Logger
	writer *lumberjack.Logger
}

// NewFileSink opens the log described by cfg. Records carry the run id so
// several runs can share one file.
func NewFileSink(cfg FileConfig, runID string) (*FileSink, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("log file path is required")
	}
	writer := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(writer), zapcore.DebugLevel)
	logger := zap.New(core)
	if runID != "" {
		logger = logger.With(zap.String("run_id", runID))
	}
	return &FileSink{logger: logger, writer: writer}, nil
}

func (s *FileSink) Write(evt engine.Event) {
	ce := s.logger.Check(levelFor(evt.Level), evt.Message)
	if ce == nil {
		return
	}
	if !evt.Timestamp.IsZero() {
		ce.Time = evt.Timestamp
	}

	fields := []zap.Field{
		zap.String("type", string(evt.Type)),
		zap.String("source", evt.Source),
		zap.Int("attempt", evt.Attempt),
	}
	if evt.Reason != "" {
		fields = append(fields, zap.String("reason", evt.Reason))
	}
	if evt.PID > 0 {
		fields = append(fields, zap.Int("pid", evt.PID))
	}
	if evt.Status != nil {
		fields = append(fields, zap.Int("exit_code", evt.Status.Code), zap.String("exit_status", evt.Status.String()))
	}
	if evt.WindowLimit > 0 {
		fields = append(fields, zap.Int("window_count", evt.WindowCount), zap.Int("window_limit", evt.WindowLimit))
	}
	if evt.Err != nil {
		fields = append(fields, zap.Error(evt.Err))
	}
	ce.Write(fields...)
}

// Close flushes and closes the underlying file.
func (s *FileSink) Close() error {
	_ = s.logger.Sync()
	return s.writer.Close()
}

func levelFor(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
