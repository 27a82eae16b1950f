package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ParseLevel maps a config level name onto a zap level. Empty means info.
func ParseLevel(name string) (zapcore.Level, error) {
	if name == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return lvl, nil
}

// New creates a zap logger that writes JSON to the given log file path
// and also writes to stderr. Profile name and PID are included as initial fields.
func New(logPath, profile string, level zapcore.Level) (*zap.Logger, error) {
	fileCore, err := newFileCore(logPath, level)
	if err != nil {
		return nil, err
	}

	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig())
	stderrCore := zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stderr), level)

	core := zapcore.NewTee(fileCore, stderrCore)
	return zap.New(core, initialFields(profile)), nil
}

// NewFileOnly is New without the stderr core, for full-screen terminal UIs.
func NewFileOnly(logPath, profile string, level zapcore.Level) (*zap.Logger, error) {
	fileCore, err := newFileCore(logPath, level)
	if err != nil {
		return nil, err
	}
	return zap.New(fileCore, initialFields(profile)), nil
}

func newFileCore(logPath string, level zapcore.Level) (zapcore.Core, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0700); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}

	jsonEncoder := zapcore.NewJSONEncoder(encoderConfig())
	return zapcore.NewCore(jsonEncoder, zapcore.AddSync(file), level), nil
}

func encoderConfig() zapcore.EncoderConfig {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return encoderCfg
}

func initialFields(profile string) zap.Option {
	return zap.Fields(
		zap.String("profile", profile),
		zap.Int("pid", os.Getpid()),
	)
}
