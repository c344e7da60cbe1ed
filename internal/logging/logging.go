// Package logging builds the developer loggers shared by both binaries.
package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lj "gopkg.in/natefinch/lumberjack.v2"
)

const (
	DefaultMaxSizeMB  = 50
	DefaultMaxBackups = 5
	DefaultMaxAgeDays = 31
)

// Config describes where developer logs go.
// Logs go to stderr when File is empty. Rotation follows lumberjack semantics.
type Config struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"maxsize"`
	MaxBackups int    `mapstructure:"maxbackups"`
	MaxAgeDays int    `mapstructure:"maxage"`
	Compress   bool   `mapstructure:"compress"`
}

// New builds a logger from c. The returned close func flushes the logger and releases any file.
func New(c Config) (*zap.Logger, func() error, error) {
	level := zapcore.InfoLevel
	if c.Level != "" {
		if err := level.Set(c.Level); err != nil {
			return nil, nil, fmt.Errorf("parsing log level %q: %w", c.Level, err)
		}
	}

	var (
		sink    zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
		closeFn                     = func() error { return nil }
	)
	if c.File != "" {
		w := RotatingWriter(c.File, c)
		sink = zapcore.AddSync(w)
		closeFn = w.Close
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), sink, zap.NewAtomicLevelAt(level))
	logger := zap.New(core, zap.AddCaller())

	return logger, func() error {
		_ = logger.Sync()
		return closeFn()
	}, nil
}

// RotatingWriter returns a size-rotated file writer at path using the rotation settings of c.
func RotatingWriter(path string, c Config) io.WriteCloser {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
