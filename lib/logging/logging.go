// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the process-wide *slog.Logger. Records are
// handled by a zap core (console or JSON encoding) and, when a log file
// is configured, written through a size-rotated lumberjack writer.
// Library packages never import this; they take a *slog.Logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/TechnicallyWeb3/esp/lib/config"
)

// Logger is a configured slog logger plus the resources behind it.
type Logger struct {
	*slog.Logger

	core zapcore.Core
	file *lumberjack.Logger
}

// New builds a logger from cfg. Output goes to cfg.File when set, and
// to console otherwise (os.Stderr when console is nil).
func New(cfg config.LoggingConfig, console io.Writer) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}

	var encoder zapcore.Encoder
	switch cfg.Format {
	case "json":
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	case "console", "":
		encoderConfig := zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	logger := &Logger{}
	var output zapcore.WriteSyncer
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0700); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		logger.file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		output = zapcore.AddSync(logger.file)
	} else {
		if console == nil {
			console = os.Stderr
		}
		output = zapcore.Lock(zapcore.AddSync(console))
	}

	logger.core = zapcore.NewCore(encoder, output, zap.NewAtomicLevelAt(level))
	logger.Logger = slog.New(zapslog.NewHandler(logger.core, zapslog.WithCaller(true)))
	return logger, nil
}

// Close flushes buffered records and closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		// Syncing a terminal or pipe reports EINVAL on some platforms.
		_ = l.core.Sync()
		return nil
	}
	if err := l.core.Sync(); err != nil {
		return err
	}
	return l.file.Close()
}

