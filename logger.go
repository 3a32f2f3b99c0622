// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Forked from github.com/zondax/ledger-go - NO GOLEM DEPENDENCY
// Licensed under the Apache License, Version 2.0

package ledger

import (
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const logLevelEnv = "LEDGER_LOG_LEVEL"

var pkgLogger atomic.Pointer[zap.SugaredLogger]

func init() {
	pkgLogger.Store(NewLogger(getLogLevel()))
}

// NewLogger builds the development logger used by the package for the given
// level name. Unknown names fall back to info.
func NewLogger(level string) *zap.SugaredLogger {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.Level = zap.NewAtomicLevelAt(parseLevel(level))

	logger, err := config.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return logger.Sugar().Named("ledger")
}

// SetLogger replaces the package logger. A nil logger silences the package.
func SetLogger(l *zap.SugaredLogger) {
	if l == nil {
		l = zap.NewNop().Sugar()
	}
	pkgLogger.Store(l)
}

// Logger returns the package logger.
func Logger() *zap.SugaredLogger {
	return pkgLogger.Load()
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zap.DebugLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

func getLogLevel() string {
	level := os.Getenv(logLevelEnv)
	if level == "" {
		level = "info"
	}
	return strings.ToLower(level)
}
