// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Package commons holds the small cross-cutting types every package in this
// module takes by injection instead of reaching for package-level globals.
package commons

import (
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the structured-logging interface every component depends on.
// Components never construct their own logger — one is built at process
// start and threaded through every constructor.
type Logger interface {
	Debugf(format string, args ...interface{})
	Debugw(msg string, keysAndValues ...interface{})
	Infof(format string, args ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorf(format string, args ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Benchmark(op string, d time.Duration)
	With(keysAndValues ...interface{}) Logger
}

type zapLogger struct {
	s *zap.SugaredLogger
}

// NewApplicationLogger builds the process logger: JSON to a rotating file
// via lumberjack, plus a human-readable console encoder when stderr is a
// terminal. levelName is one of debug/info/warn/error (AppConfig.LogLevel).
func NewApplicationLogger(levelName, logFilePath string) (Logger, error) {
	level := zapcore.InfoLevel
	switch levelName {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(os.Stdout), level),
	}

	if logFilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   logFilePath,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(rotator), level))
	}

	core := zapcore.NewTee(cores...)
	base := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return &zapLogger{s: base.Sugar()}, nil
}

// NewTestLogger returns a no-frills stdout logger, handy for unit tests.
func NewTestLogger() Logger {
	base := zap.NewExample()
	return &zapLogger{s: base.Sugar()}
}

func (l *zapLogger) Debugf(format string, args ...interface{}) { l.s.Debugf(format, args...) }
func (l *zapLogger) Debugw(msg string, kv ...interface{})      { l.s.Debugw(msg, kv...) }
func (l *zapLogger) Infof(format string, args ...interface{})  { l.s.Infof(format, args...) }
func (l *zapLogger) Info(msg string, kv ...interface{})        { l.s.Infow(msg, kv...) }
func (l *zapLogger) Warn(msg string, kv ...interface{})        { l.s.Warnw(msg, kv...) }
func (l *zapLogger) Warnw(msg string, kv ...interface{})       { l.s.Warnw(msg, kv...) }
func (l *zapLogger) Errorf(format string, args ...interface{}) { l.s.Errorf(format, args...) }
func (l *zapLogger) Error(msg string, kv ...interface{})       { l.s.Errorw(msg, kv...) }

func (l *zapLogger) Benchmark(op string, d time.Duration) {
	l.s.Infow("benchmark", "op", op, "duration_ms", d.Milliseconds())
}

func (l *zapLogger) With(kv ...interface{}) Logger {
	return &zapLogger{s: l.s.With(kv...)}
}
