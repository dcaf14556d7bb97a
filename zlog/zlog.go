// Package zlog wraps a process-wide zap logger. Init is called once from
// main; before that every call is a no-op, which keeps tests quiet.
package zlog

import (
	"os"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger = zap.NewNop()

// Init builds the global logger: JSON to a rotated file plus a console
// core on stdout.
func Init(level, file string, maxSizeMB, maxBackups, maxAgeDays int) {
	var lvl zapcore.Level
	if err := lvl.Set(level); err != nil {
		lvl = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	fileSink := zapcore.AddSync(&lumberjack.Logger{
		Filename:   file,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
	})

	consoleCfg := zap.NewDevelopmentEncoderConfig()
	consoleCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), fileSink, lvl),
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.AddSync(os.Stdout), lvl),
	)
	logger = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
}

func L() *zap.Logger { return logger }

func Debug(msg string, fields ...zap.Field) { logger.Debug(msg, fields...) }

func Info(msg string, fields ...zap.Field) { logger.Info(msg, fields...) }

func Warn(msg string, fields ...zap.Field) { logger.Warn(msg, fields...) }

func Error(msg string, fields ...zap.Field) { logger.Error(msg, fields...) }

func Fatal(msg string, fields ...zap.Field) { logger.Fatal(msg, fields...) }

// Sync flushes buffered entries; call on shutdown.
func Sync() { _ = logger.Sync() }
