// Package logger собирает zap-логгер сервиса.
package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Параметры ротации файла журнала.
const (
	maxSizeMB  = 100
	maxBackups = 5
	maxAgeDays = 30
)

// New создаёт JSON-логгер с заданным уровнем. Журнал пишется в stdout и,
// если указан filename, дополнительно в файл с ротацией.
func New(level, filename string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), writer(filename), lvl)

	return zap.New(core, zap.AddCaller()), nil
}

func writer(filename string) zapcore.WriteSyncer {
	stdout := zapcore.Lock(os.Stdout)
	if filename == "" {
		return stdout
	}

	file := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filename,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	})
	return zapcore.NewMultiWriteSyncer(stdout, file)
}
