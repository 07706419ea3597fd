package logging

import (
	"os"

	"go.uber.org/zap/zapcore"
)

// NewMultiCore creates a zapcore.Core that tees output to stdout and a
// rotating log file. The file is always JSON; the console is colored text in
// development and JSON otherwise.
//
// Example:
//
//	core := NewMultiCore(zapcore.InfoLevel, "tryon.log", DefaultFileWriterConfig(), true)
//	logger := zap.New(core)
func NewMultiCore(level zapcore.Level, filePath string, fileConfig FileWriterConfig, isDev bool) zapcore.Core {
	return NewMultiCoreWithWriters(level, zapcore.Lock(os.Stdout), NewFileWriter(filePath, fileConfig), isDev)
}

// NewMultiCoreWithWriters is NewMultiCore with explicit writers, useful for
// tests.
func NewMultiCoreWithWriters(level zapcore.Level, consoleWriter, fileWriter zapcore.WriteSyncer, isDev bool) zapcore.Core {
	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(NewEncoderConfig()),
		fileWriter,
		level,
	)

	var consoleEncoder zapcore.Encoder
	if isDev {
		consoleEncoder = zapcore.NewConsoleEncoder(NewConsoleEncoderConfig())
	} else {
		consoleEncoder = zapcore.NewJSONEncoder(NewEncoderConfig())
	}

	consoleCore := zapcore.NewCore(consoleEncoder, consoleWriter, level)

	return zapcore.NewTee(consoleCore, fileCore)
}
