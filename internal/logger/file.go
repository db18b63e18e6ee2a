package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// maxLogSizeMB is the size at which the log file is rotated.
	maxLogSizeMB = 10
	// maxLogBackups is the number of rotated files kept next to the active one.
	maxLogBackups = 5
	// maxLogAgeDays is the retention for rotated files.
	maxLogAgeDays = 28
	// logFilePermissions restricts the log file to the invoking user.
	logFilePermissions = 0o600
)

// Setup applies the level to the global logger and, when logFile is set,
// duplicates console output into a rotating log file.
//
// The returned function flushes and closes the file sink. When the file
// cannot be opened, logging continues on the console only and a warning is logged.
func Setup(level zapcore.Level, logFile string) func() {
	SetLevel(level)

	if logFile == "" {
		return func() {}
	}

	if err := probeLogFile(logFile); err != nil {
		global.Warnw("Could not create log file, logging to console only", "log_file", logFile, "error", err)

		return func() {}
	}

	rotating := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    maxLogSizeMB,
		MaxBackups: maxLogBackups,
		MaxAge:     maxLogAgeDays,
	}

	previous := global
	SetLogger(NewWithSinks(defaultLevel, []zapcore.WriteSyncer{
		zapcore.AddSync(os.Stdout),
		zapcore.AddSync(rotating),
	}))

	return func() {
		_ = global.Sync()
		_ = rotating.Close()

		SetLogger(previous)
	}
}

// probeLogFile checks up front that the log file can be created, because
// lumberjack only opens it on the first write.
func probeLogFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermissions)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	return f.Close()
}
