// Package logging 은 데몬들이 함께 쓰는 tint 콘솔 핸들러를 설정한다.
// LOG_DIR 가 있으면 회전 로그 파일에도 함께 쓴다.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options 는 Setup 옵션이다.
type Options struct {
	// Name 은 로그 파일 이름이다. 예: "watchdogd" 는 watchdogd.log 에 쓴다.
	Name    string
	Verbose bool
	// Level 이 있으면 Verbose 대신 쓰인다. 설정을 읽은 뒤 로그 레벨을 올릴 때
	// 사용한다.
	Level *slog.LevelVar
	// Stdout 기본값: os.Stdout
	Stdout io.Writer
	// LogDir 이 비어 있지 않으면 LOG_DIR 환경 변수보다 우선한다.
	LogDir string
}

// Setup 은 로거를 만들고 기본 로거로 등록한다. 반환된 함수는 로그 파일을 닫는다.
func Setup(opts Options) (*slog.Logger, func()) {
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	var level slog.Leveler = slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	if opts.Level != nil {
		level = opts.Level
	}

	logger := slog.New(tint.NewHandler(stdout, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
		AddSource:  true,
	}))
	slog.SetDefault(logger)

	logDir := strings.TrimSpace(opts.LogDir)
	if logDir == "" {
		logDir = strings.TrimSpace(os.Getenv("LOG_DIR"))
	}
	if logDir == "" {
		return logger, func() {}
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		logger.Error("log_dir_create_failed", "dir", logDir, "err", err)
		return logger, func() {}
	}

	name := opts.Name
	if name == "" {
		name = "smart-watchdog"
	}
	logFilePath := filepath.Join(logDir, name+".log")
	logFile := &lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    1, // megabytes
		MaxBackups: 0, // 모두 보관
		MaxAge:     0, // 모두 보관
		Compress:   true,
	}

	w := io.MultiWriter(stdout, logFile)
	logger = slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
		AddSource:  true,
		NoColor:    true,
	}))
	slog.SetDefault(logger)
	logger.Info("file_logging_enabled", "path", logFilePath)

	return logger, func() {
		_ = logFile.Close()
	}
}
