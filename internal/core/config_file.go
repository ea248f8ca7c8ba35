package watchdog

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	TimeoutSec     *int    `json:"timeout-sec" yaml:"timeout-sec"`
	Identity       *string `json:"identity" yaml:"identity"`
	SocketPath     *string `json:"socket" yaml:"socket"`
	ClosePolicy    *string `json:"close-policy" yaml:"close-policy"`
	FatalAction    *string `json:"fatal-action" yaml:"fatal-action"`
	ExitCode       *int    `json:"exit-code" yaml:"exit-code"`
	DockerSocket   *string `json:"docker-socket" yaml:"docker-socket"`
	FatalContainer *string `json:"fatal-container" yaml:"fatal-container"`
	BootStatusPath *string `json:"boot-status-path" yaml:"boot-status-path"`
	VerboseLogging *bool   `json:"verbose" yaml:"verbose"`
}

// LoadConfigWithSource 는 .env, 환경 변수, 설정 파일 순서로 설정을 읽고 검증한다.
// 반환값은 설정, 출처("env" 또는 "file"), 파일 경로다.
func LoadConfigWithSource(logger *slog.Logger) (Config, string, string, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("dotenv_load_failed", "err", err)
	}

	cfg := loadConfigFromEnv()

	path := strings.TrimSpace(os.Getenv("WATCHDOG_CONFIG_PATH"))
	if path == "" {
		if err := cfg.Validate(); err != nil {
			return Config{}, "env", "", err
		}
		return cfg, "env", "", nil
	}

	fc, err := readFileConfig(path)
	if err != nil {
		return Config{}, "", path, err
	}

	merged := mergeFileConfig(cfg, fc)
	if err := merged.Validate(); err != nil {
		return Config{}, "", path, err
	}

	logger.Info("watchdog_config_loaded", "source", "file", "path", path)
	return merged, "file", path, nil
}

func readFileConfig(path string) (fileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("config file read failed: %w", err)
	}

	var fc fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &fc); err != nil {
			return fileConfig{}, fmt.Errorf("config file yaml parse failed: %w", err)
		}
	default:
		if err := json.Unmarshal(raw, &fc); err != nil {
			return fileConfig{}, fmt.Errorf("config file json parse failed: %w", err)
		}
	}
	return fc, nil
}

func mergeFileConfig(base Config, fc fileConfig) Config {
	out := base

	if fc.TimeoutSec != nil {
		out.TimeoutSec = NormalizeTimeoutSec(*fc.TimeoutSec)
	}
	if fc.Identity != nil {
		if identity := strings.TrimSpace(*fc.Identity); identity != "" {
			out.Identity = identity
		}
	}
	if fc.SocketPath != nil {
		out.SocketPath = strings.TrimSpace(*fc.SocketPath)
	}
	if fc.ClosePolicy != nil {
		out.ClosePolicy = strings.ToLower(strings.TrimSpace(*fc.ClosePolicy))
	}
	if fc.FatalAction != nil {
		out.FatalAction = strings.ToLower(strings.TrimSpace(*fc.FatalAction))
	}
	if fc.ExitCode != nil {
		out.ExitCode = max(*fc.ExitCode, 1)
	}
	if fc.DockerSocket != nil {
		out.DockerSocket = strings.TrimSpace(*fc.DockerSocket)
	}
	if fc.FatalContainer != nil {
		out.FatalContainer = strings.TrimPrefix(strings.TrimSpace(*fc.FatalContainer), "/")
	}
	if fc.BootStatusPath != nil {
		out.BootStatusPath = strings.TrimSpace(*fc.BootStatusPath)
	}
	if fc.VerboseLogging != nil {
		out.VerboseLogging = *fc.VerboseLogging
	}

	return out
}
