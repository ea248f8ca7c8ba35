package watchdog

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	// DefaultTimeoutSec 은 timeout-sec 값이 없거나 잘못되었을 때 쓰인다.
	DefaultTimeoutSec = 10
	// MaxTimeoutSec 은 제어 채널 정수로 표현할 수 있는 최댓값이다.
	MaxTimeoutSec = math.MaxInt32
	// DefaultIdentity 는 get_support 응답에 실리는 장치 이름이다.
	DefaultIdentity = "Smart Watchdog"
	// DefaultSocketPath 는 제어 채널 유닉스 소켓 경로다.
	DefaultSocketPath = "/run/smart-watchdog/watchdog.sock"
)

// Config 는 워치독 호스트 설정이다.
type Config struct {
	TimeoutSec     int    `validate:"gte=1,lte=2147483647"`
	Identity       string `validate:"required,max=32"`
	SocketPath     string `validate:"required"`
	ClosePolicy    string `validate:"oneof=always magic nowayout"`
	FatalAction    string `validate:"oneof=exit panic reboot container"`
	ExitCode       int    `validate:"gte=1,lte=255"`
	DockerSocket   string
	FatalContainer string `validate:"required_if=FatalAction container"`
	BootStatusPath string
	VerboseLogging bool
}

var configValidator = validator.New()

// Validate 는 설정 값을 검사한다.
func (c Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("watchdog config invalid: %w", err)
	}
	return nil
}

func envBool(key string, defaultValue bool) bool {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	value := strings.TrimSpace(strings.ToLower(raw))
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return defaultValue
	}
}

func envInt(key string, defaultValue int, minValue int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		if defaultValue < minValue {
			return minValue
		}
		return defaultValue
	}
	var parsed int
	_, err := fmt.Sscanf(raw, "%d", &parsed)
	if err != nil {
		if defaultValue < minValue {
			return minValue
		}
		return defaultValue
	}
	if parsed < minValue {
		return minValue
	}
	return parsed
}

func envString(key string, defaultValue string) string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	return raw
}

// NormalizeTimeoutSec 은 timeout-sec 규칙을 적용한다. 제어 채널 범위의 양의
// 정수가 아니면 기본값으로 대체한다.
func NormalizeTimeoutSec(value int) int {
	if value <= 0 || value > MaxTimeoutSec {
		return DefaultTimeoutSec
	}
	return value
}

func envTimeoutSec(key string) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return DefaultTimeoutSec
	}
	var parsed int
	if _, err := fmt.Sscanf(raw, "%d", &parsed); err != nil {
		return DefaultTimeoutSec
	}
	return NormalizeTimeoutSec(parsed)
}

func loadConfigFromEnv() Config {
	return Config{
		TimeoutSec:     envTimeoutSec("WATCHDOG_TIMEOUT_SEC"),
		Identity:       envString("WATCHDOG_IDENTITY", DefaultIdentity),
		SocketPath:     envString("WATCHDOG_SOCKET", DefaultSocketPath),
		ClosePolicy:    strings.ToLower(envString("WATCHDOG_CLOSE_POLICY", "magic")),
		FatalAction:    strings.ToLower(envString("WATCHDOG_FATAL_ACTION", "exit")),
		ExitCode:       envInt("WATCHDOG_EXIT_CODE", 1, 1),
		DockerSocket:   envString("WATCHDOG_DOCKER_SOCKET", "/var/run/docker.sock"),
		FatalContainer: strings.TrimSpace(os.Getenv("WATCHDOG_FATAL_CONTAINER")),
		BootStatusPath: strings.TrimSpace(os.Getenv("WATCHDOG_BOOT_STATUS_PATH")),
		VerboseLogging: envBool("WATCHDOG_VERBOSE", false),
	}
}

// DefaultConfig 는 환경 변수가 비어 있을 때의 설정이다.
func DefaultConfig() Config {
	return Config{
		TimeoutSec:   DefaultTimeoutSec,
		Identity:     DefaultIdentity,
		SocketPath:   DefaultSocketPath,
		ClosePolicy:  "magic",
		FatalAction:  "exit",
		ExitCode:     1,
		DockerSocket: "/var/run/docker.sock",
	}
}
