package admin

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config 는 관리자 API 서버 설정이다.
type Config struct {
	Enabled bool
	Addr    string
	UseH2C  bool

	// JWTSecret 이 있으면 API 그룹에 HS256 bearer 토큰 인증을 건다.
	JWTSecret string
	JWTIssuer string

	AllowedIPs []string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
}

func envBool(key string, defaultValue bool) bool {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return defaultValue
	}
}

func envSeconds(key string, defaultValue int) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	value := defaultValue
	if raw != "" {
		var parsed int
		if _, err := fmt.Sscanf(raw, "%d", &parsed); err == nil && parsed >= 0 {
			value = parsed
		}
	}
	return time.Duration(value) * time.Second
}

func envString(key string, defaultValue string) string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	return raw
}

func splitList(raw string) []string {
	return strings.Fields(strings.ReplaceAll(raw, ",", " "))
}

// LoadAdminConfig 는 WATCHDOG_ADMIN_* 환경 변수를 읽는다.
func LoadAdminConfig() Config {
	return Config{
		Enabled: envBool("WATCHDOG_ADMIN_ENABLED", false),
		Addr:    envString("WATCHDOG_ADMIN_ADDR", "127.0.0.1:30003"),
		UseH2C:  envBool("WATCHDOG_ADMIN_H2C", true),

		JWTSecret: strings.TrimSpace(os.Getenv("WATCHDOG_ADMIN_JWT_SECRET")),
		JWTIssuer: strings.TrimSpace(os.Getenv("WATCHDOG_ADMIN_JWT_ISSUER")),

		AllowedIPs: splitList(os.Getenv("WATCHDOG_ADMIN_ALLOWED_IPS")),

		ReadHeaderTimeout: envSeconds("WATCHDOG_ADMIN_READ_HEADER_TIMEOUT_SECONDS", 5),
		ReadTimeout:       envSeconds("WATCHDOG_ADMIN_READ_TIMEOUT_SECONDS", 30),
		WriteTimeout:      envSeconds("WATCHDOG_ADMIN_WRITE_TIMEOUT_SECONDS", 30),
		IdleTimeout:       envSeconds("WATCHDOG_ADMIN_IDLE_TIMEOUT_SECONDS", 120),
		ShutdownTimeout:   envSeconds("WATCHDOG_ADMIN_SHUTDOWN_TIMEOUT_SECONDS", 10),
	}
}

// ValidateForEnable 는 활성화된 경우에만 필수 값을 검사한다.
func (c Config) ValidateForEnable() error {
	if !c.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("WATCHDOG_ADMIN_ADDR is required")
	}
	allowlist, err := newIPAllowlist(c.AllowedIPs)
	if err != nil {
		return fmt.Errorf("WATCHDOG_ADMIN_ALLOWED_IPS is invalid: %w", err)
	}
	if allowlist == nil {
		return fmt.Errorf("WATCHDOG_ADMIN_ALLOWED_IPS is required")
	}
	return nil
}
