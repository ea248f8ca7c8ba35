package healthd

import (
	"fmt"
	"os"
	"strings"
	"time"

	watchdog "smart-watchdog/internal/core"
)

// Config 는 환경 변수에서만 읽는다. healthd 는 플래그를 받지 않는다.
type Config struct {
	Device     string
	Interval   time.Duration
	MagicClose bool
	Verbose    bool
}

// LoadConfigFromEnv 는 HEALTHD_DEVICE, HEALTHD_INTERVAL_SEC,
// HEALTHD_MAGIC_CLOSE, HEALTHD_VERBOSE 를 읽는다.
func LoadConfigFromEnv() Config {
	return Config{
		Device:     envString("HEALTHD_DEVICE", watchdog.DefaultSocketPath),
		Interval:   time.Duration(envInt("HEALTHD_INTERVAL_SEC", int(DefaultInterval/time.Second), 1)) * time.Second,
		MagicClose: envBool("HEALTHD_MAGIC_CLOSE", false),
		Verbose:    envBool("HEALTHD_VERBOSE", false),
	}
}

func envString(key string, defaultValue string) string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	return raw
}

func envInt(key string, defaultValue int, minValue int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	var parsed int
	if _, err := fmt.Sscanf(raw, "%d", &parsed); err != nil {
		return defaultValue
	}
	if parsed < minValue {
		return minValue
	}
	return parsed
}

func envBool(key string, defaultValue bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return defaultValue
	}
}
