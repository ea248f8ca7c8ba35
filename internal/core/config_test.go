package watchdog

import (
	"os"
	"path/filepath"
	"testing"
)

var watchdogEnvKeys = []string{
	"WATCHDOG_TIMEOUT_SEC",
	"WATCHDOG_IDENTITY",
	"WATCHDOG_SOCKET",
	"WATCHDOG_CLOSE_POLICY",
	"WATCHDOG_FATAL_ACTION",
	"WATCHDOG_EXIT_CODE",
	"WATCHDOG_DOCKER_SOCKET",
	"WATCHDOG_FATAL_CONTAINER",
	"WATCHDOG_BOOT_STATUS_PATH",
	"WATCHDOG_VERBOSE",
	"WATCHDOG_CONFIG_PATH",
}

func clearWatchdogEnv(t *testing.T) {
	t.Helper()
	for _, key := range watchdogEnvKeys {
		t.Setenv(key, "")
	}
}

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	clearWatchdogEnv(t)

	got := loadConfigFromEnv()
	want := DefaultConfig()
	if got != want {
		t.Fatalf("defaults mismatch:\n got=%+v\nwant=%+v", got, want)
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadConfigFromEnv_TimeoutProperty(t *testing.T) {
	cases := map[string]int{
		"":           DefaultTimeoutSec,
		"abc":        DefaultTimeoutSec,
		"0":          DefaultTimeoutSec,
		"-3":         DefaultTimeoutSec,
		"4294967296": DefaultTimeoutSec,
		"25":         25,
		" 7 ":        7,
		"2147483647": MaxTimeoutSec,
	}
	for raw, want := range cases {
		clearWatchdogEnv(t)
		t.Setenv("WATCHDOG_TIMEOUT_SEC", raw)
		if got := loadConfigFromEnv().TimeoutSec; got != want {
			t.Fatalf("timeout for %q = %d, want %d", raw, got, want)
		}
	}
}

func TestLoadConfigFromEnv_Overrides(t *testing.T) {
	clearWatchdogEnv(t)
	t.Setenv("WATCHDOG_IDENTITY", "Rack 4 Guard")
	t.Setenv("WATCHDOG_CLOSE_POLICY", "NOWAYOUT")
	t.Setenv("WATCHDOG_FATAL_ACTION", "panic")
	t.Setenv("WATCHDOG_EXIT_CODE", "0")
	t.Setenv("WATCHDOG_VERBOSE", "yes")

	cfg := loadConfigFromEnv()
	if cfg.Identity != "Rack 4 Guard" {
		t.Fatalf("identity = %q", cfg.Identity)
	}
	if cfg.ClosePolicy != "nowayout" {
		t.Fatalf("close policy = %q", cfg.ClosePolicy)
	}
	if cfg.FatalAction != "panic" {
		t.Fatalf("fatal action = %q", cfg.FatalAction)
	}
	if cfg.ExitCode != 1 {
		t.Fatalf("exit code should clamp to 1, got %d", cfg.ExitCode)
	}
	if !cfg.VerboseLogging {
		t.Fatalf("verbose should be enabled")
	}
}

func TestConfigValidate_Rejects(t *testing.T) {
	t.Parallel()

	cases := map[string]func(*Config){
		"close policy":       func(c *Config) { c.ClosePolicy = "sometimes" },
		"fatal action":       func(c *Config) { c.FatalAction = "shrug" },
		"container name":     func(c *Config) { c.FatalAction = "container" },
		"empty identity":     func(c *Config) { c.Identity = "" },
		"long identity":      func(c *Config) { c.Identity = "0123456789abcdef0123456789abcdef!" },
		"zero timeout":       func(c *Config) { c.TimeoutSec = 0 },
		"exit code overflow": func(c *Config) { c.ExitCode = 256 },
	}
	for name, mutate := range cases {
		cfg := DefaultConfig()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}

	cfg := DefaultConfig()
	cfg.FatalAction = "container"
	cfg.FatalContainer = "app"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("container with name should validate: %v", err)
	}
}

func TestLoadConfigWithSource_YAMLFile(t *testing.T) {
	clearWatchdogEnv(t)
	t.Setenv("WATCHDOG_TIMEOUT_SEC", "15")

	path := filepath.Join(t.TempDir(), "watchdog.yaml")
	body := "timeout-sec: 30\nclose-policy: nowayout\nfatal-action: container\nfatal-container: /app\nverbose: true\n"
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("WATCHDOG_CONFIG_PATH", path)

	cfg, source, gotPath, err := LoadConfigWithSource(testLogger())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if source != "file" || gotPath != path {
		t.Fatalf("source=%q path=%q", source, gotPath)
	}
	if cfg.TimeoutSec != 30 || cfg.ClosePolicy != "nowayout" || cfg.FatalContainer != "app" || !cfg.VerboseLogging {
		t.Fatalf("unexpected merged config: %+v", cfg)
	}
	if cfg.Identity != DefaultIdentity {
		t.Fatalf("unset file fields should keep env values, identity=%q", cfg.Identity)
	}
}

func TestLoadConfigWithSource_JSONInvalidTimeoutFallsBack(t *testing.T) {
	clearWatchdogEnv(t)

	path := filepath.Join(t.TempDir(), "watchdog.json")
	if err := os.WriteFile(path, []byte(`{"timeout-sec": -4, "identity": "  "}`), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("WATCHDOG_CONFIG_PATH", path)

	cfg, _, _, err := LoadConfigWithSource(testLogger())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TimeoutSec != DefaultTimeoutSec {
		t.Fatalf("timeout = %d, want default", cfg.TimeoutSec)
	}
	if cfg.Identity != DefaultIdentity {
		t.Fatalf("blank identity should keep the default, got %q", cfg.Identity)
	}
}

func TestLoadConfigWithSource_InvalidFile(t *testing.T) {
	clearWatchdogEnv(t)

	dir := t.TempDir()
	badPolicy := filepath.Join(dir, "policy.json")
	if err := os.WriteFile(badPolicy, []byte(`{"close-policy": "whenever"}`), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("WATCHDOG_CONFIG_PATH", badPolicy)
	if _, _, _, err := LoadConfigWithSource(testLogger()); err == nil {
		t.Fatalf("expected validation error")
	}

	garbled := filepath.Join(dir, "garbled.yml")
	if err := os.WriteFile(garbled, []byte("timeout-sec: [unterminated"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("WATCHDOG_CONFIG_PATH", garbled)
	if _, _, _, err := LoadConfigWithSource(testLogger()); err == nil {
		t.Fatalf("expected parse error")
	}

	t.Setenv("WATCHDOG_CONFIG_PATH", filepath.Join(dir, "missing.json"))
	if _, _, _, err := LoadConfigWithSource(testLogger()); err == nil {
		t.Fatalf("expected read error")
	}
}
