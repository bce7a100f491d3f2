package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// inTempDir 切到空目录，避免读到仓库里的 .env / config.yaml。
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	inTempDir(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.UniverseFile != "small_caps.txt" || cfg.LogFile != "stock_scanner.log" {
		t.Errorf("files = %s %s", cfg.UniverseFile, cfg.LogFile)
	}
	if cfg.Schedule.Interval != 300*time.Second || cfg.Schedule.ErrorPause != 2*time.Second {
		t.Errorf("schedule = %+v", cfg.Schedule)
	}
	if cfg.Schedule.Timezone != "America/New_York" {
		t.Errorf("timezone = %s", cfg.Schedule.Timezone)
	}
	if cfg.API.Timeout != 10*time.Second || cfg.API.Attempts != 1 {
		t.Errorf("api = %+v", cfg.API)
	}
	if cfg.Builder.Workers != 10 || cfg.Builder.ProgressEvery != 500 {
		t.Errorf("builder = %+v", cfg.Builder)
	}
	if cfg.Redis.Enabled() || cfg.SMTP.Enabled() || cfg.BuildUniverse {
		t.Errorf("optional features should be off by default: %+v", cfg)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	inTempDir(t)
	t.Setenv("SCREENER_UNIVERSE_FILE", "/tmp/u.txt")
	t.Setenv("SCREENER_SCHEDULE_INTERVAL", "60s")
	t.Setenv("SCREENER_BUILD_UNIVERSE", "true")
	t.Setenv("SCREENER_REDIS_ADDR", "localhost:6379")
	t.Setenv("SCREENER_BUILDER_WORKERS", "4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.UniverseFile != "/tmp/u.txt" || cfg.Schedule.Interval != time.Minute {
		t.Errorf("cfg = %+v", cfg)
	}
	if !cfg.BuildUniverse || !cfg.Redis.Enabled() || cfg.Builder.Workers != 4 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadSMTPEnv(t *testing.T) {
	inTempDir(t)
	t.Setenv("SMTP_SERVER", "smtp.example.com")
	t.Setenv("SMTP_PORT", "465")
	t.Setenv("SMTP_USER", "bot@example.com")
	t.Setenv("SMTP_PASSWORD", "pw")
	t.Setenv("SMTP_AUTH_CODE", "code")
	t.Setenv("SMTP_TO", "a@example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.SMTP
	if s.Server != "smtp.example.com" || s.Port != 465 {
		t.Errorf("smtp = %+v", s)
	}
	if s.Password != "code" {
		t.Errorf("auth code should win over password, got %q", s.Password)
	}
	if s.From != "bot@example.com" {
		t.Errorf("from should default to user, got %q", s.From)
	}
	if !s.Enabled() {
		t.Error("smtp should be enabled")
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := inTempDir(t)
	yaml := "universe_file: caps.txt\nschedule:\n  interval: 90s\nredis:\n  channel: custom\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.UniverseFile != "caps.txt" || cfg.Schedule.Interval != 90*time.Second || cfg.Redis.Channel != "custom" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := inTempDir(t)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("SCREENER_LOG_FILE=from-dotenv.log\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// godotenv 直接写进程环境，测试结束清掉
	t.Cleanup(func() { _ = os.Unsetenv("SCREENER_LOG_FILE") })
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogFile != "from-dotenv.log" {
		t.Errorf("log file = %s", cfg.LogFile)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Run("explicit config path missing", func(t *testing.T) {
		inTempDir(t)
		t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))
		if _, err := Load(); err == nil {
			t.Error("expected error")
		}
	})
	t.Run("zero workers", func(t *testing.T) {
		inTempDir(t)
		t.Setenv("SCREENER_BUILDER_WORKERS", "0")
		if _, err := Load(); err == nil {
			t.Error("expected validation error")
		}
	})
	t.Run("non-positive interval", func(t *testing.T) {
		inTempDir(t)
		t.Setenv("SCREENER_SCHEDULE_INTERVAL", "0s")
		if _, err := Load(); err == nil {
			t.Error("expected validation error")
		}
	})
}
