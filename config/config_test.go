package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("TIMECLOCK_AUTH_JWT_SECRET", "0123456789abcdef-test")
	t.Setenv("TIMECLOCK_TIMECLOCK_LOOKBACK_DAYS", "7")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9090\ndb:\n  driver: sqlite\n"), 0o600); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("期望 port=9090, 实际=%d", cfg.Server.Port)
	}
	if cfg.Database.Driver != DriverSQLite {
		t.Errorf("期望 driver=sqlite, 实际=%s", cfg.Database.Driver)
	}
	if cfg.TimeClock.UTCOffsetHours != 1 {
		t.Errorf("期望默认 utc_offset_hours=1, 实际=%d", cfg.TimeClock.UTCOffsetHours)
	}
	if cfg.TimeClock.LookbackDays != 7 {
		t.Errorf("期望环境变量覆盖 lookback_days=7, 实际=%d", cfg.TimeClock.LookbackDays)
	}
	if cfg.TimeClock.SweepCron != "5 0 * * *" {
		t.Errorf("期望默认 sweep_cron, 实际=%q", cfg.TimeClock.SweepCron)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:    ServerConfig{Port: 8080},
			Database:  DatabaseConfig{Driver: DriverPostgres},
			Auth:      AuthConfig{JWTSecret: "0123456789abcdef"},
			TimeClock: TimeClockConfig{UTCOffsetHours: 1, LookbackDays: 30, SweepCron: "5 0 * * *", SweepEnabled: true},
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("合法配置校验失败: %v", err)
	}

	cases := map[string]func(c *Config){
		"短密钥":   func(c *Config) { c.Auth.JWTSecret = "short" },
		"端口越界":  func(c *Config) { c.Server.Port = 70000 },
		"未知驱动":  func(c *Config) { c.Database.Driver = "mysql" },
		"偏移越界":  func(c *Config) { c.TimeClock.UTCOffsetHours = 15 },
		"回溯天数":  func(c *Config) { c.TimeClock.LookbackDays = 0 },
		"空 cron": func(c *Config) { c.TimeClock.SweepCron = " " },
	}
	for name, mutate := range cases {
		c := valid()
		mutate(c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: 期望校验失败", name)
		}
	}
}
