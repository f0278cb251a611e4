package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func baseEnv(t *testing.T) map[string]string {
	t.Helper()
	return map[string]string{
		"UNFOLD_AUTH_SIGNING_SECRET": "secret",
		"UNFOLD_INTERNAL_API_KEY":    "internal-key",
	}
}

func setEnv(t *testing.T, values map[string]string) {
	t.Helper()
	for key, value := range values {
		t.Setenv(key, value)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	setEnv(t, baseEnv(t))

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddress != defaultHTTPAddress {
		t.Fatalf("unexpected address %q", cfg.HTTPAddress)
	}
	if cfg.DatabasePath != defaultDatabasePath {
		t.Fatalf("unexpected database path %q", cfg.DatabasePath)
	}
	if cfg.CuratorIssuer != defaultIssuer {
		t.Fatalf("unexpected issuer %q", cfg.CuratorIssuer)
	}
	if cfg.SessionTTL != 30*24*time.Hour {
		t.Fatalf("unexpected session ttl %v", cfg.SessionTTL)
	}
	if cfg.EventsDriver != EventsDriverNone {
		t.Fatalf("unexpected events driver %q", cfg.EventsDriver)
	}
	if cfg.EventsChannel != defaultEventsChannel {
		t.Fatalf("unexpected events channel %q", cfg.EventsChannel)
	}
}

func TestLoadRequiresSecrets(t *testing.T) {
	testCases := []struct {
		name    string
		drop    string
		wantErr string
	}{
		{name: "signing secret", drop: "UNFOLD_AUTH_SIGNING_SECRET", wantErr: "auth.signing_secret"},
		{name: "internal key", drop: "UNFOLD_INTERNAL_API_KEY", wantErr: "internal.api_key"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			values := baseEnv(t)
			values[testCase.drop] = ""
			setEnv(t, values)

			_, err := Load(NewViper())
			if err == nil || !strings.Contains(err.Error(), testCase.wantErr) {
				t.Fatalf("expected error mentioning %q, got %v", testCase.wantErr, err)
			}
		})
	}
}

func TestLoadValidatesEventsDriver(t *testing.T) {
	testCases := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{name: "redis without address", env: map[string]string{"UNFOLD_EVENTS_DRIVER": "redis"}, wantErr: "events.redis_addr"},
		{name: "amqp without url", env: map[string]string{"UNFOLD_EVENTS_DRIVER": "amqp"}, wantErr: "events.amqp_url"},
		{name: "unknown driver", env: map[string]string{"UNFOLD_EVENTS_DRIVER": "kafka"}, wantErr: "not supported"},
		{name: "redis configured", env: map[string]string{"UNFOLD_EVENTS_DRIVER": "Redis", "UNFOLD_EVENTS_REDIS_ADDR": "127.0.0.1:6379"}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			setEnv(t, baseEnv(t))
			setEnv(t, testCase.env)

			cfg, err := Load(NewViper())
			if testCase.wantErr == "" {
				if err != nil {
					t.Fatalf("Load: %v", err)
				}
				if cfg.EventsDriver != EventsDriverRedis {
					t.Fatalf("expected normalized driver, got %q", cfg.EventsDriver)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), testCase.wantErr) {
				t.Fatalf("expected error mentioning %q, got %v", testCase.wantErr, err)
			}
		})
	}
}

func TestLoadRejectsNonPositiveSessionTTL(t *testing.T) {
	setEnv(t, baseEnv(t))
	t.Setenv("UNFOLD_SESSION_TTL_DAYS", "0")

	if _, err := Load(NewViper()); err == nil {
		t.Fatalf("expected ttl validation error")
	}
}

func TestLoadEnvFile(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("UNFOLD_TEST_DOTENV_VALUE=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("UNFOLD_TEST_DOTENV_VALUE", "")
	os.Unsetenv("UNFOLD_TEST_DOTENV_VALUE")

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile: %v", err)
	}
	if got := os.Getenv("UNFOLD_TEST_DOTENV_VALUE"); got != "from-file" {
		t.Fatalf("expected value from env file, got %q", got)
	}
}
