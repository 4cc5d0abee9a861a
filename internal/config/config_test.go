package config

import (
	"os"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Remove(tmpfile.Name()) })

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}
	return tmpfile.Name()
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9091
  host: "127.0.0.1"

persistence:
  backend: redis

redis:
  host: "cache"

simulator:
  stepDuration: 1s
  tickInterval: 10ms
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != 9091 {
		t.Errorf("Expected port 9091, got %d", cfg.Server.Port)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Expected host 127.0.0.1, got %s", cfg.Server.Host)
	}

	if cfg.Persistence.Backend != BackendRedis {
		t.Errorf("Expected redis backend, got %s", cfg.Persistence.Backend)
	}

	if cfg.Redis.Host != "cache" {
		t.Errorf("Expected redis host cache, got %s", cfg.Redis.Host)
	}

	if cfg.Simulator.StepDuration != time.Second || cfg.Simulator.TickInterval != 10*time.Millisecond {
		t.Errorf("Unexpected simulator cadence %s/%s", cfg.Simulator.StepDuration, cfg.Simulator.TickInterval)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 8080\n"))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Simulator.StepDuration != 3*time.Second {
		t.Errorf("Expected 3s step duration, got %s", cfg.Simulator.StepDuration)
	}
	if cfg.Simulator.TickInterval != 50*time.Millisecond {
		t.Errorf("Expected 50ms tick, got %s", cfg.Simulator.TickInterval)
	}
	if cfg.Persistence.Backend != BackendMemory || cfg.Storage.Backend != BackendMemory {
		t.Errorf("Expected memory backends by default")
	}
	if cfg.Assistant.MaxTokens != 500 {
		t.Errorf("Expected 500 max tokens, got %d", cfg.Assistant.MaxTokens)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	_, err := Load(writeConfig(t, "persistence:\n  backend: cassandra\n"))
	if err == nil {
		t.Error("Expected error for unknown persistence backend")
	}
}

func TestLoadNonExistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Error("Expected error when loading nonexistent file")
	}
}

func TestLoadWebhooks(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
webhook:
  urls:
    - "https://hooks.example.com/a"
    - "https://hooks.example.com/b"
  secret: "s3cret"
  retries: ["250ms", "2s"]
`))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if len(cfg.Webhook.URLs) != 2 || cfg.Webhook.URLs[1] != "https://hooks.example.com/b" {
		t.Errorf("Unexpected webhook urls %v", cfg.Webhook.URLs)
	}
	if cfg.Webhook.Timeout != 10*time.Second {
		t.Errorf("Expected 10s webhook timeout, got %s", cfg.Webhook.Timeout)
	}
	if len(cfg.Webhook.Retries) != 2 || cfg.Webhook.Retries[0] != 250*time.Millisecond {
		t.Errorf("Unexpected webhook retries %v", cfg.Webhook.Retries)
	}
	if cfg.RateLimit.LoginWindow != 15*time.Minute {
		t.Errorf("Expected 15m login window, got %s", cfg.RateLimit.LoginWindow)
	}
}
