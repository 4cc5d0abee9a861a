package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()

	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("Failed to decode log line %q: %v", line, err)
		}
		out = append(out, entry)
	}
	return out
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:   "JSON format to stdout",
			config: Config{Level: "info", Format: "json", Output: "stdout"},
		},
		{
			name:   "Console format to stderr",
			config: Config{Level: "debug", Format: "console", Output: "stderr"},
		},
		{
			name:   "Invalid log level defaults to info",
			config: Config{Level: "invalid", Format: "json", Output: "stdout"},
		},
		{
			name:    "Unwritable file path",
			config:  Config{Level: "info", Format: "json", Output: "/nonexistent-dir/app.log"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewLogger() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && logger == nil {
				t.Error("Expected non-nil logger")
			}
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn")

	logger.Info("dropped")
	logger.Warn("kept")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("Expected 1 line, got %d", len(lines))
	}
	if lines[0]["message"] != "kept" {
		t.Errorf("Expected kept message, got %v", lines[0]["message"])
	}
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "debug")

	logger.
		WithRequestID("req-123").
		WithUserID("user-1").
		WithProjectID("project-9").
		WithFields(map[string]interface{}{"key": "value"}).
		Info("hello")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("Expected 1 line, got %d", len(lines))
	}
	entry := lines[0]
	for key, want := range map[string]string{
		"request_id": "req-123",
		"user_id":    "user-1",
		"project_id": "project-9",
		"key":        "value",
	} {
		if entry[key] != want {
			t.Errorf("Expected %s=%s, got %v", key, want, entry[key])
		}
	}
}

func TestLogHTTPRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info")

	logger.LogHTTPRequest("GET", "/api/v1/projects", "192.168.1.1", 200, 100*time.Millisecond)
	logger.LogHTTPRequest("POST", "/api/v1/projects", "192.168.1.1", 503, time.Millisecond)

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(lines))
	}
	if lines[0]["level"] != "info" || lines[1]["level"] != "error" {
		t.Errorf("Expected info then error, got %v and %v", lines[0]["level"], lines[1]["level"])
	}
	if lines[0]["status_code"] != float64(200) {
		t.Errorf("Expected status_code 200, got %v", lines[0]["status_code"])
	}
}

func TestLogProjectEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info")

	logger.LogProjectEvent("project-1", "processing.completed", "completed", map[string]interface{}{
		"steps": 5,
	})

	lines := decodeLines(t, &buf)
	if len(lines) != 1 || lines[0]["event"] != "processing.completed" || lines[0]["steps"] != float64(5) {
		t.Errorf("Unexpected project event line: %v", lines)
	}
}

func TestLogObjectURLError(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info")

	logger.LogObjectURL("create", "blob:clipwave/x", 10, nil)
	logger.LogObjectURL("revoke", "blob:clipwave/x", 10, errors.New("boom"))

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("Expected only the error line at info level, got %d", len(lines))
	}
	if lines[0]["error"] != "boom" {
		t.Errorf("Expected error field, got %v", lines[0]["error"])
	}
}

func TestNop(t *testing.T) {
	logger := Nop()
	logger.WithField("a", 1).Error("discarded")
}

func BenchmarkLogWithFields(b *testing.B) {
	var buf bytes.Buffer
	logger := New(&buf, "info")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.Reset()
		logger.WithFields(map[string]interface{}{
			"key1": "value1",
			"key2": 123,
		}).Info("benchmark message")
	}
}
