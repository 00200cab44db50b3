package logging

import (
	"strings"
	"sync"
	"testing"
	"time"
)

type buffer struct {
	mu sync.Mutex
	b  strings.Builder
}

func (w *buffer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.b.Write(p)
}

func (w *buffer) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.b.String()
}

// Test 文本格式化
func TestTextFormatter(t *testing.T) {
	f := NewTextFormatter()
	line := f.Format(Entry{
		Time:     time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:    LogLevelInfo,
		Category: "App",
		Message:  "started",
		Fields:   []Field{{Key: "port", Value: 8080}},
	})

	for _, want := range []string{"2025-01-02 03:04:05", "INFO", "[App]", "started", "port=8080"} {
		if !strings.Contains(line, want) {
			t.Errorf("Expected %q in %q", want, line)
		}
	}
}

// Test JSON 格式化
func TestJSONFormatter(t *testing.T) {
	f := NewJSONFormatter()
	line := f.Format(Entry{
		Time:    time.Now(),
		Level:   LogLevelWarn,
		Message: "careful",
		Fields:  []Field{{Key: "n", Value: 1}},
	})
	for _, want := range []string{`"level":"WARN"`, `"msg":"careful"`, `"n":1`} {
		if !strings.Contains(line, want) {
			t.Errorf("Expected %q in %q", want, line)
		}
	}
}

// Test 最小级别过滤与类别
func TestLoggerLevelAndCategory(t *testing.T) {
	out := &buffer{}
	factory := NewLoggingBuilder().
		SetMinimumLevel(LogLevelWarn).
		SetOutput(out).
		Build()

	log := factory.CreateLogger("Core")
	log.Info("hidden")
	log.Warn("visible")

	got := out.String()
	if strings.Contains(got, "hidden") {
		t.Error("Info below minimum level must be dropped")
	}
	if !strings.Contains(got, "visible") || !strings.Contains(got, "[Core]") {
		t.Errorf("Expected categorized warn line, got %q", got)
	}
}
