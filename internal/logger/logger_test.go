package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitFile(t *testing.T) {
	Reset()
	defer Reset()

	logPath := filepath.Join(t.TempDir(), "logs", "tinyfm.log")
	if err := Init(logPath); err != nil {
		t.Fatalf("Init: %v", err)
	}
	Get().Info("user action", "action", "login")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(content), "action=login") {
		t.Errorf("log missing structured field: %s", content)
	}
}

func TestWithComponent(t *testing.T) {
	Reset()
	defer Reset()

	var buf bytes.Buffer
	InitWriter(&buf)
	WithComponent("listing").Info("listed", "entries", 3)

	out := buf.String()
	if !strings.Contains(out, "component=listing") || !strings.Contains(out, "entries=3") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestSetDebug(t *testing.T) {
	Reset()
	defer Reset()

	var buf bytes.Buffer
	InitWriter(&buf)
	Get().Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug logged at info level: %s", buf.String())
	}
	SetDebug(true)
	Get().Debug("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("debug not logged after SetDebug(true): %s", buf.String())
	}
}

func TestComponentLoggerOutlivesClose(t *testing.T) {
	Reset()
	defer Reset()

	logPath := filepath.Join(t.TempDir(), "tinyfm.log")
	if err := Init(logPath); err != nil {
		t.Fatalf("Init: %v", err)
	}
	log := WithComponent("http")
	log.Info("before close")
	Close()

	var buf bytes.Buffer
	InitWriter(&buf)
	log.Info("after close")
	if !strings.Contains(buf.String(), "after close") || !strings.Contains(buf.String(), "component=http") {
		t.Errorf("line logged after Close was dropped: %q", buf.String())
	}

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "before close") || strings.Contains(string(content), "after close") {
		t.Errorf("log file content: %s", content)
	}
}
