package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRotatingFileWriter(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "radscan.log")

	w, err := NewRotatingFileWriter(RotationConfig{
		Filename:   logFile,
		MaxSize:    1, // 1 MB
		MaxBackups: 2,
	})
	if err != nil {
		t.Fatalf("NewRotatingFileWriter: %v", err)
	}
	defer w.Close()

	msg := []byte("scan status line\n")
	if _, err := w.Write(msg); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "scan status line") {
		t.Errorf("log file missing written data: %q", data)
	}
	if w.CurrentSize() != int64(len(msg)) {
		t.Errorf("CurrentSize = %d, want %d", w.CurrentSize(), len(msg))
	}
}

func TestRotation(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "radscan.log")

	w, err := NewRotatingFileWriter(RotationConfig{
		Filename:   logFile,
		MaxSize:    1,
		MaxBackups: 3,
	})
	if err != nil {
		t.Fatalf("NewRotatingFileWriter: %v", err)
	}
	defer w.Close()

	// Force a rotation by writing past 1 MB
	chunk := make([]byte, 256*1024)
	for i := range chunk {
		chunk[i] = 'x'
	}
	for i := 0; i < 5; i++ {
		if _, err := w.Write(chunk); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) < 2 {
		t.Errorf("expected rotated backup files, found %d entries", len(entries))
	}
}

func TestIsRotatedFile(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"radscan.20260102-150405.log", true},
		{"radscan.log", false},
		{"radscan.notadate.log", false},
		{"radscan.2026010x-150405.log", false},
	}
	for _, c := range cases {
		if got := isRotatedFile(c.name, "radscan", ".log"); got != c.want {
			t.Errorf("isRotatedFile(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestNewFileLogger(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "host.log")

	logger, w, err := NewFileLogger("host", RotationConfig{Filename: logFile})
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	defer w.Close()

	logger.Info("connected")

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "connected") {
		t.Errorf("log file missing record: %q", data)
	}
}
