package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "", want: slog.LevelInfo},
		{in: "DEBUG", want: slog.LevelDebug},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "loud", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseLevel(%q) err=%v, wantErr=%v", tt.in, err, tt.wantErr)
		}
		if err == nil && got != tt.want {
			t.Fatalf("ParseLevel(%q)=%v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_FileReceivesDebugConsoleDoesNot(t *testing.T) {
	var console, file bytes.Buffer
	logger := New(&console, slog.LevelInfo, &file)

	logger.Debug("exp:dse - new design point", "point", "(50, 50, 1, 5, 30, 150)")
	if console.Len() != 0 {
		t.Fatalf("expected console to drop debug records, got %q", console.String())
	}

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(file.Bytes()), &entry); err != nil {
		t.Fatalf("decode file record: %v", err)
	}
	if entry["msg"] != "exp:dse - new design point" {
		t.Fatalf("unexpected file record: %v", entry)
	}

	logger.With("run_id", "r-1").Info("exp:dse - test ended")
	if !strings.Contains(console.String(), "test ended") {
		t.Fatalf("expected console output, got %q", console.String())
	}
	if !strings.Contains(file.String(), `"run_id":"r-1"`) {
		t.Fatalf("expected attrs in file output, got %q", file.String())
	}
}
