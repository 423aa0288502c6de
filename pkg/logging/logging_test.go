package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestPrefixWriter(t *testing.T) {
	testCases := []struct {
		name   string
		writes []string
		want   string
	}{
		{
			name:   "single line",
			writes: []string{"hello\n"},
			want:   "> hello\n",
		},
		{
			name:   "split line",
			writes: []string{"hel", "lo\nwor", "ld\n"},
			want:   "> hello\n> world\n",
		},
		{
			name:   "no newline yet",
			writes: []string{"pending"},
			want:   "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			pw := NewPrefixWriter("> ", &out)
			for _, w := range tc.writes {
				n, err := pw.Write([]byte(w))
				if err != nil {
					t.Fatalf("Write() error = %v", err)
				}
				if n != len(w) {
					t.Errorf("Write() = %d, want %d", n, len(w))
				}
			}
			if out.String() != tc.want {
				t.Errorf("output = %q, want %q", out.String(), tc.want)
			}
		})
	}
}

func TestPrefixWriterFlush(t *testing.T) {
	var out bytes.Buffer
	pw := NewPrefixWriter("> ", &out)
	if _, err := pw.Write([]byte("tail")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := pw.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if out.String() != "> tail" {
		t.Errorf("output = %q, want %q", out.String(), "> tail")
	}
}

func TestNewLoggerPrefixesOutput(t *testing.T) {
	t.Setenv(EnvJSONLog, "")
	var out bytes.Buffer
	logger := NewLogger("paramux-test", "info", &out)
	logger.Info("compiled schedule", "slots", 4)

	line := out.String()
	if !strings.HasPrefix(line, Prefix) {
		t.Errorf("log line %q missing prefix %q", line, Prefix)
	}
	if !strings.Contains(line, "slots=4") {
		t.Errorf("log line %q missing key/value", line)
	}
}

func TestNewLoggerJSONLevel(t *testing.T) {
	t.Setenv(EnvJSONLog, "")
	var out bytes.Buffer
	logger := NewLogger("paramux-test", "json:debug", &out)
	if !logger.IsDebug() {
		t.Errorf("json:debug should enable debug level")
	}
	logger.Debug("json line")
	if !strings.HasPrefix(out.String(), "{") {
		t.Errorf("expected JSON output, got %q", out.String())
	}
}

func TestResolveLevel(t *testing.T) {
	t.Setenv(EnvLogLevel, "")

	level, source := ResolveLevel("trace", "info")
	if level != "trace" || source != "flag --log-level" {
		t.Errorf("ResolveLevel(flag) = %q/%q", level, source)
	}

	level, _ = ResolveLevel("", "error")
	if level != "error" {
		t.Errorf("ResolveLevel(config) = %q, want error", level)
	}

	t.Setenv(EnvLogLevel, "debug")
	level, source = ResolveLevel("", "error")
	if level != "debug" || source != EnvLogLevel {
		t.Errorf("ResolveLevel(env) = %q/%q", level, source)
	}

	t.Setenv(EnvLogLevel, "")
	level, source = ResolveLevel("", "")
	if level != "warn" || source != "default" {
		t.Errorf("ResolveLevel(default) = %q/%q", level, source)
	}
}
