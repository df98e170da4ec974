package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestInitJSONIncludesComponent(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	Init(slog.LevelInfo, "json", &buf)
	New("webcontext").Info("hello")

	out := buf.String()
	if !strings.Contains(out, `"component":"webcontext"`) {
		t.Fatalf("missing component attr: %s", out)
	}
	if !strings.Contains(out, `"msg":"hello"`) {
		t.Fatalf("missing msg: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q) error = %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("ParseLevel(loud) should fail")
	}
}
