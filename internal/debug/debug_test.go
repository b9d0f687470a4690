package debug

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestInit_Off(t *testing.T) {
	Init(LevelOff)
	defer Init(LevelOff)

	var buf bytes.Buffer
	SetOutput(&buf)
	Info("should not appear")
	Error(errors.New("nor this"))

	if buf.Len() != 0 {
		t.Errorf("level 0 should produce no output, got %q", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	cases := []struct {
		name    string
		level   int
		log     func()
		visible bool
	}{
		{"info_at_info", LevelInfo, func() { Info("hello") }, true},
		{"live_at_info", LevelInfo, func() { Live("hello") }, false},
		{"live_at_live", LevelLive, func() { Live("hello") }, true},
		{"verbose_at_live", LevelLive, func() { Verbose("hello") }, false},
		{"verbose_at_verbose", LevelVerbose, func() { Verbose("hello") }, true},
		{"trace_at_verbose", LevelVerbose, func() { Trace("hello") }, false},
		{"gpio_at_trace", LevelTrace, func() { GPIO("WritePin", 6, "hello") }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			Init(tc.level)
			defer Init(LevelOff)

			var buf bytes.Buffer
			SetOutput(&buf)
			tc.log()

			got := strings.Contains(buf.String(), "hello")
			if got != tc.visible {
				t.Errorf("visible = %v, want %v (output %q)", got, tc.visible, buf.String())
			}
		})
	}
}

func TestAngles_Fields(t *testing.T) {
	Init(LevelInfo)
	defer Init(LevelOff)

	var buf bytes.Buffer
	SetOutput(&buf)
	Angles(34.0375, 143.7318)

	out := buf.String()
	if !strings.Contains(out, "elevation=34.04") {
		t.Errorf("missing elevation field in %q", out)
	}
	if !strings.Contains(out, "azimuth=143.73") {
		t.Errorf("missing azimuth field in %q", out)
	}
}

func TestIsEnabled(t *testing.T) {
	Init(LevelLive)
	defer Init(LevelOff)

	if !IsEnabled(LevelInfo) {
		t.Error("IsEnabled(LevelInfo) should be true at LevelLive")
	}
	if IsEnabled(LevelVerbose) {
		t.Error("IsEnabled(LevelVerbose) should be false at LevelLive")
	}
	if Level() != LevelLive {
		t.Errorf("Level() = %d, want %d", Level(), LevelLive)
	}
}
