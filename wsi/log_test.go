package wsi

import (
	"bytes"
	"log"
	"os"
	"strings"
	"testing"
	"time"
)

func captureLog(t *testing.T, level LogLevel, fn func()) string {
	t.Helper()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	saved := logThreshold
	SetLogLevel(level)
	defer func() {
		log.SetOutput(os.Stderr)
		SetLogLevel(saved)
	}()
	fn()
	return buf.String()
}

func TestLogThreshold(t *testing.T) {
	out := captureLog(t, LogWarning, func() {
		Debugf("debug line\n")
		Infof("info line\n")
		Warningf("warning line\n")
		Errorf("error line\n")
	})
	if strings.Contains(out, "debug line") || strings.Contains(out, "info line") {
		t.Errorf("lines below the threshold should be dropped:\n%s", out)
	}
	if !strings.Contains(out, "WARNING warning line") || !strings.Contains(out, "ERROR error line") {
		t.Errorf("lines at or above the threshold should be written:\n%s", out)
	}
}

func TestLogSilent(t *testing.T) {
	out := captureLog(t, LogSilent, func() {
		Criticalf("nothing\n")
	})
	if out != "" {
		t.Errorf("silent mode should drop everything:\n%s", out)
	}
}

func TestLogDuration(t *testing.T) {
	out := captureLog(t, LogDebug, func() {
		start := time.Now().Add(-time.Second)
		LogDuration(LogInfo, start, "opened slide %q", "a.svs")
	})
	if !strings.Contains(out, `opened slide "a.svs": 1.`) {
		t.Errorf("duration log should append elapsed time:\n%s", out)
	}
}
