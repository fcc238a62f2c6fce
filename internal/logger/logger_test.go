package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestPrettyFormatter(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "debug", "text")
	log.Formatter = &PrettyFormatter{NoColor: true}

	log.WithField("peer", "node_b").Debugf("Sending offer to %s", "node_b")

	line := buf.String()
	if !strings.Contains(line, "DEBUG Sending offer to node_b peer=node_b") {
		t.Errorf("unexpected line %q", line)
	}
}

func TestNewLoggerLevelFallback(t *testing.T) {
	log := New(&bytes.Buffer{}, "chatty", "text")
	if log.GetLevel() != logrus.InfoLevel {
		t.Errorf("expected info level, got %s", log.GetLevel())
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "info", "json")
	log.Info("hello")

	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("expected JSON output, got %q", buf.String())
	}
}
