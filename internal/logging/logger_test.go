package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerDefault(t *testing.T) {
	logger := NewLogger(nil)
	require.NotNil(t, logger)
}

func TestLoggerWithQueue(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: logrus.DebugLevel, Output: &buf})

	entry := logger.WithQueue(7, "abc123")
	entry.Info("queue message")

	output := buf.String()
	require.Contains(t, output, "qid=7")
	require.Contains(t, output, "conn=abc123")
	require.Contains(t, output, "queue message")
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: logrus.DebugLevel, Output: &buf})

	logger.Debugf("debug %s", "msg")
	logger.Infof("info %s", "msg")
	logger.Warnf("warn %s", "msg")
	logger.Errorf("error %s", "msg")

	output := buf.String()
	for _, want := range []string{"debug msg", "info msg", "warn msg", "error msg"} {
		require.True(t, strings.Contains(output, want), "expected %q in %q", want, output)
	}
}

func TestGlobalLoggerFunctions(t *testing.T) {
	var buf bytes.Buffer
	SetDefault(NewLogger(&Config{Level: logrus.DebugLevel, Output: &buf}))

	Infof("hello %s", "world")
	require.Contains(t, buf.String(), "hello world")
}
