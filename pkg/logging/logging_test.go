package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestFileLogger_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")

	f, logger, err := FileLogger(logrus.InfoLevel, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	logger.WithField("component", "test").Info("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"msg":"hello"`)
	require.Contains(t, string(data), `"component":"test"`)
}

func TestFileLogger_RespectsLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	f, logger, err := FileLogger(logrus.ErrorLevel, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	logger.Info("dropped")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Empty(t, data)
}
