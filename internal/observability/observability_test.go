package observability

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitCLILogger(t *testing.T) {
	InitCLILogger("promptc-test", true)
	require.NotNil(t, CLILogger)
	CLILogger.Debug("compiled prompt", zap.String("name", "Test"))
}

func TestNewServerLogger(t *testing.T) {
	logger, err := NewServerLogger(ServerLoggerOptions{
		Service:      "promptc-test",
		Level:        "debug",
		Environment:  "test",
		StaticFields: map[string]any{"prompts_dir": "/tmp/prompts"},
	})
	require.NoError(t, err)
	require.NotNil(t, logger)
	logger.Info("server logger ready", zap.Int("prompts", 3))
}

func TestLoggerFallsBackToCLI(t *testing.T) {
	prevServer, prevCLI := ServerLogger, CLILogger
	t.Cleanup(func() { ServerLogger, CLILogger = prevServer, prevCLI })

	ServerLogger, CLILogger = nil, nil
	require.NotNil(t, Logger())
	require.Same(t, CLILogger, Logger())
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]string{
		"trace":   "TRACE",
		"DEBUG":   "DEBUG",
		" info ":  "INFO",
		"warning": "WARN",
		"error":   "ERROR",
		"bogus":   "INFO",
		"":        "INFO",
	}
	for in, want := range tests {
		require.Equal(t, want, parseLogLevel(in), in)
	}
}

func TestResolvePort(t *testing.T) {
	port, err := resolvePort("[::]:9191")
	require.NoError(t, err)
	require.Equal(t, 9191, port)

	_, err = resolvePort("no-port")
	require.Error(t, err)
}
