package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// TestNewDevelopmentLogger confirms the development logger builds and logs.
func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(true)
	require.NoError(t, err)
	require.NotNil(t, logger)
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("development logger ready")
}

// TestNewProductionLogger ensures the production logger configuration succeeds.
func TestNewProductionLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(false)
	require.NoError(t, err)
	require.NotNil(t, logger)
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("production logger ready")
}

func TestRedact(t *testing.T) {
	t.Parallel()

	require.Equal(t, "", Redact(""))
	require.Equal(t, "****", Redact("abc"))
	require.Equal(t, "s3************23", Redact("s3cretpassword23"))
}

func TestSecretFieldHidesValue(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	zap.New(core).Info("login", Secret("password", "hunter22"))

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "hu****22", entries[0].ContextMap()["password"])
}
