package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_CreatesLogFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	logs, err := New(Config{Level: "debug", Dir: dir, MaxBytes: 1024, BackupCount: 1})
	require.NoError(t, err)

	logs.App.Info().Msg("app record")
	logs.Access.Info().Msg("access record")
	logs.Error.Error().Msg("error record")

	for _, name := range []string{"app.log", "access.log", "error.log"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, "expected %s to exist", name)
		assert.NotEmpty(t, data, "expected %s to carry a record", name)
	}
}

func TestNew_LevelAppliesToAppLoggerOnly(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	logs, err := New(Config{Level: "warn", Dir: dir, MaxBytes: 1024})
	require.NoError(t, err)

	logs.App.Info().Msg("filtered out")
	logs.Access.Info().Msg("always recorded")

	app, _ := os.ReadFile(filepath.Join(dir, "app.log"))
	assert.Empty(t, app)
	access, err := os.ReadFile(filepath.Join(dir, "access.log"))
	require.NoError(t, err)
	assert.Contains(t, string(access), "always recorded")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("INFO"))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zerolog.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("bogus"))
}

func TestDiscard(t *testing.T) {
	logs := Discard()
	// Must be safe to use without any setup.
	logs.App.Info().Msg("dropped")
	logs.Access.Info().Msg("dropped")
	logs.Error.Error().Msg("dropped")
}
