package internal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mama165/sdk-go/database"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	req := require.New(t)

	// Given an environment without any relay variable
	unsetEnv(t, "HOST", "PORT", "LOG_LEVEL", "CONNECTION_BUFFER_SIZE", "VOICE_NOTE_READ_TIMEOUT", "BADGER_FILEPATH")

	// When the configuration is loaded
	config, err := LoadConfig()

	// Then defaults are applied
	req.NoError(err)
	req.Equal("0.0.0.0", config.Host)
	req.Equal(5000, config.Port)
	req.Equal("INFO", config.LogLevel)
	req.Equal(256, config.ConnectionBufferSize)
	req.Equal(30*time.Second, config.VoiceNoteReadTimeout)
	req.Equal("0.0.0.0:5000", config.Address())
	req.Equal(database.DefaultPath, config.BadgerFilepath)
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	req := require.New(t)

	// Given explicit values
	t.Setenv("PORT", "6000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("MAX_VOICE_NOTE_BYTES", "1024")
	t.Setenv("VOICE_NOTE_READ_TIMEOUT", "2s")

	// When the configuration is loaded
	config, err := LoadConfig()

	// Then they override the defaults
	req.NoError(err)
	req.Equal(6000, config.Port)
	req.Equal("DEBUG", config.LogLevel)
	req.Equal(int64(1024), config.MaxVoiceNoteBytes)
	req.Equal(2*time.Second, config.VoiceNoteReadTimeout)
}

func TestLoadConfig_DotEnvFile(t *testing.T) {
	req := require.New(t)

	// Given a .env file with a port the environment does not define
	unsetEnv(t, "PORT")
	file := filepath.Join(t.TempDir(), ".env")
	req.NoError(os.WriteFile(file, []byte("PORT=7000\n"), 0o600))

	// When the configuration is loaded with that file
	config, err := LoadConfig(file)

	// Then the file value is used
	req.NoError(err)
	req.Equal(7000, config.Port)
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]struct{ key, value string }{
		"unknown log level": {"LOG_LEVEL", "VERBOSE"},
		"port out of range": {"PORT", "70000"},
		"empty buffer":      {"CONNECTION_BUFFER_SIZE", "0"},
		"not a number":      {"MAX_CONNECTIONS", "many"},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			t.Setenv(c.key, c.value)

			_, err := LoadConfig()

			req.Error(err)
		})
	}
}

// unsetEnv removes keys for the duration of the test, t.Setenv restores them.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}
