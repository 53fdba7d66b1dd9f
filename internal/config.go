package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
)

// Config is read from the environment, optionally seeded from a .env file.
type Config struct {
	Host       string `env:"HOST,default=0.0.0.0" validate:"required"`
	Port       int    `env:"PORT,default=5000" validate:"min=0,max=65535"`
	HealthPort int    `env:"HEALTH_PORT,default=0" validate:"min=0,max=65535"`
	LogLevel   string `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR"`

	// BadgerFilepath falls back to the shared sdk-go database path.
	BadgerFilepath string `env:"BADGER_FILEPATH" validate:"required"`
	VoiceNoteDir   string `env:"VOICE_NOTE_DIR,default=./data/voice_notes" validate:"required"`

	ConnectionBufferSize int   `env:"CONNECTION_BUFFER_SIZE,default=256" validate:"min=1"`
	MaxConnections       int64 `env:"MAX_CONNECTIONS,default=1024" validate:"min=1"`
	MaxLineLength        int   `env:"MAX_LINE_LENGTH,default=65536" validate:"min=64"`
	MaxVoiceNoteBytes    int64 `env:"MAX_VOICE_NOTE_BYTES,default=10485760" validate:"min=1"`

	VoiceNoteReadTimeout time.Duration `env:"VOICE_NOTE_READ_TIMEOUT,default=30s" validate:"min=0"`
	WriteTimeout         time.Duration `env:"WRITE_TIMEOUT,default=10s" validate:"min=0"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=200ms" validate:"min=0"`
	StatsInterval        time.Duration `env:"STATS_INTERVAL,default=1m" validate:"min=0"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT,default=5s" validate:"min=0"`
}

// LoadConfig loads the .env files given (a missing file is not an error)
// then unmarshals and validates the environment.
func LoadConfig(files ...string) (Config, error) {
	for _, file := range files {
		// Variables already set in the environment win over the file.
		_ = godotenv.Load(file)
	}

	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	config.LogLevel = strings.ToUpper(config.LogLevel)
	if config.BadgerFilepath == "" {
		config.BadgerFilepath = database.DefaultPath
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
