package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	HttpServerPort  uint16 `env:"HTTP_SERVER_PORT"  envDefault:"5000" validate:"min=1000,max=65535"`
	WsAllowedOrigin string `env:"WS_ALLOWED_ORIGIN" envDefault:"*"`

	SendQueueDepth    int           `env:"RELAY_SEND_QUEUE_DEPTH"    envDefault:"64"  validate:"min=1,max=4096"`
	ValidateLocations bool          `env:"RELAY_VALIDATE_LOCATIONS"  envDefault:"false"`
	RoomSweepInterval time.Duration `env:"RELAY_ROOM_SWEEP_INTERVAL" envDefault:"30s" validate:"min=1s"`

	RedisMirrorEnabled bool          `env:"REDIS_MIRROR_ENABLED" envDefault:"false"`
	RedisHost          string        `env:"REDIS_HOST"           envDefault:"localhost"`
	RedisPort          uint16        `env:"REDIS_PORT"           envDefault:"6379" validate:"min=1000,max=65535"`
	RedisPassword      string        `env:"REDIS_PASSWORD"`
	RedisDB            int           `env:"REDIS_DB"             envDefault:"0"    validate:"min=0"`
	RedisMirrorTTL     time.Duration `env:"REDIS_MIRROR_TTL"     envDefault:"2m"   validate:"min=1s"`

	RoomLogEnabled   bool   `env:"ROOMLOG_ENABLED"   envDefault:"false"`
	PostgresHost     string `env:"POSTGRES_HOST"     envDefault:"localhost"`
	PostgresPort     string `env:"POSTGRES_PORT"     envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER"     envDefault:"relay_user"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"relay_password"`
	PostgresDb       string `env:"POSTGRES_DB"       envDefault:"relay_db"`
}

// LoadConfig reads envFile (if present) into the environment, then parses
// and validates the configuration.
func LoadConfig(envFile string) (*Config, error) {
	if envFile != "" {
		err := godotenv.Load(envFile)
		if err != nil {
			zap.L().Debug(".env file not found", zap.String("file", envFile), zap.Error(err))
		}
	}

	cfg := &Config{}
	// Parse config from environment variables
	if err := env.Parse(cfg); err != nil {
		zap.L().Error("config_load_failed", zap.Error(err))
		return nil, err
	}

	// Validate the config
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		zap.L().Error("config_validation_failed", zap.Error(err))
		return nil, err
	}
	return cfg, nil
}
