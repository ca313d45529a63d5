package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/rocketscienceinc/caro-backend/internal/protocol"
)

var (
	ErrInvalidNickname  = errors.New("nickname must be non-empty and must not contain '|' or line breaks")
	ErrInvalidFrameSize = errors.New("max frame size must be positive")
)

type Config struct {
	LogLevel  string    `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	HTTPPort  string    `yaml:"http-port" env:"HTTP_PORT" env-default:"9090"`
	TCP       TCP       `yaml:"tcp"`
	Nicknames Nicknames `yaml:"nicknames"`
	Redis     Redis     `yaml:"redis"`
}

type TCP struct {
	Host         string        `yaml:"host" env:"TCP_HOST" env-default:"127.0.0.1"`
	Port         string        `yaml:"port" env:"TCP_PORT" env-default:"8888"`
	ReadTimeout  time.Duration `yaml:"read-timeout" env:"TCP_READ_TIMEOUT" env-default:"0s"`
	WriteTimeout time.Duration `yaml:"write-timeout" env:"TCP_WRITE_TIMEOUT" env-default:"10s"`
	MaxFrameSize int           `yaml:"max-frame-size" env:"TCP_MAX_FRAME_SIZE" env-default:"4096"`
}

type Nicknames struct {
	SlotOne string `yaml:"slot-one" env:"NICKNAME_SLOT_ONE" env-default:"Player 1"`
	SlotTwo string `yaml:"slot-two" env:"NICKNAME_SLOT_TWO" env-default:"Player 2"`
}

type Redis struct {
	Enabled bool   `yaml:"enabled" env:"REDIS_ENABLED" env-default:"false"`
	Host    string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port    string `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
}

// MustLoad - load all configurations from the config.yml file, or from the environment when the file is absent.
func MustLoad(path string) *Config {
	config, err := Load(path)
	if err != nil {
		panic(fmt.Errorf("unable to load config: %w", err))
	}

	return config
}

func Load(path string) (*Config, error) {
	// a missing .env is the normal case outside local runs
	_ = godotenv.Load()

	config := &Config{}

	_, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		if err := cleanenv.ReadConfig(path, config); err != nil {
			return nil, fmt.Errorf("unable to read config file: %w", err)
		}
	case errors.Is(statErr, os.ErrNotExist):
		if err := cleanenv.ReadEnv(config); err != nil {
			return nil, fmt.Errorf("unable to read environment: %w", err)
		}
	default:
		return nil, fmt.Errorf("unable to stat config file: %w", statErr)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the values that end up on the wire.
func (that *Config) Validate() error {
	for _, nickname := range []string{that.Nicknames.SlotOne, that.Nicknames.SlotTwo} {
		if !protocol.ValidNickname(nickname) {
			return fmt.Errorf("%w: %q", ErrInvalidNickname, nickname)
		}
	}

	if that.TCP.MaxFrameSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidFrameSize, that.TCP.MaxFrameSize)
	}

	return nil
}

func (that *TCP) GetAddr() string {
	return net.JoinHostPort(that.Host, that.Port)
}

func (that *Redis) GetRedisAddr() string {
	return net.JoinHostPort(that.Host, that.Port)
}
