package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	Secret     string        `mapstructure:"secret"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`

	// Voice engine settings.
	WorkerCount int    `mapstructure:"worker_count"`
	RtcMinPort  uint16 `mapstructure:"rtc_min_port"`
	RtcMaxPort  uint16 `mapstructure:"rtc_max_port"`
	ListenIP    string `mapstructure:"listen_ip"`
	AnnouncedIP string `mapstructure:"announced_ip"`
	WorkerBin   string `mapstructure:"worker_bin"`

	// Join flood protection.
	JoinLimit  int           `mapstructure:"join_limit"`
	JoinWindow time.Duration `mapstructure:"join_window"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()

	// Every key needs a default so AutomaticEnv can resolve it during
	// Unmarshal.
	v.SetDefault("mode", "release")
	v.SetDefault("secret", "")
	v.SetDefault("announced_ip", "")
	v.SetDefault("worker_bin", "")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("worker_count", 1)
	v.SetDefault("rtc_min_port", 10000)
	v.SetDefault("rtc_max_port", 10100)
	v.SetDefault("listen_ip", "0.0.0.0")
	v.SetDefault("join_limit", 10)
	v.SetDefault("join_window", "10s")

	if err := v.ReadInConfig(); err != nil {
		// Still a valid run when SECRET and friends come from the
		// environment; validate() decides.
		log.Warn().Str("module", "config").Str("file", fileName).
			Msg("config file not found, relying on defaults and environment")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.WorkerCount < 1 {
		return errors.New("worker_count must be at least 1")
	}
	if c.RtcMinPort >= c.RtcMaxPort {
		return errors.New("rtc_min_port must be below rtc_max_port")
	}
	if c.Secret == "" {
		return errors.New("secret must be set")
	}
	return nil
}
