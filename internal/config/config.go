package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type VenueConfig struct {
	DefaultCapacity int           `mapstructure:"default_capacity"`
	ChatBuffer      int           `mapstructure:"chat_buffer"`
	ChatRateLimit   int           `mapstructure:"chat_rate_limit"`
	ChatRateWindow  time.Duration `mapstructure:"chat_rate_window"`
}

type PeerConfig struct {
	NegotiationTimeout time.Duration `mapstructure:"negotiation_timeout"`
	StunURL            string        `mapstructure:"stun_url"`
}

type TurnConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Realm    string `mapstructure:"realm"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	PublicIP string `mapstructure:"public_ip"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	Venue      VenueConfig   `mapstructure:"venue"`
	Peer       PeerConfig    `mapstructure:"peer"`
	Turn       TurnConfig    `mapstructure:"turn"`
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

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("venue.default_capacity", 32)
	v.SetDefault("venue.chat_buffer", 64)
	v.SetDefault("venue.chat_rate_limit", 10)
	v.SetDefault("venue.chat_rate_window", "10s")
	v.SetDefault("peer.negotiation_timeout", "30s")
	v.SetDefault("peer.stun_url", "stun:stun.l.google.com:19302")
	v.SetDefault("turn.enabled", false)
	v.SetDefault("turn.address", "0.0.0.0:3478")
	v.SetDefault("turn.realm", "atrium")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
