package config

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/hanifauzan/greenmart/internal/log"
)

type Application struct {
	Name    string `mapstructure:"name"     json:"name"`
	Env     string `mapstructure:"env"      json:"env"`
	LogFile string `mapstructure:"log_file" json:"log_file"`
}

type Api struct {
	BaseUrl        string `mapstructure:"base_url"        json:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" json:"timeout_seconds"`
}

// Guest configures where the anonymous cart lives. Backend is either "file"
// (single browser-profile style document) or "redis" (shared kiosk sessions).
type Guest struct {
	Backend   string `mapstructure:"backend"    json:"backend"`
	Path      string `mapstructure:"path"       json:"path"`
	SessionId string `mapstructure:"session_id" json:"session_id"`
}

type Cache struct {
	Host     string `mapstructure:"host"     json:"host"`
	Password string `mapstructure:"password" json:"password"`
	Database int    `mapstructure:"database" json:"database"`
	Port     uint16 `mapstructure:"port"     json:"port"`
}

type Session struct {
	TokenPath string `mapstructure:"token_path" json:"token_path"`
	SecretKey string `mapstructure:"secret_key" json:"secret_key"`
	Issuer    string `mapstructure:"issuer"     json:"issuer"`
	Audience  string `mapstructure:"audience"   json:"audience"`
}

// Delivery holds the charge tariff: a flat charge per distinct line item plus
// a per-region surcharge once a region is chosen.
type Delivery struct {
	BaseCharge       int64            `mapstructure:"base_charge"       json:"base_charge"`
	DefaultSurcharge int64            `mapstructure:"default_surcharge" json:"default_surcharge"`
	Surcharges       map[string]int64 `mapstructure:"surcharges"        json:"surcharges"`
}

type Otel struct {
	Endpoint string `mapstructure:"endpoint" json:"endpoint"`
}

type Config struct {
	Application `mapstructure:"application" json:"application"`
	Api         `mapstructure:"api"         json:"api"`
	Guest       `mapstructure:"guest"       json:"guest"`
	Cache       `mapstructure:"cache"       json:"cache"`
	Session     `mapstructure:"session"     json:"session"`
	Delivery    `mapstructure:"delivery"    json:"delivery"`
	Otel        `mapstructure:"otel"        json:"otel"`
}

var (
	once   sync.Once
	config *Config
)

func Get(c context.Context, filename string) *Config {
	once.Do(func() {
		logger := zerolog.Ctx(c).
			With().
			Str(log.KeyTag, "config Get").
			Str("filename", filename).
			Logger()

		viper.SetConfigName(filename)
		viper.AddConfigPath("./env")
		viper.AddConfigPath("$HOME/.config/greenmart")
		viper.SetConfigType("yaml")
		viper.SetEnvPrefix("greenmart")
		viper.AutomaticEnv()

		viper.SetDefault("application.name", "greenmart")
		viper.SetDefault("application.env", "production")
		viper.SetDefault("application.log_file", "greenmart.log")
		viper.SetDefault("api.base_url", "https://api.greenmart.store")
		viper.SetDefault("api.timeout_seconds", 15)
		viper.SetDefault("guest.backend", "file")
		viper.SetDefault("guest.path", "guest-cart.json")
		viper.SetDefault("guest.session_id", "guest")
		viper.SetDefault("cache.host", "localhost")
		viper.SetDefault("cache.port", 6379)
		viper.SetDefault("session.token_path", "session-token")
		viper.SetDefault("delivery.base_charge", 100)
		viper.SetDefault("delivery.default_surcharge", 300)
		viper.SetDefault("delivery.surcharges", map[string]int64{
			"dhaka":      100,
			"chattogram": 200,
		})

		logger = logger.With().Str(log.KeyProcess, "reading config").Logger()
		logger.Info().Msg("reading config")
		err := viper.ReadInConfig()
		if err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				err = fmt.Errorf("failed reading config with error=%w", err)
				logger.Fatal().Err(err).Msg(err.Error())
			}
			logger.Info().Msg("config file not found, using defaults")
		}
		logger.Info().Msg("read config")

		logger = logger.With().Str(log.KeyProcess, "unmarshaling config").Logger()
		logger.Info().Msg("unmarshaling config")
		cfg := Config{}
		err = viper.Unmarshal(&cfg)
		if err != nil {
			err = fmt.Errorf("failed unmarshaling config with error=%w", err)
			logger.Fatal().Err(err).Msg(err.Error())
		}
		logger = logger.With().Any(log.KeyConfig, cfg).Logger()
		logger.Info().Msg("unmarshaled config")

		config = &cfg
	})
	return config
}
