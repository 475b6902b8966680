package conf

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/clinichub/clinichub/internal/analytics"
	"github.com/clinichub/clinichub/internal/log"
	"github.com/clinichub/clinichub/internal/pkg/xredis"
	"github.com/clinichub/clinichub/internal/server"
	"github.com/clinichub/clinichub/internal/server/db"
)

// Config is the full application configuration tree, loaded once at startup
// from clinichub.yml plus CLINICHUB_-prefixed environment variables.
type Config struct {
	APIServer server.Config    `conf:"server" yaml:"server" json:"server"`
	Log       log.Config       `conf:"log" yaml:"log" json:"log"`
	DB        db.Config        `conf:"db" yaml:"db" json:"db"`
	Redis     xredis.Config    `conf:"redis" yaml:"redis" json:"redis"`
	Analytics analytics.Config `conf:"analytics" yaml:"analytics" json:"analytics"`
}

// Load reads the configuration. A missing config file is not an error; every
// value then comes from the environment or defaults.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName("clinichub")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.clinichub")
	v.AddConfigPath("/etc/clinichub")

	if path := os.Getenv("CLINICHUB_CONFIG"); path != "" {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("CLINICHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config

	err := v.Unmarshal(&config, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "conf"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	})
	if err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	return config, nil
}

// Module provides the loaded Config plus each subsystem's slice of it.
var Module = fx.Module("conf",
	fx.Provide(Load),
	fx.Provide(func(c Config) server.Config { return c.APIServer }),
	fx.Provide(func(c Config) log.Config { return c.Log }),
	fx.Provide(func(c Config) db.Config { return c.DB }),
	fx.Provide(func(c Config) xredis.Config { return c.Redis }),
	fx.Provide(func(c Config) analytics.Config { return c.Analytics }),
)
