package main

import (
	"strings"
	"time"

	"github.com/imdario/mergo"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	hydrate "github.com/hanpama/compdata/internal/hydrate"
	tree "github.com/hanpama/compdata/internal/tree"
)

const envPrefix = "COMPDATA"

// config is the merged result of defaults, config file, environment and flags.
type config struct {
	Method    string        `mapstructure:"method"`
	Freshness time.Duration `mapstructure:"freshness"`
	Log       logConfig     `mapstructure:"log"`
	OTel      otelConfig    `mapstructure:"otel"`
	Server    serverConfig  `mapstructure:"server"`
}

type logConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type otelConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Service  string `mapstructure:"service"`
}

type serverConfig struct {
	Addr            string        `mapstructure:"addr"`
	Timeout         time.Duration `mapstructure:"timeout"`
	Pretty          bool          `mapstructure:"pretty"`
	Title           string        `mapstructure:"title"`
	CORS            []string      `mapstructure:"cors"`
	MetadataHeaders []string      `mapstructure:"metadata_headers"`
}

var defaultConfig = config{
	Method:    tree.DefaultMethod,
	Freshness: hydrate.DefaultFreshness,
	Log:       logConfig{Level: "info", Format: "text"},
	OTel:      otelConfig{Service: "compdata"},
	Server:    serverConfig{Addr: ":8080", Timeout: 10 * time.Second},
}

// configKeys are bound to flags of the same name when the running command
// defines one, and to COMPDATA_* environment variables.
var configKeys = []string{
	"method",
	"freshness",
	"log.level",
	"log.format",
	"otel.endpoint",
	"otel.service",
	"server.addr",
	"server.timeout",
	"server.pretty",
	"server.title",
	"server.cors",
	"server.metadata_headers",
}

// loadConfig reads file (optional) and the environment, applies flags, and
// fills whatever is still unset from defaultConfig.
func loadConfig(file string, flags *pflag.FlagSet) (config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return config{}, errors.Wrapf(err, "read config %s", file)
		}
	} else {
		v.SetConfigName("compdata")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return config{}, errors.Wrap(err, "read config")
			}
		}
	}

	for _, key := range configKeys {
		if err := v.BindEnv(key); err != nil {
			return config{}, errors.Wrapf(err, "bind env %s", key)
		}
		if flags == nil {
			continue
		}
		if f := flags.Lookup(key); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return config{}, errors.Wrapf(err, "bind flag %s", key)
			}
		}
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return config{}, errors.Wrap(err, "decode config")
	}
	if err := mergo.Merge(&cfg, defaultConfig); err != nil {
		return config{}, errors.Wrap(err, "apply config defaults")
	}
	return cfg, nil
}
