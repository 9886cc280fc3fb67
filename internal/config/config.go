// Package config loads mbutil settings from defaults, an optional TOML file,
// MBUTIL_* environment variables and command line flags.
package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
	"github.com/zeebo/errs"

	"mbutil/internal/mbtiles"
	"mbutil/internal/tileset"
	"mbutil/internal/utfgrid"
)

// Error invalid or unreadable configuration
var Error = errs.Class("config")

// Conf mbutil settings
type Conf struct {
	Scheme          string `mapstructure:"scheme"`
	ImageFormat     string `mapstructure:"image_format"`
	GridCallback    string `mapstructure:"grid_callback"`
	Verbose         bool   `mapstructure:"verbose"`
	Progress        bool   `mapstructure:"progress"`
	LogLevel        string `mapstructure:"log_level"`
	LogDir          string `mapstructure:"log_dir"`
	Name            string `mapstructure:"name"`
	Description     string `mapstructure:"description"`
	BatchSize       int    `mapstructure:"batch_size"`
	StrictFormat    bool   `mapstructure:"strict_format"`
	RequireGridData bool   `mapstructure:"require_grid_data"`
	JSON            bool   `mapstructure:"json"`
}

// New returns a viper instance holding the defaults.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("scheme", "xyz")
	v.SetDefault("image_format", "png")
	v.SetDefault("grid_callback", "grid")
	v.SetDefault("verbose", false)
	v.SetDefault("progress", false)
	v.SetDefault("log_level", "")
	v.SetDefault("log_dir", "")
	v.SetDefault("name", "")
	v.SetDefault("description", "")
	v.SetDefault("batch_size", mbtiles.DefaultBatchSize)
	v.SetDefault("strict_format", false)
	v.SetDefault("require_grid_data", false)
	v.SetDefault("json", false)

	v.SetEnvPrefix("mbutil")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads cfgFile, when set, into v and decodes the result.
func Load(v *viper.Viper, cfgFile string) (*Conf, error) {
	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); err != nil {
			return nil, Error.New("config file %s: %v", cfgFile, err)
		}
		v.SetConfigType("toml")
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, Error.New("read config file %s: %v", v.ConfigFileUsed(), err)
		}
	}

	var conf Conf
	if err := v.Unmarshal(&conf); err != nil {
		return nil, Error.Wrap(err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

// Validate rejects unsupported scheme/format values and unusable settings.
func (c *Conf) Validate() error {
	if _, err := tileset.ParseScheme(c.Scheme); err != nil {
		return Error.Wrap(err)
	}
	if _, err := tileset.ParseFormat(c.ImageFormat); err != nil {
		return Error.Wrap(err)
	}
	if !utfgrid.ValidCallback(c.GridCallback) {
		return Error.New("invalid grid callback %q", c.GridCallback)
	}
	if c.BatchSize <= 0 {
		return Error.New("batch size must be positive, got %d", c.BatchSize)
	}
	return nil
}
