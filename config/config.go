// Package config loads application settings from an optional config file, a
// .env file and DAVI_CARDS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/nedpals/davi-nfc-cards/buildinfo"
)

// EnvPrefix prefixes every environment variable. "server.port" is read from
// DAVI_CARDS_SERVER_PORT.
const EnvPrefix = "DAVI_CARDS"

// Config aggregates configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	NFC       NFCConfig       `mapstructure:"nfc"`
	Scan      ScanConfig      `mapstructure:"scan"`
	Store     StoreConfig     `mapstructure:"store"`
	Converter ConverterConfig `mapstructure:"converter"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	APISecret string `mapstructure:"api_secret"`
	MDNS      bool   `mapstructure:"mdns"`
}

type NFCConfig struct {
	// Device is a libnfc connection string. Empty selects the first device.
	Device       string        `mapstructure:"device"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type ScanConfig struct {
	// Timeout bounds the wait for a tag. Zero waits until the scan is closed.
	Timeout time.Duration `mapstructure:"timeout"`
}

type StoreConfig struct {
	// Path of the YAML card document. Empty keeps cards in memory.
	Path string `mapstructure:"path"`
}

type ConverterConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" or "json"
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 18090,
			MDNS: true,
		},
		NFC: NFCConfig{
			PollInterval: 100 * time.Millisecond,
		},
		Store: StoreConfig{
			Path: DefaultStorePath(),
		},
		Converter: ConverterConfig{
			CacheTTL: 10 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultStorePath is cards.yaml in the user config directory, or in the
// working directory when there is none.
func DefaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "cards.yaml"
	}
	return filepath.Join(dir, buildinfo.DirName, "cards.yaml")
}

// FlagKeys maps command line flag names to configuration keys.
var FlagKeys = map[string]string{
	"port":       "server.port",
	"api-secret": "server.api_secret",
	"mdns":       "server.mdns",
	"device":     "nfc.device",
	"store":      "store.path",
	"log-level":  "log.level",
}

// Load reads configuration. A .env file in the working directory is applied
// to the environment first. When file is empty, config.yaml is looked up in
// the working directory and the user config directory and may be absent; an
// explicitly named file must exist.
//
// Flags named in FlagKeys take precedence over everything else when set on
// the command line. flags may be nil.
func Load(file string, flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, buildinfo.DirName))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config %s: %w", v.ConfigFileUsed(), err)
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Scan.Timeout < 0 {
		return fmt.Errorf("scan.timeout must not be negative")
	}
	if c.NFC.PollInterval < 0 {
		return fmt.Errorf("nfc.poll_interval must not be negative")
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format %q must be text or json", c.Log.Format)
	}
	return nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(append([]string{}, parts...), tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
