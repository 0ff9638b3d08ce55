// Package config loads settings from an optional YAML file, STATEMENT_*
// environment variables (a .env file is honoured) and command-line flags,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/insightdelivered/statement-ledger/internal/reconcile"
	"github.com/insightdelivered/statement-ledger/internal/writer"
)

// EnvPrefix prefixes every environment override, e.g. STATEMENT_SERVER_ADDR.
const EnvPrefix = "STATEMENT"

// Config holds application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Convert ConvertConfig `mapstructure:"convert"`
	Extract ExtractConfig `mapstructure:"extract"`
	Rules   RulesConfig   `mapstructure:"rules"`
	Log     LogConfig     `mapstructure:"log"`
}

type ServerConfig struct {
	Addr        string `mapstructure:"addr"`
	BodyLimitMB int    `mapstructure:"body_limit_mb"`
	StaticDir   string `mapstructure:"static_dir"`
}

type ConvertConfig struct {
	Derive               string `mapstructure:"derive"` // auto, always or never
	Validate             bool   `mapstructure:"validate"`
	Columns              string `mapstructure:"columns"`
	Format               string `mapstructure:"format"`
	OpeningFromStatement bool   `mapstructure:"opening_from_statement"`
	InheritDates         bool   `mapstructure:"inherit_dates"`
	Workers              int    `mapstructure:"workers"`
}

type ExtractConfig struct {
	Pdftotext bool `mapstructure:"pdftotext"`
	OCR       bool `mapstructure:"ocr"`
}

type RulesConfig struct {
	File     string   `mapstructure:"file"`
	Extend   bool     `mapstructure:"extend"` // add file rules to the defaults instead of replacing them
	Denylist []string `mapstructure:"denylist"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text, logfmt or json
}

// flagKeys maps config keys to the command-line flags that override them.
var flagKeys = map[string]string{
	"server.addr":           "addr",
	"server.static_dir":     "static",
	"convert.derive":        "derive",
	"convert.validate":      "validate",
	"convert.columns":       "columns",
	"convert.format":        "format",
	"convert.inherit_dates": "inherit-dates",
	"extract.ocr":           "ocr",
	"rules.file":            "rules",
	"log.level":             "log-level",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.body_limit_mb", 32)
	v.SetDefault("server.static_dir", "")
	v.SetDefault("convert.derive", string(reconcile.DeriveAuto))
	v.SetDefault("convert.validate", true)
	v.SetDefault("convert.columns", "canonical")
	v.SetDefault("convert.format", "csv")
	v.SetDefault("convert.opening_from_statement", true)
	v.SetDefault("convert.inherit_dates", false)
	v.SetDefault("convert.workers", 0)
	v.SetDefault("extract.pdftotext", true)
	v.SetDefault("extract.ocr", false)
	v.SetDefault("rules.file", "")
	v.SetDefault("rules.extend", true)
	v.SetDefault("rules.denylist", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration. path names a config file explicitly; when empty,
// statement-ledger.yaml is looked up in the working directory and in
// $HOME/.config/statement-ledger, and its absence is not an error. flags
// may be nil.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	// .env is optional; real environment variables win over it
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("statement-ledger")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "statement-ledger"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for key, name := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the enumerated settings.
func (c Config) Validate() error {
	if _, err := reconcile.ParseDeriveMode(c.Convert.Derive); err != nil {
		return fmt.Errorf("convert.derive: %w", err)
	}
	if _, err := writer.ParseColumns(c.Convert.Columns); err != nil {
		return fmt.Errorf("convert.columns: %w", err)
	}
	if c.Convert.Format != "json" {
		if _, err := writer.ForFormat(c.Convert.Format); err != nil {
			return fmt.Errorf("convert.format: %w", err)
		}
	}
	if c.Server.BodyLimitMB <= 0 {
		return fmt.Errorf("server.body_limit_mb must be positive, got %d", c.Server.BodyLimitMB)
	}
	return nil
}
