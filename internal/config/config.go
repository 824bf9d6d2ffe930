// Package config merges command-line flags, PROMPTBOOK_* environment
// variables and an optional promptbook.yaml into one Config.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/csheth/promptbook/internal/logging"
)

const (
	envPrefix  = "PROMPTBOOK"
	configName = "promptbook"
)

// Keys shared by flags, environment and config file.
const (
	KeyConfig      = "config"
	KeyDataDir     = "data-dir"
	KeyProvider    = "provider"
	KeyModel       = "model"
	KeyEndpoint    = "endpoint"
	KeyAPIKey      = "api-key"
	KeyPullMissing = "pull-missing"
	KeyLogFile     = "log-file"
	KeyLogLevel    = "log-level"
	KeyNoAltScreen = "no-alt-screen"
	KeyWatch       = "watch"
)

// Config is the resolved application configuration.
type Config struct {
	DataDir     string
	Provider    string
	Model       string
	Endpoint    string
	APIKey      string
	PullMissing bool
	LogFile     string
	LogLevel    string
	NoAltScreen bool
	Watch       bool

	// File is the config file that was read, if any.
	File string
}

// AddFlags registers the persistent flags on the root command.
func AddFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String(KeyConfig, "", "config file (default: promptbook.yaml in ., $HOME/.promptbook or the user config dir)")
	flags.String(KeyDataDir, "./data", "directory holding conversation documents")
	flags.String(KeyProvider, "ollama", "generation backend: ollama or openai")
	flags.String(KeyModel, "", "default model for documents that do not name one")
	flags.String(KeyEndpoint, "", "backend base URL")
	flags.String(KeyAPIKey, "", "API key for the openai provider")
	flags.Bool(KeyPullMissing, true, "pull or verify the model before generating")
	flags.String(KeyLogFile, logging.DefaultFile(), "log file path, empty to disable")
	flags.String(KeyLogLevel, "info", "log level: debug, info, warn or error")
	flags.Bool(KeyNoAltScreen, false, "render inline instead of the alternate screen")
	flags.Bool(KeyWatch, true, "reload the library when documents change on disk")
}

// Load resolves configuration for cmd. Flags win over environment, which
// wins over the config file.
func Load(cmd *cobra.Command) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return Config{}, errors.Wrap(err, "bind flags")
	}

	if path := v.GetString(KeyConfig); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.promptbook")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "promptbook"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, errors.Wrap(err, "read config")
		}
	}

	cfg := Config{
		DataDir:     v.GetString(KeyDataDir),
		Provider:    strings.ToLower(strings.TrimSpace(v.GetString(KeyProvider))),
		Model:       strings.TrimSpace(v.GetString(KeyModel)),
		Endpoint:    strings.TrimSpace(v.GetString(KeyEndpoint)),
		APIKey:      v.GetString(KeyAPIKey),
		PullMissing: v.GetBool(KeyPullMissing),
		LogFile:     v.GetString(KeyLogFile),
		LogLevel:    v.GetString(KeyLogLevel),
		NoAltScreen: v.GetBool(KeyNoAltScreen),
		Watch:       v.GetBool(KeyWatch),
		File:        v.ConfigFileUsed(),
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings that cannot work.
func (c Config) Validate() error {
	switch c.Provider {
	case "", "ollama", "openai":
	default:
		return errors.Errorf("unknown provider %q", c.Provider)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}
