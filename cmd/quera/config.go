package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

const (
	configFileName = "quera"
	configFileType = "yaml"
	envPrefix      = "QUERA"

	cfgKeyBackend  = "backend"
	cfgKeyProject  = "project"
	cfgKeyLogLevel = "log_level"
	cfgKeyAddr     = "addr"

	backendMemory    = "memory"
	backendFirestore = "firestore"
)

// loadConfig reads quera.yaml into v. An explicit path must exist; the
// default search (working directory, then $HOME/.quera) tolerates a
// missing file. Environment variables QUERA_* override the file.
func loadConfig(v *viper.Viper, path string) error {
	v.SetDefault(cfgKeyBackend, backendMemory)
	v.SetDefault(cfgKeyLogLevel, "info")
	v.SetDefault(cfgKeyAddr, ":8080")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		return nil
	}

	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.quera")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// parseLevel maps a level name (debug, info, warn, error) to a slog level.
func parseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}
