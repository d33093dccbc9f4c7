package configs

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

//go:embed config.example.yaml
var embeddedYAML []byte

// Load layers a config file over the embedded config.example.yaml in v and decodes the result.
// An explicit configFile must exist. Otherwise config.yaml is looked up in searchPaths and may
// be absent. The path of the merged file is returned, empty when none was found.
func Load(v *viper.Viper, configFile string, searchPaths ...string) (Config, string, error) {
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(embeddedYAML)); err != nil {
		return Config{}, "", fmt.Errorf("failed to read embedded config.example.yaml: %w", err)
	}

	var used string
	switch {
	case configFile != "":
		v.SetConfigFile(configFile)
		if err := v.MergeInConfig(); err != nil {
			return Config{}, "", fmt.Errorf("failed to read config file '%s': %w", configFile, err)
		}
		used = configFile
	case len(searchPaths) > 0:
		v.SetConfigName("config")
		for _, path := range searchPaths {
			v.AddConfigPath(path)
		}
		err := v.MergeInConfig()
		var notFound viper.ConfigFileNotFoundError
		switch {
		case err == nil:
			used = v.ConfigFileUsed()
		case !errors.As(err, &notFound):
			return Config{}, "", fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, "", fmt.Errorf("unable to decode application config: %w", err)
	}

	return cfg, used, nil
}

// DefaultConfig returns the configuration described by the embedded config.example.yaml alone.
func DefaultConfig() (Config, error) {
	cfg, _, err := Load(viper.New(), "")
	return cfg, err
}
