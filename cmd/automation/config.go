package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/spf13/viper"
)

const (
	configName = "automation"
	envPrefix  = "AUTOMATION"
)

// loadConfig reads optional defaults for the CLI flags. An explicit file must
// exist; otherwise automation.yaml is searched for in the working directory
// and the user config directory. AUTOMATION_* environment variables override
// the file.
func loadConfig(file string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, configName))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, err
		}
	}
	return v, nil
}

// configResolver feeds viper values to flags missing from the command line.
// "mqtt-broker" is looked up as mqtt.broker, then mqtt_broker.
func configResolver(v *viper.Viper) kong.Resolver {
	return kong.ResolverFunc(func(_ *kong.Context, _ *kong.Path, flag *kong.Flag) (any, error) {
		if v == nil || flag.Name == "help" {
			return nil, nil
		}
		for _, key := range configKeys(flag.Name) {
			if v.IsSet(key) {
				return v.Get(key), nil
			}
		}
		return nil, nil
	})
}

func configKeys(name string) []string {
	flat := strings.ReplaceAll(name, "-", "_")
	group, rest, ok := strings.Cut(name, "-")
	if !ok {
		return []string{flat}
	}
	return []string{group + "." + strings.ReplaceAll(rest, "-", "_"), flat}
}
