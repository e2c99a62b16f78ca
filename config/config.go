/*
Package config is the viper instance shared by every component.
*/
package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
)

// Config wraps a viper instance. Components register their own defaults
// next to the code that reads them.
type Config struct {
	*viper.Viper
}

// New reads .env from the working directory and the process environment.
// A missing .env is not an error.
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("dotenv")
	v.AddConfigPath(".") // look for config in the working directory
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var typeErr viper.ConfigFileNotFoundError
		if !errors.As(err, &typeErr) {
			return nil, err
		}
	}

	return &Config{Viper: v}, nil
}

// StringOr returns the value of key or fallback when it is unset or blank.
func (c *Config) StringOr(key, fallback string) string {
	value := strings.TrimSpace(c.GetString(key))
	if value == "" {
		return fallback
	}

	return value
}
