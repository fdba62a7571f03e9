package config

import (
	"reflect"
	"strings"

	"github.com/feraraujofilho/prod-staging-sync-app-sub001/core/database"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/core/logger"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/core/remote"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/core/server"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/core/storage"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/core/vault"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/runner"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// It is divided into partial configurations for better modularity.
type Config struct {
	// Server holds configuration for the HTTP server.
	Server server.Config `mapstructure:"server"`
	// Log holds configuration for the logger.
	Log logger.Config `mapstructure:"log"`
	// Database holds configuration for the database connection.
	Database database.Config `mapstructure:"database"`
	// Target holds configuration for the target store Admin API client.
	Target remote.Config `mapstructure:"target"`
	// Vault holds configuration for credential encryption.
	Vault vault.Config `mapstructure:"vault"`
	// Sync holds tuning knobs for sync runs.
	Sync runner.Config `mapstructure:"sync"`
	// Archive holds configuration for run-report archival storage.
	Archive storage.Config `mapstructure:"archive"`
}

// LoadConfig loads configuration from environment variables and .env file.
func LoadConfig(path string) (*Config, error) {
	// 1. Load .env file if it exists
	// We construct the path to .env
	envPath := path + "/.env"
	if path == "." {
		envPath = ".env"
	}

	// Ignore error if file doesn't exist (e.g. production)
	_ = godotenv.Overload(envPath)

	v := viper.New()

	// Recursively parse struct tags to set default values
	bindValues(v, Config{}, "")

	// Map environment variables to nested keys (e.g. SERVER_PORT -> server.port)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// bindValues uses reflection to iterate over the struct and set default values in Viper
// based on the 'default' and 'mapstructure' tags.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)

	// If it's a pointer, get the element
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")

		// Skip if no tag
		if tag == "" {
			continue
		}

		// Build the key
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		// If it's a nested struct, recurse
		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		defaultValue := field.Tag.Get("default")
		// Always set default (even if empty) to register the key for AutomaticEnv
		v.SetDefault(key, defaultValue)
	}
}
