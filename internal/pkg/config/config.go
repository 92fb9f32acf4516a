package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/database"
)

//Config holds the settings of the pavement service
type Config struct {
	ServiceName      string `mapstructure:"service_name"`
	APIPort          string `mapstructure:"api_port"`
	DBDriver         string `mapstructure:"db_driver"`
	DBHost           string `mapstructure:"db_host"`
	DBUser           string `mapstructure:"db_user"`
	DBPassword       string `mapstructure:"db_password"`
	DBName           string `mapstructure:"db_name"`
	DBSSLMode        string `mapstructure:"db_sslmode"`
	SQLitePath       string `mapstructure:"sqlite_path"`
	MessagingEnabled bool   `mapstructure:"messaging_enabled"`
}

var defaults = map[string]interface{}{
	"service_name":      "api-pavement",
	"api_port":          "8484",
	"db_driver":         "sqlite",
	"db_host":           "",
	"db_user":           "",
	"db_password":       "",
	"db_name":           "",
	"db_sslmode":        "disable",
	"sqlite_path":       "file::memory:?cache=shared",
	"messaging_enabled": false,
}

//Load reads the optional .env file and resolves every setting from PAVEMENT_ prefixed
//environment variables, falling back to defaults
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}

	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load %s: %s", envFile, err.Error())
		}
		log.Infof("Loaded environment from %s", envFile)
	}

	v := viper.New()
	v.SetEnvPrefix("PAVEMENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %s", err.Error())
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

//Validate checks that the selected database driver has what it needs
func (cfg *Config) Validate() error {
	switch cfg.DBDriver {
	case "sqlite":
		return nil
	case "postgres":
		if cfg.DBHost == "" || cfg.DBUser == "" || cfg.DBName == "" {
			return fmt.Errorf("postgres requires PAVEMENT_DB_HOST, PAVEMENT_DB_USER and PAVEMENT_DB_NAME")
		}
		return nil
	default:
		return fmt.Errorf("unsupported database driver \"%s\"", cfg.DBDriver)
	}
}

//Connector returns the database connector selected by the configuration
func (cfg *Config) Connector() database.ConnectorFunc {
	if cfg.DBDriver == "postgres" {
		return database.NewPostgreSQLConnector(database.PostgresSettings{
			Host:     cfg.DBHost,
			User:     cfg.DBUser,
			Password: cfg.DBPassword,
			Name:     cfg.DBName,
			SSLMode:  cfg.DBSSLMode,
		})
	}

	return database.NewSQLiteConnector(cfg.SQLitePath)
}

//InMemory reports whether the configuration points at a throwaway in-memory sqlite database
func (cfg *Config) InMemory() bool {
	if cfg.DBDriver != "sqlite" {
		return false
	}

	return cfg.SQLitePath == "" || strings.Contains(cfg.SQLitePath, ":memory:") || strings.Contains(cfg.SQLitePath, "mode=memory")
}
