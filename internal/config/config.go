package config

import (
	"errors"
	"flag"
	"fmt"
	"github.com/ilyakaznacheev/cleanenv"
	"log/slog"
	"os"
	"sync"
	"time"
)

const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

type Config struct {
	Env          string        `yaml:"env" env:"APP_ENV" env-default:"local"`
	ListenConfig ListenConfig  `yaml:"listen"`
	Backend      BackendConfig `yaml:"backend"`
	Storage      StorageConfig `yaml:"storage"`
	Redis        StorageRedis  `yaml:"redis"`
	SSO          SSOConfig     `yaml:"sso"`
	Routes       RoutesConfig  `yaml:"routes"`
}

type ListenConfig struct {
	Port   int    `yaml:"port" env:"LISTEN_PORT" env-default:"8787"`
	BindIP string `yaml:"bind_ip" env:"LISTEN_BIND_IP" env-default:"127.0.0.1"`
}

type BackendConfig struct {
	BaseURL           string        `yaml:"base_url" env:"BACKEND_BASE_URL" env-default:"http://localhost:5000/api"`
	Timeout           time.Duration `yaml:"timeout" env:"BACKEND_TIMEOUT" env-default:"15s"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"BACKEND_RPS" env-default:"10"`
	Burst             int           `yaml:"burst" env:"BACKEND_BURST" env-default:"20"`
}

type StorageConfig struct {
	Driver    string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"sqlite"`
	Path      string `yaml:"path" env:"STORAGE_PATH" env-default:"campusgate.db"`
	Namespace string `yaml:"namespace" env:"STORAGE_NAMESPACE"`
}

type StorageRedis struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Username string `yaml:"username" env:"REDIS_USERNAME"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type SSOConfig struct {
	Enabled bool          `yaml:"enabled" env:"SSO_ENABLED" env-default:"false"`
	Addr    string        `yaml:"addr" env:"SSO_ADDR"`
	Timeout time.Duration `yaml:"timeout" env:"SSO_TIMEOUT" env-default:"5s"`
}

// RoutesConfig overrides the navigation targets. Dashboards is keyed by role.
type RoutesConfig struct {
	Entry      string            `yaml:"entry" env-default:"/"`
	Login      string            `yaml:"login" env-default:"/login"`
	Dashboards map[string]string `yaml:"dashboards"`
}

const (
	flagConfigPath = "config"
	envConfigPath  = "CONFIG_PATH"
)

var instance *Config
var once sync.Once

func GetConfig() *Config {
	once.Do(func() {
		var configPath string
		flag.StringVar(&configPath, flagConfigPath, "", "config file path")
		flag.Parse()

		if path, ok := os.LookupEnv(envConfigPath); ok {
			configPath = path
		}

		cfg, err := Load(configPath)
		if err != nil {
			if desc, errDesc := cleanenv.GetDescription(&Config{}, nil); errDesc == nil {
				slog.Info(desc)
			}
			slog.Error("failed to load config",
				slog.String("error", err.Error()),
				slog.String("path", configPath))
			os.Exit(1)
		}
		instance = cfg
	})
	return instance
}

// Load reads the yaml file at path (skipped when empty), then the
// environment, then validates. Environment values win over the file.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateConfig(cfg *Config) error {
	switch cfg.Storage.Driver {
	case DriverSQLite:
		if cfg.Storage.Path == "" {
			return errors.New("storage.path is required for the sqlite driver")
		}
	case DriverRedis, DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	if cfg.Backend.BaseURL == "" {
		return errors.New("backend.base_url is required")
	}
	if cfg.SSO.Enabled && cfg.SSO.Addr == "" {
		return errors.New("sso.addr is required when sso is enabled")
	}
	if cfg.ListenConfig.Port < 0 || cfg.ListenConfig.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range", cfg.ListenConfig.Port)
	}
	return nil
}
