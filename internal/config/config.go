// Package config собирает настройки Refinery из флагов, окружения
// и файла конфигурации.
//
// Приоритет: флаги > переменные REFINE_* > config.yaml > значения по
// умолчанию. Файл по умолчанию — $XDG_CONFIG_HOME/refinery/config.yaml
// (~/.config/refinery/config.yaml); его отсутствие не ошибка.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/shaiso/Refinery/internal/refine"
)

// Ключи конфигурации.
const (
	KeyHost        = "host"
	KeyPort        = "port"
	KeyServer      = "server"
	KeyTimeout     = "timeout"
	KeyLogLevel    = "log_level"
	KeyLogFormat   = "log_format"
	KeyMetricsFile = "metrics_file"
	KeyPostgresDSN = "postgres_dsn"
	KeyAMQPURL     = "amqp_url"
)

// EnvPrefix — префикс переменных окружения: REFINE_HOST, REFINE_LOG_LEVEL...
const EnvPrefix = "REFINE"

const (
	appDirName     = "refinery"
	configFileName = "config"
	configFileType = "yaml"
	defaultTimeout = 30 * time.Second
)

// Config — итоговые настройки.
type Config struct {
	Host        string        `mapstructure:"host"`
	Port        string        `mapstructure:"port"`
	Server      string        `mapstructure:"server"`
	Timeout     time.Duration `mapstructure:"timeout"`
	LogLevel    string        `mapstructure:"log_level"`
	LogFormat   string        `mapstructure:"log_format"`
	MetricsFile string        `mapstructure:"metrics_file"`
	PostgresDSN string        `mapstructure:"postgres_dsn"`
	AMQPURL     string        `mapstructure:"amqp_url"`

	// File — прочитанный файл конфигурации; пусто, если файла нет.
	File string `mapstructure:"-"`
}

// ServerURL возвращает адрес OpenRefine: server, если задан, иначе
// http://host:port.
func (c *Config) ServerURL() string {
	if c.Server != "" {
		return strings.TrimRight(c.Server, "/")
	}
	return refine.ServerURL(c.Host, c.Port)
}

// platformDir подменяется в тестах.
var platformDir = struct {
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
}{
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
}

// DefaultDir возвращает каталог конфигурации.
//
// Linux:   $XDG_CONFIG_HOME/refinery (иначе ~/.config/refinery)
// macOS:   ~/Library/Application Support/refinery
// Windows: %APPDATA%/refinery
func DefaultDir() (string, error) {
	if runtime.GOOS == "linux" {
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, appDirName), nil
		}
		home, err := platformDir.homeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", appDirName), nil
	}

	dir, err := platformDir.userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appDirName), nil
}

// New создаёт viper с умолчаниями и привязкой к окружению.
func New() *viper.Viper {
	v := viper.New()

	host, port := refine.DefaultHostPort()
	v.SetDefault(KeyHost, host)
	v.SetDefault(KeyPort, port)
	v.SetDefault(KeyServer, "")
	v.SetDefault(KeyTimeout, defaultTimeout)
	v.SetDefault(KeyLogLevel, "WARN")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyMetricsFile, "")
	v.SetDefault(KeyPostgresDSN, "")
	v.SetDefault(KeyAMQPURL, "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// LOG_LEVEL и LOG_FORMAT без префикса тоже понимаются.
	v.BindEnv(KeyLogLevel, EnvPrefix+"_LOG_LEVEL", "LOG_LEVEL")
	v.BindEnv(KeyLogFormat, EnvPrefix+"_LOG_FORMAT", "LOG_FORMAT")

	return v
}

// BindFlags привязывает флаги к ключам: flags[key] — имя флага.
// Флаг переопределяет остальные источники, только если он указан.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet, flags map[string]string) error {
	for key, name := range flags {
		f := fs.Lookup(name)
		if f == nil {
			return fmt.Errorf("config: unknown flag --%s for key %s", name, key)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("config: bind --%s: %w", name, err)
		}
	}
	return nil
}

// Load читает файл конфигурации и возвращает итоговые настройки.
// Пустой path — config.yaml из DefaultDir; его отсутствие не ошибка.
// Явно указанный path должен существовать.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		dir, err := DefaultDir()
		if err == nil {
			v.SetConfigName(configFileName)
			v.SetConfigType(configFileType)
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	if _, err := os.Stat(cfg.File); err != nil {
		cfg.File = ""
	}

	return &cfg, nil
}
