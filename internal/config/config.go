package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	App struct {
		Env      string
		Timezone string
	} `mapstructure:"app"`

	HTTP struct {
		Addr string
	} `mapstructure:"http"`

	Postgres struct {
		DSN      string
		MaxConns int32 `mapstructure:"max_conns"`
	} `mapstructure:"postgres"`

	Storage struct {
		Driver string
	} `mapstructure:"storage"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`

	Telegram struct {
		Enabled     bool
		Token       string
		AdminChatID int64 `mapstructure:"admin_chat_id"`
	} `mapstructure:"telegram"`

	Notify struct {
		QueueSize int `mapstructure:"queue_size"`
	} `mapstructure:"notify"`

	Log struct {
		Level string
	} `mapstructure:"log"`

	// Admin is upserted on start so a fresh store has someone to act as.
	Admin struct {
		Username   string
		RealName   string `mapstructure:"real_name"`
		TelegramID int64  `mapstructure:"telegram_id"`
	} `mapstructure:"admin"`
}

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

func defaults(v *viper.Viper) {
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.timezone", "UTC")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("storage.driver", DriverPostgres)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.admin_chat_id", 0)
	v.SetDefault("notify.queue_size", 256)
	v.SetDefault("log.level", "info")
	v.SetDefault("admin.username", "admin")
	v.SetDefault("admin.real_name", "Administrator")
	v.SetDefault("admin.telegram_id", 0)
}

// Load reads an optional .env next to the process, then the YAML file at path
// (missing file is fine), then STOCKDESK_* variables, e.g. STOCKDESK_POSTGRES_DSN.
func Load(path string) (Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	defaults(v)
	v.SetEnvPrefix("STOCKDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, statErr := os.Stat(path); !errors.Is(statErr, fs.ErrNotExist) {
				return c, fmt.Errorf("read config: %w", err)
			}
		}
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("decode config: %w", err)
	}
	return c, c.validate()
}

func (c Config) validate() error {
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Postgres.DSN == "" {
			return errors.New("config: postgres.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	if strings.TrimSpace(c.Admin.Username) == "" {
		return errors.New("config: admin.username must not be empty")
	}
	if c.Telegram.Enabled && c.Telegram.Token == "" {
		return errors.New("config: telegram.token is required when telegram is enabled")
	}
	return nil
}
