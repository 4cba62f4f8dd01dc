package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "LOBBY"

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	AdminSecret        string        `mapstructure:"admin_secret"`
	AdminLoginAttempts int           `mapstructure:"admin_login_attempts"`
	AdminLoginWindow   time.Duration `mapstructure:"admin_login_window"`
	JoinTimeout        time.Duration `mapstructure:"join_timeout"`

	MaxSessions   int `mapstructure:"max_sessions"`
	MaxNameLength int `mapstructure:"max_name_length"`
	ChatHistory   int `mapstructure:"chat_history"`
	LogBuffer     int `mapstructure:"log_buffer"`

	LogLevel       string `mapstructure:"log_level"`
	LogFanoutLevel string `mapstructure:"log_fanout_level"`

	SendBuffer   int     `mapstructure:"send_buffer"`
	MessageRate  float64 `mapstructure:"message_rate"`
	MessageBurst int     `mapstructure:"message_burst"`

	ICEServers []string `mapstructure:"ice_servers"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "change-me")

	v.SetDefault("admin_secret", "")
	v.SetDefault("admin_login_attempts", 5)
	v.SetDefault("admin_login_window", "1m")
	v.SetDefault("join_timeout", "10s")

	v.SetDefault("max_sessions", 256)
	v.SetDefault("max_name_length", 36)
	v.SetDefault("chat_history", 100)
	v.SetDefault("log_buffer", 200)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_fanout_level", "info")

	v.SetDefault("send_buffer", 64)
	v.SetDefault("message_rate", 20)
	v.SetDefault("message_burst", 40)

	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
}

// Load merges defaults, config/config.<CONFIG_ENV>.yaml, LOBBY_* env vars
// and flags, in increasing priority. flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	if flags != nil {
		if f := flags.Lookup("config"); f != nil && f.Changed {
			fileName = f.Value.String()
		}
	}
	v.SetConfigFile(fileName)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for flag, key := range map[string]string{
			"port":        "port",
			"mode":        "mode",
			"static-path": "static_path",
			"log-level":   "log_level",
		} {
			if f := flags.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", flag, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config %s: %w", fileName, err)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Msg("config ready")
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("invalid port %d", c.Port)
	case c.PingPeriod <= 0:
		return fmt.Errorf("ping_period must be positive, got %s", c.PingPeriod)
	case c.Secret == "":
		return fmt.Errorf("secret must not be empty")
	}
	if c.AdminSecret == "" {
		log.Warn().Str("module", "config").Msg("admin_secret is empty, admin login disabled")
	}
	return nil
}
