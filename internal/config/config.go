// Package config loads server settings from defaults, an optional YAML file
// and the environment, in increasing order of precedence.
//
// Every key can be set as CARDAUTH_<KEY> with dots replaced by underscores
// (CARDAUTH_REDIS_ADDR). The most common ones also accept a bare name
// (PORT, DB_PATH, JWT_SECRET, ...). A .env file in the working directory is
// loaded into the environment first if present.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/sakif/cardauth/internal/logging"
)

const envPrefix = "CARDAUTH"

type Config struct {
	Port   int             `mapstructure:"port"`
	DBPath string          `mapstructure:"db_path"`
	JWT    JWTConfig       `mapstructure:"jwt"`
	Log    logging.Options `mapstructure:"log"`
	Redis  RedisConfig     `mapstructure:"redis"`
	OTP    OTPConfig       `mapstructure:"otp"`
	SMTP   SMTPConfig      `mapstructure:"smtp"`
	SMS    SMSConfig       `mapstructure:"sms"`
	Reward RewardConfig    `mapstructure:"reward"`
	GitHub GitHubConfig    `mapstructure:"github"`
	Notify NotifyConfig    `mapstructure:"notify"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type OTPConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type SMSConfig struct {
	URL     string `mapstructure:"url"`
	PassKey string `mapstructure:"pass_key"`
}

// RewardConfig points at the upstream rewards service used to check
// member/business association. Empty URL means the local ledger decides.
type RewardConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type GitHubConfig struct {
	ClientID      string   `mapstructure:"client_id"`
	ClientSecret  string   `mapstructure:"client_secret"`
	CallbackURL   string   `mapstructure:"callback_url"`
	AllowedLogins []string `mapstructure:"allowed_logins"`
}

// Enabled reports whether staff GitHub sign-in is configured.
func (g GitHubConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

type NotifyConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
}

var defaults = map[string]any{
	"port":                  8080,
	"db_path":               "data/cardauth.db",
	"jwt.secret":            "",
	"jwt.ttl":               24 * time.Hour,
	"log.level":             "info",
	"log.format":            "text",
	"log.file":              "",
	"log.max_size_mb":       50,
	"log.max_backups":       5,
	"log.max_age_days":      28,
	"redis.addr":            "localhost:6379",
	"redis.password":        "",
	"redis.db":              0,
	"otp.ttl":               5 * time.Minute,
	"smtp.host":             "",
	"smtp.port":             587,
	"smtp.username":         "",
	"smtp.password":         "",
	"smtp.from":             "",
	"sms.url":               "",
	"sms.pass_key":          "",
	"reward.url":            "",
	"reward.timeout":        5 * time.Second,
	"github.client_id":      "",
	"github.client_secret":  "",
	"github.callback_url":   "",
	"github.allowed_logins": []string{},
	"notify.workers":        2,
	"notify.queue_size":     100,
}

// bareEnv lists keys that also read an unprefixed variable.
var bareEnv = map[string]string{
	"port":                 "PORT",
	"db_path":              "DB_PATH",
	"jwt.secret":           "JWT_SECRET",
	"log.level":            "LOG_LEVEL",
	"log.file":             "LOG_FILE",
	"redis.addr":           "REDIS_ADDR",
	"smtp.host":            "SMTP_HOST",
	"sms.url":              "SMS_URL",
	"reward.url":           "REWARD_SERVER_URL",
	"github.client_id":     "GITHUB_CLIENT_ID",
	"github.client_secret": "GITHUB_CLIENT_SECRET",
	"github.callback_url":  "GITHUB_CALLBACK_URL",
}

// Load reads the configuration. The YAML file named by CONFIG_FILE is
// optional; a missing JWT secret is an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: loading .env: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, name := range bareEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, name); err != nil {
			return nil, fmt.Errorf("config: binding %s: %w", key, err)
		}
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if cfg.GitHub.CallbackURL == "" {
		cfg.GitHub.CallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Port)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.JWT.Secret) < 16 {
		return errors.New("config: JWT secret must be set and at least 16 characters (JWT_SECRET)")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	if c.DBPath == "" {
		return errors.New("config: db_path must not be empty")
	}
	return nil
}
