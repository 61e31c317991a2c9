package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath         = "config.toml"
	DefaultHTTPAddr           = ":3000"
	DefaultRestartDelay       = 3 * time.Second
	DefaultMaxRestartAttempts = 5
	DefaultRegion             = "feishu"
	DefaultMediaMaxAge        = 24 * time.Hour
	DefaultPruneSchedule      = "@hourly"
	DefaultAgentGatewayURL    = "http://127.0.0.1:8081"
	DefaultAgentTimeout       = 30 * time.Second
)

// DefaultMediaCacheDir is the per-process download cache under the OS temp dir.
var DefaultMediaCacheDir = filepath.Join(os.TempDir(), "lark-images")

type Config struct {
	Log          LogConfig          `toml:"log"`
	Server       ServerConfig       `toml:"server"`
	Account      AccountConfig      `toml:"account"`
	Media        MediaConfig        `toml:"media"`
	AgentGateway AgentGatewayConfig `toml:"agent_gateway"`
}

type LogConfig struct {
	Level  string `toml:"level"  env:"LARKHOOK_LOG_LEVEL"  validate:"omitempty,oneof=debug info warn warning error"`
	Format string `toml:"format" env:"LARKHOOK_LOG_FORMAT" validate:"omitempty,oneof=text json"`
}

type ServerConfig struct {
	Addr               string   `toml:"addr"                 env:"LARKHOOK_SERVER_ADDR"                 validate:"required"`
	RestartDelay       Duration `toml:"restart_delay"        env:"LARKHOOK_SERVER_RESTART_DELAY"`
	MaxRestartAttempts int      `toml:"max_restart_attempts" env:"LARKHOOK_SERVER_MAX_RESTART_ATTEMPTS" validate:"gte=0"`
}

// AccountConfig is the single Lark app this process serves.
type AccountConfig struct {
	AccountID         string `toml:"account_id"         env:"LARKHOOK_ACCOUNT_ID"                 validate:"required"`
	AppID             string `toml:"app_id"             env:"LARKHOOK_ACCOUNT_APP_ID"             validate:"required"`
	AppSecret         string `toml:"app_secret"         env:"LARKHOOK_ACCOUNT_APP_SECRET"         validate:"required"`
	EncryptKey        string `toml:"encrypt_key"        env:"LARKHOOK_ACCOUNT_ENCRYPT_KEY"`
	VerificationToken string `toml:"verification_token" env:"LARKHOOK_ACCOUNT_VERIFICATION_TOKEN"`
	Region            string `toml:"region"             env:"LARKHOOK_ACCOUNT_REGION"             validate:"omitempty,oneof=feishu lark"`
}

type MediaConfig struct {
	CacheDir      string   `toml:"cache_dir"      env:"LARKHOOK_MEDIA_CACHE_DIR"`
	MaxAge        Duration `toml:"max_age"        env:"LARKHOOK_MEDIA_MAX_AGE"`
	PruneSchedule string   `toml:"prune_schedule" env:"LARKHOOK_MEDIA_PRUNE_SCHEDULE"`
}

type AgentGatewayConfig struct {
	BaseURL string   `toml:"base_url" env:"LARKHOOK_AGENT_GATEWAY_BASE_URL" validate:"required,url"`
	Token   string   `toml:"token"    env:"LARKHOOK_AGENT_GATEWAY_TOKEN"`
	Timeout Duration `toml:"timeout"  env:"LARKHOOK_AGENT_GATEWAY_TIMEOUT"`
}

// Duration decodes TOML and env strings such as "3s" or "24h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr:               DefaultHTTPAddr,
			RestartDelay:       Duration{DefaultRestartDelay},
			MaxRestartAttempts: DefaultMaxRestartAttempts,
		},
		Account: AccountConfig{
			Region: DefaultRegion,
		},
		Media: MediaConfig{
			CacheDir:      DefaultMediaCacheDir,
			MaxAge:        Duration{DefaultMediaMaxAge},
			PruneSchedule: DefaultPruneSchedule,
		},
		AgentGateway: AgentGatewayConfig{
			BaseURL: DefaultAgentGatewayURL,
			Timeout: Duration{DefaultAgentTimeout},
		},
	}
}

// Load reads path over the defaults and then applies LARKHOOK_* environment
// overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return cfg, err
		}
	} else if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("decode %s: %w", path, err)
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("apply env overrides: %w", err)
	}
	return cfg, nil
}

// Validate reports missing credentials and out-of-range values.
func (c Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Server.RestartDelay.Duration < 0 {
		return fmt.Errorf("invalid config: server.restart_delay must not be negative")
	}
	return nil
}
