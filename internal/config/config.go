package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration, loaded from
// ~/.aide/aide-config.yaml with AIDE_* environment overrides.
type Config struct {
	// VaultDir is the root of the approval vault.
	VaultDir string `mapstructure:"vault_dir"`
	// PollInterval is how often the poller scans for decisions.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// ApprovalTimeout is the review window for pending requests.
	ApprovalTimeout time.Duration `mapstructure:"approval_timeout"`
	// QueueSize bounds the intake proposal queue.
	QueueSize int `mapstructure:"queue_size"`

	Classifier    ClassifierConfig    `mapstructure:"classifier"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Email         EmailConfig         `mapstructure:"email"`
	WhatsApp      WhatsAppConfig      `mapstructure:"whatsapp"`
	LinkedIn      LinkedInConfig      `mapstructure:"linkedin"`
}

// ClassifierConfig tunes risk scoring.
type ClassifierConfig struct {
	// KnownRecipients do not attract the external recipient penalty.
	KnownRecipients []string `mapstructure:"known_recipients"`
	// ApprovalThreshold is the risk score at or above which approval is
	// required. Zero keeps the stock threshold.
	ApprovalThreshold int `mapstructure:"approval_threshold"`
}

// NotificationsConfig selects delivery channels.
type NotificationsConfig struct {
	// Desktop enables native desktop notifications.
	Desktop bool `mapstructure:"desktop"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// SchedulerConfig controls recurring action proposals.
type SchedulerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// TriggersDir holds YAML trigger definitions. Defaults to
	// <vault_dir>/triggers when empty.
	TriggersDir       string `mapstructure:"triggers_dir"`
	ConcurrencyPolicy string `mapstructure:"concurrency_policy"`
}

// EmailConfig holds Resend credentials.
type EmailConfig struct {
	ResendAPIKey string `mapstructure:"resend_api_key"`
	From         string `mapstructure:"from"`
}

// WhatsAppConfig holds WhatsApp Business gateway credentials.
type WhatsAppConfig struct {
	GatewayURL string `mapstructure:"gateway_url"`
	Token      string `mapstructure:"token"`
}

// LinkedInConfig holds LinkedIn API credentials.
type LinkedInConfig struct {
	Token     string `mapstructure:"token"`
	AuthorURN string `mapstructure:"author_urn"`
}

// Load reads configuration from the default locations. A missing config file
// is fine; defaults plus environment variables still apply. path, when
// non-empty, names an explicit config file instead.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("aide-config")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME/.aide")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("AIDE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Scheduler.TriggersDir == "" {
		cfg.Scheduler.TriggersDir = cfg.VaultDir + "/triggers"
	}
	return &cfg, nil
}

// setDefaults registers every config key. Keys without a meaningful default
// still get an empty one: viper's AutomaticEnv only feeds Unmarshal for keys
// it knows about, so an unregistered key would silently ignore its AIDE_*
// override.
func setDefaults(v *viper.Viper) {
	v.SetDefault("vault_dir", "~/aide-vault/approvals")
	v.SetDefault("poll_interval", "10s")
	v.SetDefault("approval_timeout", "24h")
	v.SetDefault("queue_size", 64)
	v.SetDefault("classifier.known_recipients", []string{})
	v.SetDefault("classifier.approval_threshold", 0)
	v.SetDefault("notifications.desktop", true)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9190)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.triggers_dir", "")
	v.SetDefault("scheduler.concurrency_policy", "skip")
	v.SetDefault("email.resend_api_key", "")
	v.SetDefault("email.from", "")
	v.SetDefault("whatsapp.gateway_url", "")
	v.SetDefault("whatsapp.token", "")
	v.SetDefault("linkedin.token", "")
	v.SetDefault("linkedin.author_urn", "")
}
