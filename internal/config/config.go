package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr string
	}
	Log struct {
		Level string
	}
	Database struct {
		Driver string
		Path   string
		DSN    string
	}
	Session struct {
		Secret     string
		CookieName string
		TTL        time.Duration
		Secure     bool
	}
	OTP struct {
		TTL         time.Duration
		Digits      int
		MaxAttempts int
	}
	Referral struct {
		Length         int
		FallbackLength int
		MaxAttempts    int
	}
	Twilio struct {
		AccountSID      string
		AuthToken       string
		From            string
		Channel         string
		Template        string
		ValidateWebhook bool
		WebhookURL      string
	}
	Messaging struct {
		Workers int
		Timeout time.Duration
	}
	Archive struct {
		Bucket    string
		KeyPrefix string
		Region    string
		Endpoint  string
	}
	AWS struct {
		Profile string
	}
	CORS struct {
		Origins []string
	}
}

// Load reads configuration from environment variables and optional config files.
// Variables use the REFERRAL_ prefix, e.g. REFERRAL_SESSION_SECRET.
func Load() (Config, error) {
	// a missing .env is fine; existing variables win
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("REFERRAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", "0.0.0.0:3000")
	v.SetDefault("log.level", "info")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/referral.db")
	v.SetDefault("database.dsn", "")
	v.SetDefault("session.secret", "")
	v.SetDefault("session.cookiename", "referral.sid")
	v.SetDefault("session.ttl", 48*time.Hour)
	v.SetDefault("session.secure", false)
	v.SetDefault("otp.ttl", 5*time.Minute)
	v.SetDefault("otp.digits", 6)
	v.SetDefault("otp.maxattempts", 5)
	v.SetDefault("referral.length", 6)
	v.SetDefault("referral.fallbacklength", 8)
	v.SetDefault("referral.maxattempts", 8)
	v.SetDefault("twilio.accountsid", "")
	v.SetDefault("twilio.authtoken", "")
	v.SetDefault("twilio.from", "")
	v.SetDefault("twilio.channel", "whatsapp:")
	v.SetDefault("twilio.template", "Your BytesCare Hunt code is %s.")
	v.SetDefault("twilio.validatewebhook", false)
	v.SetDefault("twilio.webhookurl", "")
	v.SetDefault("messaging.workers", 4)
	v.SetDefault("messaging.timeout", 15*time.Second)
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.keyprefix", "inbound-messages")
	v.SetDefault("archive.region", "us-east-1")
	v.SetDefault("archive.endpoint", "")
	v.SetDefault("aws.profile", "")
	v.SetDefault("cors.origins", []string{})

	v.SetConfigName("config")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional file

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.CORS.Origins = splitList(cfg.CORS.Origins)

	return cfg, nil
}

// Validate reports settings the server cannot start without.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Session.Secret) == "" {
		errs = append(errs, errors.New("session secret is required (REFERRAL_SESSION_SECRET)"))
	}
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database path is required for sqlite"))
		}
	case "postgres":
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}
	if c.Twilio.ValidateWebhook && c.Twilio.AuthToken == "" {
		errs = append(errs, errors.New("twilio auth token is required to validate webhooks"))
	}
	return errors.Join(errs...)
}

// TwilioEnabled reports whether outbound messages go through Twilio.
func (c Config) TwilioEnabled() bool {
	return c.Twilio.AccountSID != "" && c.Twilio.AuthToken != "" && c.Twilio.From != ""
}

// splitList accepts both a proper list and a single comma separated value,
// which is what a list looks like when it comes from the environment.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
