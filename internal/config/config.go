package config

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	DriverMongo    = "mongo"
	DriverPostgres = "postgres"

	AuthFirebase = "firebase"
	AuthHMAC     = "hmac"
	AuthDev      = "dev"
)

type Config struct {
	ServerAddr     string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	Environment    string   `mapstructure:"environment"`
	LogLevel       string   `mapstructure:"log_level"`
	// honor X-Forwarded-For and X-Real-IP, only behind a trusted proxy
	TrustProxyHeaders bool `mapstructure:"trust_proxy_headers"`

	DatabaseDriver string `mapstructure:"database_driver"`
	MongoURI       string `mapstructure:"mongo_uri"`
	MongoDatabase  string `mapstructure:"mongo_database"`
	DatabaseDSN    string `mapstructure:"dsn"`

	AuthProvider      string `mapstructure:"auth_provider"`
	FirebaseProjectID string `mapstructure:"firebase_project_id"`
	FirebaseCertsURL  string `mapstructure:"firebase_certs_url"`
	SigningSecret     string `mapstructure:"signing_key"`
	SigningKey        []byte `mapstructure:"-"`
	TokenIssuer       string `mapstructure:"token_issuer"`

	DevUID   string `mapstructure:"dev_uid"`
	DevEmail string `mapstructure:"dev_email"`
	DevName  string `mapstructure:"dev_name"`

	ReadRateLimit  float64 `mapstructure:"read_rate_limit"`
	ReadRateBurst  int     `mapstructure:"read_rate_burst"`
	WriteRateLimit float64 `mapstructure:"write_rate_limit"`
	WriteRateBurst int     `mapstructure:"write_rate_burst"`

	// per connection, for messages sent over the socket
	ChatSendRate  float64 `mapstructure:"chat_send_rate"`
	ChatSendBurst int     `mapstructure:"chat_send_burst"`

	ChoreSweepSchedule string        `mapstructure:"chore_sweep_schedule"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("empty key")
	}
	return key, nil
}

// Flags returns the command line flags understood by Load.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("fairshare", pflag.ContinueOnError)
	fs.String("config", "", "path to a YAML config file")
	fs.String("addr", "localhost:8000", "server address")
	fs.StringSlice("allowed-origins", nil, "comma-separated list of allowed origins for CORS")
	fs.String("environment", EnvDevelopment, "deployment environment")
	fs.String("log-level", "info", "log level")
	fs.Bool("trust-proxy-headers", false, "take client addresses from X-Forwarded-For/X-Real-IP")
	fs.String("database-driver", DriverMongo, "database driver (mongo or postgres)")
	fs.String("mongo-uri", "mongodb://localhost:27017", "MongoDB connection string")
	fs.String("mongo-database", "fairshare", "MongoDB database name")
	fs.String("dsn", "", "PostgreSQL connection string")
	fs.String("auth-provider", AuthFirebase, "identity provider (firebase, hmac or dev)")
	fs.String("firebase-project-id", "", "Firebase project id")
	fs.String("signing-key", "", "base64 encoded HS256 signing key")
	return fs
}

// Load reads configuration from defaults, an optional YAML file, FAIRSHARE_*
// environment variables and flags, in increasing order of precedence.
func Load(fs *pflag.FlagSet, args []string) (*Config, error) {
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("fairshare")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	fs.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if err := v.BindPFlag(key, f); err != nil {
			panic(err)
		}
	})

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// env values arrive as a single comma-separated string
	if len(cfg.AllowedOrigins) == 1 && strings.Contains(cfg.AllowedOrigins[0], ",") {
		cfg.AllowedOrigins = strings.Split(cfg.AllowedOrigins[0], ",")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("firebase_certs_url", "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com")
	// every key needs a default or a flag for AutomaticEnv to reach it
	v.SetDefault("token_issuer", "")
	v.SetDefault("dev_uid", "dev-user")
	v.SetDefault("dev_email", "dev@example.com")
	v.SetDefault("dev_name", "Dev User")
	v.SetDefault("read_rate_limit", 20)
	v.SetDefault("read_rate_burst", 40)
	v.SetDefault("write_rate_limit", 5)
	v.SetDefault("write_rate_burst", 10)
	v.SetDefault("chat_send_rate", 5)
	v.SetDefault("chat_send_burst", 10)
	v.SetDefault("chore_sweep_schedule", "@every 5m")
	v.SetDefault("shutdown_timeout", "10s")
}

func (c *Config) Validate() error {
	if c.ServerAddr == "" {
		return fmt.Errorf("server address cannot be empty")
	}

	switch c.DatabaseDriver {
	case DriverMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("mongo URI cannot be empty")
		}
		if c.MongoDatabase == "" {
			return fmt.Errorf("mongo database cannot be empty")
		}
	case DriverPostgres:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("database DSN cannot be empty")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.DatabaseDriver)
	}

	switch c.AuthProvider {
	case AuthFirebase:
		if c.FirebaseProjectID == "" {
			return fmt.Errorf("firebase project id cannot be empty")
		}
	case AuthHMAC:
		if c.SigningSecret == "" {
			return fmt.Errorf("signing secret cannot be empty")
		}

		signingKey, err := decodeSigningSecret(c.SigningSecret)
		if err != nil {
			return fmt.Errorf("decode signing secret: %w", err)
		}
		c.SigningKey = signingKey
	case AuthDev:
		if c.Environment == EnvProduction {
			return fmt.Errorf("dev auth is not allowed in production")
		}
	default:
		return fmt.Errorf("unsupported auth provider %q", c.AuthProvider)
	}

	if c.ReadRateLimit <= 0 || c.WriteRateLimit <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	if c.ChatSendRate <= 0 || c.ChatSendBurst <= 0 {
		return fmt.Errorf("chat send rate and burst must be positive")
	}

	return nil
}
