package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const envPrefix = "ALBUMSHARE"

type Config struct {
	Server    ServerConfig    `mapstructure:"Server"`
	Database  DatabaseConfig  `mapstructure:"Database"`
	S3        S3Config        `mapstructure:"S3"`
	Auth      AuthConfig      `mapstructure:"Auth"`
	Limits    LimitsConfig    `mapstructure:"Limits"`
	Reconcile ReconcileConfig `mapstructure:"Reconcile"`
	Log       LogConfig       `mapstructure:"Log"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"Port"`
	GRPCPort        string        `mapstructure:"GRPCPort"`
	ShutdownTimeout time.Duration `mapstructure:"ShutdownTimeout"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"Host"`
	Port            string        `mapstructure:"Port"`
	User            string        `mapstructure:"User"`
	Password        string        `mapstructure:"Password"`
	Name            string        `mapstructure:"Name"`
	SSLMode         string        `mapstructure:"SSLMode"`
	MaxOpenConns    int           `mapstructure:"MaxOpenConns"`
	MaxIdleConns    int           `mapstructure:"MaxIdleConns"`
	ConnMaxLifetime time.Duration `mapstructure:"ConnMaxLifetime"`
	MigrationsPath  string        `mapstructure:"MigrationsPath"`
}

type S3Config struct {
	Endpoint        string        `mapstructure:"Endpoint"`
	Region          string        `mapstructure:"Region"`
	AccessKeyID     string        `mapstructure:"AccessKeyID"`
	SecretAccessKey string        `mapstructure:"SecretAccessKey"`
	Bucket          string        `mapstructure:"Bucket"`
	UsePathStyle    bool          `mapstructure:"UsePathStyle"`
	UploadURLTTL    time.Duration `mapstructure:"UploadURLTTL"`
	DownloadURLTTL  time.Duration `mapstructure:"DownloadURLTTL"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"JWTSecret"`
	Issuer    string `mapstructure:"Issuer"`
}

// LimitsConfig holds human-readable sizes ("20MiB"); the *Bytes fields are
// filled in by Load.
type LimitsConfig struct {
	ImageMaxSize string `mapstructure:"ImageMaxSize"`
	VideoMaxSize string `mapstructure:"VideoMaxSize"`
	DefaultQuota string `mapstructure:"DefaultQuota"`

	ImageMaxBytes     int64 `mapstructure:"-"`
	VideoMaxBytes     int64 `mapstructure:"-"`
	DefaultQuotaBytes int64 `mapstructure:"-"`
}

type ReconcileConfig struct {
	// Interval of 0 disables the periodic run inside serve.
	Interval time.Duration `mapstructure:"Interval"`
}

type LogConfig struct {
	Level  string `mapstructure:"Level"`
	Format string `mapstructure:"Format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("Server.Port", "2525")
	v.SetDefault("Server.GRPCPort", "50051")
	v.SetDefault("Server.ShutdownTimeout", 30*time.Second)

	v.SetDefault("Database.Host", "")
	v.SetDefault("Database.Port", "5432")
	v.SetDefault("Database.User", "")
	v.SetDefault("Database.Password", "")
	v.SetDefault("Database.Name", "albumshare")
	v.SetDefault("Database.SSLMode", "disable")
	v.SetDefault("Database.MaxOpenConns", 25)
	v.SetDefault("Database.MaxIdleConns", 5)
	v.SetDefault("Database.ConnMaxLifetime", 5*time.Minute)
	v.SetDefault("Database.MigrationsPath", "file://migrations")

	v.SetDefault("S3.Endpoint", "")
	v.SetDefault("S3.Region", "us-east-1")
	v.SetDefault("S3.AccessKeyID", "")
	v.SetDefault("S3.SecretAccessKey", "")
	v.SetDefault("S3.Bucket", "")
	v.SetDefault("S3.UsePathStyle", false)
	v.SetDefault("S3.UploadURLTTL", 15*time.Minute)
	v.SetDefault("S3.DownloadURLTTL", 10*time.Minute)

	v.SetDefault("Auth.JWTSecret", "")
	v.SetDefault("Auth.Issuer", "")

	v.SetDefault("Limits.ImageMaxSize", "20MiB")
	v.SetDefault("Limits.VideoMaxSize", "200MiB")
	v.SetDefault("Limits.DefaultQuota", "256MiB")

	v.SetDefault("Reconcile.Interval", time.Duration(0))

	v.SetDefault("Log.Level", "info")
	v.SetDefault("Log.Format", "console")
}

// NewConfig reads path (optional) and overlays ALBUMSHARE_* environment
// variables, e.g. ALBUMSHARE_DATABASE_HOST.
func NewConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("config file not loaded, using defaults and environment")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Limits.parse(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (l *LimitsConfig) parse() error {
	var err error
	if l.ImageMaxBytes, err = units.RAMInBytes(l.ImageMaxSize); err != nil {
		return fmt.Errorf("invalid Limits.ImageMaxSize %q: %w", l.ImageMaxSize, err)
	}
	if l.VideoMaxBytes, err = units.RAMInBytes(l.VideoMaxSize); err != nil {
		return fmt.Errorf("invalid Limits.VideoMaxSize %q: %w", l.VideoMaxSize, err)
	}
	if l.DefaultQuotaBytes, err = units.RAMInBytes(l.DefaultQuota); err != nil {
		return fmt.Errorf("invalid Limits.DefaultQuota %q: %w", l.DefaultQuota, err)
	}
	if l.ImageMaxBytes <= 0 || l.VideoMaxBytes <= 0 || l.DefaultQuotaBytes < 0 {
		return errors.New("limits must be positive")
	}
	return nil
}

// ValidateDatabase reports the first missing database setting.
func (c *Config) ValidateDatabase() error {
	switch {
	case c.Database.Host == "":
		return errors.New("Database.Host is required")
	case c.Database.User == "":
		return errors.New("Database.User is required")
	case c.Database.Password == "":
		return errors.New("Database.Password is required")
	case c.Database.Name == "":
		return errors.New("Database.Name is required")
	}
	return nil
}

// ValidateServe checks everything serve needs beyond the database.
func (c *Config) ValidateServe() error {
	if err := c.ValidateDatabase(); err != nil {
		return err
	}
	switch {
	case c.S3.AccessKeyID == "":
		return errors.New("S3.AccessKeyID is required")
	case c.S3.SecretAccessKey == "":
		return errors.New("S3.SecretAccessKey is required")
	case c.S3.Bucket == "":
		return errors.New("S3.Bucket is required")
	case c.Auth.JWTSecret == "":
		return errors.New("Auth.JWTSecret is required")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		c.SSLMode,
	)
}

// MigrateURL is the URL form golang-migrate expects.
func (c *DatabaseConfig) MigrateURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}
