package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/example/lensshop/pkg/content"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Backend    BackendConfig    `mapstructure:"backend"`
	Etcd       EtcdConfig       `mapstructure:"etcd"`
	Redis      RedisConfig      `mapstructure:"redis"`
	MySQL      MySQLConfig      `mapstructure:"mysql"`
	MongoDB    MongoDBConfig    `mapstructure:"mongodb"`
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	Log        LogConfig        `mapstructure:"log"`
	Identity   IdentityConfig   `mapstructure:"identity"`
	Storefront StorefrontConfig `mapstructure:"storefront"`
	Content    content.Site     `mapstructure:"content"`
}

type ServerConfig struct {
	Name string `mapstructure:"name"`
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

// BackendConfig describes how the gateway reaches the storefront backend
// and which principals the development backend treats as admins.
type BackendConfig struct {
	ServiceName    string        `mapstructure:"service_name"`
	Target         string        `mapstructure:"target"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	CallTimeout    time.Duration `mapstructure:"call_timeout"`
	BreakerTimeout time.Duration `mapstructure:"breaker_timeout"`
	BreakerTrips   uint32        `mapstructure:"breaker_trips"`
	Admins         []string      `mapstructure:"admins"`
	CodeTTL        time.Duration `mapstructure:"code_ttl"`
}

type EtcdConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Prefix      string        `mapstructure:"prefix"`
	LeaseTTL    int64         `mapstructure:"lease_ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type MongoDBConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type GatewayConfig struct {
	Port          int    `mapstructure:"port"`
	Host          string `mapstructure:"host"`
	SessionCookie string `mapstructure:"session_cookie"`
	SecureCookie  bool   `mapstructure:"secure_cookie"`
}

type LogConfig struct {
	Level       string   `mapstructure:"level"`
	Encoding    string   `mapstructure:"encoding"`
	OutputPaths []string `mapstructure:"output_paths"`
}

type IdentityConfig struct {
	Secret   string        `mapstructure:"secret"`
	Issuer   string        `mapstructure:"issuer"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// StorefrontConfig holds the knobs of the cart store and the login flow.
type StorefrontConfig struct {
	CartKey            string        `mapstructure:"cart_key"`
	PhoneDraftKey      string        `mapstructure:"phone_draft_key"`
	DefaultPhonePrefix string        `mapstructure:"default_phone_prefix"`
	ResendCooldown     time.Duration `mapstructure:"resend_cooldown"`
	ResendNotice       time.Duration `mapstructure:"resend_notice"`
	CodeLength         int           `mapstructure:"code_length"`
	SessionIdle        time.Duration `mapstructure:"session_idle"`
	SessionTTL         time.Duration `mapstructure:"session_ttl"`
	SessionTimeout     time.Duration `mapstructure:"session_timeout"`
	CatalogTTL         time.Duration `mapstructure:"catalog_ttl"`
	BasePath           string        `mapstructure:"base_path"`
	ContinuePath       string        `mapstructure:"continue_path"`
}

const envPrefix = "LENS"

func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.Content = config.Content.WithDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "storefront-backend")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 50051)

	v.SetDefault("backend.service_name", "storefront-backend")
	v.SetDefault("backend.target", "localhost:50051")
	v.SetDefault("backend.dial_timeout", 5*time.Second)
	v.SetDefault("backend.call_timeout", 10*time.Second)
	v.SetDefault("backend.breaker_timeout", 30*time.Second)
	v.SetDefault("backend.breaker_trips", 5)
	v.SetDefault("backend.code_ttl", 5*time.Minute)

	v.SetDefault("etcd.dial_timeout", 5*time.Second)
	v.SetDefault("etcd.prefix", "/services/")
	v.SetDefault("etcd.lease_ttl", 30)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("gateway.host", "0.0.0.0")
	v.SetDefault("gateway.port", 8080)
	v.SetDefault("gateway.session_cookie", "lens_session")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("log.output_paths", []string{"stdout"})

	v.SetDefault("identity.issuer", "lens-identity")
	v.SetDefault("identity.token_ttl", 24*time.Hour)

	v.SetDefault("storefront.cart_key", "the-lens-cart")
	v.SetDefault("storefront.phone_draft_key", "login_phone_draft")
	v.SetDefault("storefront.default_phone_prefix", "+91 ")
	v.SetDefault("storefront.resend_cooldown", 30*time.Second)
	v.SetDefault("storefront.resend_notice", 3*time.Second)
	v.SetDefault("storefront.code_length", 4)
	v.SetDefault("storefront.session_idle", 30*time.Minute)
	v.SetDefault("storefront.session_ttl", 12*time.Hour)
	v.SetDefault("storefront.session_timeout", 5*time.Second)
	v.SetDefault("storefront.catalog_ttl", time.Minute)
	v.SetDefault("storefront.continue_path", "/")
}

// Validate rejects settings the storefront cannot run with.
func (c *Config) Validate() error {
	if c.Storefront.CodeLength <= 0 {
		return fmt.Errorf("storefront.code_length must be positive")
	}
	if c.Storefront.ResendCooldown < time.Second {
		return fmt.Errorf("storefront.resend_cooldown must be at least one second")
	}
	if c.Storefront.CartKey == "" {
		return fmt.Errorf("storefront.cart_key is required")
	}
	return nil
}

func (c *MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.Username, c.Password, c.Host, c.Port, c.Database)
}
