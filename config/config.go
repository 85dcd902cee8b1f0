// config/config.go
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	AllowOrigins    []string      `mapstructure:"allowOrigins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
}

// StorageConfig picks the ledger backend: "memory" or "mongo".
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

type MongoConfig struct {
	URI    string `mapstructure:"uri"`
	DBName string `mapstructure:"dbName"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"`
}

type AdminConfig struct {
	Email       string `mapstructure:"email"`
	Password    string `mapstructure:"password"`
	CompanyName string `mapstructure:"companyName"`
}

// S3Config enables the bill-of-lading archive when Bucket is set.
type S3Config struct {
	Bucket           string `mapstructure:"bucket"`
	Region           string `mapstructure:"region"`
	Endpoint         string `mapstructure:"endpoint"`
	AccessKeyID      string `mapstructure:"accessKeyID"`
	SecretAccessKey  string `mapstructure:"secretAccessKey"`
	CloudFrontDomain string `mapstructure:"cloudFrontDomain"`
}

type NotifyConfig struct {
	QueueSize           int           `mapstructure:"queueSize"`
	DeliveryConcurrency int           `mapstructure:"deliveryConcurrency"`
	UserCacheSize       int           `mapstructure:"userCacheSize"`
	HandlerTimeout      time.Duration `mapstructure:"handlerTimeout"`
	DrainTimeout        time.Duration `mapstructure:"drainTimeout"`
}

type ChainConfig struct {
	MaxHops int `mapstructure:"maxHops"`
}

type ResaleConfig struct {
	SweepInterval time.Duration `mapstructure:"sweepInterval"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Mongo   MongoConfig   `mapstructure:"mongo"`
	JWT     JWTConfig     `mapstructure:"jwt"`
	Admin   AdminConfig   `mapstructure:"admin"`
	S3      S3Config      `mapstructure:"s3"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Chain   ChainConfig   `mapstructure:"chain"`
	Resale  ResaleConfig  `mapstructure:"resale"`
	Log     LogConfig     `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.allowOrigins", []string{"*"})
	v.SetDefault("server.shutdownTimeout", "15s")
	v.SetDefault("storage.driver", "memory")
	v.SetDefault("mongo.dbName", "freight")
	v.SetDefault("jwt.expiration", "24h")
	v.SetDefault("admin.companyName", "Marketplace Operations")
	v.SetDefault("s3.region", "ap-southeast-1")
	v.SetDefault("notify.queueSize", 1024)
	v.SetDefault("notify.deliveryConcurrency", 8)
	v.SetDefault("notify.userCacheSize", 4096)
	v.SetDefault("notify.handlerTimeout", "10s")
	v.SetDefault("notify.drainTimeout", "5s")
	v.SetDefault("chain.maxHops", 64)
	v.SetDefault("resale.sweepInterval", "1m")
	v.SetDefault("log.level", "info")
}

var envBindings = map[string]string{
	"server.port":                "SERVER_PORT",
	"server.allowOrigins":        "SERVER_ALLOW_ORIGINS",
	"storage.driver":             "STORAGE_DRIVER",
	"mongo.uri":                  "MONGO_URI",
	"mongo.dbName":               "MONGO_DBNAME",
	"jwt.secret":                 "JWT_SECRET",
	"jwt.expiration":             "JWT_EXPIRATION",
	"admin.email":                "ADMIN_EMAIL",
	"admin.password":             "ADMIN_PASSWORD",
	"s3.bucket":                  "S3_BUCKET",
	"s3.region":                  "S3_REGION",
	"s3.endpoint":                "S3_ENDPOINT",
	"s3.accessKeyID":             "S3_ACCESS_KEY_ID",
	"s3.secretAccessKey":         "S3_SECRET_ACCESS_KEY",
	"s3.cloudFrontDomain":        "S3_CLOUDFRONT_DOMAIN",
	"notify.queueSize":           "NOTIFY_QUEUE_SIZE",
	"notify.deliveryConcurrency": "NOTIFY_DELIVERY_CONCURRENCY",
	"notify.userCacheSize":       "NOTIFY_USER_CACHE_SIZE",
	"chain.maxHops":              "CHAIN_MAX_HOPS",
	"resale.sweepInterval":       "RESALE_SWEEP_INTERVAL",
	"log.level":                  "LOG_LEVEL",
}

// LoadConfig reads config.yaml from path, if present, and overrides it with
// the bound environment variables.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	setDefaults(v)

	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "mongo":
		if c.Mongo.URI == "" {
			return errors.New("mongo.uri is required for the mongo storage driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	if c.Notify.QueueSize <= 0 || c.Notify.DeliveryConcurrency <= 0 || c.Notify.UserCacheSize <= 0 {
		return errors.New("notify sizes must be positive")
	}
	if c.Chain.MaxHops <= 0 {
		return errors.New("chain.maxHops must be positive")
	}
	if c.Resale.SweepInterval <= 0 {
		return errors.New("resale.sweepInterval must be positive")
	}
	return nil
}
