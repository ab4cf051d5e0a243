package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Log      LogConfig      `mapstructure:"log"`
	Discord  DiscordConfig  `mapstructure:"discord"`
}

type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	BindAddress    string   `mapstructure:"bind_address"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Addr is the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return s.BindAddress + ":" + s.Port
}

type DatabaseConfig struct {
	// Driver is one of postgres, mysql, sqlite.
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	// Path is the database file for the sqlite driver.
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	StateTTL time.Duration `mapstructure:"state_ttl"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DiscordConfig enables the Discord notifier when both fields are set.
type DiscordConfig struct {
	Token     string `mapstructure:"token"`
	ChannelID string `mapstructure:"channel_id"`
}

func (d DiscordConfig) Enabled() bool {
	return d.Token != "" && d.ChannelID != ""
}

// envBindings maps config keys to the environment variables the server
// has always read.
var envBindings = map[string]string{
	"server.port":            "PORT",
	"server.bind_address":    "BIND_ADDRESS",
	"server.allowed_origins": "ALLOWED_ORIGINS",
	"db.driver":              "DB_DRIVER",
	"db.host":                "DB_HOST",
	"db.port":                "DB_PORT",
	"db.user":                "DB_USER",
	"db.password":            "DB_PASSWORD",
	"db.name":                "DB_NAME",
	"db.path":                "DB_PATH",
	"redis.enabled":          "REDIS_ENABLED",
	"redis.host":             "REDIS_HOST",
	"redis.port":             "REDIS_PORT",
	"redis.password":         "REDIS_PASSWORD",
	"redis.db":               "REDIS_DB",
	"redis.state_ttl":        "REDIS_STATE_TTL",
	"jwt.secret":             "JWT_SECRET",
	"jwt.ttl":                "JWT_TTL",
	"log.level":              "LOG_LEVEL",
	"log.format":             "LOG_FORMAT",
	"discord.token":          "DISCORD_TOKEN",
	"discord.channel_id":     "DISCORD_CHANNEL_ID",
}

// SetDefaults registers default values and environment bindings on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.bind_address", "localhost")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("db.driver", DriverPostgres)
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "qteams")
	v.SetDefault("db.password", "qteams123")
	v.SetDefault("db.name", "qteams")
	v.SetDefault("db.path", "qteams.db")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.state_ttl", 2*time.Hour)
	v.SetDefault("jwt.secret", defaultJWTSecret)
	v.SetDefault("jwt.ttl", 7*24*time.Hour)
	v.SetDefault("log.level", "INFO")
	v.SetDefault("log.format", "json")
	v.SetDefault("discord.token", "")
	v.SetDefault("discord.channel_id", "")

	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}
}

// Load reads the configuration from v after defaults and env bindings.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	// Origins may arrive as one comma separated string from the environment.
	cfg.Server.AllowedOrigins = splitList(strings.Join(cfg.Server.AllowedOrigins, ","))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values that would otherwise fail late at startup.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverMySQL, DriverSQLite:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.Driver == DriverSQLite && c.Database.Path == "" {
		return fmt.Errorf("db.path is required for the sqlite driver")
	}
	if c.Server.Port == "" {
		return fmt.Errorf("server.port must not be empty")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret must not be empty")
	}
	if c.JWT.TTL <= 0 {
		return fmt.Errorf("jwt.ttl must be positive")
	}
	if c.Redis.StateTTL < 0 {
		return fmt.Errorf("redis.state_ttl must not be negative")
	}
	return nil
}

// UsesDefaultSecret reports whether the JWT secret was left at its default.
func (c *Config) UsesDefaultSecret() bool {
	return c.JWT.Secret == defaultJWTSecret
}

// Dialector builds the gorm dialector for the configured driver.
func (c *Config) Dialector() gorm.Dialector {
	db := c.Database
	switch db.Driver {
	case DriverMySQL:
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			db.User, db.Password, db.Host, db.Port, db.Name)
		return mysql.Open(dsn)
	case DriverSQLite:
		return sqlite.Open(db.Path + "?_foreign_keys=on&_busy_timeout=5000")
	default:
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			db.Host, db.User, db.Password, db.Name, db.Port)
		return postgres.Open(dsn)
	}
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	db, err := gorm.Open(cfg.Dialector(), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg.Database.Driver == DriverSQLite {
		// A single writer avoids SQLITE_BUSY under concurrent mutations.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	return db, nil
}

// InitRedis returns nil when Redis is disabled.
func InitRedis(cfg *Config) (*redis.Client, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
