// Package config loads service configuration from config.yaml, .env files
// and IMPORT_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rpattn/bulkimport/internal/db"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Stall    StallConfig    `mapstructure:"stall"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes" validate:"gt=0"`
}

// DatabaseConfig selects and configures the job and sales store.
type DatabaseConfig struct {
	Driver     string `mapstructure:"driver" validate:"oneof=postgres sqlite memory"`
	Host       string `mapstructure:"host" validate:"required_if=Driver postgres"`
	Port       int    `mapstructure:"port" validate:"required_if=Driver postgres,gte=0,lte=65535"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	Name       string `mapstructure:"dbname" validate:"required_if=Driver postgres"`
	SSLMode    string `mapstructure:"sslmode"`
	MaxConns   int32  `mapstructure:"max_conns" validate:"gte=0"`
	SQLitePath string `mapstructure:"sqlite_path" validate:"required_if=Driver sqlite"`
	Migrate    bool   `mapstructure:"migrate"`
}

// Postgres converts the settings into a pool configuration.
func (d DatabaseConfig) Postgres() db.Config {
	return db.Config{
		Host:     d.Host,
		Port:     d.Port,
		User:     d.User,
		Password: d.Password,
		DBName:   d.Name,
		SSLMode:  d.SSLMode,
		MaxConns: d.MaxConns,
	}
}

type StorageConfig struct {
	UploadDir string `mapstructure:"upload_dir" validate:"required"`
}

// DispatchConfig chooses how jobs are handed to the processor.
type DispatchConfig struct {
	Mode          string        `mapstructure:"mode" validate:"oneof=sync async redis"`
	Workers       int           `mapstructure:"workers" validate:"gte=1"`
	JobTimeout    time.Duration `mapstructure:"job_timeout" validate:"gte=0"`
	RedisAddr     string        `mapstructure:"redis_addr" validate:"required_if=Mode redis"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db" validate:"gte=0"`
	QueueKey      string        `mapstructure:"queue_key"`
	RunWorker     bool          `mapstructure:"run_worker"`
}

type StallConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"gt=0"`
	Interval time.Duration `mapstructure:"interval" validate:"gt=0"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn warning error"`
	File  string `mapstructure:"file"`
}

// SlogLevel maps the configured level name.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	pg := db.DefaultConfig()
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			AllowedOrigins:  []string{"*"},
			ShutdownTimeout: 15 * time.Second,
			MaxUploadBytes:  32 << 20,
		},
		Database: DatabaseConfig{
			Driver:     "postgres",
			Host:       pg.Host,
			Port:       pg.Port,
			User:       pg.User,
			Password:   pg.Password,
			Name:       pg.DBName,
			SSLMode:    pg.SSLMode,
			MaxConns:   pg.MaxConns,
			SQLitePath: "bulkimport.db",
			Migrate:    true,
		},
		Storage: StorageConfig{
			UploadDir: "uploads",
		},
		Dispatch: DispatchConfig{
			Mode:       "async",
			Workers:    4,
			JobTimeout: 0, // no limit
			RedisAddr:  "localhost:6379",
			QueueKey:   "bulkimport:jobs",
			RunWorker:  true,
		},
		Stall: StallConfig{
			Enabled:  true,
			Timeout:  10 * time.Minute,
			Interval: 5 * time.Minute,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func (c Config) String() string {
	return fmt.Sprintf("server=%s database=%s dispatch=%s uploads=%s", c.Server.Addr, c.Database.Driver, c.Dispatch.Mode, c.Storage.UploadDir)
}
