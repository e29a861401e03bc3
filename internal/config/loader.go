package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. IMPORT_DATABASE_HOST.
const EnvPrefix = "IMPORT"

var defaultEnvFiles = []string{".env", ".env.local"}

// LoadEnv loads the env files that exist. Variables already set in the
// process environment win.
func LoadEnv(files ...string) (int, error) {
	existing := make([]string, 0, len(files))
	for _, file := range files {
		if info, err := os.Stat(file); err == nil && !info.IsDir() {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// Load reads configuration. path may name a YAML file or a directory that
// holds config.yaml; an empty path searches the working directory. A missing
// config.yaml in a searched directory is not an error.
func Load(path string) (Config, error) {
	if _, err := LoadEnv(defaultEnvFiles...); err != nil {
		return Config{}, fmt.Errorf("failed to load env files: %w", err)
	}

	v := viper.New()
	setDefaults(v, Defaults())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicitFile := false
	if path != "" {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			v.SetConfigFile(path)
			explicitFile = true
		} else {
			v.AddConfigPath(path)
		}
	} else {
		v.AddConfigPath(".")
	}
	if !explicitFile {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicitFile || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		slog.Debug("no config.yaml found, using defaults and env vars")
	} else {
		slog.Debug("loaded config file", "file", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks struct constraints.
func Validate(cfg Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) {
			msgs := make([]string, 0, len(invalid))
			for _, fieldErr := range invalid {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fieldErr.Namespace(), fieldErr.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.max_upload_bytes", d.Server.MaxUploadBytes)

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.user", d.Database.User)
	v.SetDefault("database.password", d.Database.Password)
	v.SetDefault("database.dbname", d.Database.Name)
	v.SetDefault("database.sslmode", d.Database.SSLMode)
	v.SetDefault("database.max_conns", d.Database.MaxConns)
	v.SetDefault("database.sqlite_path", d.Database.SQLitePath)
	v.SetDefault("database.migrate", d.Database.Migrate)

	v.SetDefault("storage.upload_dir", d.Storage.UploadDir)

	v.SetDefault("dispatch.mode", d.Dispatch.Mode)
	v.SetDefault("dispatch.workers", d.Dispatch.Workers)
	v.SetDefault("dispatch.job_timeout", d.Dispatch.JobTimeout)
	v.SetDefault("dispatch.redis_addr", d.Dispatch.RedisAddr)
	v.SetDefault("dispatch.redis_password", d.Dispatch.RedisPassword)
	v.SetDefault("dispatch.redis_db", d.Dispatch.RedisDB)
	v.SetDefault("dispatch.queue_key", d.Dispatch.QueueKey)
	v.SetDefault("dispatch.run_worker", d.Dispatch.RunWorker)

	v.SetDefault("stall.enabled", d.Stall.Enabled)
	v.SetDefault("stall.timeout", d.Stall.Timeout)
	v.SetDefault("stall.interval", d.Stall.Interval)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
}
