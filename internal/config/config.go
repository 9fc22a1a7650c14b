// Package config loads service configuration from defaults, an optional
// YAML file and PIXELVAULT_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/dunamismax/pixelvault/internal/domain"
	"github.com/dunamismax/pixelvault/internal/logging"
	"github.com/dunamismax/pixelvault/internal/storage"
	"github.com/dunamismax/pixelvault/internal/telemetry"
	"github.com/dunamismax/pixelvault/internal/variant"
)

const EnvPrefix = "PIXELVAULT"

type Config struct {
	Log      logging.Config        `mapstructure:"log"`
	API      APIConfig             `mapstructure:"api"`
	Redis    RedisConfig           `mapstructure:"redis"`
	Queue    QueueConfig           `mapstructure:"queue"`
	Worker   WorkerConfig          `mapstructure:"worker"`
	Storage  StorageConfig         `mapstructure:"storage"`
	Database DatabaseConfig        `mapstructure:"database"`
	Imaging  ImagingConfig         `mapstructure:"imaging"`
	Variants variant.Config        `mapstructure:"variants"`
	Tracing  telemetry.TraceConfig `mapstructure:"tracing"`
}

type APIConfig struct {
	Addr       string          `mapstructure:"addr"`
	PresignTTL time.Duration   `mapstructure:"presignTTL"`
	RateLimit  RateLimitConfig `mapstructure:"rateLimit"`
}

type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Capacity int           `mapstructure:"capacity"`
	Window   time.Duration `mapstructure:"window"`
}

// RedisConfig is shared by the queue, the variant index and the rate limiter.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r RedisConfig) ClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     r.Addr,
		Password: r.Password,
		DB:       r.DB,
	}
}

func (r RedisConfig) Options() *redis.Options {
	return &redis.Options{
		Addr:     r.Addr,
		Password: r.Password,
		DB:       r.DB,
	}
}

type QueueConfig struct {
	Name     string        `mapstructure:"name"`
	MaxRetry int           `mapstructure:"maxRetry"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type WorkerConfig struct {
	Concurrency    int    `mapstructure:"concurrency"`
	MaxActiveJobs  int    `mapstructure:"maxActiveJobs"`
	LocalOutputDir string `mapstructure:"localOutputDir"`
	OutputPrefix   string `mapstructure:"outputPrefix"`
	MetricsAddr    string `mapstructure:"metricsAddr"`
}

type StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"accessKey"`
	SecretKey string `mapstructure:"secretKey"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"useSSL"`
}

func (s StorageConfig) ClientConfig() storage.Config {
	return storage.Config{
		Endpoint: s.Endpoint,
		Access:   s.AccessKey,
		Secret:   s.SecretKey,
		Bucket:   s.Bucket,
		UseSSL:   s.UseSSL,
	}
}

// DatabaseConfig selects the job store; an empty DSN keeps jobs in memory.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type ImagingConfig struct {
	MaxPixels   int    `mapstructure:"maxPixels"`
	PresetsFile string `mapstructure:"presetsFile"`
	// Transformations maps extra names to builtin type identifiers. Keys are
	// lowercased by viper.
	Transformations map[string]string `mapstructure:"transformations"`
}

// Presets loads PresetsFile, or returns none when it is unset.
func (c ImagingConfig) Presets() (map[string]domain.Preset, error) {
	if strings.TrimSpace(c.PresetsFile) == "" {
		return nil, nil
	}
	return LoadPresets(c.PresetsFile)
}

// New returns a viper instance carrying every default and the environment
// binding. Callers may bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	workerSlots := max(1, runtime.NumCPU()/2)
	vc := variant.DefaultConfig()

	defaults := map[string]any{
		"log.dev":     false,
		"log.level":   "",
		"log.service": "pixelvault",

		"api.addr":               ":8080",
		"api.presignTTL":         15 * time.Minute,
		"api.rateLimit.enabled":  false,
		"api.rateLimit.capacity": 60,
		"api.rateLimit.window":   time.Minute,

		"redis.addr":     "localhost:6379",
		"redis.password": "",
		"redis.db":       0,

		"queue.name":     "default",
		"queue.maxRetry": 5,
		"queue.timeout":  3 * time.Minute,

		"worker.concurrency":    max(2, runtime.NumCPU()),
		"worker.maxActiveJobs":  workerSlots,
		"worker.localOutputDir": "./.pixelvault-output",
		"worker.outputPrefix":   "outputs",
		"worker.metricsAddr":    ":9091",

		"storage.endpoint":  "localhost:9000",
		"storage.accessKey": "minioadmin",
		"storage.secretKey": "minioadmin",
		"storage.bucket":    "pixelvault",
		"storage.useSSL":    false,

		"database.dsn": "",

		"imaging.maxPixels":       40_000_000,
		"imaging.presetsFile":     "",

		"variants.enabled":     vc.Enabled,
		"variants.scaleFactor": vc.ScaleFactor,
		"variants.minWidth":    vc.MinWidth,
		"variants.maxWidth":    vc.MaxWidth,
		"variants.minDiff":     vc.MinDiff,
		"variants.widths":      []int{},
		"variants.extension":   vc.Extension,
		"variants.quality":     vc.Quality,
		"variants.concurrency": vc.Concurrency,

		"tracing.serviceName":  "pixelvault",
		"tracing.exporter":     "none",
		"tracing.otlpEndpoint": "",
		"tracing.otlpInsecure": false,
		"tracing.sampleRatio":  1.0,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// Load reads file when non-empty and decodes v into a Config.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Worker.Concurrency <= 0 {
		errs = append(errs, errors.New("worker.concurrency must be positive"))
	}
	if c.Worker.MaxActiveJobs <= 0 {
		errs = append(errs, errors.New("worker.maxActiveJobs must be positive"))
	}
	if c.Queue.Name == "" {
		errs = append(errs, errors.New("queue.name is required"))
	}
	if c.Variants.ScaleFactor <= 0 || c.Variants.ScaleFactor >= 1 {
		errs = append(errs, fmt.Errorf("variants.scaleFactor must be within (0, 1), got %g", c.Variants.ScaleFactor))
	}
	if c.API.RateLimit.Enabled && (c.API.RateLimit.Capacity <= 0 || c.API.RateLimit.Window <= 0) {
		errs = append(errs, errors.New("api.rateLimit needs a positive capacity and window"))
	}
	return errors.Join(errs...)
}
