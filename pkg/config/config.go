package config

import (
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

type Config struct {
	Environment               string        `koanf:"environment"`
	DatabaseDriver            string        `koanf:"database_driver" validate:"oneof=sqlite postgres"`
	DatabaseFilePath          string        `koanf:"database_file_path"`
	DatabaseURL               string        `koanf:"database_url"`
	DatabaseDebug             bool          `koanf:"database_debug"`
	DatabaseConnectRetryCount int           `koanf:"database_connect_retry_count" validate:"min=1"`
	DatabaseConnectRetryDelay time.Duration `koanf:"database_connect_retry_delay"`
	DatabaseBusyTimeout       time.Duration `koanf:"database_busy_timeout"`
	ServerHost                string        `koanf:"server_host"`
	ServerPort                int           `koanf:"server_port" validate:"min=0,max=65535"`
	JWTSecret                 string        `koanf:"jwt_secret"`
	SessionTTL                time.Duration `koanf:"session_ttl" validate:"gt=0"`
	AuthRateLimit             float64       `koanf:"auth_rate_limit" validate:"gte=0"`
	StorageBackend            string        `koanf:"storage_backend" validate:"oneof=filesystem bucket"`
	StorageDir                string        `koanf:"storage_dir"`
	StoragePublicURL          string        `koanf:"storage_public_url"`
	StorageBucketURL          string        `koanf:"storage_bucket_url"`
	StorageBucketName         string        `koanf:"storage_bucket_name"`
	StorageBucketKey          string        `koanf:"storage_bucket_key"`
	ImageMaxBytes             int64         `koanf:"image_max_bytes" validate:"gt=0"`
	ImageUploadFailurePolicy  string        `koanf:"image_upload_failure_policy" validate:"oneof=proceed abort"`
	SubmissionAtomic          bool          `koanf:"submission_atomic"`
	RedisURL                  string        `koanf:"redis_url"`
	ViewCacheTTL              time.Duration `koanf:"view_cache_ttl"`
}

const (
	environmentENV = "ENVIRONMENT"
	configFileENV  = "CONFIG_FILE"

	defaultConfigFile = "/config/config.yaml"
)

// New builds the configuration from defaults, the optional YAML config file
// and environment variables, in increasing order of precedence.
func New() (*Config, error) {
	cfg := defaults()

	switch os.Getenv(environmentENV) {
	case "development":
		loadDevelopmentConfig(cfg)
	case "test":
		loadTestConfig(cfg)
	}

	k := koanf.New(".")

	configFile := os.Getenv(configFileENV)
	if configFile == "" {
		configFile = defaultConfigFile
	}
	if _, err := os.Stat(configFile); err == nil {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "failed to load config file %s", configFile)
		}
	}

	known := knownKeys()
	err := k.Load(env.Provider("", ".", func(s string) string {
		key := strings.ToLower(s)
		if _, ok := known[key]; !ok {
			return ""
		}
		return key
	}), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load environment")
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// NewForTest returns a configuration backed by an in-memory database.
func NewForTest() *Config {
	cfg := defaults()
	loadTestConfig(cfg)
	return cfg
}

func defaults() *Config {
	return &Config{
		DatabaseDriver:            "sqlite",
		DatabaseConnectRetryCount: 5,
		DatabaseConnectRetryDelay: 2 * time.Second,
		DatabaseBusyTimeout:       5 * time.Second,
		ServerHost:                "0.0.0.0",
		ServerPort:                3690,
		SessionTTL:                7 * 24 * time.Hour,
		AuthRateLimit:             5,
		StorageBackend:            "filesystem",
		StorageDir:                "/data/images",
		StorageBucketName:         "entry-images",
		ImageMaxBytes:             10 << 20,
		ImageUploadFailurePolicy:  "proceed",
		ViewCacheTTL:              10 * time.Minute,
	}
}

func (cfg *Config) validate() error {
	required := []string{"jwt_secret"}
	switch cfg.DatabaseDriver {
	case "postgres":
		required = append(required, "database_url")
	default:
		required = append(required, "database_file_path")
	}
	if cfg.StorageBackend == "bucket" {
		required = append(required, "storage_bucket_url", "storage_bucket_key")
	}

	values := valuesByKey(cfg)
	for _, key := range required {
		if values[key].IsZero() {
			return errors.Errorf("missing required config: %s (%s)", strings.ToUpper(key), key)
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return errors.Errorf("invalid config: %s failed %q", toSnakeCase(verrs[0].Field()), verrs[0].Tag())
		}
		return errors.WithStack(err)
	}

	return nil
}

func knownKeys() map[string]struct{} {
	keys := map[string]struct{}{}
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		keys[t.Field(i).Tag.Get("koanf")] = struct{}{}
	}
	return keys
}

func valuesByKey(cfg *Config) map[string]reflect.Value {
	values := map[string]reflect.Value{}
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		values[t.Field(i).Tag.Get("koanf")] = v.Field(i)
	}
	return values
}
