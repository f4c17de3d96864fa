package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

type Config struct {
	Server struct {
		Port            int               `yaml:"port" validate:"min=1,max=65535"`
		APIKeys         map[string]string `yaml:"apiKeys"` // tenant -> api key, empty disables auth
		RateLimit       int               `yaml:"rateLimit" validate:"min=1"`
		AllowedOrigins  []string          `yaml:"allowedOrigins"`
		MaxUploadMB     int64             `yaml:"maxUploadMB" validate:"min=1"`
		ShutdownSeconds int               `yaml:"shutdownSeconds" validate:"min=1"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver" validate:"oneof=mysql postgres sqlite3"`
		DSN      string `yaml:"dsn"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		Path     string `yaml:"path"`
	} `yaml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint" validate:"required"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName" validate:"required"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	OpenAI struct {
		APIKey  string `yaml:"apiKey"`
		Model   string `yaml:"model"`
		BaseURL string `yaml:"baseURL"`
	} `yaml:"openai"`

	Import struct {
		Dir      string `yaml:"dir"`
		Schedule string `yaml:"schedule"`
		Tenant   string `yaml:"tenant"`
	} `yaml:"import"`

	Cache struct {
		TTLMinutes int `yaml:"ttlMinutes" validate:"min=1"`
	} `yaml:"cache"`

	Log struct {
		Level string `yaml:"level" validate:"oneof=debug info warn error"`
	} `yaml:"log"`
}

// Load baca file config.yaml, lalu env override dan default.
// File yang tidak ada tidak dianggap error.
func Load(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrapf(err, "parsing %s", path)
		}
	case !os.IsNotExist(err):
		return nil, errors.Wrapf(err, "reading %s", path)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	var errs []error
	errs = append(errs, envOverrideInt(&cfg.Server.Port, "SERVER_PORT"))
	errs = append(errs, envOverrideInt(&cfg.Server.RateLimit, "SERVER_RATE_LIMIT"))
	if origins := os.Getenv("SERVER_ALLOWED_ORIGINS"); origins != "" {
		cfg.Server.AllowedOrigins = splitList(origins)
	}
	// API_KEYS="tenantA=key1,tenantB=key2"
	if keys := os.Getenv("API_KEYS"); keys != "" {
		cfg.Server.APIKeys = map[string]string{}
		for _, pair := range splitList(keys) {
			tenant, key, ok := strings.Cut(pair, "=")
			if !ok || tenant == "" || key == "" {
				errs = append(errs, errors.Newf("invalid API_KEYS entry %q", pair))
				continue
			}
			cfg.Server.APIKeys[tenant] = key
		}
	}

	envOverride(&cfg.Database.Driver, "DB_DRIVER")
	envOverride(&cfg.Database.DSN, "DB_DSN")
	envOverride(&cfg.Database.Host, "DB_HOST")
	errs = append(errs, envOverrideInt(&cfg.Database.Port, "DB_PORT"))
	envOverride(&cfg.Database.User, "DB_USER")
	envOverride(&cfg.Database.Password, "DB_PASSWORD")
	envOverride(&cfg.Database.Name, "DB_NAME")
	envOverride(&cfg.Database.Path, "DB_PATH")

	envOverride(&cfg.Minio.Endpoint, "MINIO_ENDPOINT")
	envOverride(&cfg.Minio.AccessKey, "MINIO_ACCESS_KEY")
	envOverride(&cfg.Minio.SecretKey, "MINIO_SECRET_KEY")
	envOverride(&cfg.Minio.BucketName, "MINIO_BUCKET")
	envOverride(&cfg.Minio.Region, "MINIO_REGION")
	envOverrideBool(&cfg.Minio.UseSSL, "MINIO_USE_SSL")

	envOverride(&cfg.OpenAI.APIKey, "OPENAI_API_KEY")
	envOverride(&cfg.OpenAI.Model, "OPENAI_MODEL")
	envOverride(&cfg.OpenAI.BaseURL, "OPENAI_BASE_URL")

	envOverride(&cfg.Import.Dir, "IMPORT_DIR")
	envOverrideAllowEmpty(&cfg.Import.Schedule, "IMPORT_SCHEDULE")
	envOverride(&cfg.Import.Tenant, "IMPORT_TENANT")

	errs = append(errs, envOverrideInt(&cfg.Cache.TTLMinutes, "CACHE_TTL_MINUTES"))
	envOverride(&cfg.Log.Level, "LOG_LEVEL")

	return errors.Join(errs...)
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = 100
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 64
	}
	if cfg.Server.ShutdownSeconds == 0 {
		cfg.Server.ShutdownSeconds = 10
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverMySQL
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./invoice-audit.db"
	}
	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = "gpt-4o-mini"
	}
	if cfg.Import.Tenant == "" {
		cfg.Import.Tenant = "default"
	}
	if cfg.Cache.TTLMinutes == 0 {
		cfg.Cache.TTLMinutes = 30
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

var validate = validator.New()

// Validate checks field constraints and the cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	if c.Database.Driver != DriverSQLite && c.Database.DSN == "" && c.Database.Host == "" {
		return errors.Newf("database.host or database.dsn is required for driver %s", c.Database.Driver)
	}
	if c.ImportEnabled() && c.Import.Tenant == "" {
		return errors.New("import.tenant is required when import is enabled")
	}
	return nil
}

// DSN builds the connection string for the configured driver.
func (c *Config) DSN() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	switch c.Database.Driver {
	case DriverPostgres:
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Database.Host, c.Database.Port, c.Database.User, c.Database.Password, c.Database.Name)
	case DriverSQLite:
		return c.Database.Path
	default:
		return c.MySQLDSN()
	}
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

func (c *Config) AIEnabled() bool     { return c.OpenAI.APIKey != "" }
func (c *Config) ImportEnabled() bool { return c.Import.Dir != "" && c.Import.Schedule != "" }

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideAllowEmpty(field *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return errors.Wrapf(err, "invalid %s '%s'", envKey, val)
		}
		*field = parsed
	}
	return nil
}

func envOverrideBool(field *bool, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = strings.EqualFold(val, "true") || val == "1"
	}
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
