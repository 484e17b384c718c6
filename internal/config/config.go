package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode      Mode   `mapstructure:"MODE"`
	HTTPAddr  string `mapstructure:"HTTP_ADDR"`
	PublicURL string `mapstructure:"PUBLIC_URL"`

	DBDriver string `mapstructure:"DB_DRIVER"` // sqlite|postgres|memory
	DBDSN    string `mapstructure:"DB_DSN"`

	BlobDriver   string `mapstructure:"BLOB_DRIVER"`    // fs|minio|mem
	BlobBasePath string `mapstructure:"BLOB_BASE_PATH"` // for fs

	MinioEndpoint  string `mapstructure:"MINIO_ENDPOINT"`
	MinioAccessKey string `mapstructure:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `mapstructure:"MINIO_SECRET_KEY"`
	MinioBucket    string `mapstructure:"MINIO_BUCKET"`
	MinioUseSSL    bool   `mapstructure:"MINIO_USE_SSL"`

	AuthHMACSecret string `mapstructure:"AUTH_HMAC_SECRET"`
	AdminUser      string `mapstructure:"ADMIN_USER"`
	AdminPassHash  string `mapstructure:"ADMIN_PASS_HASH"` // bcrypt

	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	LogLevel string `mapstructure:"LOG_LEVEL"`
	LogFile  string `mapstructure:"LOG_FILE"`

	TracingEnabled  bool   `mapstructure:"TRACING_ENABLED"`
	TracingEndpoint string `mapstructure:"TRACING_ENDPOINT"`

	ImportMaxBytes int64 `mapstructure:"IMPORT_MAX_BYTES"`
	ImportWorkers  int   `mapstructure:"IMPORT_WORKERS"`
	// ExportStrict refuses exports that would leave questions out.
	ExportStrict bool `mapstructure:"EXPORT_STRICT"`
}

var defaults = map[string]any{
	"MODE":             string(ModeOffline),
	"HTTP_ADDR":        ":8080",
	"DB_DRIVER":        "sqlite",
	"BLOB_DRIVER":      "fs",
	"BLOB_BASE_PATH":   "./data",
	"MINIO_BUCKET":     "viva",
	"AUTH_HMAC_SECRET": "supersecret-dev-key",
	"ADMIN_USER":       "admin",
	"ADMIN_PASS_HASH":  "$2y$12$pyZAiWaTfVtM7UElIRStvOC3gNbnp70nmQU4eYopLGBfCJr1DOvji",
	"CORS_ORIGINS":     "http://localhost:3000",
	"LOG_LEVEL":        "info",
	"TRACING_ENDPOINT": "http://localhost:14268/api/traces",
	"IMPORT_MAX_BYTES": 50 << 20,
	"IMPORT_WORKERS":   4,
}

// FromEnv reads the process environment over built-in defaults. When
// VIVA_CONFIG names a YAML file its values sit between the two.
func FromEnv() (Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (Config, error) {
	for k, val := range defaults {
		v.SetDefault(k, val)
		// AutomaticEnv only consults keys viper already knows about
		_ = v.BindEnv(k)
	}
	for _, k := range []string{"PUBLIC_URL", "DB_DSN", "MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY",
		"MINIO_USE_SSL", "LOG_FILE", "TRACING_ENABLED", "EXPORT_STRICT"} {
		_ = v.BindEnv(k)
	}
	v.AutomaticEnv()

	_ = v.BindEnv("VIVA_CONFIG")
	if file := v.GetString("VIVA_CONFIG"); file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	// the environment gives one comma list, YAML may give a sequence
	cfg.CORSOrigins = splitCSV(strings.Join(cfg.CORSOrigins, ","))
	if cfg.ImportWorkers <= 0 {
		cfg.ImportWorkers = 1
	}
	return cfg, nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
