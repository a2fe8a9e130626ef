package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	StoreDriver string   `mapstructure:"STORE_DRIVER"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	MongoURI    string   `mapstructure:"MONGO_URI"`
	MongoDB     string   `mapstructure:"MONGO_DATABASE"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	JWTSecret    string        `mapstructure:"JWT_SECRET"`
	JWTTTL       time.Duration `mapstructure:"JWT_TTL"`
	AuthIssuer   string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL  string        `mapstructure:"AUTH_JWKS_URL"`
	DevDoctorID  string        `mapstructure:"DEV_DOCTOR_ID"`

	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	UploadDir      string `mapstructure:"UPLOAD_DIR"`
	MaxUploadBytes int64  `mapstructure:"MAX_UPLOAD_BYTES"`

	JobQueuePath          string        `mapstructure:"JOBQUEUE_PATH"`
	ProcessingDelay       time.Duration `mapstructure:"PROCESSING_DELAY"`
	ProcessingMaxAttempts int           `mapstructure:"PROCESSING_MAX_ATTEMPTS"`
	ProcessingWorkers     int           `mapstructure:"PROCESSING_WORKERS"`
	ReconcileInterval     time.Duration `mapstructure:"RECONCILE_INTERVAL"`
	ReconcileStaleAfter   time.Duration `mapstructure:"RECONCILE_STALE_AFTER"`

	AppointmentStatusPolicy string `mapstructure:"APPOINTMENT_STATUS_POLICY"`

	EventsDriver    string   `mapstructure:"EVENTS_DRIVER"`
	MQTTBrokerURL   string   `mapstructure:"MQTT_BROKER_URL"`
	MQTTClientID    string   `mapstructure:"MQTT_CLIENT_ID"`
	MQTTUsername    string   `mapstructure:"MQTT_USERNAME"`
	MQTTPassword    string   `mapstructure:"MQTT_PASSWORD"`
	MQTTTopicPrefix string   `mapstructure:"MQTT_TOPIC_PREFIX"`
	KafkaBrokers    []string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic      string   `mapstructure:"KAFKA_TOPIC"`

	LogLevel string `mapstructure:"LOG_LEVEL"`
	LogFile  string `mapstructure:"LOG_FILE"`

	TLSEnabled  bool   `mapstructure:"TLS_ENABLED"`
	TLSCertFile string `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile  string `mapstructure:"TLS_KEY_FILE"`
}

var keys = []string{
	"PORT", "ENV", "STORE_DRIVER", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"MONGO_URI", "MONGO_DATABASE", "CORS_ORIGINS",
	"JWT_SECRET", "JWT_TTL", "AUTH_ISSUER", "AUTH_JWKS_URL", "DEV_DOCTOR_ID",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT",
	"UPLOAD_DIR", "MAX_UPLOAD_BYTES",
	"JOBQUEUE_PATH", "PROCESSING_DELAY", "PROCESSING_MAX_ATTEMPTS", "PROCESSING_WORKERS",
	"RECONCILE_INTERVAL", "RECONCILE_STALE_AFTER",
	"APPOINTMENT_STATUS_POLICY",
	"EVENTS_DRIVER", "MQTT_BROKER_URL", "MQTT_CLIENT_ID", "MQTT_USERNAME", "MQTT_PASSWORD",
	"MQTT_TOPIC_PREFIX", "KAFKA_BROKERS", "KAFKA_TOPIC",
	"LOG_LEVEL", "LOG_FILE",
	"TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
}

func Load() (*Config, error) {
	// .env values never override the real environment.
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "5000")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORE_DRIVER", "postgres")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DATABASE", "medicare")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("JWT_TTL", "24h")
	v.SetDefault("DEV_DOCTOR_ID", "00000000-0000-0000-0000-000000000001")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("UPLOAD_DIR", "uploads/analysis")
	v.SetDefault("MAX_UPLOAD_BYTES", 10*1024*1024)
	v.SetDefault("JOBQUEUE_PATH", "data/jobs.db")
	v.SetDefault("PROCESSING_DELAY", "3s")
	v.SetDefault("PROCESSING_MAX_ATTEMPTS", 5)
	v.SetDefault("PROCESSING_WORKERS", 2)
	v.SetDefault("RECONCILE_INTERVAL", "1m")
	v.SetDefault("RECONCILE_STALE_AFTER", "2m")
	v.SetDefault("APPOINTMENT_STATUS_POLICY", "permissive")
	v.SetDefault("EVENTS_DRIVER", "none")
	v.SetDefault("MQTT_CLIENT_ID", "app4doctors-api")
	v.SetDefault("MQTT_TOPIC_PREFIX", "app4doctors")
	v.SetDefault("KAFKA_TOPIC", "app4doctors.events")
	v.SetDefault("LOG_LEVEL", "info")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins, v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers, v.GetString("KAFKA_BROKERS"))

	if cfg.StoreDriver == "postgres" && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is postgres")
	}

	return cfg, nil
}

// splitList normalises comma separated env values; viper may hand them over
// either as one element or already split with surrounding spaces.
func splitList(parsed []string, raw string) []string {
	if len(parsed) == 0 && raw != "" {
		parsed = []string{raw}
	}
	var out []string
	for _, item := range parsed {
		for _, s := range strings.Split(item, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// a JWT secret or a JWKS URL must be configured so tokens are verified.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "postgres", "mongo":
	default:
		return fmt.Errorf("STORE_DRIVER must be \"postgres\" or \"mongo\", got %q", c.StoreDriver)
	}

	switch c.AppointmentStatusPolicy {
	case "permissive", "forward-only":
	default:
		return fmt.Errorf("APPOINTMENT_STATUS_POLICY must be \"permissive\" or \"forward-only\", got %q", c.AppointmentStatusPolicy)
	}

	switch c.EventsDriver {
	case "none", "":
	case "mqtt":
		if c.MQTTBrokerURL == "" {
			return fmt.Errorf("MQTT_BROKER_URL is required when EVENTS_DRIVER is mqtt")
		}
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required when EVENTS_DRIVER is kafka")
		}
	default:
		return fmt.Errorf("EVENTS_DRIVER must be \"none\", \"mqtt\" or \"kafka\", got %q", c.EventsDriver)
	}

	if !c.IsDev() && c.JWTSecret == "" && c.AuthJWKSURL == "" {
		return fmt.Errorf("JWT_SECRET or AUTH_JWKS_URL must be set when ENV=%q", c.Env)
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < 32 && c.IsProduction() {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
	}

	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if c.ProcessingMaxAttempts < 1 {
		return fmt.Errorf("PROCESSING_MAX_ATTEMPTS must be at least 1")
	}

	// TLS validation: when TLS is enabled, cert and key files must be specified.
	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}

	return nil
}
