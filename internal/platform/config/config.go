package config

import (
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	EgressSandbox = "sandbox"
	EgressHTTP    = "http"

	JTIStore = "store"
	JTIRedis = "redis"
)

const insecureJWTSecret = "apgms-dev-secret-change-me"

// Config holds application configuration.
type Config struct {
	Port           string
	IsProduction   bool
	DatabaseURL    string
	StoreDriver    string
	MigrationsPath string

	// RPT key material
	RPTPrivateKey  string
	RPTPublicKey   string
	RPTSecret      string
	RPTTrustedKeys []string
	RPTTTL         time.Duration

	EnableIdempotency bool
	IdempotencyTTL    time.Duration
	SweepInterval     time.Duration

	KillSwitch     bool
	EgressProvider string
	EgressBaseURL  string
	EgressTimeout  time.Duration

	RedisURL   string
	JTIBackend string

	AuthEnabled bool
	JWTSecret   string
	JWTIssuer   string

	RemitRateLimit     string
	CORSAllowedOrigins []string
	GateOverrideActors []string
	RequestTimeout     time.Duration
}

// LoadConfig loads configuration from environment variables and .env file if present.
func LoadConfig() (*Config, error) {
	// Attempt to load .env file, ignore error if it doesn't exist
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("PORT", "8080")
	v.SetDefault("IS_PRODUCTION", false)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("STORE_DRIVER", StorePostgres)
	v.SetDefault("MIGRATIONS_PATH", "file://migrations")
	v.SetDefault("APGMS_RPT_PRIVATE_KEY", "")
	v.SetDefault("APGMS_RPT_PUBLIC_KEY", "")
	v.SetDefault("APGMS_RPT_SECRET", "")
	v.SetDefault("APGMS_RPT_TRUSTED_KEYS", "")
	v.SetDefault("APGMS_RPT_TTL", "10m")
	v.SetDefault("PROTO_ENABLE_IDEMPOTENCY", true)
	v.SetDefault("IDEMPOTENCY_TTL", "24h")
	v.SetDefault("IDEMPOTENCY_SWEEP_INTERVAL", "5m")
	v.SetDefault("PROTO_KILL_SWITCH", false)
	v.SetDefault("EGRESS_PROVIDER", EgressSandbox)
	v.SetDefault("EGRESS_BASE_URL", "")
	v.SetDefault("EGRESS_TIMEOUT", "15s")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("JTI_BACKEND", JTIStore)
	v.SetDefault("AUTH_ENABLED", false)
	v.SetDefault("JWT_SECRET", insecureJWTSecret)
	v.SetDefault("JWT_ISSUER", "apgms")
	v.SetDefault("REMIT_RATE_LIMIT", "60-M")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("GATE_OVERRIDE_ACTORS", "")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.AutomaticEnv()

	cfg := &Config{
		Port:               v.GetString("PORT"),
		IsProduction:       v.GetBool("IS_PRODUCTION"),
		DatabaseURL:        v.GetString("DATABASE_URL"),
		StoreDriver:        strings.ToLower(v.GetString("STORE_DRIVER")),
		MigrationsPath:     v.GetString("MIGRATIONS_PATH"),
		RPTPrivateKey:      v.GetString("APGMS_RPT_PRIVATE_KEY"),
		RPTPublicKey:       v.GetString("APGMS_RPT_PUBLIC_KEY"),
		RPTSecret:          v.GetString("APGMS_RPT_SECRET"),
		RPTTrustedKeys:     splitList(v.GetString("APGMS_RPT_TRUSTED_KEYS")),
		EnableIdempotency:  v.GetBool("PROTO_ENABLE_IDEMPOTENCY"),
		KillSwitch:         v.GetBool("PROTO_KILL_SWITCH"),
		EgressProvider:     strings.ToLower(v.GetString("EGRESS_PROVIDER")),
		EgressBaseURL:      v.GetString("EGRESS_BASE_URL"),
		RedisURL:           v.GetString("REDIS_URL"),
		JTIBackend:         strings.ToLower(v.GetString("JTI_BACKEND")),
		AuthEnabled:        v.GetBool("AUTH_ENABLED"),
		JWTSecret:          v.GetString("JWT_SECRET"),
		JWTIssuer:          v.GetString("JWT_ISSUER"),
		RemitRateLimit:     v.GetString("REMIT_RATE_LIMIT"),
		CORSAllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		GateOverrideActors: splitList(v.GetString("GATE_OVERRIDE_ACTORS")),
	}

	var err error
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"APGMS_RPT_TTL", &cfg.RPTTTL},
		{"IDEMPOTENCY_TTL", &cfg.IdempotencyTTL},
		{"IDEMPOTENCY_SWEEP_INTERVAL", &cfg.SweepInterval},
		{"EGRESS_TIMEOUT", &cfg.EgressTimeout},
		{"REQUEST_TIMEOUT", &cfg.RequestTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = time.ParseDuration(v.GetString(d.key)); err != nil || *d.dst <= 0 {
			return nil, fmt.Errorf("invalid value for %s (%q)", d.key, v.GetString(d.key))
		}
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = dsnFromPGEnv(v)
	}

	switch cfg.StoreDriver {
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL or PGHOST must be set when STORE_DRIVER=%s", StorePostgres)
		}
	case StoreMemory:
		log.Println("Warning: STORE_DRIVER=memory, state is lost on restart.")
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	switch cfg.EgressProvider {
	case EgressSandbox:
	case EgressHTTP:
		if cfg.EgressBaseURL == "" {
			return nil, fmt.Errorf("EGRESS_BASE_URL is required when EGRESS_PROVIDER=%s", EgressHTTP)
		}
	default:
		return nil, fmt.Errorf("unknown EGRESS_PROVIDER %q", cfg.EgressProvider)
	}

	switch cfg.JTIBackend {
	case JTIStore:
	case JTIRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required when JTI_BACKEND=%s", JTIRedis)
		}
	default:
		return nil, fmt.Errorf("unknown JTI_BACKEND %q", cfg.JTIBackend)
	}

	if cfg.RPTPrivateKey == "" && cfg.RPTSecret == "" {
		log.Println("Warning: neither APGMS_RPT_PRIVATE_KEY nor APGMS_RPT_SECRET is set. RPT issuance is disabled.")
	}
	if cfg.AuthEnabled && cfg.JWTSecret == insecureJWTSecret {
		if cfg.IsProduction {
			return nil, fmt.Errorf("JWT_SECRET must be set in production")
		}
		log.Println("Warning: JWT_SECRET environment variable not set. Using default insecure key.")
	}

	return cfg, nil
}

// dsnFromPGEnv composes a DSN from the libpq PG* variables.
func dsnFromPGEnv(v *viper.Viper) string {
	host := v.GetString("PGHOST")
	if host == "" {
		return ""
	}
	port := v.GetString("PGPORT")
	if port == "" {
		port = "5432"
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   host + ":" + port,
		Path:   "/" + v.GetString("PGDATABASE"),
	}
	if user := v.GetString("PGUSER"); user != "" {
		if pw := v.GetString("PGPASSWORD"); pw != "" {
			u.User = url.UserPassword(user, pw)
		} else {
			u.User = url.User(user)
		}
	}
	if mode := v.GetString("PGSSLMODE"); mode != "" {
		u.RawQuery = "sslmode=" + url.QueryEscape(mode)
	}
	return u.String()
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
