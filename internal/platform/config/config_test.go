package config_test

import (
	"testing"
	"time"

	"github.com/apgms/apgms/internal/platform/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, config.StoreMemory, cfg.StoreDriver)
	assert.True(t, cfg.EnableIdempotency)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, 10*time.Minute, cfg.RPTTTL)
	assert.Equal(t, 15*time.Second, cfg.EgressTimeout)
	assert.Equal(t, config.EgressSandbox, cfg.EgressProvider)
	assert.Equal(t, config.JTIStore, cfg.JTIBackend)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Empty(t, cfg.GateOverrideActors)
}

func TestLoadConfig_ComposesDSNFromPGEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PGHOST", "db")
	t.Setenv("PGPORT", "6543")
	t.Setenv("PGUSER", "apgms")
	t.Setenv("PGPASSWORD", "s3cret")
	t.Setenv("PGDATABASE", "apgms")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "postgres://apgms:s3cret@db:6543/apgms", cfg.DatabaseURL)
}

func TestLoadConfig_Lists(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("GATE_OVERRIDE_ACTORS", " supervisor , ops-lead,,")
	t.Setenv("APGMS_RPT_TRUSTED_KEYS", "a,b")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"supervisor", "ops-lead"}, cfg.GateOverrideActors)
	assert.Equal(t, []string{"a", "b"}, cfg.RPTTrustedKeys)
}

func TestLoadConfig_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"postgres without dsn", map[string]string{"STORE_DRIVER": "postgres", "DATABASE_URL": "", "PGHOST": ""}},
		{"unknown driver", map[string]string{"STORE_DRIVER": "sqlite"}},
		{"http egress without url", map[string]string{"STORE_DRIVER": "memory", "EGRESS_PROVIDER": "http"}},
		{"redis jti without url", map[string]string{"STORE_DRIVER": "memory", "JTI_BACKEND": "redis"}},
		{"bad duration", map[string]string{"STORE_DRIVER": "memory", "IDEMPOTENCY_TTL": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.LoadConfig()
			assert.Error(t, err)
		})
	}
}
