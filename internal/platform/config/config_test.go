package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := load("")
		require.NoError(t, err)
		assert.Equal(t, ":8080", cfg.Addr)
		assert.Equal(t, "INR", cfg.Payment.Currency)
		assert.Equal(t, 7*24*time.Hour, cfg.Auth.TokenTTL)
		assert.Equal(t, 12, cfg.Auth.BcryptCost)
		assert.Empty(t, cfg.Postgres.DSN)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("PAYMENT_VERIFY_TIMEOUT", "3s")
		t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
		t.Setenv("PAYMENT_ASYNC_SIDE_EFFECTS", "true")

		cfg, err := load("")
		require.NoError(t, err)
		assert.Equal(t, 3*time.Second, cfg.Payment.VerifyTimeout)
		assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
		assert.True(t, cfg.Payment.AsyncSideEffects)
	})

	t.Run("yaml file with env precedence", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "admissions.yaml")
		require.NoError(t, os.WriteFile(path, []byte("addr: \":9090\"\ngateway:\n  key_id: rzp_test\n  timeout: 4s\n"), 0o600))
		t.Setenv("GATEWAY_KEY_ID", "rzp_env")

		cfg, err := load(path)
		require.NoError(t, err)
		assert.Equal(t, ":9090", cfg.Addr)
		assert.Equal(t, "rzp_env", cfg.Gateway.KeyID)
		assert.Equal(t, 4*time.Second, cfg.Gateway.Timeout)
	})

	t.Run("production requires secrets", func(t *testing.T) {
		t.Setenv("ENVIRONMENT", "production")
		_, err := load("")
		require.Error(t, err)
	})

	t.Run("notifier retries accept either variable", func(t *testing.T) {
		t.Setenv("NOTIFY_MAX_RETRIES", "5")
		cfg, err := load("")
		require.NoError(t, err)
		assert.Equal(t, uint64(5), cfg.SMTP.MaxRetries)
	})

	t.Run("simulated gateway is refused in production", func(t *testing.T) {
		t.Setenv("ENVIRONMENT", "production")
		t.Setenv("GATEWAY_KEY_SECRET", "s")
		t.Setenv("AUTH_JWT_SIGNING_KEY", "prod-key")
		t.Setenv("GATEWAY_SIMULATE", "true")
		_, err := load("")
		require.Error(t, err)
	})

	t.Run("missing file is an error", func(t *testing.T) {
		_, err := load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
	})
}
