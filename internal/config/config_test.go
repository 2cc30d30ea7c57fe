package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
env: test
http:
  addr: ":9090"
inventory:
  base_url: http://inventory:8080
  timeout: 2s
  breaker:
    consecutive_failures: 3
    cool_down: 15s
voucher:
  base_url: http://voucher:8080
notification:
  transport: kafka
kafka:
  brokers: ["kafka:9092"]
gateway:
  merchant_code: DEMOSHOP
  secret_key: secret
saga:
  confirm_attempts: 4
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFileAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Env)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 2*time.Second, cfg.Inventory.Timeout)
	assert.Equal(t, uint32(3), cfg.Inventory.Breaker.ConsecutiveFailures)
	assert.Equal(t, 15*time.Second, cfg.Inventory.Breaker.CoolDown)
	assert.Equal(t, 5*time.Second, cfg.Voucher.Timeout)
	assert.Equal(t, []string{"kafka:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 4, cfg.Saga.ConfirmAttempts)
	assert.Equal(t, time.Second, cfg.Saga.ConfirmBaseDelay)
	assert.Equal(t, 30*time.Minute, cfg.Saga.PaymentTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Saga.SweepInterval)
	assert.Equal(t, "Vietcombank", cfg.BankTransfer.BankName)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("INVENTORY_BASE_URL", "http://inventory")
	t.Setenv("GATEWAY_ENABLED", "false")
	t.Setenv("NOTIFICATION_TRANSPORT", "http")
	t.Setenv("NOTIFICATION_BASE_URL", "http://notifications")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://inventory", cfg.Inventory.BaseURL)
	assert.False(t, cfg.Gateway.Enabled)
	assert.Equal(t, "http", cfg.Notification.Transport)
}

func TestValidateCollectsProblems(t *testing.T) {
	_, err := Load(writeConfig(t, `
notification:
  transport: pigeon
saga:
  confirm_attempts: 0
`))
	require.Error(t, err)
	for _, want := range []string{"inventory.base_url", "pigeon", "merchant_code", "confirm_attempts"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
