package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/ariefcatur/go-pi-orders/internal/apperr"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(overrides map[string]any) *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	for k, val := range overrides {
		v.Set(k, val)
	}
	return v
}

func TestFromViperDefaults(t *testing.T) {
	t.Parallel()

	cfg := fromViper(newViper(nil))

	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 10, cfg.PollAttempts)
	assert.Equal(t, 30*time.Second, cfg.RefundTimeout)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "https://api.minepi.com", cfg.PiBaseURL)
}

func TestFromViperOverrides(t *testing.T) {
	t.Parallel()

	cfg := fromViper(newViper(map[string]any{
		"KAFKA_BROKERS": "k1:9092, k2:9092,,",
		"LOG_LEVEL":     "debug",
		"PI_BASE_URL":   "http://pi.local/",
		"ADMIN_TOKEN":   "s3cret",
	}))

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "http://pi.local", cfg.PiBaseURL)
	assert.Equal(t, "s3cret", cfg.AdminToken)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cfg := fromViper(newViper(map[string]any{"ADMIN_TOKEN": "x"}))
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrConfig)
	assert.Contains(t, err.Error(), "PI_API_KEY")
	assert.Contains(t, err.Error(), "APP_WALLET_SECRET")
	assert.NotContains(t, err.Error(), "ADMIN_TOKEN")

	cfg.PiAPIKey = "key"
	cfg.AppWalletSecret = "wallet"
	assert.NoError(t, cfg.Validate())
}
