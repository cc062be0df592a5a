package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
env: "dev"
storage:
  driver: "memory"
payments:
  prices:
    monthly: 200
admin:
  ids: [1, 2]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, DriverMemory, cfg.Driver)
	assert.Equal(t, "XTR", cfg.Currency)
	assert.Equal(t, time.Hour, cfg.Scheduler.Interval)
	assert.Equal(t, 24*time.Hour, cfg.Window)
	assert.Equal(t, 5*time.Minute, cfg.EntitlementTTL)
	assert.True(t, cfg.IsAdmin(2))
	assert.False(t, cfg.IsAdmin(3))

	catalog, err := cfg.Catalog()
	require.NoError(t, err)
	monthly, err := catalog.Lookup("monthly")
	require.NoError(t, err)
	assert.Equal(t, int64(200), monthly.Price)
	assert.Equal(t, 30, monthly.DurationDays)
	weekly, err := catalog.Lookup("weekly")
	require.NoError(t, err)
	assert.Equal(t, int64(50), weekly.Price)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "postgres без строки подключения",
			body: "storage:\n  driver: postgres\n",
		},
		{
			name: "неизвестный драйвер",
			body: "storage:\n  driver: sqlite\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "config.Load")
		})
	}

	t.Run("файл не существует", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("пустой путь", func(t *testing.T) {
		_, err := Load("")
		assert.Error(t, err)
	})
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("ADMIN_IDS", "7,8")

	cfg, err := Load(writeConfig(t, "storage:\n  driver: postgres\n"))
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Driver)
	assert.Equal(t, []int64{7, 8}, cfg.IDs)
}

func TestCatalog_InvalidPrice(t *testing.T) {
	cfg := &Config{Payments: Payments{Prices: map[string]int64{"weekly": 0}}}
	_, err := cfg.Catalog()
	assert.Error(t, err)
}
