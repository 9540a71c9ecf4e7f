package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	_ "github.com/meridian-erp/meridian-erp/internal/testing/guard"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 3*time.Second, cfg.InventoryLockWait)
	require.False(t, cfg.InventoryAllowNegative)
	require.Equal(t, 100, cfg.InventorySweepBatch)
	require.Equal(t, []int64{1}, cfg.InventoryScanWarehouses)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("INVENTORY_LOCK_WAIT", "500ms")
	t.Setenv("INVENTORY_SCAN_WAREHOUSES", "1,2,3")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
	require.Equal(t, 500*time.Millisecond, cfg.InventoryLockWait)
	require.Equal(t, []int64{1, 2, 3}, cfg.InventoryScanWarehouses)
}

func TestInTestModeGuard(t *testing.T) {
	// The guard import forces test mode for every package pulling it in.
	RefreshTestMode()
	require.True(t, InTestMode())
}
