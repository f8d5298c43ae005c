package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "localhost", cfg.Redis.Host)
	assert.Equal(t, 6379, cfg.Redis.Port)

	assert.Equal(t, 5, cfg.Circulation.DefaultBorrowLimit)
	assert.Equal(t, 168.0, cfg.Circulation.DefaultLoanHours)
	assert.Equal(t, 720.0, cfg.Circulation.MaxLoanHours)
	assert.Equal(t, 48, cfg.Circulation.ReadyWindowHours)

	assert.Equal(t, 60, cfg.Catalog.MetadataCacheTTLMin)
	assert.Equal(t, 10, cfg.Sweeper.IntervalMinutes)
}

func TestSweeperInterval(t *testing.T) {
	cfg := SweeperConfig{IntervalMinutes: 15}
	assert.Equal(t, 15*time.Minute, cfg.Interval())
}
