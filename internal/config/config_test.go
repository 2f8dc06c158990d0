package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 30*time.Minute, cfg.SlotDuration)
	assert.Equal(t, FlowPending, cfg.BookingFlow)
	assert.False(t, cfg.CompleteFromPending)
	assert.Equal(t, time.UTC, cfg.ClinicLocation)
	assert.Equal(t, 6*time.Hour, cfg.ClinicOpen)
	assert.Equal(t, 22*time.Hour, cfg.ClinicClose)
	assert.Equal(t, 50, cfg.OutboxBatchSize)
	assert.Equal(t, int32(20), cfg.PostgresMaxConn)
	assert.Equal(t, int32(1), cfg.PostgresMinConn)
	assert.Equal(t, 10, cfg.RedisPoolSize)
	assert.Equal(t, 2*time.Second, cfg.RedisTimeout)
	assert.Empty(t, cfg.RedisAddr)
}

func TestLoadRequiresDSNForPostgres(t *testing.T) {
	t.Setenv("STORE", "postgres")
	t.Setenv("POSTGRES_DSN", "")

	_, err := Load()
	assert.ErrorContains(t, err, "POSTGRES_DSN")
}

func TestLoadRejectsUnknownFlow(t *testing.T) {
	t.Setenv("STORE", "memory")
	t.Setenv("BOOKING_FLOW", "admin")

	_, err := Load()
	assert.ErrorContains(t, err, "BOOKING_FLOW")
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("STORE", "memory")
	t.Setenv("SLOT_DURATION", "15m")
	t.Setenv("LOCK_TTL", "7")
	t.Setenv("BOOKING_FLOW", "direct")
	t.Setenv("COMPLETE_FROM_PENDING", "true")
	t.Setenv("CLINIC_TIMEZONE", "America/Bogota")
	t.Setenv("REDIS_URL", "redis://user:pw@cache:6380")
	t.Setenv("CLINIC_OPEN", "07:30")
	t.Setenv("CLINIC_CLOSE", "24:00")
	t.Setenv("POSTGRES_MAX_CONNS", "40")
	t.Setenv("REDIS_POOL_SIZE", "25")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.SlotDuration)
	assert.Equal(t, 7*time.Second, cfg.LockTTL)
	assert.Equal(t, FlowDirect, cfg.BookingFlow)
	assert.True(t, cfg.CompleteFromPending)
	assert.Equal(t, "America/Bogota", cfg.ClinicLocation.String())
	assert.Equal(t, "cache:6380", cfg.RedisAddr)
	assert.Equal(t, "user", cfg.RedisUsername)
	assert.Equal(t, "pw", cfg.RedisPassword)
	assert.Equal(t, 7*time.Hour+30*time.Minute, cfg.ClinicOpen)
	assert.Equal(t, 24*time.Hour, cfg.ClinicClose)
	assert.Equal(t, int32(40), cfg.PostgresMaxConn)
	assert.Equal(t, 25, cfg.RedisPoolSize)
}

func TestLoadRejectsTinySlots(t *testing.T) {
	t.Setenv("STORE", "memory")
	t.Setenv("SLOT_DURATION", "10s")

	_, err := Load()
	assert.ErrorContains(t, err, "SLOT_DURATION")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"zero batch", map[string]string{"OUTBOX_BATCH_SIZE": "0"}, "OUTBOX_BATCH_SIZE"},
		{"negative batch", map[string]string{"OUTBOX_BATCH_SIZE": "-5"}, "OUTBOX_BATCH_SIZE"},
		{"bad open", map[string]string{"CLINIC_OPEN": "6am"}, "CLINIC_OPEN"},
		{"close past midnight", map[string]string{"CLINIC_CLOSE": "24:30"}, "CLINIC_CLOSE"},
		{"close before open", map[string]string{"CLINIC_OPEN": "18:00", "CLINIC_CLOSE": "08:00"}, "CLINIC_OPEN"},
		{"min above max", map[string]string{"POSTGRES_MIN_CONNS": "30", "POSTGRES_MAX_CONNS": "10"}, "POSTGRES_MAX_CONNS"},
		{"empty redis pool", map[string]string{"REDIS_POOL_SIZE": "0"}, "REDIS_POOL_SIZE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("STORE", "memory")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
