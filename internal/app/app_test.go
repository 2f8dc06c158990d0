package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/telemed-scheduling/internal/auth"
	"github.com/hackgods/telemed-scheduling/internal/config"
	"github.com/hackgods/telemed-scheduling/pkg/logger"
)

func memoryConfig() config.Config {
	return config.Config{
		Store:           config.StoreMemory,
		LockTTL:         time.Second,
		LockWait:        time.Second,
		SlotDuration:    30 * time.Minute,
		ClinicLocation:  time.UTC,
		ClinicOpen:      6 * time.Hour,
		ClinicClose:     22 * time.Hour,
		BookingFlow:     config.FlowPending,
		EventsStream:    "telemed:events",
		OutboxBatchSize: 10,
	}
}

func TestBuildMemoryStackDrainsOutbox(t *testing.T) {
	ctx := context.Background()
	s, err := Build(ctx, memoryConfig(), logger.Discard())
	require.NoError(t, err)
	defer s.Close()

	assert.Nil(t, s.Postgres)
	assert.Nil(t, s.Redis)

	admin := auth.Caller{ID: uuid.New(), Role: auth.RoleAdministrator}
	doctor := auth.Caller{ID: uuid.New(), Role: auth.RolePhysician}
	docType, err := s.Gate.CreateDocumentType(ctx, admin, "license", "", true)
	require.NoError(t, err)
	_, err = s.Gate.RegisterPhysician(ctx, doctor, doctor.ID)
	require.NoError(t, err)
	_, err = s.Gate.SubmitDocument(ctx, doctor, doctor.ID, docType.ID, "s3://docs/license.pdf")
	require.NoError(t, err)

	pending, err := s.Outbox.FetchPending(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, pending)

	s.runOnce(ctx)

	pending, err = s.Outbox.FetchPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestBuildWithRedisPublishesToStream(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.RedisAddr = mr.Addr()

	ctx := context.Background()
	s, err := Build(ctx, cfg, logger.Discard())
	require.NoError(t, err)
	defer s.Close()
	require.NotNil(t, s.Redis)

	doctor := auth.Caller{ID: uuid.New(), Role: auth.RolePhysician}
	_, err = s.Gate.RegisterPhysician(ctx, doctor, doctor.ID)
	require.NoError(t, err)
	admin := auth.Caller{ID: uuid.New(), Role: auth.RoleAdministrator}
	docType, err := s.Gate.CreateDocumentType(ctx, admin, "license", "", true)
	require.NoError(t, err)
	_, err = s.Gate.SubmitDocument(ctx, doctor, doctor.ID, docType.ID, "s3://docs/license.pdf")
	require.NoError(t, err)

	s.runOnce(ctx)

	n, err := s.Redis.XLen(ctx, cfg.EventsStream).Result()
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestRunWorkerStopsOnCancel(t *testing.T) {
	s, err := Build(context.Background(), memoryConfig(), logger.Discard())
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunWorker(ctx, 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
