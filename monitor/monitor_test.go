package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/trailparty/narrative"
)

func newTestMonitor(t *testing.T) *Monitor {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewMonitorWithRegistry("test", reg, reg)
}

func TestMonitor_RoomLifecycle(t *testing.T) {
	m := newTestMonitor(t)

	m.RoomOpened()
	m.RoomOpened()
	m.RoomClosed()
	m.PhaseCompiled()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.ActiveRooms))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.PhasesCompiled))
}

func TestMonitor_ConnectionsAndMessages(t *testing.T) {
	m := newTestMonitor(t)

	m.IncOnlineConnections()
	m.IncOnlineConnections()
	m.DecOnlineConnections()
	m.IncMessagesReceived("join_room")
	m.IncMessagesReceived("join_room")
	m.IncMessagesReceived("room_response")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.OnlineConnections))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.metrics.MessagesReceived.WithLabelValues("join_room")))
	assert.Equal(t, int64(3), m.Requests())
}

func TestMonitor_GenerationFailuresByReason(t *testing.T) {
	m := newTestMonitor(t)

	m.ObserveGeneration("decision", time.Second, nil)
	m.ObserveGeneration("decision", time.Second, narrative.ErrMalformedOutput)
	m.ObserveGeneration("decision", time.Second, fmt.Errorf("%w: eof", narrative.ErrInvalidDelta))
	m.ObserveGeneration("intro", time.Second, fmt.Errorf("%w: %w", narrative.ErrGeneratorFailed, context.DeadlineExceeded))
	m.ObserveGeneration("intro", time.Second, fmt.Errorf("%w: 500", narrative.ErrGeneratorFailed))
	m.ObserveGeneration("intro", time.Second, errors.New("boom"))

	failures := m.metrics.GenerationFailures
	assert.Equal(t, 1.0, testutil.ToFloat64(failures.WithLabelValues("decision", "malformed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(failures.WithLabelValues("decision", "invalid_delta")))
	assert.Equal(t, 1.0, testutil.ToFloat64(failures.WithLabelValues("intro", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(failures.WithLabelValues("intro", "generator")))
	assert.Equal(t, 1.0, testutil.ToFloat64(failures.WithLabelValues("intro", "other")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.metrics.GenerationLatency))
}

func TestMonitor_Handler(t *testing.T) {
	m := newTestMonitor(t)
	m.RoomOpened()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "test_active_rooms 1")
}

func TestMonitor_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMonitor("trailparty")
		NewMonitor("trailparty")
	})
}
