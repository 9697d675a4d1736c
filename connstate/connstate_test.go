package connstate

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tr-sdv-sandbox/vsslink/errors"
	"github.com/tr-sdv-sandbox/vsslink/metric"
)

func TestLifecycle_HappyPath(t *testing.T) {
	m := New("test-client", RoleSubscriber)
	assert.Equal(t, Disconnected, m.Current())

	assert.True(t, m.Start())
	assert.Equal(t, Connecting, m.Current())

	assert.True(t, m.ChannelReady())
	assert.Equal(t, Establishing, m.Current())

	assert.True(t, m.StreamReady())
	assert.Equal(t, Active, m.Current())
	assert.True(t, m.IsActive())
	assert.NoError(t, m.Status())

	assert.True(t, m.Stop())
	assert.Equal(t, Disconnected, m.Current())
}

func TestLifecycle_ConnectFailureAndRetry(t *testing.T) {
	m := New("test-client", RoleProvider)
	m.Start()

	cause := errors.Unavailable("broker unreachable", nil)
	assert.True(t, m.ConnectFailed(cause))
	assert.Equal(t, Failed, m.Current())
	assert.True(t, m.IsTransportError())
	assert.Equal(t, cause, m.Status())

	assert.True(t, m.Retry())
	assert.Equal(t, Connecting, m.Current())
}

func TestLifecycle_StreamEndedFromActive(t *testing.T) {
	m := New("test-client", RoleSubscriber)
	m.Start()
	m.ChannelReady()
	m.StreamReady()

	cause := errors.Unavailable("stream closed", nil)
	assert.True(t, m.StreamEnded(cause))
	assert.Equal(t, Failed, m.Current())
	assert.Equal(t, cause, m.LastError())
}

func TestLifecycle_StreamFailedOnlyFromEstablishing(t *testing.T) {
	m := New("test-client", RoleProvider)
	m.Start()
	m.ChannelReady()
	m.StreamReady() // now Active

	// stream_failed is not defined from Active; it must be a no-op.
	assert.False(t, m.StreamFailed(errors.InvalidArgument("bad claim"), false))
	assert.Equal(t, Active, m.Current())
}

func TestLifecycle_IgnoredTriggersAreNoOps(t *testing.T) {
	m := New("test-client", RoleSubscriber)

	assert.False(t, m.ChannelReady(), "channel_ready from Disconnected ignored")
	assert.False(t, m.Stop(), "stop from Disconnected ignored")
	assert.False(t, m.Retry())
	assert.Equal(t, Disconnected, m.Current())

	// Double start: second is ignored.
	assert.True(t, m.Start())
	assert.False(t, m.Start())
	assert.Equal(t, Connecting, m.Current())
}

func TestStopFromEveryNonDisconnectedState(t *testing.T) {
	reach := map[State]func(m *Machine){
		Connecting: func(m *Machine) { m.Start() },
		Establishing: func(m *Machine) {
			m.Start()
			m.ChannelReady()
		},
		Active: func(m *Machine) {
			m.Start()
			m.ChannelReady()
			m.StreamReady()
		},
		Failed: func(m *Machine) {
			m.Start()
			m.ConnectFailed(errors.Unavailable("down", nil))
		},
	}
	for state, setup := range reach {
		m := New("test-client", RoleProvider)
		setup(m)
		require.Equal(t, state, m.Current())
		assert.True(t, m.Stop(), "stop from %s", state)
		assert.Equal(t, Disconnected, m.Current())
	}
}

func TestStatus_Mapping(t *testing.T) {
	m := New("test-client", RoleSubscriber)
	assert.True(t, errors.IsFailedPrecondition(m.Status()))

	m.Start()
	assert.True(t, errors.IsUnavailable(m.Status()))

	m.ChannelReady()
	assert.True(t, errors.IsUnavailable(m.Status()))

	m.StreamReady()
	assert.NoError(t, m.Status())
}

func TestStreamReady_ClearsRecordedError(t *testing.T) {
	m := New("test-client", RoleSubscriber)
	m.Start()
	m.ConnectFailed(errors.Unavailable("down", nil))
	m.Retry()
	m.ChannelReady()
	m.StreamReady()

	assert.NoError(t, m.LastError())
	assert.NoError(t, m.Status())
}

func TestWaitUntilActive(t *testing.T) {
	m := New("test-client", RoleSubscriber)
	m.Start()
	m.ChannelReady()

	go func() {
		time.Sleep(100 * time.Millisecond)
		m.StreamReady()
	}()

	err := m.WaitUntilActive(2 * time.Second)
	assert.NoError(t, err)
}

func TestWaitUntilActive_Timeout(t *testing.T) {
	m := New("test-client", RoleSubscriber)
	m.Start()

	err := m.WaitUntilActive(150 * time.Millisecond)
	assert.True(t, errors.IsDeadlineExceeded(err))
}

func TestWaitUntilActive_FailedReturnsImmediately(t *testing.T) {
	m := New("test-client", RoleSubscriber)
	m.Start()
	cause := errors.Unavailable("broker unreachable", nil)
	m.ConnectFailed(cause)

	start := time.Now()
	err := m.WaitUntilActive(5 * time.Second)
	assert.Equal(t, cause, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestConnectionStateGauge(t *testing.T) {
	metrics := metric.NewMetrics()
	m := New("gauge-client", RoleProvider, WithMetrics(metrics))
	gauge := metrics.ConnectionState.WithLabelValues("gauge-client", "provider")

	assert.Equal(t, float64(Disconnected), testutil.ToFloat64(gauge))

	m.Start()
	assert.Equal(t, float64(Connecting), testutil.ToFloat64(gauge))

	m.ChannelReady()
	assert.Equal(t, float64(Establishing), testutil.ToFloat64(gauge))

	m.StreamReady()
	assert.Equal(t, float64(Active), testutil.ToFloat64(gauge))

	m.StreamEnded(errors.Unavailable("stream closed", nil))
	assert.Equal(t, float64(Failed), testutil.ToFloat64(gauge))

	m.Stop()
	assert.Equal(t, float64(Disconnected), testutil.ToFloat64(gauge))

	// Ignored triggers leave the gauge untouched.
	m.Retry()
	assert.Equal(t, float64(Disconnected), testutil.ToFloat64(gauge))
}

func TestRoleDisplayNames(t *testing.T) {
	p := New("prov", RoleProvider)
	assert.Equal(t, "REGISTERING", p.stateName(Establishing))
	assert.Equal(t, "STREAMING", p.stateName(Active))
	assert.Equal(t, "FAILED", p.stateName(Failed))

	s := New("sub", RoleSubscriber)
	assert.Equal(t, "SUBSCRIBING", s.stateName(Establishing))
}
