package metric

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tr-sdv-sandbox/vsslink/pkg/fsm"
)

func TestNewRegistry_CoreMetricsRegistered(t *testing.T) {
	r := NewRegistry()
	require.NotNil(t, r.Core())

	// Touch a core metric and confirm the private registry gathers it.
	r.Core().BrokerConnected.Set(1)
	value := testutil.ToFloat64(r.Core().BrokerConnected)
	assert.Equal(t, float64(1), value)

	families, err := r.PrometheusRegistry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestRegister_DuplicateKeyRejected(t *testing.T) {
	r := NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "app_things_total", Help: "things"})

	require.NoError(t, r.Register("app", "things", c))
	err := r.Register("app", "things", c)
	assert.Error(t, err)
}

func TestUnregister(t *testing.T) {
	r := NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "app_widgets_total", Help: "widgets"})

	require.NoError(t, r.Register("app", "widgets", c))
	assert.True(t, r.Unregister("app", "widgets"))
	assert.False(t, r.Unregister("app", "widgets"), "second unregister finds nothing")
}

func TestHandler_ServesExposition(t *testing.T) {
	r := NewRegistry()
	r.Core().BrokerConnected.Set(1)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "vsslink_broker_connected")
}

func TestFSMObserver_CountsTransitions(t *testing.T) {
	m := NewMetrics()
	o := NewFSMObserver(m)

	o.OnTransition(fsm.Observation{
		Machine: "conn", From: "DISCONNECTED", To: "CONNECTING", Trigger: "start", Fired: true,
	})
	o.OnTransition(fsm.Observation{
		Machine: "conn", From: "CONNECTING", Trigger: "start", Fired: false,
	})

	fired := testutil.ToFloat64(m.StateTransitions.WithLabelValues("conn", "DISCONNECTED", "CONNECTING", "start"))
	assert.Equal(t, float64(1), fired)

	ignored := testutil.ToFloat64(m.TriggersIgnored.WithLabelValues("conn", "start"))
	assert.Equal(t, float64(1), ignored)
}

func TestObserveRPC(t *testing.T) {
	m := NewMetrics()
	m.ObserveRPC("value.get", time.Now().Add(-10*time.Millisecond), nil)
	m.ObserveRPC("value.get", time.Now(), errors.New("timeout"))

	ok := testutil.CollectAndCount(m.RPCDuration)
	assert.Equal(t, 2, ok, "one series per status label")
}
