package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tr-sdv-sandbox/vsslink/errors"
	"github.com/tr-sdv-sandbox/vsslink/vss"
)

// waitForFloat drains updates until one carries the wanted value.
func waitForFloat(t *testing.T, updates <-chan vss.QualifiedValue, want float32) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case qv := <-updates:
			if f, ok := qv.Value.AsFloat(); ok && f == want {
				return
			}
		case <-deadline:
			t.Fatalf("never received update with value %v", want)
		}
	}
}

func TestSubscriberDeliversInitialValueFirst(t *testing.T) {
	b := newTestBroker()
	b.SetValue("Test.Sensor", vss.Valid(vss.Float(21.5)))
	c := newTestClient(b)
	sensor := mustResolve(t, c, "Test.Sensor")

	updates := make(chan vss.QualifiedValue, 16)
	require.NoError(t, c.Subscribe(sensor, func(qv vss.QualifiedValue) {
		updates <- qv
	}))

	require.NoError(t, c.Start())
	defer c.Stop()
	require.NoError(t, c.WaitUntilReady(2*time.Second))

	// The current value arrives before any streamed update.
	select {
	case qv := <-updates:
		require.True(t, qv.IsValid())
		f, _ := qv.Value.AsFloat()
		assert.Equal(t, float32(21.5), f)
	case <-time.After(2 * time.Second):
		t.Fatal("initial value never delivered")
	}

	require.NoError(t, b.PublishValue(context.Background(), sensor.ID, vss.Valid(vss.Float(30))))
	waitForFloat(t, updates, 30)
}

func TestSubscriberInitialValueMayBeNotAvailable(t *testing.T) {
	b := newTestBroker()
	c := newTestClient(b)
	sensor := mustResolve(t, c, "Test.Sensor")

	updates := make(chan vss.QualifiedValue, 16)
	require.NoError(t, c.Subscribe(sensor, func(qv vss.QualifiedValue) {
		updates <- qv
	}))

	require.NoError(t, c.Start())
	defer c.Stop()
	require.NoError(t, c.WaitUntilReady(2*time.Second))

	select {
	case qv := <-updates:
		assert.False(t, qv.IsValid())
		assert.Equal(t, vss.QualityNotAvailable, qv.Quality)
	case <-time.After(2 * time.Second):
		t.Fatal("initial value never delivered")
	}
}

func TestSubscriberReconnectsAfterStreamBreak(t *testing.T) {
	b := newTestBroker()
	b.SetValue("Test.Sensor", vss.Valid(vss.Float(1)))
	c := newTestClient(b)
	sensor := mustResolve(t, c, "Test.Sensor")

	updates := make(chan vss.QualifiedValue, 64)
	require.NoError(t, c.Subscribe(sensor, func(qv vss.QualifiedValue) {
		updates <- qv
	}))

	require.NoError(t, c.Start())
	defer c.Stop()
	require.NoError(t, c.WaitUntilReady(2*time.Second))
	waitForFloat(t, updates, 1)

	b.BreakSubscribeStreams(errors.Unavailable("databroker restarting", nil))

	// The loop backs off and resubscribes on its own.
	require.Eventually(t, func() bool {
		return c.Status() == nil
	}, 3*time.Second, 10*time.Millisecond, "subscriber should recover")

	require.NoError(t, b.PublishValue(context.Background(), sensor.ID, vss.Valid(vss.Float(42))))
	waitForFloat(t, updates, 42)
}

func TestSubscriberMultipleSignals(t *testing.T) {
	b := newTestBroker()
	b.SetValue("Test.Sensor", vss.Valid(vss.Float(7)))
	b.SetValue("Test.Battery.Level", vss.Valid(vss.Int32(80)))
	c := newTestClient(b)
	sensor := mustResolve(t, c, "Test.Sensor")
	battery := mustResolve(t, c, "Test.Battery.Level")

	sensorSeen := make(chan struct{}, 1)
	batterySeen := make(chan int32, 16)
	require.NoError(t, c.Subscribe(sensor, func(qv vss.QualifiedValue) {
		select {
		case sensorSeen <- struct{}{}:
		default:
		}
	}))
	require.NoError(t, c.Subscribe(battery, func(qv vss.QualifiedValue) {
		if n, ok := qv.Value.AsInt32(); ok {
			batterySeen <- n
		}
	}))

	require.NoError(t, c.Start())
	defer c.Stop()
	require.NoError(t, c.WaitUntilReady(2*time.Second))

	select {
	case <-sensorSeen:
	case <-time.After(2 * time.Second):
		t.Fatal("sensor initial value never delivered")
	}
	select {
	case n := <-batterySeen:
		assert.Equal(t, int32(80), n)
	case <-time.After(2 * time.Second):
		t.Fatal("battery initial value never delivered")
	}
}

func TestSubscribeTypedWidensAndFiltersInvalid(t *testing.T) {
	b := newTestBroker()
	b.SetValue("Test.Sensor", vss.Valid(vss.Float(1.5)))
	c := newTestClient(b)

	// float32 carried on the wire, float64 requested.
	sensor := vss.TypedHandle[float64]{SignalHandle: mustResolve(t, c, "Test.Sensor")}

	got := make(chan float64, 16)
	require.NoError(t, SubscribeTyped(c, sensor, func(v float64) {
		got <- v
	}))

	require.NoError(t, c.Start())
	defer c.Stop()
	require.NoError(t, c.WaitUntilReady(2*time.Second))

	select {
	case v := <-got:
		assert.Equal(t, 1.5, v)
	case <-time.After(2 * time.Second):
		t.Fatal("initial value never delivered")
	}

	ctx := context.Background()
	// A NOT_AVAILABLE update is filtered, the next valid one comes through.
	require.NoError(t, b.PublishValue(ctx, sensor.ID, vss.NotAvailable()))
	require.NoError(t, b.PublishValue(ctx, sensor.ID, vss.Valid(vss.Float(2.5))))

	select {
	case v := <-got:
		assert.Equal(t, 2.5, v)
	case <-time.After(2 * time.Second):
		t.Fatal("valid update never delivered")
	}
}

func TestUnsubscribedSignalStopsDispatching(t *testing.T) {
	b := newTestBroker()
	c := newTestClient(b)
	sensor := mustResolve(t, c, "Test.Sensor")

	updates := make(chan vss.QualifiedValue, 16)
	require.NoError(t, c.Subscribe(sensor, func(qv vss.QualifiedValue) {
		updates <- qv
	}))

	require.NoError(t, c.Start())
	defer c.Stop()
	require.NoError(t, c.WaitUntilReady(2*time.Second))

	// Drain the initial value.
	select {
	case <-updates:
	case <-time.After(2 * time.Second):
		t.Fatal("initial value never delivered")
	}

	c.Unsubscribe(sensor)
	require.NoError(t, b.PublishValue(context.Background(), sensor.ID, vss.Valid(vss.Float(9))))

	select {
	case qv := <-updates:
		t.Fatalf("unexpected update after unsubscribe: %v", qv.Value)
	case <-time.After(200 * time.Millisecond):
	}
}

// End to end: one client provides an actuator and a sensor, another
// subscribes and actuates, mirroring a body-controller style deployment.
func TestProviderAndSubscriberEndToEnd(t *testing.T) {
	b := newTestBroker()
	ctx := context.Background()

	provider := newTestClient(b, WithName("body-controller"))
	actuator := mustResolve(t, provider, "Test.Actuator")
	sensor := mustResolve(t, provider, "Test.Sensor")

	require.NoError(t, provider.ServeActuator(actuator, func(v vss.Value) {
		// Echo the accepted state back as the actuator's reported position.
		if on, ok := v.AsBool(); ok && on {
			_ = provider.Publish(ctx, sensor, vss.Valid(vss.Float(100)))
		}
	}))
	require.NoError(t, provider.Start())
	defer provider.Stop()
	require.NoError(t, provider.WaitUntilReady(2*time.Second))

	consumer := newTestClient(b, WithName("dashboard"))
	updates := make(chan vss.QualifiedValue, 16)
	require.NoError(t, consumer.Subscribe(sensor, func(qv vss.QualifiedValue) {
		updates <- qv
	}))
	require.NoError(t, consumer.Start())
	defer consumer.Stop()
	require.NoError(t, consumer.WaitUntilReady(2*time.Second))

	// Drain the initial value, then actuate and watch the echo arrive.
	select {
	case <-updates:
	case <-time.After(2 * time.Second):
		t.Fatal("initial value never delivered")
	}

	require.NoError(t, consumer.Set(ctx, actuator, vss.Valid(vss.Bool(true))))
	waitForFloat(t, updates, 100)
}
