package client

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tr-sdv-sandbox/vsslink/errors"
	"github.com/tr-sdv-sandbox/vsslink/vss"
)

func TestProviderServesActuations(t *testing.T) {
	b := newTestBroker()
	c := newTestClient(b)
	actuator := mustResolve(t, c, "Test.Actuator")

	got := make(chan vss.Value, 1)
	require.NoError(t, c.ServeActuator(actuator, func(v vss.Value) {
		got <- v
	}))

	require.NoError(t, c.Start())
	defer c.Stop()
	require.NoError(t, c.WaitUntilReady(2*time.Second))
	require.NoError(t, c.Status())

	// An actuator write routes through the broker back to the handler.
	require.NoError(t, c.Set(context.Background(), actuator, vss.Valid(vss.Bool(true))))

	select {
	case v := <-got:
		on, ok := v.AsBool()
		require.True(t, ok)
		assert.True(t, on)
	case <-time.After(2 * time.Second):
		t.Fatal("actuation never reached the handler")
	}
}

func TestProviderTypedHandler(t *testing.T) {
	b := newTestBroker()
	c := newTestClient(b)
	actuator := vss.TypedHandle[bool]{SignalHandle: mustResolve(t, c, "Test.Actuator")}

	got := make(chan bool, 1)
	require.NoError(t, ServeActuatorTyped(c, actuator, func(on bool) {
		got <- on
	}))

	require.NoError(t, c.Start())
	defer c.Stop()
	require.NoError(t, c.WaitUntilReady(2*time.Second))

	require.NoError(t, SetTyped(context.Background(), c, actuator, true))

	select {
	case on := <-got:
		assert.True(t, on)
	case <-time.After(2 * time.Second):
		t.Fatal("actuation never reached the typed handler")
	}
}

func TestProviderRejectsStaleHandle(t *testing.T) {
	b := newTestBroker()
	c := newTestClient(b)
	good := mustResolve(t, c, "Test.Actuator")
	// The broker knows Test.Sensor as id 2; this handle is stale.
	stale := vss.SignalHandle{Path: "Test.Sensor", ID: 999, Type: vss.TypeFloat, Class: vss.ClassActuator}

	var calls atomic.Int32
	require.NoError(t, c.ServeActuator(good, func(vss.Value) { calls.Add(1) }))
	require.NoError(t, c.ServeActuator(stale, func(vss.Value) { calls.Add(1) }))

	require.NoError(t, c.Start())
	defer c.Stop()

	err := c.WaitUntilReady(2 * time.Second)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidArgument(err))

	// Validation is all or nothing: no handler was invoked, not even for
	// the valid registration, and nothing was claimed at the broker.
	actErr := b.Actuate(context.Background(), good.ID, vss.Bool(true))
	assert.True(t, errors.IsUnavailable(actErr))
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, calls.Load())

	// The failure is permanent and visible through Status.
	statusErr := c.Status()
	require.Error(t, statusErr)
	assert.True(t, errors.IsInvalidArgument(statusErr))
}

func TestProviderRejectsIncompatibleType(t *testing.T) {
	b := newTestBroker()
	c := newTestClient(b)

	// Declared bool at the broker, registered as int64.
	bad := vss.SignalHandle{Path: "Test.Actuator", ID: 1, Type: vss.TypeInt64, Class: vss.ClassActuator}

	var calls atomic.Int32
	require.NoError(t, c.ServeActuator(bad, func(vss.Value) { calls.Add(1) }))

	require.NoError(t, c.Start())
	defer c.Stop()

	err := c.WaitUntilReady(2 * time.Second)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidArgument(err))
	assert.Zero(t, calls.Load())
}

func TestProviderUnknownPathFailsValidation(t *testing.T) {
	c := newTestClient(newTestBroker())
	ghost := vss.SignalHandle{Path: "Test.Nope", ID: 77, Type: vss.TypeBool, Class: vss.ClassActuator}
	require.NoError(t, c.ServeActuator(ghost, func(vss.Value) {}))

	require.NoError(t, c.Start())
	defer c.Stop()

	err := c.WaitUntilReady(2 * time.Second)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidArgument(err))
}

func TestProviderStreamEndMovesToFailed(t *testing.T) {
	b := newTestBroker()
	c := newTestClient(b)
	actuator := mustResolve(t, c, "Test.Actuator")
	require.NoError(t, c.ServeActuator(actuator, func(vss.Value) {}))

	require.NoError(t, c.Start())
	defer c.Stop()
	require.NoError(t, c.WaitUntilReady(2*time.Second))

	b.BreakProviderStreams(errors.Unavailable("databroker restarting", nil))

	require.Eventually(t, func() bool {
		return errors.IsUnavailable(c.Status())
	}, 2*time.Second, 10*time.Millisecond, "provider should surface the stream failure")
}
