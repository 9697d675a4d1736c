package client

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tr-sdv-sandbox/vsslink/brokertest"
	"github.com/tr-sdv-sandbox/vsslink/errors"
	"github.com/tr-sdv-sandbox/vsslink/vss"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBroker() *brokertest.Broker {
	b := brokertest.New()
	b.AddSignal("Test.Actuator", 1, vss.TypeBool, vss.ClassActuator)
	b.AddSignal("Test.Sensor", 2, vss.TypeFloat, vss.ClassSensor)
	b.AddSignal("Test.Battery.Level", 3, vss.TypeInt8, vss.ClassSensor)
	b.AddSignal("Test.Attribute", 4, vss.TypeString, vss.ClassAttribute)
	return b
}

func newTestClient(b *brokertest.Broker, opts ...Option) *Client {
	opts = append([]Option{
		WithLogger(quietLogger()),
		WithConnectWait(time.Second),
		WithBackoff(5*time.Millisecond, 50*time.Millisecond),
	}, opts...)
	return New(b, opts...)
}

func mustResolve(t *testing.T, c *Client, path string) vss.SignalHandle {
	t.Helper()
	h, err := c.Resolver().Resolve(context.Background(), path)
	require.NoError(t, err)
	return *h
}

func TestServeActuatorRejectsDuplicateID(t *testing.T) {
	c := newTestClient(newTestBroker())
	h := mustResolve(t, c, "Test.Actuator")

	require.NoError(t, c.ServeActuator(h, func(vss.Value) {}))
	err := c.ServeActuator(h, func(vss.Value) {})
	require.Error(t, err)
	assert.True(t, errors.IsInvalidArgument(err))
}

func TestServeActuatorRejectsNilHandler(t *testing.T) {
	c := newTestClient(newTestBroker())
	h := mustResolve(t, c, "Test.Actuator")

	err := c.ServeActuator(h, nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidArgument(err))
}

func TestRegistrationLockedWhileRunning(t *testing.T) {
	c := newTestClient(newTestBroker())
	h := mustResolve(t, c, "Test.Actuator")
	sensor := mustResolve(t, c, "Test.Sensor")

	require.NoError(t, c.Start())
	defer c.Stop()

	err := c.ServeActuator(h, func(vss.Value) {})
	assert.True(t, errors.IsFailedPrecondition(err))

	err = c.Subscribe(sensor, func(vss.QualifiedValue) {})
	assert.True(t, errors.IsFailedPrecondition(err))
}

func TestSubscriptionBookkeeping(t *testing.T) {
	c := newTestClient(newTestBroker())
	sensor := mustResolve(t, c, "Test.Sensor")
	battery := mustResolve(t, c, "Test.Battery.Level")

	require.NoError(t, c.Subscribe(sensor, func(vss.QualifiedValue) {}))
	require.NoError(t, c.Subscribe(battery, func(vss.QualifiedValue) {}))
	assert.Equal(t, 2, c.SubscriptionCount())

	// Same id replaces the callback, it does not add a subscription.
	require.NoError(t, c.Subscribe(sensor, func(vss.QualifiedValue) {}))
	assert.Equal(t, 2, c.SubscriptionCount())

	c.Unsubscribe(battery)
	assert.Equal(t, 1, c.SubscriptionCount())

	c.ClearSubscriptions()
	assert.Equal(t, 0, c.SubscriptionCount())

	err := c.Subscribe(sensor, nil)
	assert.True(t, errors.IsInvalidArgument(err))
}

func TestStartTwiceFails(t *testing.T) {
	c := newTestClient(newTestBroker())
	require.NoError(t, c.Start())
	defer c.Stop()

	err := c.Start()
	require.Error(t, err)
	assert.True(t, errors.IsFailedPrecondition(err))
}

func TestStopIsIdempotent(t *testing.T) {
	c := newTestClient(newTestBroker())
	c.Stop() // never started

	require.NoError(t, c.Start())
	c.Stop()
	c.Stop()

	// A stopped client can be started again.
	require.NoError(t, c.Start())
	c.Stop()
}

func TestStatusBeforeStart(t *testing.T) {
	c := newTestClient(newTestBroker())
	err := c.Status()
	require.Error(t, err)
	assert.True(t, errors.IsFailedPrecondition(err))
}

func TestGetReadsCurrentValue(t *testing.T) {
	b := newTestBroker()
	b.SetValue("Test.Sensor", vss.Valid(vss.Float(21.5)))
	c := newTestClient(b)
	sensor := mustResolve(t, c, "Test.Sensor")

	qv, err := c.Get(context.Background(), sensor)
	require.NoError(t, err)
	require.True(t, qv.IsValid())
	f, ok := qv.Value.AsFloat()
	require.True(t, ok)
	assert.Equal(t, float32(21.5), f)
}

func TestSetValidation(t *testing.T) {
	c := newTestClient(newTestBroker())
	sensor := mustResolve(t, c, "Test.Sensor")
	ctx := context.Background()

	err := c.Set(ctx, sensor, vss.NotAvailable())
	assert.True(t, errors.IsInvalidArgument(err), "non-VALID quality must be rejected")

	err = c.Set(ctx, sensor, vss.Valid(vss.Empty()))
	assert.True(t, errors.IsInvalidArgument(err), "empty value must be rejected")

	err = c.Set(ctx, sensor, vss.Valid(vss.Bool(true)))
	assert.True(t, errors.IsTypeMismatch(err), "incompatible type must be rejected")
}

func TestSetSensorGoesThroughPublish(t *testing.T) {
	b := newTestBroker()
	c := newTestClient(b)
	sensor := mustResolve(t, c, "Test.Sensor")

	require.NoError(t, c.Set(context.Background(), sensor, vss.Valid(vss.Float(88))))

	qv, ok := b.Value("Test.Sensor")
	require.True(t, ok)
	f, _ := qv.Value.AsFloat()
	assert.Equal(t, float32(88), f)
}

func TestSetActuatorWithoutProviderIsUnavailable(t *testing.T) {
	c := newTestClient(newTestBroker())
	actuator := mustResolve(t, c, "Test.Actuator")

	err := c.Set(context.Background(), actuator, vss.Valid(vss.Bool(true)))
	require.Error(t, err)
	assert.True(t, errors.IsUnavailable(err))
}

func TestSetAcceptsWidenedValue(t *testing.T) {
	b := newTestBroker()
	c := newTestClient(b)
	sensor := mustResolve(t, c, "Test.Sensor")

	// float sensor, double payload: widening is allowed on writes.
	require.NoError(t, c.Set(context.Background(), sensor, vss.Valid(vss.Double(1.25))))
}

func TestPublishAllowsNotAvailable(t *testing.T) {
	b := newTestBroker()
	b.SetValue("Test.Sensor", vss.Valid(vss.Float(5)))
	c := newTestClient(b)
	sensor := mustResolve(t, c, "Test.Sensor")

	require.NoError(t, c.Publish(context.Background(), sensor, vss.NotAvailable()))

	qv, ok := b.Value("Test.Sensor")
	require.True(t, ok)
	assert.False(t, qv.IsValid())
}

func TestPublishBatchReportsPartialFailures(t *testing.T) {
	b := newTestBroker()
	b.FailPublish(3, "invalid datapoint for signal id 3")
	c := newTestClient(b)
	sensor := mustResolve(t, c, "Test.Sensor")
	battery := mustResolve(t, c, "Test.Battery.Level")

	var reported map[int32]error
	err := c.PublishBatch(context.Background(), []PublishEntry{
		{Handle: sensor, Value: vss.Valid(vss.Float(10))},
		{Handle: battery, Value: vss.Valid(vss.Int32(80))},
	}, func(failures map[int32]error) {
		reported = failures
	})
	require.NoError(t, err, "batch itself always succeeds")

	require.Len(t, reported, 1)
	require.Contains(t, reported, int32(3))
	assert.True(t, errors.IsInvalidArgument(reported[3]))

	// The good entry still landed.
	qv, ok := b.Value("Test.Sensor")
	require.True(t, ok)
	assert.True(t, qv.IsValid())
}

func TestPublishBatchEmptyReportOnSuccess(t *testing.T) {
	c := newTestClient(newTestBroker())
	sensor := mustResolve(t, c, "Test.Sensor")

	called := false
	err := c.PublishBatch(context.Background(), []PublishEntry{
		{Handle: sensor, Value: vss.Valid(vss.Float(1))},
	}, func(failures map[int32]error) {
		called = true
		assert.Empty(t, failures)
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestGetTyped(t *testing.T) {
	b := newTestBroker()
	b.SetValue("Test.Sensor", vss.Valid(vss.Float(42.5)))
	c := newTestClient(b)
	ctx := context.Background()

	sensor := vss.TypedHandle[float32]{SignalHandle: mustResolve(t, c, "Test.Sensor")}
	got, err := GetTyped(ctx, c, sensor)
	require.NoError(t, err)
	assert.Equal(t, float32(42.5), got)

	// The carried value widens to the requested type.
	wide := vss.TypedHandle[float64]{SignalHandle: sensor.SignalHandle}
	gotWide, err := GetTyped(ctx, c, wide)
	require.NoError(t, err)
	assert.Equal(t, 42.5, gotWide)
}

func TestGetTypedNoValidValue(t *testing.T) {
	c := newTestClient(newTestBroker())
	sensor := vss.TypedHandle[float32]{SignalHandle: mustResolve(t, c, "Test.Sensor")}

	_, err := GetTyped(context.Background(), c, sensor)
	require.Error(t, err)
	assert.True(t, errors.IsUnavailable(err))
}

func TestGetTypedWrongType(t *testing.T) {
	b := newTestBroker()
	b.SetValue("Test.Sensor", vss.Valid(vss.Float(1)))
	c := newTestClient(b)

	sensor := vss.TypedHandle[string]{SignalHandle: mustResolve(t, c, "Test.Sensor")}
	_, err := GetTyped(context.Background(), c, sensor)
	require.Error(t, err)
	assert.True(t, errors.IsTypeMismatch(err))
}

func TestSetTypedAndPublishTyped(t *testing.T) {
	b := newTestBroker()
	c := newTestClient(b)
	ctx := context.Background()

	sensor := vss.TypedHandle[float32]{SignalHandle: mustResolve(t, c, "Test.Sensor")}
	require.NoError(t, SetTyped(ctx, c, sensor, 3.5))

	qv, ok := b.Value("Test.Sensor")
	require.True(t, ok)
	f, _ := qv.Value.AsFloat()
	assert.Equal(t, float32(3.5), f)

	attr := vss.TypedHandle[string]{SignalHandle: mustResolve(t, c, "Test.Attribute")}
	require.NoError(t, PublishTyped(ctx, c, attr, "VIN123"))

	qv, ok = b.Value("Test.Attribute")
	require.True(t, ok)
	s, _ := qv.Value.AsString()
	assert.Equal(t, "VIN123", s)
}

func TestWaitUntilReadyBeforeStart(t *testing.T) {
	c := newTestClient(newTestBroker())
	err := c.WaitUntilReady(50 * time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.IsFailedPrecondition(err))
}
