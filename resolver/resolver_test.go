package resolver

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tr-sdv-sandbox/vsslink/broker"
	"github.com/tr-sdv-sandbox/vsslink/brokertest"
	"github.com/tr-sdv-sandbox/vsslink/errors"
	"github.com/tr-sdv-sandbox/vsslink/vss"
)

// countingRPC wraps a broker.RPC and counts ListMetadata calls.
type countingRPC struct {
	broker.RPC
	listCalls atomic.Int32
}

func (c *countingRPC) ListMetadata(ctx context.Context, root string) ([]broker.MetadataEntry, error) {
	c.listCalls.Add(1)
	return c.RPC.ListMetadata(ctx, root)
}

func newBroker() *brokertest.Broker {
	b := brokertest.New()
	b.AddSignal("Vehicle.Speed", 1, vss.TypeFloat, vss.ClassSensor)
	b.AddSignal("Vehicle.Body.Trunk.IsOpen", 2, vss.TypeBool, vss.ClassActuator)
	b.AddSignal("Vehicle.Powertrain.Battery.Level", 3, vss.TypeInt8, vss.ClassSensor)
	return b
}

func TestResolve_ExactPath(t *testing.T) {
	r := New(newBroker())

	h, err := r.Resolve(context.Background(), "Vehicle.Speed")
	require.NoError(t, err)
	assert.Equal(t, "Vehicle.Speed", h.Path)
	assert.Equal(t, int32(1), h.ID)
	assert.Equal(t, vss.TypeFloat, h.Type)
	assert.Equal(t, vss.ClassSensor, h.Class)
}

func TestResolve_UnknownPath(t *testing.T) {
	r := New(newBroker())

	_, err := r.Resolve(context.Background(), "Vehicle.DoesNotExist")
	assert.True(t, errors.IsNotFound(err))
}

func TestResolve_PrefixIsNotAMatch(t *testing.T) {
	r := New(newBroker())

	// "Vehicle.Body" is a branch, not a signal; listing it returns the
	// trunk signal but no exact match.
	_, err := r.Resolve(context.Background(), "Vehicle.Body")
	assert.True(t, errors.IsNotFound(err))
}

func TestResolve_CachesHandles(t *testing.T) {
	counting := &countingRPC{RPC: newBroker()}
	r := New(counting)

	h1, err := r.Resolve(context.Background(), "Vehicle.Speed")
	require.NoError(t, err)
	h2, err := r.Resolve(context.Background(), "Vehicle.Speed")
	require.NoError(t, err)

	assert.Same(t, h1, h2)
	assert.Equal(t, int32(1), counting.listCalls.Load())
}

func TestList_ResolvesSubtree(t *testing.T) {
	r := New(newBroker())

	handles, err := r.List(context.Background(), "Vehicle")
	require.NoError(t, err)
	assert.Len(t, handles, 3)
	assert.Equal(t, 3, r.CachedCount())

	// Subsequent Resolve hits the cache.
	h, err := r.Resolve(context.Background(), "Vehicle.Speed")
	require.NoError(t, err)
	assert.Equal(t, int32(1), h.ID)
}

func TestResolveTyped_Match(t *testing.T) {
	r := New(newBroker())

	h, err := ResolveTyped[float32](context.Background(), r, "Vehicle.Speed")
	require.NoError(t, err)
	assert.Equal(t, int32(1), h.ID)
}

func TestResolveTyped_NarrowedSignal(t *testing.T) {
	r := New(newBroker())

	// Battery.Level is declared int8; its physical carrier is int32.
	h, err := ResolveTyped[int32](context.Background(), r, "Vehicle.Powertrain.Battery.Level")
	require.NoError(t, err)
	assert.Equal(t, int32(3), h.ID)

	// int64 is not reachable from int8 (no chained widening).
	_, err = ResolveTyped[int64](context.Background(), r, "Vehicle.Powertrain.Battery.Level")
	assert.True(t, errors.IsTypeMismatch(err))
}

func TestResolveTyped_Mismatch(t *testing.T) {
	r := New(newBroker())

	_, err := ResolveTyped[bool](context.Background(), r, "Vehicle.Speed")
	require.True(t, errors.IsTypeMismatch(err))
	assert.Contains(t, err.Error(), "bool")
	assert.Contains(t, err.Error(), "float")
}

func TestResolveTyped_Widening(t *testing.T) {
	r := New(newBroker())

	// float32 signals may be read as float64.
	_, err := ResolveTyped[float64](context.Background(), r, "Vehicle.Speed")
	assert.NoError(t, err)
}
