package resolver

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tr-sdv-sandbox/vsslink/errors"
	"github.com/tr-sdv-sandbox/vsslink/vss"
)

func TestSignalSet_ResolvesAll(t *testing.T) {
	r := New(newBroker())

	var speed vss.TypedHandle[float32]
	var trunk vss.SignalHandle

	err := Bind[float32](r.Signals(), &speed, "Vehicle.Speed").
		Add(&trunk, "Vehicle.Body.Trunk.IsOpen").
		Resolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(1), speed.ID)
	assert.Equal(t, vss.TypeFloat, speed.Type)
	assert.Equal(t, int32(2), trunk.ID)
	assert.Equal(t, vss.ClassActuator, trunk.Class)
}

func TestSignalSet_AggregatesFailures(t *testing.T) {
	r := New(newBroker())

	var speed vss.SignalHandle
	var ghost vss.SignalHandle
	var battery vss.TypedHandle[string]

	err := r.Signals().
		Add(&speed, "Vehicle.Speed").
		Add(&ghost, "Vehicle.DoesNotExist").
		Resolve(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.Contains(t, err.Error(), "Vehicle.DoesNotExist")
	assert.Contains(t, err.Error(), "1 of 2")

	// Successful entries are populated even when the batch fails.
	assert.Equal(t, int32(1), speed.ID)
	assert.Zero(t, ghost.ID)

	// Type mismatches are aggregated the same way.
	err = Bind[string](r.Signals(), &battery, "Vehicle.Powertrain.Battery.Level").
		Resolve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Vehicle.Powertrain.Battery.Level")
}

func TestSignalSet_MultipleFailuresAllNamed(t *testing.T) {
	r := New(newBroker())

	var a, b vss.SignalHandle
	err := r.Signals().
		Add(&a, "Vehicle.Nope").
		Add(&b, "Vehicle.AlsoNope").
		Resolve(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, strings.Count(err.Error(), "Nope"))
	assert.Contains(t, err.Error(), "2 of 2")
}

func TestSignalSet_EmptyBatch(t *testing.T) {
	r := New(newBroker())
	assert.NoError(t, r.Signals().Resolve(context.Background()))
}
