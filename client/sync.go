package client

import (
	"context"

	"github.com/tr-sdv-sandbox/vsslink/errors"
	"github.com/tr-sdv-sandbox/vsslink/vss"
)

// Get reads the current value of a signal directly from the broker. It
// works on any goroutine, regardless of loop state.
func (c *Client) Get(ctx context.Context, handle vss.SignalHandle) (vss.QualifiedValue, error) {
	return c.rpc.GetValue(ctx, handle.ID)
}

// Set writes a value to a signal. Actuator writes become actuation
// requests routed to the signal's provider; sensor and attribute writes go
// through the publish path. The value must be VALID and non-empty.
func (c *Client) Set(ctx context.Context, handle vss.SignalHandle, qv vss.QualifiedValue) error {
	if !qv.IsValid() || qv.Value.IsEmpty() {
		return errors.InvalidArgument("Set requires a VALID non-empty value for " + handle.Path)
	}
	if !vss.ArePhysicallyCompatible(handle.Type, qv.Value.Type()) {
		return errors.TypeMismatch(handle.Path, handle.Type.String(), qv.Value.Type().String())
	}

	if handle.Class == vss.ClassActuator {
		err := c.rpc.Actuate(ctx, handle.ID, qv.Value)
		if c.metrics != nil {
			status := "ok"
			if err != nil {
				status = "error"
			}
			c.metrics.ActuationsTotal.WithLabelValues(c.name, "outbound", status).Inc()
		}
		return err
	}
	return c.Publish(ctx, handle, qv)
}

// Publish publishes a datapoint for a signal. Unlike Set, any quality is
// allowed: a non-VALID quality publishes an empty datapoint, marking the
// signal as having no trusted value.
func (c *Client) Publish(ctx context.Context, handle vss.SignalHandle, qv vss.QualifiedValue) error {
	err := c.rpc.PublishValue(ctx, handle.ID, qv)
	if c.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		c.metrics.ValuesPublished.WithLabelValues(c.name, status).Inc()
	}
	return err
}

// PublishEntry is one signal/value pair in a batch publish.
type PublishEntry struct {
	Handle vss.SignalHandle
	Value  vss.QualifiedValue
}

// PublishBatch publishes every entry and reports per-signal failures
// through the callback, keyed by signal id. An empty map means every entry
// succeeded. The batch itself always succeeds; the returned error is
// always nil and exists only to keep the signature uniform with the other
// write operations.
func (c *Client) PublishBatch(ctx context.Context, entries []PublishEntry, report func(map[int32]error)) error {
	failures := make(map[int32]error)
	for _, e := range entries {
		if err := c.Publish(ctx, e.Handle, e.Value); err != nil {
			failures[e.Handle.ID] = err
		}
	}
	if len(failures) > 0 {
		c.logger.Warn("batch publish had failures",
			"client", c.name,
			"failed", len(failures),
			"total", len(entries))
	}
	if report != nil {
		report(failures)
	}
	return nil
}

// valueAs extracts T from a Value, widening float32→float64, int32→int64
// and uint32→uint64 (element-wise for arrays) when the exact kind does not
// match. Signals declared with a narrower logical type arrive carrying
// their physical type, so a TypedHandle[int64] for an int32-carried signal
// still decodes.
func valueAs[T vss.ScalarOrArray](v vss.Value) (T, bool) {
	if got, ok := vss.ValueAs[T](v); ok {
		return got, true
	}
	var widened vss.Value
	switch v.Type() {
	case vss.TypeFloat:
		f, _ := v.AsFloat()
		widened = vss.Double(float64(f))
	case vss.TypeInt32:
		i, _ := v.AsInt32()
		widened = vss.Int64(int64(i))
	case vss.TypeUint32:
		u, _ := v.AsUint32()
		widened = vss.Uint64(uint64(u))
	case vss.TypeFloatArray:
		fs, _ := v.AsFloatArray()
		ds := make([]float64, len(fs))
		for i, f := range fs {
			ds[i] = float64(f)
		}
		widened = vss.DoubleArray(ds)
	case vss.TypeInt32Array:
		is, _ := v.AsInt32Array()
		ls := make([]int64, len(is))
		for i, n := range is {
			ls[i] = int64(n)
		}
		widened = vss.Int64Array(ls)
	case vss.TypeUint32Array:
		us, _ := v.AsUint32Array()
		ls := make([]uint64, len(us))
		for i, n := range us {
			ls[i] = uint64(n)
		}
		widened = vss.Uint64Array(ls)
	default:
		var zero T
		return zero, false
	}
	return vss.ValueAs[T](widened)
}

// GetTyped reads a signal through a typed handle. A signal with no valid
// value is an error; use Client.Get for quality-aware reads.
func GetTyped[T vss.ScalarOrArray](ctx context.Context, c *Client, handle vss.TypedHandle[T]) (T, error) {
	var zero T
	qv, err := c.Get(ctx, handle.SignalHandle)
	if err != nil {
		return zero, err
	}
	if !qv.IsValid() {
		return zero, errors.Unavailablef("signal %s has no valid value (quality %s)",
			handle.Path, qv.Quality)
	}
	got, ok := valueAs[T](qv.Value)
	if !ok {
		return zero, errors.TypeMismatch(handle.Path, vss.TypeOf[T]().String(), qv.Value.Type().String())
	}
	return got, nil
}

// SetTyped writes a signal through a typed handle.
func SetTyped[T vss.ScalarOrArray](ctx context.Context, c *Client, handle vss.TypedHandle[T], value T) error {
	return c.Set(ctx, handle.SignalHandle, vss.Valid(vss.ValueOf(value)))
}

// PublishTyped publishes a VALID datapoint through a typed handle.
func PublishTyped[T vss.ScalarOrArray](ctx context.Context, c *Client, handle vss.TypedHandle[T], value T) error {
	return c.Publish(ctx, handle.SignalHandle, vss.Valid(vss.ValueOf(value)))
}

// SubscribeTyped registers a typed subscription callback. Updates whose
// quality is not VALID or whose value cannot be decoded as T are dropped
// with a log line.
func SubscribeTyped[T vss.ScalarOrArray](c *Client, handle vss.TypedHandle[T], fn func(T)) error {
	return c.Subscribe(handle.SignalHandle, func(qv vss.QualifiedValue) {
		if !qv.IsValid() {
			return
		}
		got, ok := valueAs[T](qv.Value)
		if !ok {
			c.logger.Warn("dropping update with unexpected type",
				"client", c.name,
				"path", handle.Path,
				"got", qv.Value.Type().String(),
				"want", vss.TypeOf[T]().String())
			return
		}
		fn(got)
	})
}

// ServeActuatorTyped registers a typed actuation handler. Requests whose
// value cannot be decoded as T are dropped with a log line.
func ServeActuatorTyped[T vss.ScalarOrArray](c *Client, handle vss.TypedHandle[T], fn func(T)) error {
	return c.ServeActuator(handle.SignalHandle, func(v vss.Value) {
		got, ok := valueAs[T](v)
		if !ok {
			c.logger.Warn("dropping actuation with unexpected type",
				"client", c.name,
				"path", handle.Path,
				"got", v.Type().String(),
				"want", vss.TypeOf[T]().String())
			return
		}
		fn(got)
	})
}
