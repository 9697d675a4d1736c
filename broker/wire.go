package broker

import (
	"time"

	"github.com/tr-sdv-sandbox/vsslink/errors"
	"github.com/tr-sdv-sandbox/vsslink/vss"
)

// WireValue is the oneof-style JSON encoding of a vss.Value. Exactly one
// field is set for a non-empty value; all fields absent encodes the empty
// value. Only physical types appear on the wire.
type WireValue struct {
	Bool   *bool    `json:"bool,omitempty"`
	Int32  *int32   `json:"int32,omitempty"`
	Uint32 *uint32  `json:"uint32,omitempty"`
	Int64  *int64   `json:"int64,omitempty"`
	Uint64 *uint64  `json:"uint64,omitempty"`
	Float  *float32 `json:"float,omitempty"`
	Double *float64 `json:"double,omitempty"`
	String *string  `json:"string,omitempty"`

	BoolArray   []bool    `json:"bool_array,omitempty"`
	Int32Array  []int32   `json:"int32_array,omitempty"`
	Uint32Array []uint32  `json:"uint32_array,omitempty"`
	Int64Array  []int64   `json:"int64_array,omitempty"`
	Uint64Array []uint64  `json:"uint64_array,omitempty"`
	FloatArray  []float32 `json:"float_array,omitempty"`
	DoubleArray []float64 `json:"double_array,omitempty"`
	StringArray []string  `json:"string_array,omitempty"`
}

// EncodeValue converts a vss.Value to its wire form. The empty value
// encodes to a WireValue with no fields set.
func EncodeValue(v vss.Value) (*WireValue, error) {
	if v.IsEmpty() {
		return &WireValue{}, nil
	}
	w := &WireValue{}
	switch v.Type() {
	case vss.TypeBool:
		b, _ := v.AsBool()
		w.Bool = &b
	case vss.TypeInt32:
		i, _ := v.AsInt32()
		w.Int32 = &i
	case vss.TypeUint32:
		u, _ := v.AsUint32()
		w.Uint32 = &u
	case vss.TypeInt64:
		i, _ := v.AsInt64()
		w.Int64 = &i
	case vss.TypeUint64:
		u, _ := v.AsUint64()
		w.Uint64 = &u
	case vss.TypeFloat:
		f, _ := v.AsFloat()
		w.Float = &f
	case vss.TypeDouble:
		d, _ := v.AsDouble()
		w.Double = &d
	case vss.TypeString:
		s, _ := v.AsString()
		w.String = &s
	case vss.TypeBoolArray:
		w.BoolArray, _ = v.AsBoolArray()
	case vss.TypeInt32Array:
		w.Int32Array, _ = v.AsInt32Array()
	case vss.TypeUint32Array:
		w.Uint32Array, _ = v.AsUint32Array()
	case vss.TypeInt64Array:
		w.Int64Array, _ = v.AsInt64Array()
	case vss.TypeUint64Array:
		w.Uint64Array, _ = v.AsUint64Array()
	case vss.TypeFloatArray:
		w.FloatArray, _ = v.AsFloatArray()
	case vss.TypeDoubleArray:
		w.DoubleArray, _ = v.AsDoubleArray()
	case vss.TypeStringArray:
		w.StringArray, _ = v.AsStringArray()
	default:
		return nil, errors.InvalidArgument("cannot encode value of type " + v.Type().String())
	}
	return w, nil
}

// DecodeValue converts a wire value back to a vss.Value. A nil pointer or
// a WireValue with no fields set decodes to the empty value.
func DecodeValue(w *WireValue) vss.Value {
	if w == nil {
		return vss.Empty()
	}
	switch {
	case w.Bool != nil:
		return vss.Bool(*w.Bool)
	case w.Int32 != nil:
		return vss.Int32(*w.Int32)
	case w.Uint32 != nil:
		return vss.Uint32(*w.Uint32)
	case w.Int64 != nil:
		return vss.Int64(*w.Int64)
	case w.Uint64 != nil:
		return vss.Uint64(*w.Uint64)
	case w.Float != nil:
		return vss.Float(*w.Float)
	case w.Double != nil:
		return vss.Double(*w.Double)
	case w.String != nil:
		return vss.String(*w.String)
	case w.BoolArray != nil:
		return vss.BoolArray(w.BoolArray)
	case w.Int32Array != nil:
		return vss.Int32Array(w.Int32Array)
	case w.Uint32Array != nil:
		return vss.Uint32Array(w.Uint32Array)
	case w.Int64Array != nil:
		return vss.Int64Array(w.Int64Array)
	case w.Uint64Array != nil:
		return vss.Uint64Array(w.Uint64Array)
	case w.FloatArray != nil:
		return vss.FloatArray(w.FloatArray)
	case w.DoubleArray != nil:
		return vss.DoubleArray(w.DoubleArray)
	case w.StringArray != nil:
		return vss.StringArray(w.StringArray)
	default:
		return vss.Empty()
	}
}

// Datapoint is a timestamped wire value. A missing value means the signal
// has no trusted reading and decodes to quality NOT_AVAILABLE.
type Datapoint struct {
	Timestamp time.Time  `json:"ts"`
	Value     *WireValue `json:"value,omitempty"`
}

// EncodeDatapoint converts a QualifiedValue to its wire form. Any quality
// other than VALID is sent as an absent value.
func EncodeDatapoint(qv vss.QualifiedValue) (*Datapoint, error) {
	dp := &Datapoint{Timestamp: qv.Timestamp}
	if !qv.IsValid() || qv.Value.IsEmpty() {
		return dp, nil
	}
	w, err := EncodeValue(qv.Value)
	if err != nil {
		return nil, err
	}
	dp.Value = w
	return dp, nil
}

// DecodeDatapoint converts a wire datapoint to a QualifiedValue.
func DecodeDatapoint(dp *Datapoint) vss.QualifiedValue {
	if dp == nil {
		return vss.QualifiedValue{Quality: vss.QualityNotAvailable, Timestamp: time.Now()}
	}
	v := DecodeValue(dp.Value)
	quality := vss.QualityValid
	if v.IsEmpty() {
		quality = vss.QualityNotAvailable
	}
	return vss.QualifiedValue{Value: v, Quality: quality, Timestamp: dp.Timestamp}
}

// MetadataEntry describes one signal in a metadata listing.
type MetadataEntry struct {
	Path      string `json:"path"`
	ID        int32  `json:"id"`
	DataType  string `json:"data_type"`
	EntryType string `json:"entry_type"`
}

// ListMetadataRequest asks for every signal at or under a root path. An
// empty root lists the whole tree.
type ListMetadataRequest struct {
	Root string `json:"root"`
}

// ListMetadataResponse carries the matching entries.
type ListMetadataResponse struct {
	Entries []MetadataEntry `json:"entries"`
	Error   string          `json:"error,omitempty"`
}

// GetValueRequest reads the current datapoint of one signal.
type GetValueRequest struct {
	SignalID int32 `json:"signal_id"`
}

// GetValueResponse carries the signal's current datapoint.
type GetValueResponse struct {
	Datapoint *Datapoint `json:"data_point,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// ActuateRequest asks the broker to forward a target value to the signal's
// provider.
type ActuateRequest struct {
	SignalID int32      `json:"signal_id"`
	Value    *WireValue `json:"value"`
}

// ActuateResponse reports the actuation outcome.
type ActuateResponse struct {
	Error string `json:"error,omitempty"`
}

// PublishValueRequest publishes one datapoint for a signal.
type PublishValueRequest struct {
	SignalID  int32      `json:"signal_id"`
	Datapoint *Datapoint `json:"data_point"`
}

// PublishValueResponse reports the publish outcome.
type PublishValueResponse struct {
	Error string `json:"error,omitempty"`
}

// OpenProviderRequest opens a duplex provider stream. The broker replies
// with the inbox the provider must send its frames to, and delivers its own
// frames to ClientInbox.
type OpenProviderRequest struct {
	ClientInbox string `json:"client_inbox"`
}

// OpenProviderResponse carries the server-side inbox of the stream.
type OpenProviderResponse struct {
	ServerInbox string `json:"server_inbox"`
	Error       string `json:"error,omitempty"`
}

// ActuatorClaim names one actuator the provider serves.
type ActuatorClaim struct {
	ID   int32  `json:"id"`
	Path string `json:"path"`
}

// ProvideActuation is the provider's claim frame listing its actuators.
type ProvideActuation struct {
	Actuators []ActuatorClaim `json:"actuators"`
}

// BatchActuateEntry is one actuation inside a batch request.
type BatchActuateEntry struct {
	SignalID int32      `json:"signal_id"`
	Value    *WireValue `json:"value"`
}

// BatchActuateRequest carries actuations the broker routed to this
// provider. Every request must be answered with one BatchActuateResponse.
type BatchActuateRequest struct {
	Requests []BatchActuateEntry `json:"requests"`
}

// BatchActuateResponse acknowledges a BatchActuateRequest. Error is set
// when the provider could not dispatch the batch.
type BatchActuateResponse struct {
	Error string `json:"error,omitempty"`
}

// ProvideActuationAck confirms the broker accepted the claim frame.
type ProvideActuationAck struct {
	Error string `json:"error,omitempty"`
}

// ProviderFrame is the oneof envelope exchanged on a provider stream.
// Client to server: ProvideActuation, BatchActuateResponse.
// Server to client: ProvideActuationAck, BatchActuateRequest.
type ProviderFrame struct {
	ProvideActuation     *ProvideActuation     `json:"provide_actuation,omitempty"`
	ProvideActuationAck  *ProvideActuationAck  `json:"provide_actuation_ack,omitempty"`
	BatchActuateRequest  *BatchActuateRequest  `json:"batch_actuate_request,omitempty"`
	BatchActuateResponse *BatchActuateResponse `json:"batch_actuate_response,omitempty"`
}

// SubscribeRequest opens a subscription stream. The broker streams
// SubscribeUpdate batches to Inbox.
type SubscribeRequest struct {
	SignalIDs []int32 `json:"signal_ids"`
	Inbox     string  `json:"inbox"`
}

// SubscribeResponse acknowledges a subscription request.
type SubscribeResponse struct {
	Error string `json:"error,omitempty"`
}

// SubscribeUpdate is one batch of changed datapoints keyed by signal id.
type SubscribeUpdate struct {
	Entries map[int32]*Datapoint `json:"entries"`
}
