package broker

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/tr-sdv-sandbox/vsslink/errors"
	"github.com/tr-sdv-sandbox/vsslink/vss"
)

// RPC is the broker surface consumed by the resolver and the client. Unit
// tests substitute an in-memory implementation.
type RPC interface {
	// ListMetadata returns every signal at or under root. An empty root
	// lists the whole tree.
	ListMetadata(ctx context.Context, root string) ([]MetadataEntry, error)

	// GetValue reads the current datapoint of one signal.
	GetValue(ctx context.Context, signalID int32) (vss.QualifiedValue, error)

	// Actuate forwards a target value to the signal's provider.
	Actuate(ctx context.Context, signalID int32, value vss.Value) error

	// PublishValue publishes one datapoint for a signal.
	PublishValue(ctx context.Context, signalID int32, qv vss.QualifiedValue) error

	// OpenProviderStream opens the duplex stream used to claim actuators
	// and receive actuation requests.
	OpenProviderStream(ctx context.Context) (ProviderStream, error)

	// OpenSubscribeStream opens a one-way stream of value updates for the
	// given signals.
	OpenSubscribeStream(ctx context.Context, signalIDs []int32) (SubscribeStream, error)
}

// ProviderStream is a duplex provider stream. Frames() is closed when the
// stream ends; Err() reports why.
type ProviderStream interface {
	Send(frame *ProviderFrame) error
	Frames() <-chan *ProviderFrame
	Err() error
	Close() error
}

// SubscribeStream is a one-way stream of subscription updates. Updates()
// is closed when the stream ends; Err() reports why.
type SubscribeStream interface {
	Updates() <-chan *SubscribeUpdate
	Err() error
	Close() error
}

// Client implements RPC over a Conn.
type Client struct {
	conn *Conn
}

// NewClient returns an RPC client running over conn.
func NewClient(conn *Conn) *Client {
	return &Client{conn: conn}
}

var _ RPC = (*Client)(nil)

// WaitForConnection blocks until the underlying connection is established
// or ctx is done.
func (c *Client) WaitForConnection(ctx context.Context) error {
	return c.conn.WaitForConnection(ctx)
}

// request performs one JSON request/reply round trip.
func (c *Client) request(ctx context.Context, subject string, req, resp any) error {
	nc, err := c.conn.natsConn()
	if err != nil {
		return errors.Unavailable("databroker not connected", err)
	}

	data, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "Client", "request", "marshal request")
	}

	start := time.Now()
	msg, err := nc.RequestWithContext(ctx, subject, data)
	if c.conn.metrics != nil {
		c.conn.metrics.ObserveRPC(subject, start, err)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.DeadlineExceeded(subject)
		}
		return errors.WrapUnavailable(err, "Client", "request", subject)
	}

	if err := json.Unmarshal(msg.Data, resp); err != nil {
		return errors.Wrap(err, "Client", "request", "decode reply")
	}
	return nil
}

// responseError maps a broker-reported error string to a coded error.
func responseError(operation, msg string) error {
	if msg == "" {
		return nil
	}
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "not found") || strings.Contains(lower, "unknown signal"):
		return errors.NotFound(msg)
	case strings.Contains(lower, "invalid"):
		return errors.InvalidArgument(msg)
	case strings.Contains(lower, "unavailable") || strings.Contains(lower, "no provider"):
		return errors.Unavailable(msg, nil)
	default:
		return errors.Internal(operation, msg)
	}
}

// ListMetadata returns every signal at or under root.
func (c *Client) ListMetadata(ctx context.Context, root string) ([]MetadataEntry, error) {
	var resp ListMetadataResponse
	if err := c.request(ctx, SubjectMetadataList, &ListMetadataRequest{Root: root}, &resp); err != nil {
		return nil, err
	}
	if err := responseError("ListMetadata", resp.Error); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// GetValue reads the current datapoint of one signal.
func (c *Client) GetValue(ctx context.Context, signalID int32) (vss.QualifiedValue, error) {
	var resp GetValueResponse
	if err := c.request(ctx, SubjectValueGet, &GetValueRequest{SignalID: signalID}, &resp); err != nil {
		return vss.QualifiedValue{}, err
	}
	if err := responseError("GetValue", resp.Error); err != nil {
		return vss.QualifiedValue{}, err
	}
	return DecodeDatapoint(resp.Datapoint), nil
}

// Actuate forwards a target value to the signal's provider.
func (c *Client) Actuate(ctx context.Context, signalID int32, value vss.Value) error {
	wv, err := EncodeValue(value)
	if err != nil {
		return err
	}
	var resp ActuateResponse
	if err := c.request(ctx, SubjectActuate, &ActuateRequest{SignalID: signalID, Value: wv}, &resp); err != nil {
		return err
	}
	return responseError("Actuate", resp.Error)
}

// PublishValue publishes one datapoint for a signal.
func (c *Client) PublishValue(ctx context.Context, signalID int32, qv vss.QualifiedValue) error {
	dp, err := EncodeDatapoint(qv)
	if err != nil {
		return err
	}
	var resp PublishValueResponse
	if err := c.request(ctx, SubjectValuePublish, &PublishValueRequest{SignalID: signalID, Datapoint: dp}, &resp); err != nil {
		return err
	}
	return responseError("PublishValue", resp.Error)
}
