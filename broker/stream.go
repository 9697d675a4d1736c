package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/tr-sdv-sandbox/vsslink/errors"
)

// natsProviderStream is the NATS-backed duplex provider stream. The client
// receives server frames on a uuid inbox and sends its own frames to the
// inbox the broker handed back from the open request.
type natsProviderStream struct {
	nc          *nats.Conn
	sub         *nats.Subscription
	serverInbox string

	frames chan *ProviderFrame
	cancel context.CancelFunc

	mu     sync.Mutex
	err    error
	closed bool
}

// OpenProviderStream opens the duplex stream used to claim actuators and
// receive actuation requests.
func (c *Client) OpenProviderStream(ctx context.Context) (ProviderStream, error) {
	nc, err := c.conn.natsConn()
	if err != nil {
		return nil, errors.Unavailable("databroker not connected", err)
	}

	clientInbox := fmt.Sprintf("vss.v1.provider.inbox.%s", uuid.NewString())
	sub, err := nc.SubscribeSync(clientInbox)
	if err != nil {
		return nil, errors.WrapUnavailable(err, "Client", "OpenProviderStream", "subscribe inbox")
	}

	var resp OpenProviderResponse
	if err := c.request(ctx, SubjectProviderOpen, &OpenProviderRequest{ClientInbox: clientInbox}, &resp); err != nil {
		_ = sub.Unsubscribe()
		return nil, err
	}
	if respErr := responseError("OpenProviderStream", resp.Error); respErr != nil {
		_ = sub.Unsubscribe()
		return nil, respErr
	}

	readCtx, cancel := context.WithCancel(context.Background())
	s := &natsProviderStream{
		nc:          nc,
		sub:         sub,
		serverInbox: resp.ServerInbox,
		frames:      make(chan *ProviderFrame, 16),
		cancel:      cancel,
	}
	go s.readLoop(readCtx)
	return s, nil
}

func (s *natsProviderStream) readLoop(ctx context.Context) {
	defer close(s.frames)
	for {
		msg, err := s.sub.NextMsgWithContext(ctx)
		if err != nil {
			s.setErr(err)
			return
		}
		frame := &ProviderFrame{}
		if err := json.Unmarshal(msg.Data, frame); err != nil {
			s.setErr(errors.Wrap(err, "ProviderStream", "readLoop", "decode frame"))
			return
		}
		select {
		case s.frames <- frame:
		case <-ctx.Done():
			s.setErr(ctx.Err())
			return
		}
	}
}

func (s *natsProviderStream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil && !s.closed {
		s.err = err
	}
}

// Send publishes one frame to the broker side of the stream.
func (s *natsProviderStream) Send(frame *ProviderFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return errors.Wrap(err, "ProviderStream", "Send", "marshal frame")
	}
	if err := s.nc.Publish(s.serverInbox, data); err != nil {
		return errors.WrapUnavailable(err, "ProviderStream", "Send", "publish frame")
	}
	return nil
}

// Frames returns the channel of decoded server frames. It is closed when
// the stream ends.
func (s *natsProviderStream) Frames() <-chan *ProviderFrame {
	return s.frames
}

// Err reports why the stream ended. It returns nil while the stream is
// live or after a clean Close.
func (s *natsProviderStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close tears the stream down. Safe to call more than once.
func (s *natsProviderStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	return s.sub.Unsubscribe()
}

// natsSubscribeStream is the NATS-backed subscription stream.
type natsSubscribeStream struct {
	sub    *nats.Subscription
	cancel context.CancelFunc

	updates chan *SubscribeUpdate

	mu     sync.Mutex
	err    error
	closed bool
}

// OpenSubscribeStream opens a one-way stream of value updates for the given
// signals.
func (c *Client) OpenSubscribeStream(ctx context.Context, signalIDs []int32) (SubscribeStream, error) {
	nc, err := c.conn.natsConn()
	if err != nil {
		return nil, errors.Unavailable("databroker not connected", err)
	}

	inbox := fmt.Sprintf("vss.v1.subscribe.inbox.%s", uuid.NewString())
	sub, err := nc.SubscribeSync(inbox)
	if err != nil {
		return nil, errors.WrapUnavailable(err, "Client", "OpenSubscribeStream", "subscribe inbox")
	}

	var resp SubscribeResponse
	req := &SubscribeRequest{SignalIDs: signalIDs, Inbox: inbox}
	if err := c.request(ctx, SubjectSubscribe, req, &resp); err != nil {
		_ = sub.Unsubscribe()
		return nil, err
	}
	if respErr := responseError("OpenSubscribeStream", resp.Error); respErr != nil {
		_ = sub.Unsubscribe()
		return nil, respErr
	}

	readCtx, cancel := context.WithCancel(context.Background())
	s := &natsSubscribeStream{
		sub:     sub,
		cancel:  cancel,
		updates: make(chan *SubscribeUpdate, 16),
	}
	go s.readLoop(readCtx)
	return s, nil
}

func (s *natsSubscribeStream) readLoop(ctx context.Context) {
	defer close(s.updates)
	for {
		msg, err := s.sub.NextMsgWithContext(ctx)
		if err != nil {
			s.setErr(err)
			return
		}
		update := &SubscribeUpdate{}
		if err := json.Unmarshal(msg.Data, update); err != nil {
			s.setErr(errors.Wrap(err, "SubscribeStream", "readLoop", "decode update"))
			return
		}
		select {
		case s.updates <- update:
		case <-ctx.Done():
			s.setErr(ctx.Err())
			return
		}
	}
}

func (s *natsSubscribeStream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil && !s.closed {
		s.err = err
	}
}

// Updates returns the channel of decoded update batches. It is closed when
// the stream ends.
func (s *natsSubscribeStream) Updates() <-chan *SubscribeUpdate {
	return s.updates
}

// Err reports why the stream ended. It returns nil while the stream is
// live or after a clean Close.
func (s *natsSubscribeStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close tears the stream down. Safe to call more than once.
func (s *natsSubscribeStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	return s.sub.Unsubscribe()
}
