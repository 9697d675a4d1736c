// Package brokertest provides test doubles for the databroker: an
// in-memory Broker implementing broker.RPC for unit tests, and a
// testcontainers-backed NATS helper for integration tests.
package brokertest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tr-sdv-sandbox/vsslink/broker"
	"github.com/tr-sdv-sandbox/vsslink/errors"
	"github.com/tr-sdv-sandbox/vsslink/vss"
)

// Signal is one row of the fake broker's signal table.
type Signal struct {
	Path  string
	ID    int32
	Type  vss.ValueType
	Class vss.SignalClass

	value vss.QualifiedValue
}

// Broker is an in-memory databroker. It implements broker.RPC so the
// resolver and client can run against it without a server.
type Broker struct {
	mu          sync.Mutex
	byPath      map[string]*Signal
	byID        map[int32]*Signal
	providers   []*fakeProviderStream
	subscribers []*fakeSubscribeStream
	failPublish map[int32]string
}

var _ broker.RPC = (*Broker)(nil)

// New creates an empty fake broker.
func New() *Broker {
	return &Broker{
		byPath:      make(map[string]*Signal),
		byID:        make(map[int32]*Signal),
		failPublish: make(map[int32]string),
	}
}

// AddSignal registers a signal in the table with no current value.
func (b *Broker) AddSignal(path string, id int32, t vss.ValueType, class vss.SignalClass) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &Signal{
		Path:  path,
		ID:    id,
		Type:  t,
		Class: class,
		value: vss.NotAvailable(),
	}
	b.byPath[path] = s
	b.byID[id] = s
}

// SetValue seeds the current value of a signal without notifying
// subscribers.
func (b *Broker) SetValue(path string, qv vss.QualifiedValue) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.byPath[path]; ok {
		s.value = qv
	}
}

// Value returns the current value of a signal for assertions.
func (b *Broker) Value(path string) (vss.QualifiedValue, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.byPath[path]
	if !ok {
		return vss.QualifiedValue{}, false
	}
	return s.value, true
}

// FailPublish makes PublishValue for the given signal id return the given
// error message.
func (b *Broker) FailPublish(id int32, msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failPublish[id] = msg
}

// ListMetadata returns every signal at or under root.
func (b *Broker) ListMetadata(_ context.Context, root string) ([]broker.MetadataEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var entries []broker.MetadataEntry
	for _, s := range b.byPath {
		if root != "" && s.Path != root && !strings.HasPrefix(s.Path, root+".") {
			continue
		}
		entries = append(entries, broker.MetadataEntry{
			Path:      s.Path,
			ID:        s.ID,
			DataType:  s.Type.String(),
			EntryType: s.Class.String(),
		})
	}
	return entries, nil
}

// GetValue reads the current datapoint of one signal.
func (b *Broker) GetValue(_ context.Context, signalID int32) (vss.QualifiedValue, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.byID[signalID]
	if !ok {
		return vss.QualifiedValue{}, errors.NotFound(fmt.Sprintf("signal id %d", signalID))
	}
	return s.value, nil
}

// Actuate routes a target value to the provider claiming the signal.
func (b *Broker) Actuate(_ context.Context, signalID int32, value vss.Value) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.byID[signalID]; !ok {
		return errors.NotFound(fmt.Sprintf("signal id %d", signalID))
	}

	wv, err := broker.EncodeValue(value)
	if err != nil {
		return err
	}

	for _, p := range b.providers {
		if p.claims(signalID) {
			p.push(&broker.ProviderFrame{
				BatchActuateRequest: &broker.BatchActuateRequest{
					Requests: []broker.BatchActuateEntry{{SignalID: signalID, Value: wv}},
				},
			})
			return nil
		}
	}
	return errors.Unavailable(fmt.Sprintf("no provider for signal id %d", signalID), nil)
}

// PublishValue stores a datapoint and fans it out to subscribers.
func (b *Broker) PublishValue(_ context.Context, signalID int32, qv vss.QualifiedValue) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if msg, ok := b.failPublish[signalID]; ok {
		return errors.InvalidArgument(msg)
	}

	s, ok := b.byID[signalID]
	if !ok {
		return errors.NotFound(fmt.Sprintf("signal id %d", signalID))
	}
	s.value = qv

	dp, err := broker.EncodeDatapoint(qv)
	if err != nil {
		return err
	}
	for _, sub := range b.subscribers {
		if sub.watches(signalID) {
			sub.push(&broker.SubscribeUpdate{
				Entries: map[int32]*broker.Datapoint{signalID: dp},
			})
		}
	}
	return nil
}

// OpenProviderStream opens a fake duplex provider stream. Claim frames are
// acknowledged immediately.
func (b *Broker) OpenProviderStream(_ context.Context) (broker.ProviderStream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := &fakeProviderStream{
		broker:  b,
		frames:  make(chan *broker.ProviderFrame, 64),
		claimed: make(map[int32]bool),
	}
	b.providers = append(b.providers, p)
	return p, nil
}

// OpenSubscribeStream opens a fake subscription stream fed by PublishValue.
func (b *Broker) OpenSubscribeStream(_ context.Context, signalIDs []int32) (broker.SubscribeStream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids := make(map[int32]bool, len(signalIDs))
	for _, id := range signalIDs {
		ids[id] = true
	}
	s := &fakeSubscribeStream{
		broker:  b,
		updates: make(chan *broker.SubscribeUpdate, 64),
		ids:     ids,
	}
	b.subscribers = append(b.subscribers, s)
	return s, nil
}

// BreakSubscribeStreams ends every open subscription stream with err, as a
// broker restart would.
func (b *Broker) BreakSubscribeStreams(err error) {
	b.mu.Lock()
	subs := b.subscribers
	b.subscribers = nil
	b.mu.Unlock()

	for _, s := range subs {
		s.fail(err)
	}
}

// BreakProviderStreams ends every open provider stream with err.
func (b *Broker) BreakProviderStreams(err error) {
	b.mu.Lock()
	provs := b.providers
	b.providers = nil
	b.mu.Unlock()

	for _, p := range provs {
		p.fail(err)
	}
}

func (b *Broker) removeProvider(p *fakeProviderStream) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, cand := range b.providers {
		if cand == p {
			b.providers = append(b.providers[:i], b.providers[i+1:]...)
			return
		}
	}
}

func (b *Broker) removeSubscriber(s *fakeSubscribeStream) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, cand := range b.subscribers {
		if cand == s {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return
		}
	}
}

type fakeProviderStream struct {
	broker *Broker
	frames chan *broker.ProviderFrame

	mu      sync.Mutex
	claimed map[int32]bool
	err     error
	closed  bool
}

func (p *fakeProviderStream) Send(frame *broker.ProviderFrame) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.Unavailable("stream closed", nil)
	}
	p.mu.Unlock()

	if frame.ProvideActuation != nil {
		p.mu.Lock()
		for _, claim := range frame.ProvideActuation.Actuators {
			p.claimed[claim.ID] = true
		}
		p.mu.Unlock()
		p.push(&broker.ProviderFrame{ProvideActuationAck: &broker.ProvideActuationAck{}})
	}
	// BatchActuateResponse frames are acknowledgements; nothing to do.
	return nil
}

func (p *fakeProviderStream) Frames() <-chan *broker.ProviderFrame {
	return p.frames
}

func (p *fakeProviderStream) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *fakeProviderStream) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.broker.removeProvider(p)
	close(p.frames)
	return nil
}

func (p *fakeProviderStream) claims(id int32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.claimed[id]
}

func (p *fakeProviderStream) push(frame *broker.ProviderFrame) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return
	}
	select {
	case p.frames <- frame:
	default:
	}
}

func (p *fakeProviderStream) fail(err error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.err = err
	p.mu.Unlock()
	close(p.frames)
}

type fakeSubscribeStream struct {
	broker  *Broker
	updates chan *broker.SubscribeUpdate
	ids     map[int32]bool

	mu     sync.Mutex
	err    error
	closed bool
}

func (s *fakeSubscribeStream) Updates() <-chan *broker.SubscribeUpdate {
	return s.updates
}

func (s *fakeSubscribeStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeSubscribeStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.broker.removeSubscriber(s)
	close(s.updates)
	return nil
}

func (s *fakeSubscribeStream) watches(id int32) bool {
	return s.ids[id]
}

func (s *fakeSubscribeStream) push(update *broker.SubscribeUpdate) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	select {
	case s.updates <- update:
	default:
	}
}

func (s *fakeSubscribeStream) fail(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.err = err
	s.mu.Unlock()
	close(s.updates)
}
