// Package client implements the unified databroker client: actuator serving
// and value streaming through a provider loop, live updates through a
// subscriber loop, and a synchronous read/write API that bypasses both.
package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tr-sdv-sandbox/vsslink/broker"
	"github.com/tr-sdv-sandbox/vsslink/connstate"
	"github.com/tr-sdv-sandbox/vsslink/errors"
	"github.com/tr-sdv-sandbox/vsslink/metric"
	"github.com/tr-sdv-sandbox/vsslink/resolver"
	"github.com/tr-sdv-sandbox/vsslink/vss"
)

// connectionWaiter is implemented by transports that can block until the
// underlying connection is up. The in-memory test broker has no connection
// to wait for and does not implement it.
type connectionWaiter interface {
	WaitForConnection(ctx context.Context) error
}

type actuatorReg struct {
	handle vss.SignalHandle
	fn     func(vss.Value)
}

type subscription struct {
	handle vss.SignalHandle
	fn     func(vss.QualifiedValue)
}

// Client is the unified databroker client. Configure actuators and
// subscriptions before Start; use the synchronous API any time.
type Client struct {
	rpc      broker.RPC
	resolver *resolver.Resolver
	logger   *slog.Logger
	metrics  *metric.Metrics
	name     string

	connectWait    time.Duration
	backoffInitial time.Duration
	backoffMax     time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	providerSM   *connstate.Machine
	subscriberSM *connstate.Machine

	regMu     sync.Mutex
	actuators []actuatorReg
	byID      map[int32]bool

	subMu sync.Mutex
	subs  map[int32]subscription
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics wires client activity into the given core metrics.
func WithMetrics(m *metric.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithName sets the client name used in logs and metrics.
func WithName(name string) Option {
	return func(c *Client) { c.name = name }
}

// WithConnectWait sets how long each loop pass waits for the broker
// connection before treating the attempt as failed.
func WithConnectWait(d time.Duration) Option {
	return func(c *Client) { c.connectWait = d }
}

// WithBackoff tunes the subscriber reconnect backoff ladder.
func WithBackoff(initial, max time.Duration) Option {
	return func(c *Client) {
		c.backoffInitial = initial
		c.backoffMax = max
	}
}

// New creates a Client over the given broker surface.
func New(rpc broker.RPC, opts ...Option) *Client {
	c := &Client{
		rpc:            rpc,
		logger:         slog.Default(),
		name:           "vsslink",
		connectWait:    5 * time.Second,
		backoffInitial: 100 * time.Millisecond,
		backoffMax:     30 * time.Second,
		byID:           make(map[int32]bool),
		subs:           make(map[int32]subscription),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.resolver = resolver.New(rpc, resolver.WithLogger(c.logger))
	return c
}

// Resolver returns the client's shared resolver.
func (c *Client) Resolver() *resolver.Resolver {
	return c.resolver
}

// ServeActuator registers a handler for actuation requests targeting the
// given actuator. Must be called before Start. Registering the same signal
// id twice is an error.
func (c *Client) ServeActuator(handle vss.SignalHandle, fn func(vss.Value)) error {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()
	if running {
		return errors.FailedPrecondition("cannot register actuators while the client is running")
	}
	if fn == nil {
		return errors.InvalidArgument("actuator handler must not be nil")
	}

	c.regMu.Lock()
	defer c.regMu.Unlock()
	if c.byID[handle.ID] {
		return errors.InvalidArgument("actuator " + handle.Path + " already registered")
	}
	c.byID[handle.ID] = true
	c.actuators = append(c.actuators, actuatorReg{handle: handle, fn: fn})
	return nil
}

// Subscribe registers a callback for value updates on the given signal.
// Must be called before Start. Subscribing to the same signal id twice
// replaces the callback.
func (c *Client) Subscribe(handle vss.SignalHandle, fn func(vss.QualifiedValue)) error {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()
	if running {
		return errors.FailedPrecondition("cannot subscribe while the client is running")
	}
	if fn == nil {
		return errors.InvalidArgument("subscription callback must not be nil")
	}

	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subs[handle.ID] = subscription{handle: handle, fn: fn}
	return nil
}

// Unsubscribe removes the subscription for a signal. Safe to call any
// time; a running subscriber stream keeps delivering until its next
// reconnect, but the callback is no longer invoked.
func (c *Client) Unsubscribe(handle vss.SignalHandle) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	delete(c.subs, handle.ID)
}

// SubscriptionCount returns the number of registered subscriptions.
func (c *Client) SubscriptionCount() int {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	return len(c.subs)
}

// ClearSubscriptions removes every subscription.
func (c *Client) ClearSubscriptions() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subs = make(map[int32]subscription)
}

// Start spins up the provider loop if actuators are registered and the
// subscriber loop if subscriptions exist. Calling Start on a running
// client is an error.
func (c *Client) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return errors.FailedPrecondition("client already started")
	}

	c.regMu.Lock()
	hasActuators := len(c.actuators) > 0
	c.regMu.Unlock()
	c.subMu.Lock()
	hasSubs := len(c.subs) > 0
	c.subMu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.running = true

	smOpts := []connstate.Option{connstate.WithLogger(c.logger)}
	if c.metrics != nil {
		smOpts = append(smOpts,
			connstate.WithObserver(metric.NewFSMObserver(c.metrics)),
			connstate.WithMetrics(c.metrics),
		)
	}

	if hasActuators {
		c.providerSM = connstate.New(c.name+"-provider", connstate.RoleProvider, smOpts...)
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.providerLoop(ctx)
		}()
	} else {
		c.providerSM = nil
	}

	if hasSubs {
		c.subscriberSM = connstate.New(c.name+"-subscriber", connstate.RoleSubscriber, smOpts...)
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.subscriberLoop(ctx)
		}()
	} else {
		c.subscriberSM = nil
	}

	c.logger.Info("client started",
		"client", c.name,
		"provider", hasActuators,
		"subscriber", hasSubs)
	return nil
}

// Stop cancels both loops and blocks until they exit. It must not be
// called from an actuation or subscription callback.
func (c *Client) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	c.mu.Unlock()

	cancel()
	c.wg.Wait()

	c.mu.Lock()
	c.running = false
	c.cancel = nil
	c.mu.Unlock()

	c.logger.Info("client stopped", "client", c.name)
}

// Status reports aggregate operational readiness: every configured loop
// must be active.
func (c *Client) Status() error {
	c.mu.Lock()
	running := c.running
	provider := c.providerSM
	subscriber := c.subscriberSM
	c.mu.Unlock()

	if !running {
		return errors.FailedPrecondition("client not started")
	}
	if provider != nil {
		if err := provider.Status(); err != nil {
			return err
		}
	}
	if subscriber != nil {
		if err := subscriber.Status(); err != nil {
			return err
		}
	}
	return nil
}

// WaitUntilReady blocks until every configured loop is active or the
// timeout elapses.
func (c *Client) WaitUntilReady(timeout time.Duration) error {
	c.mu.Lock()
	running := c.running
	provider := c.providerSM
	subscriber := c.subscriberSM
	c.mu.Unlock()

	if !running {
		return errors.FailedPrecondition("client not started")
	}

	deadline := time.Now().Add(timeout)
	if provider != nil {
		if err := provider.WaitUntilActive(time.Until(deadline)); err != nil {
			return err
		}
	}
	if subscriber != nil {
		if err := subscriber.WaitUntilActive(time.Until(deadline)); err != nil {
			return err
		}
	}
	return nil
}

// waitForConnection blocks until the transport reports a live connection,
// bounded by connectWait and ctx.
func (c *Client) waitForConnection(ctx context.Context) error {
	waiter, ok := c.rpc.(connectionWaiter)
	if !ok {
		return nil
	}
	waitCtx, cancel := context.WithTimeout(ctx, c.connectWait)
	defer cancel()
	return waiter.WaitForConnection(waitCtx)
}

// dispatchUpdate delivers one datapoint to the callback subscribed to the
// signal, if any.
func (c *Client) dispatchUpdate(id int32, qv vss.QualifiedValue) {
	c.subMu.Lock()
	sub, ok := c.subs[id]
	c.subMu.Unlock()
	if !ok {
		return
	}
	if c.metrics != nil {
		c.metrics.SubscriptionUpdates.WithLabelValues(c.name).Inc()
	}
	sub.fn(qv)
}
