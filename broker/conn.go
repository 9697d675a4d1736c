// Package broker implements the wire protocol and NATS transport for the
// databroker: a managed connection, unary request/reply RPCs, the duplex
// provider stream and the subscription stream.
package broker

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/tr-sdv-sandbox/vsslink/errors"
	"github.com/tr-sdv-sandbox/vsslink/metric"
)

// ConnStatus represents the state of the broker connection.
type ConnStatus int

// Possible connection statuses.
const (
	StatusDisconnected ConnStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
)

// String returns the string representation of ConnStatus.
func (s ConnStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Sentinel errors.
var (
	ErrNotConnected = stderrors.New("not connected to databroker")
)

// Conn manages the shared NATS connection all broker RPCs run over.
type Conn struct {
	url    string
	status atomic.Value // stores ConnStatus
	logger *slog.Logger

	conn *nats.Conn

	// Connection options
	maxReconnects int
	reconnectWait time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration
	clientName    string

	// Authentication
	username string
	password string
	token    string

	// TLS
	tlsEnabled  bool
	tlsCertFile string
	tlsKeyFile  string
	tlsCAFile   string

	metrics *metric.Metrics

	mu      sync.RWMutex
	closeMu sync.Mutex
	closed  atomic.Bool
}

// Option is a functional option for configuring the Conn.
type Option func(*Conn) error

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Conn) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithConnectTimeout sets the connection timeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Conn) error {
		if d <= 0 {
			return fmt.Errorf("connect timeout must be positive, got %v", d)
		}
		c.timeout = d
		return nil
	}
}

// WithName sets the client name reported to the broker.
func WithName(name string) Option {
	return func(c *Conn) error {
		c.clientName = name
		return nil
	}
}

// WithMetrics wires connection events into the given core metrics.
func WithMetrics(m *metric.Metrics) Option {
	return func(c *Conn) error {
		c.metrics = m
		return nil
	}
}

// WithCredentials sets username and password authentication.
func WithCredentials(username, password string) Option {
	return func(c *Conn) error {
		c.username = username
		c.password = password
		return nil
	}
}

// WithToken sets token authentication.
func WithToken(token string) Option {
	return func(c *Conn) error {
		c.token = token
		return nil
	}
}

// WithTLS enables TLS with optional certificate paths.
func WithTLS(certFile, keyFile, caFile string) Option {
	return func(c *Conn) error {
		c.tlsCertFile = certFile
		c.tlsKeyFile = keyFile
		c.tlsCAFile = caFile
		c.tlsEnabled = true
		return nil
	}
}

// WithMaxReconnects sets the maximum number of reconnection attempts
// (-1 for infinite).
func WithMaxReconnects(n int) Option {
	return func(c *Conn) error {
		c.maxReconnects = n
		return nil
	}
}

// WithDrainTimeout sets the timeout for draining on Close.
func WithDrainTimeout(d time.Duration) Option {
	return func(c *Conn) error {
		c.drainTimeout = d
		return nil
	}
}

// NewConn creates a managed connection to the broker at url. The
// connection is not established until Connect is called.
func NewConn(url string, opts ...Option) (*Conn, error) {
	c := &Conn{
		url:           url,
		logger:        slog.Default(),
		maxReconnects: -1,
		reconnectWait: 2 * time.Second,
		timeout:       5 * time.Second,
		drainTimeout:  30 * time.Second,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Conn", "NewConn", "apply option")
		}
	}
	c.status.Store(StatusDisconnected)
	return c, nil
}

// URL returns the broker URL.
func (c *Conn) URL() string {
	return c.url
}

// Status returns the current connection status.
func (c *Conn) Status() ConnStatus {
	val := c.status.Load()
	if val == nil {
		return StatusDisconnected
	}
	return val.(ConnStatus)
}

// IsConnected reports whether the connection is established.
func (c *Conn) IsConnected() bool {
	return c.Status() == StatusConnected
}

func (c *Conn) setStatus(s ConnStatus) {
	c.status.Store(s)
	if c.metrics != nil {
		if s == StatusConnected {
			c.metrics.BrokerConnected.Set(1)
		} else {
			c.metrics.BrokerConnected.Set(0)
		}
	}
}

func (c *Conn) buildOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ReconnectHandler(c.handleReconnect),
		nats.ClosedHandler(c.handleClosed),
	}
	if c.username != "" && c.password != "" {
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}
	if c.tlsEnabled {
		if c.tlsCertFile != "" && c.tlsKeyFile != "" {
			opts = append(opts, nats.ClientCert(c.tlsCertFile, c.tlsKeyFile))
		}
		if c.tlsCAFile != "" {
			opts = append(opts, nats.RootCAs(c.tlsCAFile))
		}
	}
	if c.clientName != "" {
		opts = append(opts, nats.Name(c.clientName))
	}
	return opts
}

func (c *Conn) handleDisconnect(_ *nats.Conn, err error) {
	c.setStatus(StatusReconnecting)
	c.logger.Warn("broker disconnected", "url", c.url, "error", err)
}

func (c *Conn) handleReconnect(_ *nats.Conn) {
	c.setStatus(StatusConnected)
	if c.metrics != nil {
		c.metrics.BrokerReconnects.Inc()
	}
	c.logger.Info("broker reconnected", "url", c.url)
}

func (c *Conn) handleClosed(_ *nats.Conn) {
	c.setStatus(StatusDisconnected)
	c.logger.Info("broker connection closed", "url", c.url)
}

// Connect establishes the connection. It blocks until the connection is up,
// the attempt fails, or ctx is done.
func (c *Conn) Connect(ctx context.Context) error {
	c.setStatus(StatusConnecting)
	c.logger.Info("connecting to databroker", "url", c.url)

	done := make(chan error, 1)
	go func() {
		conn, err := nats.Connect(c.url, c.buildOptions()...)
		if err != nil {
			done <- err
			return
		}
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		done <- nil
	}()

	select {
	case err := <-done:
		if err != nil {
			c.setStatus(StatusDisconnected)
			return errors.WrapUnavailable(err, "Conn", "Connect", "establish connection")
		}
	case <-ctx.Done():
		c.setStatus(StatusDisconnected)
		return errors.WrapUnavailable(ctx.Err(), "Conn", "Connect", "connection cancelled")
	}

	c.setStatus(StatusConnected)
	c.logger.Info("connected to databroker", "url", c.url)
	return nil
}

// WaitForConnection blocks until the connection is established or ctx is
// done.
func (c *Conn) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if c.IsConnected() {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.WrapUnavailable(ctx.Err(), "Conn", "WaitForConnection", "wait for connection")
		case <-ticker.C:
		}
	}
}

// Close drains and closes the connection. It is safe to call more than
// once; subsequent calls are no-ops.
func (c *Conn) Close(ctx context.Context) error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed.Load() {
		return nil
	}
	c.closed.Store(true)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		c.setStatus(StatusDisconnected)
		return nil
	}

	drainTimeout := c.drainTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < drainTimeout {
			drainTimeout = remaining
		}
	}

	var drainErr error
	drainDone := make(chan error, 1)
	go func() {
		drainDone <- c.conn.Drain()
	}()

	select {
	case err := <-drainDone:
		if err != nil {
			drainErr = errors.Wrap(err, "Conn", "Close", "drain connection")
		}
	case <-time.After(drainTimeout):
		drainErr = errors.Wrap(
			fmt.Errorf("drain timeout after %v", drainTimeout),
			"Conn", "Close", "drain connection")
	case <-ctx.Done():
		drainErr = errors.Wrap(ctx.Err(), "Conn", "Close", "drain connection")
	}

	c.conn.Close()
	c.conn = nil

	// Clear credentials from memory.
	c.username = ""
	c.password = ""
	c.token = ""

	c.setStatus(StatusDisconnected)
	return drainErr
}

// natsConn returns the live connection or ErrNotConnected.
func (c *Conn) natsConn() (*nats.Conn, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil || !c.conn.IsConnected() {
		return nil, ErrNotConnected
	}
	return c.conn, nil
}
