// Package resolver turns hierarchical signal paths into typed handles by
// querying broker metadata, caching every resolution for the lifetime of
// the resolver.
package resolver

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tr-sdv-sandbox/vsslink/broker"
	"github.com/tr-sdv-sandbox/vsslink/errors"
	"github.com/tr-sdv-sandbox/vsslink/vss"
)

// Resolver resolves signal paths against broker metadata. Handles are
// cached on first resolution and never invalidated; broker signal ids are
// stable for the life of the connection, which is also the life of the
// resolver.
type Resolver struct {
	rpc    broker.RPC
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]*vss.SignalHandle
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a Resolver over the given broker surface.
func New(rpc broker.RPC, opts ...Option) *Resolver {
	r := &Resolver{
		rpc:    rpc,
		logger: slog.Default(),
		cache:  make(map[string]*vss.SignalHandle),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// handleFromEntry converts one metadata entry, rejecting entries the type
// model cannot represent.
func handleFromEntry(e broker.MetadataEntry) (*vss.SignalHandle, error) {
	if e.ID == 0 {
		return nil, errors.NotFound(e.Path)
	}
	t := vss.ValueTypeFromString(e.DataType)
	if t == vss.TypeUnspecified {
		return nil, errors.InvalidArgument("signal " + e.Path + " has unsupported data type " + e.DataType)
	}
	return &vss.SignalHandle{
		Path:  e.Path,
		ID:    e.ID,
		Type:  t,
		Class: vss.SignalClassFromString(e.EntryType),
	}, nil
}

// Resolve returns the handle for an exact signal path, querying the broker
// on first use.
func (r *Resolver) Resolve(ctx context.Context, path string) (*vss.SignalHandle, error) {
	r.mu.Lock()
	if h, ok := r.cache[path]; ok {
		r.mu.Unlock()
		return h, nil
	}
	r.mu.Unlock()

	entries, err := r.rpc.ListMetadata(ctx, path)
	if err != nil {
		return nil, errors.Wrap(err, "Resolver", "Resolve", "list metadata")
	}

	for _, e := range entries {
		if e.Path != path {
			continue
		}
		h, err := handleFromEntry(e)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.cache[path] = h
		r.mu.Unlock()
		r.logger.Debug("resolved signal", "path", path, "id", h.ID, "type", h.Type.String())
		return h, nil
	}
	return nil, errors.NotFound(path)
}

// List resolves every signal at or under root, caching each handle.
func (r *Resolver) List(ctx context.Context, root string) ([]*vss.SignalHandle, error) {
	entries, err := r.rpc.ListMetadata(ctx, root)
	if err != nil {
		return nil, errors.Wrap(err, "Resolver", "List", "list metadata")
	}

	handles := make([]*vss.SignalHandle, 0, len(entries))
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		h, err := handleFromEntry(e)
		if err != nil {
			// Skip entries the type model cannot represent; the tree may
			// contain signal types this SDK does not speak.
			r.logger.Warn("skipping unresolvable signal", "path", e.Path, "error", err)
			continue
		}
		if cached, ok := r.cache[h.Path]; ok {
			h = cached
		} else {
			r.cache[h.Path] = h
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// CachedCount returns the number of cached handles.
func (r *Resolver) CachedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}

// ResolveTyped resolves a path and checks that T is physically compatible
// with the signal's declared type. T being narrower than the physical wire
// type is allowed per the narrowing and widening tables.
func ResolveTyped[T vss.ScalarOrArray](ctx context.Context, r *Resolver, path string) (vss.TypedHandle[T], error) {
	h, err := r.Resolve(ctx, path)
	if err != nil {
		return vss.TypedHandle[T]{}, err
	}
	want := vss.TypeOf[T]()
	if !vss.ArePhysicallyCompatible(h.Type, want) {
		return vss.TypedHandle[T]{}, errors.TypeMismatch(path, want.String(), h.Type.String())
	}
	return vss.TypedHandle[T]{SignalHandle: *h}, nil
}
