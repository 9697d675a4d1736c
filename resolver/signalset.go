package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/tr-sdv-sandbox/vsslink/errors"
	"github.com/tr-sdv-sandbox/vsslink/vss"
)

// SignalSet resolves a batch of signals in one call, aggregating every
// failure instead of stopping at the first. Handles are populated in place
// so callers declare them up front and bind paths fluently:
//
//	var speed vss.TypedHandle[float32]
//	var trunk vss.SignalHandle
//	err := resolver.Bind[float32](r.Signals(), &speed, "Vehicle.Speed").
//		Add(&trunk, "Vehicle.Body.Trunk.Rear.IsOpen").
//		Resolve(ctx)
type SignalSet struct {
	r     *Resolver
	specs []signalSpec
}

type signalSpec struct {
	path    string
	resolve func(ctx context.Context) error
}

// Signals starts a batch resolution against this resolver.
func (r *Resolver) Signals() *SignalSet {
	return &SignalSet{r: r}
}

// Add queues a path for resolution into dst.
func (s *SignalSet) Add(dst *vss.SignalHandle, path string) *SignalSet {
	s.specs = append(s.specs, signalSpec{
		path: path,
		resolve: func(ctx context.Context) error {
			h, err := s.r.Resolve(ctx, path)
			if err != nil {
				return err
			}
			*dst = *h
			return nil
		},
	})
	return s
}

// Bind queues a path for typed resolution into dst, including the physical
// compatibility check of ResolveTyped. A free function because Go methods
// cannot introduce type parameters.
func Bind[T vss.ScalarOrArray](s *SignalSet, dst *vss.TypedHandle[T], path string) *SignalSet {
	s.specs = append(s.specs, signalSpec{
		path: path,
		resolve: func(ctx context.Context) error {
			h, err := ResolveTyped[T](ctx, s.r, path)
			if err != nil {
				return err
			}
			*dst = h
			return nil
		},
	})
	return s
}

// Resolve runs every queued resolution. Failures do not stop the batch;
// they are aggregated into a single NotFound error naming each failed path,
// and successfully resolved handles are populated regardless.
func (s *SignalSet) Resolve(ctx context.Context) error {
	var problems []string
	for _, spec := range s.specs {
		if err := spec.resolve(ctx); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", spec.path, err))
		}
	}
	if len(problems) > 0 {
		return &errors.Error{
			Code:    errors.CodeNotFound,
			Message: fmt.Sprintf("failed to resolve %d of %d signals: %s",
				len(problems), len(s.specs), strings.Join(problems, "; ")),
		}
	}
	return nil
}
