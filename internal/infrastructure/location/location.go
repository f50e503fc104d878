// Package location abstracts position sources. A Provider hands out point
// fixes and continuous watches; IPLocator is the coarse network-based
// fallback used when no precise source is wired in.
package location

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/burned13/wifiemergencia/internal/domain/geo"
)

// ErrNoFix is returned when no position could be determined.
var ErrNoFix = errors.New("location: no position fix available")

// Provider is the position source contract.
type Provider interface {
	// CurrentLocation returns the best current fix.
	CurrentLocation(ctx context.Context) (*geo.Coordinate, error)
	// Watch invokes fn with a fresh fix at the given interval until the
	// subscription is stopped or the context is cancelled.
	Watch(ctx context.Context, fn func(geo.Coordinate), interval time.Duration) (Subscription, error)
}

// Subscription is a running location watch. Stop is idempotent.
type Subscription interface {
	Stop()
}

// stopFunc adapts a cancel function into a Subscription.
type stopFunc struct {
	once sync.Once
	fn   func()
}

// NewSubscription wraps a stop hook for Provider implementations.
func NewSubscription(stop func()) Subscription {
	return &stopFunc{fn: stop}
}

func (s *stopFunc) Stop() {
	s.once.Do(s.fn)
}
