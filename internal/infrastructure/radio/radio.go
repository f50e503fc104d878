// Package radio abstracts the host wireless interface. The engine core never
// talks to platform wifi APIs directly; deployments plug in a Capability for
// their platform, and everything degrades gracefully when none exists.
package radio

import (
	"context"
	"errors"
)

// ErrUnavailable is returned by the stub capability and may be returned by
// real implementations when the radio is off or permissions are missing.
var ErrUnavailable = errors.New("radio: wireless interface unavailable")

// Association describes the current link, when there is one.
type Association struct {
	SSID string
	IP   string
}

// Network is one scan-visible access point.
type Network struct {
	SSID           string
	SignalStrength int
}

// Capability is the host wireless interface contract.
type Capability interface {
	// Enabled reports whether the radio is powered on.
	Enabled(ctx context.Context) (bool, error)
	// CurrentAssociation returns the active link, or ErrUnavailable when
	// the device is not associated.
	CurrentAssociation(ctx context.Context) (Association, error)
	// ScanVisibleSSIDs lists currently visible networks.
	ScanVisibleSSIDs(ctx context.Context) ([]Network, error)
	// Join associates with the given network. Password may be empty for
	// open networks.
	Join(ctx context.Context, ssid, password string) error
}

// Unavailable is the no-radio fallback. Every call fails with
// ErrUnavailable, which callers already treat as "not connected".
type Unavailable struct{}

func (Unavailable) Enabled(context.Context) (bool, error) {
	return false, ErrUnavailable
}

func (Unavailable) CurrentAssociation(context.Context) (Association, error) {
	return Association{}, ErrUnavailable
}

func (Unavailable) ScanVisibleSSIDs(context.Context) ([]Network, error) {
	return nil, ErrUnavailable
}

func (Unavailable) Join(context.Context, string, string) error {
	return ErrUnavailable
}
