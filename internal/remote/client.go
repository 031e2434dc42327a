// Package remote defines the boundary to the Android TV remote-protocol client.
// The wire protocol itself is handled by the atvwire implementation; everything
// above this package only depends on the Client interface and the error kinds.
package remote

import (
	"context"
	"errors"
)

// KeyDirection is the press direction sent with a key code.
type KeyDirection string

const (
	DirectionShort     KeyDirection = "SHORT"
	DirectionStartLong KeyDirection = "START_LONG"
	DirectionEndLong   KeyDirection = "END_LONG"
)

// VolumeInfo is the volume state reported by the device.
type VolumeInfo struct {
	Level int
	Muted bool
}

// DeviceInfo describes the device as reported during the configure exchange.
type DeviceInfo struct {
	Manufacturer string
	Model        string
	SWVersion    string
}

// Client is the capability surface of the remote-protocol connection to a
// single Android TV. Implementations must deliver callbacks from a single
// goroutine; callers are expected to hand them off to their own loop.
type Client interface {
	// GenerateCertIfMissing creates the client certificate/key pair if it does
	// not exist yet. Returns true if a new pair was generated.
	GenerateCertIfMissing() (bool, error)

	// GetNameAndMAC retrieves the device-reported name and hardware MAC.
	GetNameAndMAC(ctx context.Context) (name string, mac string, err error)

	StartPairing(ctx context.Context) error
	FinishPairing(ctx context.Context, pin string) error

	Connect(ctx context.Context) error
	Disconnect()

	// KeepReconnecting enables the client's own reconnect supervision after a
	// successful connect. onAuthError is invoked if credentials are rejected
	// during an internal reconnect attempt.
	KeepReconnecting(onAuthError func())

	SendKey(keycode string, direction KeyDirection) error
	LaunchApp(target string) error

	// IsOn reports the last known power state. known is false until the first
	// power update after a connect.
	IsOn() (on bool, known bool)
	CurrentApp() string
	DeviceInfo() *DeviceInfo

	Host() string
	SetHost(address string)

	// WriteOpen reports whether the underlying write channel is still usable.
	// A connected client with a half-closed socket returns false.
	WriteOpen() bool

	OnPowerChanged(fn func(isOn bool))
	OnCurrentApp(fn func(app string))
	OnVolume(fn func(info VolumeInfo))
	OnAvailability(fn func(available bool))
}

// ErrorKind classifies failures from the remote protocol so callers can
// branch on retry behaviour without inspecting concrete error values.
type ErrorKind int

const (
	// KindTransient covers connection refused/closed and per-attempt timeouts.
	KindTransient ErrorKind = iota
	// KindAuth covers invalid or expired pairing credentials.
	KindAuth
	// KindProtocol covers local, non-retryable errors such as unknown key codes.
	KindProtocol
	// KindFatal covers anything unexpected during connection handling.
	KindFatal
)

var (
	// ErrCannotConnect indicates the device refused or did not answer a connection.
	ErrCannotConnect = errors.New("cannot connect to device")
	// ErrConnectionClosed indicates an established connection dropped.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrInvalidAuth indicates the pairing credentials were rejected.
	ErrInvalidAuth = errors.New("invalid authentication")
	// ErrTimeout indicates a per-attempt timeout elapsed.
	ErrTimeout = errors.New("connection attempt timed out")
	// ErrUnknownKey indicates a key code the device does not understand.
	ErrUnknownKey = errors.New("unknown key code")
)

// Kind returns the ErrorKind for an error returned by a Client.
func Kind(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrCannotConnect),
		errors.Is(err, ErrConnectionClosed),
		errors.Is(err, ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	case errors.Is(err, ErrInvalidAuth):
		return KindAuth
	case errors.Is(err, ErrUnknownKey):
		return KindProtocol
	default:
		return KindFatal
	}
}
