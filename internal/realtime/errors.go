package realtime

import "errors"

var (
	// ErrInvalidChannelKey is returned for keys without a "{tag}-{id}" shape
	ErrInvalidChannelKey = errors.New("invalid channel key")
	// ErrUnknownProvider is returned when no backend is registered for a tag
	ErrUnknownProvider = errors.New("unknown sync provider")
	// ErrMissingCredentials is returned when the backend for a tag has no
	// server address configured
	ErrMissingCredentials = errors.New("sync provider not configured")
	// ErrConnectTimeout is returned when the backend does not come up in time
	ErrConnectTimeout = errors.New("sync connect timed out")
	// ErrNotConnected is returned by operations that need a live channel
	ErrNotConnected = errors.New("sync channel not connected")
)
