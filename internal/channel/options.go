package channel

import (
	"net/http"
	"time"
)

const (
	// DefaultReconnectAttempts is how many times a dropped subscription redials
	DefaultReconnectAttempts = 5

	// DefaultReconnectDelay is the pause before each redial
	DefaultReconnectDelay = time.Second

	defaultWriteWait = 10 * time.Second
	defaultPongWait  = 60 * time.Second

	// Maximum frame size accepted from the channel
	maxFrameSize = 64 * 1024
)

// Options tunes connection handling
type Options struct {
	// ReconnectAttempts bounds consecutive failed redials. Zero disables reconnection.
	ReconnectAttempts int

	// ReconnectDelay is the minimum spacing between redials
	ReconnectDelay time.Duration

	// PongWait is how long the connection may stay silent before it is considered dead
	PongWait time.Duration

	// PingPeriod must be less than PongWait
	PingPeriod time.Duration

	// WriteWait bounds every write
	WriteWait time.Duration

	// HandshakeTimeout bounds each dial
	HandshakeTimeout time.Duration

	// Header is sent with every dial
	Header http.Header
}

// DefaultOptions returns the reconnect policy used by dashboards: five attempts,
// one second apart.
func DefaultOptions() Options {
	return Options{
		ReconnectAttempts: DefaultReconnectAttempts,
		ReconnectDelay:    DefaultReconnectDelay,
		PongWait:          defaultPongWait,
		PingPeriod:        (defaultPongWait * 9) / 10,
		WriteWait:         defaultWriteWait,
		HandshakeTimeout:  defaultWriteWait,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ReconnectAttempts < 0 {
		o.ReconnectAttempts = 0
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = d.ReconnectDelay
	}
	if o.PongWait <= 0 {
		o.PongWait = d.PongWait
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = (o.PongWait * 9) / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = d.WriteWait
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = d.HandshakeTimeout
	}
	return o
}
