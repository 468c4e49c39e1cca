package conn

import "time"

// ReconnectPolicy bounds how reconnection is attempted after a transport
// failure: a fixed number of attempts at a fixed interval. Events produced by
// the backend while disconnected are lost; there is no replay buffer.
type ReconnectPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

// DefaultReconnectPolicy returns the default bounds: 3 attempts, 2s apart.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts: 3,
		Interval:    2 * time.Second,
	}
}
