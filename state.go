// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package mqactor

// State is the lifecycle state of a Supervisor.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFatallyFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFatallyFailed:
		return "fatally-failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
