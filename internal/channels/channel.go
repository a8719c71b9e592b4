// Package channels holds the transport-neutral pieces shared by chat platform
// integrations: the lifecycle contract and small helpers for inbound traffic.
package channels

import (
	"context"
	"sync/atomic"
)

// Channel defines the lifecycle every platform integration satisfies.
type Channel interface {
	// Name returns the channel identifier (e.g., "telegram").
	Name() string

	// Start begins receiving updates. Should be non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel, waiting for in-flight work.
	Stop(ctx context.Context) error

	// IsRunning returns whether the channel is actively processing updates.
	IsRunning() bool
}

// BaseChannel provides shared functionality for channel implementations.
// Channel implementations should embed this struct.
type BaseChannel struct {
	name    string
	running atomic.Bool
}

// NewBaseChannel creates a new BaseChannel.
func NewBaseChannel(name string) *BaseChannel {
	return &BaseChannel{name: name}
}

// Name returns the channel name.
func (c *BaseChannel) Name() string { return c.name }

// IsRunning returns whether the channel is running.
func (c *BaseChannel) IsRunning() bool { return c.running.Load() }

// SetRunning updates the running state.
func (c *BaseChannel) SetRunning(running bool) { c.running.Store(running) }

// Truncate shortens a string to maxLen bytes, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
