/*
Package jobqueue configuration - tunable parameters for the update queue.

## Quick Configuration Reference:

- Increase MaxWorkers for higher throughput (more updates handled concurrently)
- BufferSize only applies to the in-memory backend
- JobTimeout bounds one update, including the outbound agent dispatch

Updates are never retried: a retried update could answer the user twice.
*/
package jobqueue

import (
	"time"

	"github.com/riverqueue/river"
)

// Backend names accepted by New.
const (
	BackendMemory = "memory"
	BackendRiver  = "river"
)

// QueueConfig holds all configurable parameters for the update queue
type QueueConfig struct {
	Backend     string
	DatabaseURL string

	MaxWorkers int           // Concurrent update handlers (default: 4)
	BufferSize int           // Pending updates held in memory (default: 256)
	JobTimeout time.Duration // Maximum time one update may take (default: 1 minute)
}

// DefaultQueueConfig returns the default configuration
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		Backend:    BackendMemory,
		MaxWorkers: 4,
		BufferSize: 256,
		JobTimeout: 1 * time.Minute,
	}
}

func (c *QueueConfig) withDefaults() *QueueConfig {
	out := *c
	def := DefaultQueueConfig()
	if out.Backend == "" {
		out.Backend = def.Backend
	}
	if out.MaxWorkers <= 0 {
		out.MaxWorkers = def.MaxWorkers
	}
	if out.BufferSize <= 0 {
		out.BufferSize = def.BufferSize
	}
	if out.JobTimeout <= 0 {
		out.JobTimeout = def.JobTimeout
	}
	return &out
}

// RiverQueueConfig converts our config to River's queue configuration format
func (c *QueueConfig) RiverQueueConfig() map[string]river.QueueConfig {
	return map[string]river.QueueConfig{
		river.QueueDefault: {
			MaxWorkers: c.MaxWorkers,
		},
	}
}
