// Package redis opens the shared Redis client used by the room lock and the
// saga intent queue.
package redis
