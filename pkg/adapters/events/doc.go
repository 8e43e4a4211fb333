// Package events provides event bus implementations.
//
// Implementations:
//   - redis: Redis Streams, every subscriber reads the whole stream
//   - memory: in-process fan-out with per-subscriber ordered delivery
package events
