package chat

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Sink is the outbound side of one connected session. Deliver must keep
// payloads in the order it was called.
type Sink interface {
	Deliver(ctx context.Context, payload []byte) error
}

// Broadcaster pushes payloads to every session in a room.
type Broadcaster struct {
	registry *Registry
	timeout  time.Duration

	mu    sync.RWMutex
	sinks map[string]Sink
}

// NewBroadcaster creates a broadcaster that gives each recipient at most
// timeout to accept a payload.
func NewBroadcaster(registry *Registry, timeout time.Duration) *Broadcaster {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Broadcaster{
		registry: registry,
		timeout:  timeout,
		sinks:    make(map[string]Sink),
	}
}

// Attach registers the sink of a session.
func (b *Broadcaster) Attach(sessionID string, sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks[sessionID] = sink
}

// Detach forgets the sink of a session.
func (b *Broadcaster) Detach(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sinks, sessionID)
}

// Broadcast delivers payload to the sessions in roomID at the time of the
// call and returns how many accepted it. Failed deliveries are logged.
func (b *Broadcaster) Broadcast(ctx context.Context, roomID uint, payload []byte) int {
	members := b.registry.MembersOf(roomID)

	b.mu.RLock()
	sinks := make(map[string]Sink, len(members))
	for _, id := range members {
		if sink, ok := b.sinks[id]; ok {
			sinks[id] = sink
		}
	}
	b.mu.RUnlock()

	var delivered atomic.Int64
	var g errgroup.Group
	for id, sink := range sinks {
		id, sink := id, sink
		g.Go(func() error {
			deliverCtx, cancel := context.WithTimeout(ctx, b.timeout)
			defer cancel()
			if err := sink.Deliver(deliverCtx, payload); err != nil {
				log.Printf("[hub] %v: room %d session %s: %v", ErrDeliveryFailed, roomID, id, err)
				return nil
			}
			delivered.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return int(delivered.Load())
}
