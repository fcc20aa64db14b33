// Package notify sends account mails in the background.
package notify

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

const (
	defaultQueueSize   = 64
	defaultSendTimeout = 30 * time.Second
)

type mail struct {
	subject  string
	to       string
	template string
	data     interface{}
}

// Notifier renders and sends mails on a fixed pool of workers. Callers
// never wait for delivery; failures are logged.
type Notifier struct {
	sender      Sender
	workers     int
	sendTimeout time.Duration

	queue chan mail
	wg    sync.WaitGroup

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
}

// New creates a notifier with the given number of workers.
func New(sender Sender, workers int) *Notifier {
	if workers <= 0 {
		workers = 1
	}
	return &Notifier{
		sender:      sender,
		workers:     workers,
		sendTimeout: defaultSendTimeout,
		queue:       make(chan mail, defaultQueueSize),
	}
}

// Start launches the workers.
func (n *Notifier) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.running {
		return fmt.Errorf("notifier is already running")
	}
	n.running = true

	workerCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	for i := 0; i < n.workers; i++ {
		id := fmt.Sprintf("mail-%d", i+1)
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.run(workerCtx, id)
		}()
	}
	log.Printf("[mail] Started %d workers", n.workers)
	return nil
}

// SendNotification queues a mail. It never blocks; when the queue is full
// or the notifier is stopped the mail is dropped and logged.
func (n *Notifier) SendNotification(subject, to, template string, data interface{}) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if !n.running {
		log.Printf("[mail] notifier stopped, dropping %q to %s", subject, to)
		return
	}
	select {
	case n.queue <- mail{subject: subject, to: to, template: template, data: data}:
	default:
		log.Printf("[mail] queue full, dropping %q to %s", subject, to)
	}
}

// Stop sends what is already queued and waits for the workers, giving up
// when ctx is done.
func (n *Notifier) Stop(ctx context.Context) error {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return nil
	}
	n.running = false
	close(n.queue)
	n.mu.Unlock()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		n.cancel()
		log.Println("[mail] All workers stopped gracefully")
		return nil
	case <-ctx.Done():
		n.cancel()
		log.Println("[mail] Timeout waiting for workers to stop")
		return ctx.Err()
	}
}

func (n *Notifier) run(ctx context.Context, id string) {
	for m := range n.queue {
		n.deliver(ctx, id, m)
	}
}

func (n *Notifier) deliver(ctx context.Context, id string, m mail) {
	body, err := render(m.template, m.data)
	if err != nil {
		log.Printf("[%s] %v", id, err)
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, n.sendTimeout)
	defer cancel()
	if err := n.sender.Send(sendCtx, m.to, m.subject, body); err != nil {
		log.Printf("[%s] failed to send %q to %s: %v", id, m.subject, m.to, err)
	}
}
