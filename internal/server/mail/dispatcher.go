// Package mail delivers outbound email through a bounded queue and a pool of
// background workers. Callers only await confirmation that a message was
// accepted onto the queue, not the SMTP round-trip: any state a message was
// meant to confirm is TTL-guarded, so a lost send heals itself by expiry.
package mail

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/authgate/internal/common"
	"github.com/dmitrijs2005/authgate/internal/logging"
)

// Message is a single outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender performs the actual delivery of one message.
type Sender interface {
	Send(msg Message) error
}

// Dispatcher owns the queue and workers. Send failures inside a worker are
// logged with full context and then dropped; they are never retried here.
type Dispatcher struct {
	sender Sender
	logger logging.Logger
	queue  chan Message

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher starts workers goroutines draining a queue of queueSize.
func NewDispatcher(sender Sender, logger logging.Logger, queueSize, workers int) *Dispatcher {
	d := &Dispatcher{
		sender: sender,
		logger: logger.With("module", "mail"),
		queue:  make(chan Message, queueSize),
	}

	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}

	return d
}

// Enqueue hands msg to the background workers. It never blocks: a full or
// closed queue and a cancelled context all yield an error wrapping
// common.ErrEmailSend.
func (d *Dispatcher) Enqueue(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrEmailSend, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return fmt.Errorf("%w: dispatcher closed", common.ErrEmailSend)
	}

	select {
	case d.queue <- msg:
		return nil
	default:
		return fmt.Errorf("%w: queue full", common.ErrEmailSend)
	}
}

// Close stops accepting messages, drains the queue, and waits for workers.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for msg := range d.queue {
		if err := d.sender.Send(msg); err != nil {
			d.logger.Error(context.Background(), "email send failed",
				"to", msg.To, "subject", msg.Subject, "error", err)
		}
	}
}
