package mailer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Queue hands messages to a pool of workers so callers never wait on delivery.
type Queue struct {
	sender    Sender
	jobs      chan Message
	workers   int
	timeout   time.Duration
	onFailure func(Message, error)
	wg        sync.WaitGroup
	done      chan struct{}
	stopOnce  sync.Once

	// mu orders Enqueue against Stop: once stopped is set no message is
	// accepted, and every accepted message is buffered before done closes.
	mu      sync.RWMutex
	stopped bool
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithWorkers sets the number of delivery goroutines.
func WithWorkers(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithSendTimeout bounds a single delivery attempt.
func WithSendTimeout(d time.Duration) QueueOption {
	return func(q *Queue) {
		q.timeout = d
	}
}

// WithFailureHook is called after a delivery fails.
func WithFailureHook(fn func(Message, error)) QueueOption {
	return func(q *Queue) {
		q.onFailure = fn
	}
}

// NewQueue creates a queue buffering up to size messages.
func NewQueue(sender Sender, size int, opts ...QueueOption) *Queue {
	q := &Queue{
		sender:  sender,
		jobs:    make(chan Message, size),
		workers: 2,
		timeout: 15 * time.Second,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Run starts the workers. It returns immediately.
func (q *Queue) Run() {
	log.Info().Int("workers", q.workers).Msg("Starting mail queue...")
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
}

// Stop drains the buffered messages and waits for the workers to exit.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.stopped = true
		close(q.done)
		q.mu.Unlock()

		q.wg.Wait()
		log.Info().Msg("Stopped mail queue.")
	})
}

// Enqueue schedules msg for delivery. It never blocks; it reports false when
// the queue is full or stopped and the message was dropped.
func (q *Queue) Enqueue(msg Message) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.stopped {
		log.Error().Str("to", msg.To).Msg("Mail queue stopped, dropping message")
		return false
	}

	select {
	case q.jobs <- msg:
		return true
	default:
		log.Error().Str("to", msg.To).Msg("Mail queue full, dropping message")
		return false
	}
}

func (q *Queue) work() {
	defer q.wg.Done()
	for {
		select {
		case msg := <-q.jobs:
			q.deliver(msg)
		case <-q.done:
			// Flush whatever is still buffered before exiting.
			for {
				select {
				case msg := <-q.jobs:
					q.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

func (q *Queue) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	if err := q.sender.Send(ctx, msg); err != nil {
		log.Error().Err(err).Str("to", msg.To).Str("subject", msg.Subject).Msg("Failed to deliver mail")
		if q.onFailure != nil {
			q.onFailure(msg, err)
		}
		return
	}
	log.Debug().Str("to", msg.To).Str("subject", msg.Subject).Msg("Mail delivered")
}
