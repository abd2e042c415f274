package tts

import (
	"context"
	"sync"
	"time"

	"github.com/tahcohcat/neon-voice/internal/logger"
)

// playQueue plays utterances one at a time. Cancel stops the active one
// through its context and drops everything queued behind it.
type playQueue struct {
	play    func(ctx context.Context, u Utterance) error
	timeout time.Duration
	logger  *logger.Log

	mu          sync.Mutex
	pending     []Utterance
	running     bool
	closed      bool
	stopCurrent context.CancelFunc
}

func newPlayQueue(play func(ctx context.Context, u Utterance) error) *playQueue {
	return &playQueue{
		play:    play,
		timeout: 60 * time.Second,
		logger:  logger.New(),
	}
}

func (q *playQueue) push(u Utterance) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}

	q.pending = append(q.pending, u)
	if !q.running {
		q.running = true
		go q.drain()
	}
	return nil
}

func (q *playQueue) drain() {
	for {
		q.mu.Lock()
		if q.closed || len(q.pending) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		u := q.pending[0]
		q.pending = q.pending[1:]
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		q.stopCurrent = cancel
		q.mu.Unlock()

		err := q.play(ctx, u)
		interrupted := ctx.Err() == context.Canceled
		cancel()

		q.mu.Lock()
		q.stopCurrent = nil
		q.mu.Unlock()

		if err != nil && !interrupted {
			q.logger.WithError(err).Warn("speech playback failed")
		}
	}
}

// cancel stops the active utterance and empties the queue.
func (q *playQueue) cancel() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending = nil
	if q.stopCurrent != nil {
		q.stopCurrent()
	}
}

func (q *playQueue) close() {
	q.cancel()
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

func (q *playQueue) busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}
