package tts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tahcohcat/neon-voice/internal/logger"
)

// Catalog holds a voice list that is enumerated in the background. Until the
// first successful enumeration Voices returns an empty list.
type Catalog struct {
	load       func(ctx context.Context) ([]Voice, error)
	retryEvery time.Duration

	mu      sync.RWMutex
	voices  []Voice
	ready   chan struct{}
	started sync.Once
	closeMu sync.Once

	logger *logger.Log
}

func NewCatalog(load func(ctx context.Context) ([]Voice, error)) *Catalog {
	return &Catalog{
		load:       load,
		retryEvery: 2 * time.Second,
		ready:      make(chan struct{}),
		logger:     logger.New(),
	}
}

// Start enumerates voices until a non-empty list is found or ctx ends.
func (c *Catalog) Start(ctx context.Context) {
	c.started.Do(func() {
		go c.run(ctx)
	})
}

func (c *Catalog) run(ctx context.Context) {
	for {
		voices, err := c.load(ctx)
		if err != nil {
			c.logger.WithError(err).Warn("voice enumeration failed")
		} else if len(voices) > 0 {
			c.Set(voices)
			c.logger.Info(fmt.Sprintf("%d voices available", len(voices)))
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.retryEvery):
		}
	}
}

// Set replaces the voice list and signals readiness.
func (c *Catalog) Set(voices []Voice) {
	c.mu.Lock()
	c.voices = append([]Voice(nil), voices...)
	c.mu.Unlock()
	if len(voices) > 0 {
		c.closeMu.Do(func() { close(c.ready) })
	}
}

func (c *Catalog) Voices() []Voice {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Voice(nil), c.voices...)
}

// VoicesChanged is closed once the first non-empty list is known.
func (c *Catalog) VoicesChanged() <-chan struct{} {
	return c.ready
}
