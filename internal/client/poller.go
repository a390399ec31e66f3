package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Poller refreshes cached assignments on an interval until stopped.
type Poller struct {
	client   *Client
	interval time.Duration
	onChange func(Membership)
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller creates a Poller. onChange, if set, is called for every
// membership whose assignee changed since the previous refresh.
func NewPoller(c *Client, interval time.Duration, onChange func(Membership)) (*Poller, error) {
	if c == nil {
		return nil, errors.New("client must not be nil")
	}
	if interval <= 0 {
		return nil, errors.New("interval must be positive")
	}
	return &Poller{client: c, interval: interval, onChange: onChange, logger: c.logger}, nil
}

// Start refreshes once immediately and then every interval. Calling Start on
// a running Poller does nothing.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.run(ctx, p.done)
}

// Stop halts polling and waits for an in-flight refresh to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	changed, err := p.client.Refresh(ctx)
	if err != nil && ctx.Err() == nil {
		p.logger.Warn("refresh failed", "error", err)
	}
	if p.onChange == nil {
		return
	}
	for _, m := range changed {
		p.onChange(m)
	}
}
