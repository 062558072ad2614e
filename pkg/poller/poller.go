// Package poller runs the dashboard's fixed-interval refresh loops. Each
// loop ticks independently: a slow cycle delays only its own next run and
// never blocks another loop. Loops are never coalesced or backpressured.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Loop is one refresh cycle run at a fixed interval.
type Loop struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)
}

// Group owns a set of loops sharing one lifecycle.
type Group struct {
	loops  []Loop
	logger zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewGroup returns an empty group.
func NewGroup(logger zerolog.Logger) *Group {
	return &Group{logger: logger}
}

// Add registers a loop. Must be called before Start.
func (g *Group) Add(loop Loop) {
	g.loops = append(g.loops, loop)
}

// Start launches every loop. Each runs once immediately, then on its own
// ticker until the group stops.
func (g *Group) Start(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		return
	}
	ctx, g.cancel = context.WithCancel(ctx)

	for _, loop := range g.loops {
		g.wg.Add(1)
		go g.run(ctx, loop)
	}
	g.logger.Info().Int("loops", len(g.loops)).Msg("pollers started")
}

func (g *Group) run(ctx context.Context, loop Loop) {
	defer g.wg.Done()

	loop.Run(ctx)

	ticker := time.NewTicker(loop.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			g.logger.Debug().Str("loop", loop.Name).Msg("poller stopped")
			return
		case <-ticker.C:
			loop.Run(ctx)
		}
	}
}

// Stop cancels every loop and waits for in-flight cycles to finish.
func (g *Group) Stop() {
	g.mu.Lock()
	cancel := g.cancel
	g.cancel = nil
	g.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	g.wg.Wait()
}
