package runtime

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Run drives both peers in real time, each on its own ticker, until ctx is
// cancelled. Peers not yet started are started first. The first peer error
// stops both.
func Run(ctx context.Context, sender, receiver *Peer, senderTick, receiverTick time.Duration) error {
	if senderTick <= 0 || receiverTick <= 0 {
		return fmt.Errorf("tick intervals must be positive")
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return drive(ctx, sender, senderTick) })
	g.Go(func() error { return drive(ctx, receiver, receiverTick) })
	return g.Wait()
}

func drive(ctx context.Context, p *Peer, tick time.Duration) error {
	if !p.Started() {
		if err := p.Start(0); err != nil {
			return err
		}
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			if err := p.Tick(dt); err != nil {
				return fmt.Errorf("%s: %w", p.Role(), err)
			}
		}
	}
}
