package roomsweeper

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper is satisfied by *relay.Lifecycle.
type Sweeper interface {
	Sweep() int
}

// Run removes rooms left empty every interval until ctx is done. Rooms are
// normally deleted when their last member leaves; this catches the ones a
// concurrent join kept alive and then abandoned.
func Run(ctx context.Context, s Sweeper, interval time.Duration) {
	tk := time.NewTicker(interval)
	go func() {
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				if n := s.Sweep(); n > 0 {
					zap.L().Debug("roomsweeper.swept", zap.Int("rooms", n))
				}
			}
		}
	}()
}
