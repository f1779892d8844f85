package faucet

import (
	"context"
	"sync"
	"time"
)

// Sweeper periodically removes stale cooldown records so the claim store
// does not grow without bound.
type Sweeper struct {
	core   *Core
	ticker *time.Ticker
	shut   chan struct{}
	wg     sync.WaitGroup
}

// StartSweeper starts a goroutine that sweeps the claim store on the
// specified interval until Shutdown is called. A non-positive interval
// falls back to DefaultSweepInterval.
func (c *Core) StartSweeper(interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	s := Sweeper{
		core:   c,
		ticker: time.NewTicker(interval),
		shut:   make(chan struct{}),
	}

	s.wg.Add(1)
	hasStarted := make(chan bool)

	go func() {
		defer s.wg.Done()
		hasStarted <- true
		s.sweepOperations()
	}()

	<-hasStarted

	return &s
}

// Shutdown stops the sweeper and waits for the goroutine to exit.
func (s *Sweeper) Shutdown() {
	s.core.evHandler("sweeper: shutdown: started")
	defer s.core.evHandler("sweeper: shutdown: completed")

	s.ticker.Stop()
	close(s.shut)
	s.wg.Wait()
}

// sweepOperations handles the sweeps until shutdown.
func (s *Sweeper) sweepOperations() {
	s.core.evHandler("sweeper: sweepOperations: G started")
	defer s.core.evHandler("sweeper: sweepOperations: G completed")

	for {
		select {
		case <-s.ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			if _, err := s.core.SweepClaims(ctx); err != nil {
				s.core.log.Errorw("sweeper", "status", "sweep claims", "ERROR", err)
			}
			cancel()

		case <-s.shut:
			s.core.evHandler("sweeper: sweepOperations: received shut signal")
			return
		}
	}
}
