package pow

import (
	"context"
	"errors"
	"runtime"
)

// ErrExhausted is returned when the attempt ceiling is reached without
// finding a nonce.
var ErrExhausted = errors.New("max attempts reached without a solution")

// Set of default values for a Solver.
const (
	DefaultBatchSize   = 5_000
	DefaultMaxAttempts = 10_000_000
	DefaultReportEvery = 25_000
)

// maxPercent keeps the progress estimate below completion until a
// solution is actually found.
const maxPercent = 95

// Progress is reported to the solver's caller while work is being done.
// Percent is an estimate against the attempt ceiling and is for display only.
type Progress struct {
	Attempts uint64
	Percent  float64
}

// Solver searches for a nonce that solves a challenge. The zero value is
// ready to use with the default settings.
type Solver struct {
	BatchSize   uint64
	MaxAttempts uint64
	ReportEvery uint64
	OnProgress  func(p Progress)
}

// Solve iterates nonces starting at 0 until one solves the challenge for the
// specified difficulty. The work is done in batches and the goroutine yields
// between batches. Cancelling the context stops the search before the next
// batch is started.
func (s Solver) Solve(ctx context.Context, challenge string, difficulty int) (uint64, error) {
	batch := s.BatchSize
	if batch == 0 {
		batch = DefaultBatchSize
	}
	maxAttempts := s.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = DefaultMaxAttempts
	}
	reportEvery := s.ReportEvery
	if reportEvery == 0 {
		reportEvery = DefaultReportEvery
	}

	var nonce uint64
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		for i := uint64(0); i < batch; i++ {
			if nonce >= maxAttempts {
				return 0, ErrExhausted
			}

			if Verify(challenge, nonce, difficulty) {
				s.report(nonce+1, maxAttempts)
				return nonce, nil
			}

			nonce++
			if nonce%reportEvery == 0 {
				s.report(nonce, maxAttempts)
			}
		}

		runtime.Gosched()
	}
}

// report sends the current progress to the caller if they asked for it.
func (s Solver) report(attempts uint64, maxAttempts uint64) {
	if s.OnProgress == nil {
		return
	}

	percent := float64(attempts) / float64(maxAttempts) * 100
	if percent > maxPercent {
		percent = maxPercent
	}

	s.OnProgress(Progress{
		Attempts: attempts,
		Percent:  percent,
	})
}
