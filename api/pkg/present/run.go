package present

import (
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// CancelToken asks a render loop to stop at its next iteration.
type CancelToken struct {
	cancelled atomic.Bool
}

func (t *CancelToken) Cancel() { t.cancelled.Store(true) }

func (t *CancelToken) Cancelled() bool { return t.cancelled.Load() }

// NotifyOnSignal cancels t when any of sigs arrives. The returned
// function stops listening.
func NotifyOnSignal(t *CancelToken, sigs ...os.Signal) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	go func() {
		for sig := range ch {
			log.Info().Str("signal", sig.String()).Msg("Shutdown requested")
			t.Cancel()
		}
	}()
	return func() {
		signal.Stop(ch)
		close(ch)
	}
}

// RunOptions bounds a render loop.
type RunOptions struct {
	// Frames stops the loop after this many swaps; 0 runs until cancelled.
	Frames int
	// Interval paces swaps; 0 relies on the blocking commit.
	Interval time.Duration
}

const statsEvery = 300

// Run swaps frames from src until token is cancelled, opts.Frames is
// reached or a swap fails. It returns the number of frames presented.
func Run(token *CancelToken, p *Presenter, src Source, opts RunOptions) (int, error) {
	var ticker *time.Ticker
	if opts.Interval > 0 {
		ticker = time.NewTicker(opts.Interval)
		defer ticker.Stop()
	}

	frames := 0
	start := time.Now()
	for !token.Cancelled() {
		if opts.Frames > 0 && frames >= opts.Frames {
			break
		}
		if ticker != nil {
			<-ticker.C
		}

		if err := p.Swap(src); err != nil {
			return frames, err
		}
		frames++

		if frames == 1 || frames%statsEvery == 0 {
			log.Info().
				Int("flips", frames).
				Int("current", p.Current()).
				Str("fps", fps(frames, time.Since(start))).
				Msg("Flip stats")
		}
	}

	log.Info().
		Int("flips", frames).
		Str("fps", fps(frames, time.Since(start))).
		Msg("Stopped")
	return frames, nil
}

func fps(frames int, elapsed time.Duration) string {
	if elapsed <= 0 {
		return "0.0"
	}
	return fmt.Sprintf("%.1f", float64(frames)/elapsed.Seconds())
}
