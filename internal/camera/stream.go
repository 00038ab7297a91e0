package camera

import (
	"context"
	"errors"
	"time"

	"github.com/banshee-data/depthcam/internal/monitoring"
)

// StreamOptions configures Pipeline.Stream.
type StreamOptions struct {
	// Timeout of each wait. Zero uses DefaultTimeout.
	Timeout time.Duration
	// Buffer is the channel capacity. Zero makes delivery synchronous.
	Buffer int
}

// Result is one delivery of Pipeline.Stream: a frame set the receiver must
// Close, or the error that ended the stream.
type Result struct {
	Frames *FrameSet
	Err    error
}

// Stream waits for frame sets in a goroutine and sends them on the returned
// channel until ctx is cancelled, the pipeline stops, or a wait fails with
// anything other than a timeout. The final error, if any, is sent before
// the channel is closed. Stopping the pipeline ends the stream without an
// error. Cancellation is observed between waits; Stop interrupts a blocked
// wait.
//
// No other goroutine may call WaitForFrames or PollForFrames on p while the
// stream runs.
func (p *Pipeline) Stream(ctx context.Context, opts StreamOptions) <-chan Result {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	out := make(chan Result, opts.Buffer)
	go func() {
		defer close(out)
		for ctx.Err() == nil {
			fs, err := p.WaitForFrames(timeout)
			switch {
			case IsTimeout(err):
				monitoring.Debugf("stream: %v", err)
				continue
			case errors.Is(err, ErrNotStreaming):
				return
			case err != nil:
				select {
				case out <- Result{Err: err}:
				case <-ctx.Done():
				}
				return
			}
			select {
			case out <- Result{Frames: fs}:
			case <-ctx.Done():
				fs.Close()
				return
			}
		}
	}()
	return out
}
