package transfer

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// chunkSize bounds each rate-limited read so throttling stays smooth.
const chunkSize = 64 * 1024

// Limiter caps the aggregate byte rate of every reader it wraps. One
// Limiter is shared by all workers of a run.
type Limiter struct {
	limiter *rate.Limiter
}

// NewLimiter returns a limiter allowing bytesPerSecond with a one-second
// burst. A non-positive rate returns nil, which wraps readers unchanged.
func NewLimiter(bytesPerSecond int64) *Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	burst := int(bytesPerSecond)
	if burst < chunkSize {
		burst = chunkSize
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), burst),
	}
}

// Reader wraps r so reads wait for bandwidth. Waiting stops when ctx is
// done and the read returns ctx's error.
func (l *Limiter) Reader(ctx context.Context, r io.Reader) io.Reader {
	if l == nil {
		return r
	}
	return &limitedReader{ctx: ctx, r: r, limiter: l.limiter}
}

type limitedReader struct {
	ctx     context.Context
	r       io.Reader
	limiter *rate.Limiter
}

func (lr *limitedReader) Read(p []byte) (int, error) {
	if len(p) > chunkSize {
		p = p[:chunkSize]
	}
	n, err := lr.r.Read(p)
	if n > 0 {
		if werr := lr.limiter.WaitN(lr.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
