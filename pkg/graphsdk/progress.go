package graphsdk

import (
	"io"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ProgressFunc receives a transfer fraction between 0 and 1.
type ProgressFunc func(fraction float64)

// progress turns raw byte counts into throttled, non-decreasing fraction
// callbacks. The final 1.0 is never throttled.
type progress struct {
	fn      ProgressFunc
	deliver func(func()) bool
	limiter *rate.Sometimes

	mu       sync.Mutex
	last     float64
	finished bool
}

func newProgress(fn ProgressFunc, interval time.Duration, deliver func(func()) bool) *progress {
	if fn == nil {
		return nil
	}
	limiter := &rate.Sometimes{Interval: interval}
	if interval <= 0 {
		limiter = &rate.Sometimes{Every: 1}
	}
	return &progress{fn: fn, deliver: deliver, limiter: limiter}
}

func (p *progress) report(done, total int64) {
	if p == nil || total <= 0 {
		return
	}
	p.set(float64(done) / float64(total))
}

func (p *progress) complete() {
	if p == nil {
		return
	}
	p.set(1)
}

func (p *progress) set(f float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.finished {
		return
	}
	f = min(max(f, p.last), 1)

	send := func() {
		fn := p.fn
		if p.deliver(func() { fn(f) }) {
			p.last = f
		}
	}
	if f >= 1 {
		p.finished = true
		send()
		return
	}
	if f == p.last && f != 0 {
		return
	}
	p.limiter.Do(send)
}

// countingReader reports bytes read through a progress tracker.
type countingReader struct {
	r     io.Reader
	total int64
	read  int64
	prog  *progress
}

func (c *countingReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	c.read += int64(n)
	c.prog.report(c.read, c.total)
	if err == io.EOF || (c.total > 0 && c.read >= c.total) {
		c.prog.complete()
	}
	return n, err
}

func (c *countingReader) Close() error {
	if rc, ok := c.r.(io.Closer); ok {
		return rc.Close()
	}
	return nil
}
