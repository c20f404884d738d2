package monitor

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/prometheus/procfs"
)

// Sampler returns the current reading of the monitored metric.
type Sampler interface {
	Sample(ctx context.Context) (int64, error)
}

// SamplerFunc adapts a function to Sampler.
type SamplerFunc func(ctx context.Context) (int64, error)

// Sample implements Sampler.
func (f SamplerFunc) Sample(ctx context.Context) (int64, error) {
	return f(ctx)
}

// CPUSampler reports whole-host CPU utilisation as an integer percentage,
// computed from /proc/stat deltas between consecutive samples.
type CPUSampler struct {
	fs     procfs.FS
	window time.Duration

	mu     sync.Mutex
	prev   procfs.CPUStat
	primed bool
	last   int64
}

// NewCPUSampler reads from the default /proc mount. window is how long the
// first sample waits to obtain a baseline.
func NewCPUSampler(window time.Duration) (*CPUSampler, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("open procfs: %w", err)
	}
	return NewCPUSamplerFS(fs, window), nil
}

// NewCPUSamplerFS reads from an explicit procfs mount.
func NewCPUSamplerFS(fs procfs.FS, window time.Duration) *CPUSampler {
	return &CPUSampler{fs: fs, window: window}
}

// Sample implements Sampler.
func (s *CPUSampler) Sample(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.primed {
		base, err := s.read()
		if err != nil {
			return 0, err
		}
		s.prev = base
		s.primed = true

		timer := time.NewTimer(s.window)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-timer.C:
		}
	}

	cur, err := s.read()
	if err != nil {
		return 0, err
	}

	busy := busyTime(cur) - busyTime(s.prev)
	total := busy + (cur.Idle + cur.Iowait) - (s.prev.Idle + s.prev.Iowait)
	s.prev = cur
	if total <= 0 {
		return s.last, nil
	}

	pct := int64(math.Round(100 * busy / total))
	s.last = min(max(pct, 0), 100)
	return s.last, nil
}

func (s *CPUSampler) read() (procfs.CPUStat, error) {
	st, err := s.fs.Stat()
	if err != nil {
		return procfs.CPUStat{}, fmt.Errorf("read cpu stat: %w", err)
	}
	return st.CPUTotal, nil
}

// busyTime excludes guest time, which the kernel already counts in user.
func busyTime(c procfs.CPUStat) float64 {
	return c.User + c.Nice + c.System + c.IRQ + c.SoftIRQ + c.Steal
}
