package videotarget

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/qianqian121/GIFT-Grab/pkg/video/videoframe"
)

// Counter counts the frames delivered to it. OnFrame, when set, is called
// with every frame and must not keep it.
type Counter struct {
	n       uint64
	OnFrame func(videoframe.Frame)
}

func (c *Counter) Update(frame videoframe.Frame) error {
	atomic.AddUint64(&c.n, 1)
	if c.OnFrame != nil {
		c.OnFrame(frame)
	}
	return nil
}

func (c *Counter) Count() uint64 { return atomic.LoadUint64(&c.n) }

type StatsSnapshot struct {
	Frames        uint64
	Bytes         uint64
	FirstSequence uint64
	LastSequence  uint64
	First         time.Time
	Last          time.Time
}

// FPS is the delivery rate measured between the first and last frame.
func (s StatsSnapshot) FPS() float64 {
	if s.Frames < 2 {
		return 0
	}
	elapsed := s.Last.Sub(s.First).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.Frames-1) / elapsed
}

// Gaps is how many sequence numbers between the first and last frame
// never arrived. Sequences that went backwards or repeated, as seen when
// fed by more than one source, give no gaps.
func (s StatsSnapshot) Gaps() uint64 {
	if s.Frames == 0 || s.LastSequence < s.FirstSequence {
		return 0
	}
	span := s.LastSequence - s.FirstSequence + 1
	if span < s.Frames {
		return 0
	}
	return span - s.Frames
}

// Stats accumulates delivery statistics.
type Stats struct {
	mu   sync.Mutex
	snap StatsSnapshot
}

func (s *Stats) Update(frame videoframe.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := frame.Timestamp()
	if ts.IsZero() {
		ts = time.Now()
	}
	if s.snap.Frames == 0 {
		s.snap.FirstSequence = frame.Sequence()
		s.snap.First = ts
	}
	s.snap.Frames++
	s.snap.Bytes += uint64(frame.Len())
	s.snap.LastSequence = frame.Sequence()
	s.snap.Last = ts
	return nil
}

func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}
