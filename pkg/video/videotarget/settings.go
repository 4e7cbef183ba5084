package videotarget

// Policy decides which goroutine does the encoding.
type Policy int

const (
	// Synchronous encodes on the caller's goroutine, usually the source's
	// production goroutine, so a slow encoder slows the source down.
	Synchronous Policy = iota
	// Queued hands a copy of each frame to a worker through a bounded
	// queue.
	Queued
)

// Overflow decides what a Queued target does with a frame that arrives
// while its queue is full.
type Overflow int

const (
	Block Overflow = iota
	DropNewest
	DropOldest
)

const DefaultQueueSize = 64

type Settings struct {
	Policy    Policy
	QueueSize int
	Overflow  Overflow
}

func (s Settings) queueSize() int {
	if s.QueueSize <= 0 {
		return DefaultQueueSize
	}
	return s.QueueSize
}
