// Package videosource runs a production loop over a backend reader and
// pushes every decoded frame to the observers attached to it.
package videosource

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/qianqian121/GIFT-Grab/pkg/broadcast"
	"github.com/qianqian121/GIFT-Grab/pkg/log"
	"github.com/qianqian121/GIFT-Grab/pkg/process"
	"github.com/qianqian121/GIFT-Grab/pkg/video/videobackend"
	"github.com/qianqian121/GIFT-Grab/pkg/video/videoerr"
	"github.com/qianqian121/GIFT-Grab/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
)

const DefaultMaxConsecutiveFailures = 30

type Settings struct {
	// Pace spaces ticks at the reader's frame rate instead of decoding
	// as fast as the backend allows.
	Pace bool
	// MaxConsecutiveFailures is how many decode failures in a row are
	// skipped before the source gives up. Zero means the default,
	// negative means never give up.
	MaxConsecutiveFailures int
	// ErrorHandler receives every decode and observer failure in addition
	// to the error log. Called from the production goroutine.
	ErrorHandler func(error)
}

// Source is an observable source of frames. Observers attached to it are
// called one after the other from a single production goroutine, in the
// order they were attached.
type Source struct {
	id       string
	locator  string
	reader   videobackend.Reader
	settings Settings
	registry *broadcast.Registry
	proc     process.Process

	lifecycle sync.Mutex
	state     atomicState
	ticks     uint64
	errMu     sync.Mutex
	err       error
	done      chan struct{}
	closeOnce sync.Once
}

// New wraps an opened reader. The source takes ownership of the reader
// and closes it when production ends.
func New(locator string, reader videobackend.Reader, settings Settings) *Source {
	if settings.MaxConsecutiveFailures == 0 {
		settings.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	s := Source{
		id:       uuid.NewString(),
		locator:  locator,
		reader:   reader,
		settings: settings,
		done:     make(chan struct{}),
	}
	s.registry = broadcast.New(s.report)
	s.proc = process.New(process.Settings{
		WaitForShutdownMsg: "Stopping source [" + locator + "]",
		Process:            s.run,
	})
	return &s
}

func (s *Source) ID() string { return s.id }

func (s *Source) Locator() string { return s.locator }

func (s *Source) Colour() videoframe.ColourSpace { return s.reader.Colour() }

func (s *Source) State() State { return s.state.load() }

// Ticks is the number of frames produced and dispatched so far.
func (s *Source) Ticks() uint64 { return atomic.LoadUint64(&s.ticks) }

// Err is the cause production ended with. It is nil while running and
// when the source was stopped by its owner.
func (s *Source) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *Source) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// Done is closed once the source reached Stopped.
func (s *Source) Done() <-chan struct{} { return s.done }

func (s *Source) Wait() { <-s.done }

func (s *Source) FrameDimensions() videoframe.Dimensions { return s.reader.FrameDimensions() }

func (s *Source) FrameRate() float64 { return s.reader.FrameRate() }

// FrameCount is the number of frames the resource announced, -1 when
// unknown.
func (s *Source) FrameCount() int { return s.reader.FrameCount() }

// SetSubFrame crops every following frame to rect, in full frame
// coordinates.
func (s *Source) SetSubFrame(rect image.Rectangle) error {
	if s.State() == Stopped {
		return videoerr.ErrSourceStopped
	}
	return s.reader.SetSubFrame(rect)
}

func (s *Source) FullFrame() { s.reader.FullFrame() }

// Attach registers o so that it receives frames from the next tick on.
func (s *Source) Attach(o broadcast.Observer) error {
	if s.State() == Stopped {
		return videoerr.ErrSourceStopped
	}
	return lifecycleErr(s.registry.Attach(o))
}

// Detach unregisters o. Once it returns no delivery to o is running and
// none will happen. It must not be called from o's own Update; return
// broadcast.ErrDetach from Update instead.
func (s *Source) Detach(o broadcast.Observer) error {
	if s.State() == Stopped {
		return videoerr.ErrSourceStopped
	}
	return lifecycleErr(s.registry.Detach(o))
}

func lifecycleErr(err error) error {
	if errors.Is(err, videoerr.ErrRegistryClosed) {
		return videoerr.ErrSourceStopped
	}
	return err
}

func (s *Source) Observers() int { return s.registry.Len() }

func (s *Source) ObserverStats(o broadcast.Observer) (broadcast.Stats, bool) {
	return s.registry.Stats(o)
}

// Start begins production. Starting a running source does nothing.
func (s *Source) Start() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	switch s.State() {
	case Running:
		return nil
	case Stopping, Stopped:
		return videoerr.ErrSourceStopped
	}
	s.state.store(Running)
	log.Debug("Starting source [%s] for [%s]", s.id, s.locator)
	s.proc.Setup().Start()
	return nil
}

// Stop lets the current tick finish delivering to every attached
// observer, then ends production and waits for the reader to be
// released. Calling Stop again is harmless. Stop must not be called from
// an observer's Update.
func (s *Source) Stop() error {
	s.lifecycle.Lock()
	if s.state.advance(Created, Stopped) {
		s.lifecycle.Unlock()
		s.teardown()
		return nil
	}
	s.state.advance(Running, Stopping)
	s.lifecycle.Unlock()

	s.proc.Stop()
	s.proc.Wait()
	<-s.done
	return nil
}

func (s *Source) run(ctx context.Context) []chan interface{} {
	stopping := make(chan interface{})
	go func(ctx context.Context, stopping chan interface{}) {
		defer close(stopping)
		defer s.teardown()
		s.produce(ctx)
	}(ctx, stopping)
	return []chan interface{}{stopping}
}

func (s *Source) produce(ctx context.Context) {
	var pace <-chan time.Time
	if fps := s.reader.FrameRate(); s.settings.Pace && fps > 0 {
		ticker := time.NewTicker(time.Duration(float64(time.Second) / fps))
		defer ticker.Stop()
		pace = ticker.C
	}

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if pace != nil {
			select {
			case <-ctx.Done():
				return
			case <-pace:
			}
		}

		frame, err := s.reader.Read()
		if err != nil {
			if videoerr.Unrecoverable(err) {
				s.halt(err)
				return
			}
			failures++
			s.report(xerror.Errorf("source [%s] tick %d: %w", s.locator, s.Ticks(), err))
			if limit := s.settings.MaxConsecutiveFailures; limit > 0 && failures > limit {
				s.halt(xerror.Errorf("%w: %d consecutive decode failures", videoerr.ErrSourceLost, failures))
				return
			}
			continue
		}
		failures = 0

		seq := atomic.AddUint64(&s.ticks, 1) - 1
		s.registry.Dispatch(frame.WithSequence(seq, time.Now()))
	}
}

// halt records why production is ending on its own.
func (s *Source) halt(cause error) {
	s.state.advance(Running, Stopping)
	s.setErr(cause)
	if errors.Is(cause, videoerr.ErrEndOfStream) {
		log.Debug("Source [%s] reached end of stream after %d frames", s.locator, s.Ticks())
		return
	}
	log.Error("Source [%s] stopping: %v", s.locator, cause)
}

func (s *Source) teardown() {
	s.closeOnce.Do(func() {
		s.registry.Close()
		if err := s.reader.Close(); err != nil {
			log.Error("Unable to close reader for [%s]: %v", s.locator, err)
		}
		s.state.store(Stopped)
		close(s.done)
	})
}

func (s *Source) report(err error) {
	log.Error("Source [%s]: %v", s.locator, err)
	if s.settings.ErrorHandler != nil {
		s.settings.ErrorHandler(err)
	}
}
