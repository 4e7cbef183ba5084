// Package recorder wires every configured recording to a source and a
// file target, and runs them until shutdown.
package recorder

import (
	"context"
	"errors"
	"sync"

	"github.com/qianqian121/GIFT-Grab/pkg/configdef"
	"github.com/qianqian121/GIFT-Grab/pkg/log"
	"github.com/qianqian121/GIFT-Grab/pkg/video/videobackend"
	"github.com/qianqian121/GIFT-Grab/pkg/video/videoerr"
	"github.com/qianqian121/GIFT-Grab/pkg/video/videofactory"
	"github.com/qianqian121/GIFT-Grab/pkg/video/videosource"
	"github.com/qianqian121/GIFT-Grab/pkg/video/videotarget"
	"github.com/spf13/afero"
	"github.com/tauraamui/xerror"
)

var fs = afero.NewOsFs()

// Catalog stores the summary of every finalised recording.
type Catalog interface {
	Record(source string, summary videotarget.Summary) error
}

type session struct {
	title  string
	source *videosource.Source
	target *videotarget.FileWriter
}

type Server struct {
	shutdownDone chan interface{}
	shutdownOnce sync.Once
	config       configdef.Values
	registry     *videofactory.Registry
	mu           sync.Mutex
	sessions     []session
}

func NewServer(cr configdef.Resolver, backend videobackend.Backend) (*Server, error) {
	config, err := cr.Resolve()
	if err != nil {
		return nil, err
	}
	if err := config.RunValidate(); err != nil {
		return nil, err
	}

	return &Server{
		shutdownDone: make(chan interface{}),
		config:       config,
		registry: videofactory.New(videofactory.Options{
			Backend:     backend,
			Fs:          fs,
			ManualStart: true,
		}),
	}, nil
}

// UseCatalog records every target the server finalises into c.
func (s *Server) UseCatalog(c Catalog) {
	s.registry.OnTargetFinalised(func(summary videotarget.Summary) {
		if err := c.Record(s.sourceOf(summary.Path), summary); err != nil {
			log.Error("Unable to catalog [%s]: %v", summary.Path, err)
		}
	})
}

func (s *Server) sourceOf(path string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.target.Path() == path {
			return sess.source.Locator()
		}
	}
	return ""
}

func (s *Server) Connect() []error {
	return s.connect(context.Background())
}

func (s *Server) ConnectWithCancel(cancel context.Context) []error {
	return s.connect(cancel)
}

func (s *Server) connect(cancel context.Context) []error {
	var errs []error

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.config.Recordings {
		select {
		case <-cancel.Done():
			return errs
		default:
			if rec.Disabled {
				log.Warn("Recording [%s] is disabled... skipping...", rec.Title)
				continue
			}
			sess, err := s.open(cancel, rec)
			if err != nil {
				errs = append(errs, xerror.Errorf("recording [%s]: %w", rec.Title, err))
				continue
			}
			log.Info("Opened recording [%s]: %s -> %s", rec.Title, rec.Source.Locator, rec.Target.Path)
			s.sessions = append(s.sessions, sess)
		}
	}
	return errs
}

func (s *Server) open(ctx context.Context, rec configdef.Recording) (session, error) {
	src, err := s.registry.CreateSourceWith(ctx, rec.Source.Locator, rec.Source.ColourSpace(), rec.Source.Settings())
	if err != nil {
		return session{}, err
	}
	if sf := rec.Source.SubFrame; sf != nil {
		if err := src.SetSubFrame(sf.Rect()); err != nil {
			return session{}, err
		}
	}

	fps := rec.Target.FrameRate
	if fps == 0 {
		fps = src.FrameRate()
	}
	target, err := s.registry.CreateTargetWith(rec.Target.CodecValue(), rec.Target.Path, fps, rec.Target.Settings())
	if err != nil {
		return session{}, err
	}
	return session{title: rec.Title, source: src, target: target}, nil
}

// SetupProcesses attaches each recording's target to its source.
func (s *Server) SetupProcesses() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, sess := range s.sessions {
		if err := sess.source.Attach(sess.target); err != nil {
			errs = append(errs, xerror.Errorf("recording [%s]: %w", sess.title, err))
		}
	}
	return errs
}

// RunProcesses starts every source. A source shared by several
// recordings is started once.
func (s *Server) RunProcesses() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, sess := range s.sessions {
		if err := sess.source.Start(); err != nil {
			errs = append(errs, xerror.Errorf("recording [%s]: %w", sess.title, err))
		}
	}
	return errs
}

type Progress struct {
	Title      string
	Ticks      uint64
	Frames     uint64
	Dropped    uint64
	FrameCount int
}

func (s *Server) Progress() []Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := make([]Progress, 0, len(s.sessions))
	for _, sess := range s.sessions {
		p = append(p, Progress{
			Title:      sess.title,
			Ticks:      sess.source.Ticks(),
			Frames:     sess.target.Frames(),
			Dropped:    sess.target.Dropped(),
			FrameCount: sess.source.FrameCount(),
		})
	}
	return p
}

// Wait blocks until every source has stopped producing, or ctx ends.
// Reaching the end of a stream is not an error.
func (s *Server) Wait(ctx context.Context) error {
	s.mu.Lock()
	sessions := append([]session{}, s.sessions...)
	s.mu.Unlock()

	for _, sess := range sessions {
		select {
		case <-sess.source.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for _, sess := range sessions {
		if err := sess.source.Err(); err != nil && !errors.Is(err, videoerr.ErrEndOfStream) {
			return xerror.Errorf("recording [%s]: %w", sess.title, err)
		}
	}
	return nil
}

func (s *Server) shutdown() error {
	var err error
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		n := len(s.sessions)
		s.mu.Unlock()
		log.Warn("Closing %d recording(s)...", n)
		err = s.registry.Close()
		close(s.shutdownDone)
	})
	return err
}

// Shutdown stops every source and finalises every target. The returned
// channel is closed once all of them are done.
func (s *Server) Shutdown() chan interface{} {
	if err := s.shutdown(); err != nil {
		log.Error("Shutdown: %v", err)
	}
	return s.shutdownDone
}

// Close is Shutdown for callers which need the error.
func (s *Server) Close() error {
	err := s.shutdown()
	<-s.shutdownDone
	return err
}
