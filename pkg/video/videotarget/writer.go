// Package videotarget holds observers which consume frames: a writer
// encoding them into a file and a couple of counting observers.
package videotarget

import (
	"math"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/qianqian121/GIFT-Grab/pkg/log"
	"github.com/qianqian121/GIFT-Grab/pkg/video/videobackend"
	"github.com/qianqian121/GIFT-Grab/pkg/video/videoerr"
	"github.com/qianqian121/GIFT-Grab/pkg/video/videoframe"
	"github.com/spf13/afero"
	"github.com/tauraamui/xerror"
)

// Summary describes a finalised output file.
type Summary struct {
	ID         string
	Path       string
	Codec      videoframe.Codec
	FrameRate  float64
	Frames     uint64
	Dropped    uint64
	Failed     uint64
	Dimensions videoframe.Dimensions
	Colour     videoframe.ColourSpace
	Started    time.Time
	Finished   time.Time
}

// FileWriter encodes every frame it is given into a single output file.
// The output file is only created once the first frame arrives, since
// that frame fixes the dimensions and colour space of the whole file.
type FileWriter struct {
	id       string
	path     string
	codec    videoframe.Codec
	fps      float64
	backend  videobackend.Backend
	settings Settings

	mu        sync.Mutex
	writer    videobackend.Writer
	openErr   error
	dims      videoframe.Dimensions
	colour    videoframe.ColourSpace
	started   time.Time
	finalised bool

	frames  uint64
	dropped uint64
	failed  uint64

	queueMu     sync.RWMutex
	queue       chan videoframe.Frame
	queueClosed bool
	workerDone  chan struct{}

	finaliseOnce sync.Once
	summary      Summary
	finaliseErr  error
}

// New validates the output configuration without touching the output
// file.
func New(
	backend videobackend.Backend, fs afero.Fs,
	codec videoframe.Codec, path string, fps float64, settings Settings,
) (*FileWriter, error) {
	if !codec.Valid() || !backend.SupportsCodec(codec) {
		return nil, xerror.Errorf("%w: %d not supported by %s backend", videoerr.ErrUnsupportedCodec, int(codec), backend.Name())
	}
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return nil, xerror.Errorf("%w: %v", videoerr.ErrInvalidFrameRate, fps)
	}
	if err := checkFileTypeSupport(path, codec); err != nil {
		return nil, err
	}
	if err := checkParentDir(fs, path); err != nil {
		return nil, err
	}

	w := FileWriter{
		id:       uuid.NewString(),
		path:     path,
		codec:    codec,
		fps:      fps,
		backend:  backend,
		settings: settings,
	}
	if settings.Policy == Queued {
		w.queue = make(chan videoframe.Frame, settings.queueSize())
		w.workerDone = make(chan struct{})
		go w.drain()
	}
	return &w, nil
}

func checkFileTypeSupport(path string, codec videoframe.Codec) error {
	if len(strings.TrimSpace(path)) == 0 {
		return xerror.Errorf("%w: empty path", videoerr.ErrUnwritablePath)
	}
	ext := "." + codec.FileType()
	if len(filepath.Base(path)) <= len(ext) {
		return xerror.Errorf("%w: %s is too short to deduce its format", videoerr.ErrUnsupportedFileType, path)
	}
	if !strings.EqualFold(filepath.Ext(path), ext) {
		return xerror.Errorf("%w: %s output must be a %s file, got %s", videoerr.ErrUnsupportedFileType, codec, ext, path)
	}
	return nil
}

func checkParentDir(fs afero.Fs, path string) error {
	dir := filepath.Dir(path)
	info, err := fs.Stat(dir)
	if err != nil {
		return xerror.Errorf("%w: %s: %v", videoerr.ErrUnwritablePath, dir, err)
	}
	if !info.IsDir() {
		return xerror.Errorf("%w: %s is not a directory", videoerr.ErrUnwritablePath, dir)
	}
	return nil
}

func (w *FileWriter) ID() string { return w.id }

func (w *FileWriter) Path() string { return w.path }

func (w *FileWriter) Codec() videoframe.Codec { return w.codec }

func (w *FileWriter) FrameRate() float64 { return w.fps }

func (w *FileWriter) Frames() uint64 { return atomic.LoadUint64(&w.frames) }

func (w *FileWriter) Dropped() uint64 { return atomic.LoadUint64(&w.dropped) }

func (w *FileWriter) IsFinalised() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.finalised
}

// Update makes FileWriter an observer.
func (w *FileWriter) Update(frame videoframe.Frame) error {
	return w.Append(frame)
}

// Append encodes frame, or queues a copy of it for encoding.
func (w *FileWriter) Append(frame videoframe.Frame) error {
	if w.settings.Policy == Queued {
		return w.enqueue(frame)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finalised {
		return videoerr.ErrTargetFinalised
	}
	return w.write(frame)
}

func (w *FileWriter) enqueue(frame videoframe.Frame) error {
	w.queueMu.RLock()
	defer w.queueMu.RUnlock()
	if w.queueClosed {
		return videoerr.ErrTargetFinalised
	}

	clone := frame.Clone()
	switch w.settings.Overflow {
	case DropNewest:
		select {
		case w.queue <- clone:
		default:
			atomic.AddUint64(&w.dropped, 1)
		}
	case DropOldest:
		for {
			select {
			case w.queue <- clone:
				return nil
			default:
			}
			select {
			case <-w.queue:
				atomic.AddUint64(&w.dropped, 1)
			default:
			}
		}
	default:
		w.queue <- clone
	}
	return nil
}

func (w *FileWriter) drain() {
	defer close(w.workerDone)
	for frame := range w.queue {
		w.mu.Lock()
		err := w.write(frame)
		w.mu.Unlock()
		if err != nil {
			log.Error("Unable to write frame %d to [%s]: %v", frame.Sequence(), w.path, err)
		}
	}
}

// write must be called with mu held.
func (w *FileWriter) write(frame videoframe.Frame) error {
	if w.writer == nil {
		if w.openErr != nil {
			atomic.AddUint64(&w.failed, 1)
			return w.openErr
		}
		writer, err := w.backend.OpenWriter(w.path, w.codec, w.fps, frame.Dimensions(), frame.Colour())
		if err != nil {
			w.openErr = err
			atomic.AddUint64(&w.failed, 1)
			return err
		}
		log.Debug("Opened [%s] for %s %dx%d @ %.2f fps", w.path, frame.Colour(), frame.Dimensions().W, frame.Dimensions().H, w.fps)
		w.writer = writer
		w.dims = frame.Dimensions()
		w.colour = frame.Colour()
		w.started = time.Now()
	}

	if frame.Dimensions() != w.dims || frame.Colour() != w.colour {
		atomic.AddUint64(&w.failed, 1)
		return xerror.Errorf(
			"target [%s] expects %s %dx%d frames, got %s %dx%d", w.path,
			w.colour, w.dims.W, w.dims.H, frame.Colour(), frame.Dimensions().W, frame.Dimensions().H,
		)
	}
	if err := w.writer.Write(frame); err != nil {
		atomic.AddUint64(&w.failed, 1)
		return xerror.Errorf("unable to write frame %d to [%s]: %w", frame.Sequence(), w.path, err)
	}
	atomic.AddUint64(&w.frames, 1)
	return nil
}

// Finalise encodes whatever is still queued, closes the output file and
// describes it. If the output could not be opened the open error is
// returned along with the summary. Calling Finalise again returns the
// same summary.
func (w *FileWriter) Finalise() (Summary, error) {
	w.finaliseOnce.Do(func() {
		if w.settings.Policy == Queued {
			w.queueMu.Lock()
			w.queueClosed = true
			close(w.queue)
			w.queueMu.Unlock()
			<-w.workerDone
		}

		w.mu.Lock()
		defer w.mu.Unlock()
		w.finalised = true
		if w.writer != nil {
			if err := w.writer.Close(); err != nil {
				w.finaliseErr = xerror.Errorf("unable to finalise [%s]: %w", w.path, err)
			}
		}
		if w.openErr != nil {
			w.finaliseErr = xerror.Errorf("output [%s] was never opened: %w", w.path, w.openErr)
		}
		w.summary = Summary{
			ID:         w.id,
			Path:       w.path,
			Codec:      w.codec,
			FrameRate:  w.fps,
			Frames:     atomic.LoadUint64(&w.frames),
			Dropped:    atomic.LoadUint64(&w.dropped),
			Failed:     atomic.LoadUint64(&w.failed),
			Dimensions: w.dims,
			Colour:     w.colour,
			Started:    w.started,
			Finished:   time.Now(),
		}
	})
	return w.summary, w.finaliseErr
}
