// Package videofactory builds sources and targets and hands out the same
// instance to every caller asking for an equal configuration.
package videofactory

import (
	"context"
	"sync"

	"github.com/qianqian121/GIFT-Grab/pkg/log"
	"github.com/qianqian121/GIFT-Grab/pkg/video/videobackend"
	"github.com/qianqian121/GIFT-Grab/pkg/video/videoerr"
	"github.com/qianqian121/GIFT-Grab/pkg/video/videoframe"
	"github.com/qianqian121/GIFT-Grab/pkg/video/videosource"
	"github.com/qianqian121/GIFT-Grab/pkg/video/videotarget"
	"github.com/spf13/afero"
	"github.com/tauraamui/xerror"
)

type SourceKey struct {
	Locator string
	Colour  videoframe.ColourSpace
}

type TargetKey struct {
	Codec     videoframe.Codec
	Path      string
	FrameRate float64
}

type Options struct {
	Backend        videobackend.Backend
	Fs             afero.Fs
	SourceSettings videosource.Settings
	TargetSettings videotarget.Settings
	// ManualStart hands out sources in the Created state, so observers
	// can be attached before the first tick. The caller starts them.
	ManualStart bool
}

type sourceSlot struct {
	ready chan struct{}
	src   *videosource.Source
	err   error
}

type targetSlot struct {
	ready    chan struct{}
	target   *videotarget.FileWriter
	err      error
	hookOnce sync.Once
}

// Registry is owned by its caller, there is no package level instance.
type Registry struct {
	opts Options

	mu          sync.Mutex
	closed      bool
	sources     map[SourceKey]*sourceSlot
	targets     map[TargetKey]*targetSlot
	onFinalised []func(videotarget.Summary)
}

func New(opts Options) *Registry {
	if opts.Backend == nil {
		opts.Backend = videobackend.Default()
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	return &Registry{
		opts:    opts,
		sources: map[SourceKey]*sourceSlot{},
		targets: map[TargetKey]*targetSlot{},
	}
}

func (r *Registry) Backend() videobackend.Backend { return r.opts.Backend }

// OnTargetFinalised registers fn to be called with the summary of every
// target the registry finalises.
func (r *Registry) OnTargetFinalised(fn func(videotarget.Summary)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onFinalised = append(r.onFinalised, fn)
}

// CreateSource returns the source for locator and colour, opening and
// starting one if none is cached. A cached source which has
// already stopped is replaced. Failures leave nothing behind in the
// cache.
func (r *Registry) CreateSource(ctx context.Context, locator string, colour videoframe.ColourSpace) (*videosource.Source, error) {
	return r.CreateSourceWith(ctx, locator, colour, r.opts.SourceSettings)
}

// CreateSourceWith is CreateSource with settings for a newly opened
// source. A cached source keeps the settings it was opened with.
func (r *Registry) CreateSourceWith(
	ctx context.Context, locator string, colour videoframe.ColourSpace, settings videosource.Settings,
) (*videosource.Source, error) {
	key := SourceKey{Locator: locator, Colour: colour}
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, videoerr.ErrRegistryClosed
		}
		slot, ok := r.sources[key]
		if !ok {
			slot = &sourceSlot{ready: make(chan struct{})}
			r.sources[key] = slot
			r.mu.Unlock()
			return r.buildSource(ctx, key, settings, slot)
		}
		r.mu.Unlock()

		select {
		case <-slot.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if slot.err != nil {
			return nil, slot.err
		}
		if st := slot.src.State(); st != videosource.Stopping && st != videosource.Stopped {
			return slot.src, nil
		}
		r.dropSource(key, slot)
	}
}

func (r *Registry) buildSource(
	ctx context.Context, key SourceKey, settings videosource.Settings, slot *sourceSlot,
) (*videosource.Source, error) {
	defer close(slot.ready)

	src, err := r.openSource(ctx, key, settings)
	if err != nil {
		slot.err = err
		r.dropSource(key, slot)
		return nil, err
	}
	slot.src = src
	return src, nil
}

func (r *Registry) openSource(ctx context.Context, key SourceKey, settings videosource.Settings) (*videosource.Source, error) {
	backend := r.opts.Backend
	if !key.Colour.Valid() || !backend.SupportsColourSpace(key.Colour) {
		return nil, xerror.Errorf("%w: %s not supported by %s backend", videoerr.ErrUnsupportedColourSpace, key.Colour, backend.Name())
	}
	reader, err := backend.OpenReader(ctx, key.Locator, key.Colour)
	if err != nil {
		return nil, err
	}
	src := videosource.New(key.Locator, reader, settings)
	if !r.opts.ManualStart {
		if err := src.Start(); err != nil {
			src.Stop()
			return nil, err
		}
	}
	log.Info("Created source [%s] for [%s] in %s", src.ID(), key.Locator, key.Colour)
	return src, nil
}

// dropSource removes slot only if it is still the cached one for key.
func (r *Registry) dropSource(key SourceKey, slot *sourceSlot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sources[key] == slot {
		delete(r.sources, key)
	}
}

// CreateTarget returns the cached target for codec, path and frame rate,
// or validates and caches a new one. Finalised targets are replaced.
func (r *Registry) CreateTarget(codec videoframe.Codec, path string, fps float64) (*videotarget.FileWriter, error) {
	return r.CreateTargetWith(codec, path, fps, r.opts.TargetSettings)
}

// CreateTargetWith is CreateTarget with the write policy of a newly
// validated target.
func (r *Registry) CreateTargetWith(
	codec videoframe.Codec, path string, fps float64, settings videotarget.Settings,
) (*videotarget.FileWriter, error) {
	key := TargetKey{Codec: codec, Path: path, FrameRate: fps}
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, videoerr.ErrRegistryClosed
		}
		slot, ok := r.targets[key]
		if !ok {
			slot = &targetSlot{ready: make(chan struct{})}
			r.targets[key] = slot
			r.mu.Unlock()
			return r.buildTarget(key, settings, slot)
		}
		r.mu.Unlock()

		<-slot.ready
		if slot.err != nil {
			return nil, slot.err
		}
		if !slot.target.IsFinalised() {
			return slot.target, nil
		}
		r.dropTarget(key, slot)
	}
}

func (r *Registry) buildTarget(key TargetKey, settings videotarget.Settings, slot *targetSlot) (*videotarget.FileWriter, error) {
	defer close(slot.ready)

	target, err := videotarget.New(r.opts.Backend, r.opts.Fs, key.Codec, key.Path, key.FrameRate, settings)
	if err != nil {
		slot.err = err
		r.dropTarget(key, slot)
		return nil, err
	}
	log.Info("Created %s target [%s] for [%s] @ %.2f fps", key.Codec, target.ID(), key.Path, key.FrameRate)
	slot.target = target
	return target, nil
}

func (r *Registry) dropTarget(key TargetKey, slot *targetSlot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.targets[key] == slot {
		delete(r.targets, key)
	}
}

// ReleaseSource stops the cached source for key and forgets it.
// Releasing a key with nothing cached does nothing.
func (r *Registry) ReleaseSource(key SourceKey) error {
	r.mu.Lock()
	slot, ok := r.sources[key]
	if ok {
		delete(r.sources, key)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}
	<-slot.ready
	if slot.src == nil {
		return nil
	}
	return slot.src.Stop()
}

// ReleaseTarget finalises the cached target for key and forgets it.
func (r *Registry) ReleaseTarget(key TargetKey) (videotarget.Summary, error) {
	r.mu.Lock()
	slot, ok := r.targets[key]
	if ok {
		delete(r.targets, key)
	}
	r.mu.Unlock()
	if !ok {
		return videotarget.Summary{}, nil
	}
	<-slot.ready
	if slot.target == nil {
		return videotarget.Summary{}, nil
	}
	return r.finalise(slot)
}

func (r *Registry) finalise(slot *targetSlot) (videotarget.Summary, error) {
	summary, err := slot.target.Finalise()
	if err != nil {
		return summary, err
	}

	slot.hookOnce.Do(func() {
		r.mu.Lock()
		hooks := append([]func(videotarget.Summary){}, r.onFinalised...)
		r.mu.Unlock()
		for _, hook := range hooks {
			hook(summary)
		}
	})
	return summary, nil
}

// Close stops every source before finalising every target, so no frame
// is in flight towards a target while it closes. The registry can not be
// used afterwards. The first failure is returned, all are logged.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	sources, targets := r.sources, r.targets
	r.sources, r.targets = map[SourceKey]*sourceSlot{}, map[TargetKey]*targetSlot{}
	r.mu.Unlock()

	var first error
	record := func(err error) {
		if err == nil {
			return
		}
		log.Error("Closing video registry: %v", err)
		if first == nil {
			first = err
		}
	}

	for _, slot := range sources {
		<-slot.ready
		if slot.src != nil {
			record(slot.src.Stop())
		}
	}
	for _, slot := range targets {
		<-slot.ready
		if slot.target != nil {
			_, err := r.finalise(slot)
			record(err)
		}
	}
	return first
}
