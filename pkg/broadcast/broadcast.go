// Package broadcast delivers frames to a dynamic, ordered set of
// observers.
//
// Dispatch copies the observer list under a read lock and then delivers
// outside of it, so a slow observer never blocks Attach or Detach of
// others. Each registered observer owns a delivery lock which dispatch
// holds for the duration of Update; Detach takes the same lock after
// unlinking the observer, which is what lets it promise that no delivery
// to the observer is running or will run once it returns.
package broadcast

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/qianqian121/GIFT-Grab/pkg/video/videoerr"
	"github.com/qianqian121/GIFT-Grab/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
)

// Observer receives every frame produced by the source it is attached to.
// The frame is only valid until Update returns; keep a Clone otherwise.
type Observer interface {
	Update(videoframe.Frame) error
}

// ErrDetach may be returned from Update to unregister the observer once
// the call completes. Calling Detach from inside Update would wait on the
// delivery that is making the call.
var ErrDetach = errors.New("detach observer")

type Stats struct {
	Delivered uint64
	Failed    uint64
}

type entry struct {
	id        string
	observer  Observer
	mu        sync.Mutex
	detached  bool
	leaving   int32
	delivered uint64
	failed    uint64
}

type Registry struct {
	mu      sync.RWMutex
	entries []*entry
	closed  bool
	onError func(error)
}

// New creates an empty registry. onError receives every observer
// failure caught during dispatch and may be nil.
func New(onError func(error)) *Registry {
	return &Registry{onError: onError}
}

// Attach appends o to the delivery order. Attaching an observer which is
// already registered is a no-op.
func (r *Registry) Attach(o Observer) error {
	if o == nil {
		return xerror.Errorf("%w: nil observer", videoerr.ErrConfiguration)
	}
	if !reflect.TypeOf(o).Comparable() {
		return xerror.Errorf("%w: %T", videoerr.ErrNonComparableObserver, o)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return videoerr.ErrRegistryClosed
	}
	if r.indexOf(o) >= 0 {
		return nil
	}
	r.entries = append(r.entries, &entry{id: uuid.NewString(), observer: o})
	return nil
}

// Detach unregisters o and waits for any delivery to it which is in
// progress. Detaching an observer which is not registered is a no-op.
func (r *Registry) Detach(o Observer) error {
	if o == nil || !reflect.TypeOf(o).Comparable() {
		return nil
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return videoerr.ErrRegistryClosed
	}
	i := r.indexOf(o)
	if i < 0 {
		r.mu.Unlock()
		return nil
	}
	e := r.entries[i]
	r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
	r.mu.Unlock()

	e.mu.Lock()
	e.detached = true
	e.mu.Unlock()
	return nil
}

func (r *Registry) indexOf(o Observer) int {
	for i, e := range r.entries {
		if e.observer == o && !e.isLeaving() {
			return i
		}
	}
	return -1
}

// isLeaving reports an entry whose observer returned ErrDetach and which
// is waiting to be unlinked. Lookups treat it as absent.
func (e *entry) isLeaving() bool { return atomic.LoadInt32(&e.leaving) == 1 }

// Len reports how many observers are attached.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.entries {
		if !e.isLeaving() {
			n++
		}
	}
	return n
}

func (r *Registry) Stats(o Observer) (Stats, bool) {
	if o == nil || !reflect.TypeOf(o).Comparable() {
		return Stats{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := r.indexOf(o)
	if i < 0 {
		return Stats{}, false
	}
	e := r.entries[i]
	return Stats{
		Delivered: atomic.LoadUint64(&e.delivered),
		Failed:    atomic.LoadUint64(&e.failed),
	}, true
}

func (r *Registry) snapshot() []*entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed || len(r.entries) == 0 {
		return nil
	}
	s := make([]*entry, len(r.entries))
	copy(s, r.entries)
	return s
}

// Dispatch hands frame to every attached observer in registration order
// and returns how many observers it was delivered to. Observer failures
// are reported and never stop delivery to the remaining observers.
func (r *Registry) Dispatch(frame videoframe.Frame) int {
	delivered := 0
	for _, e := range r.snapshot() {
		ok, detach := r.deliver(e, frame)
		if ok {
			delivered++
		}
		if detach {
			r.unlink(e)
		}
	}
	return delivered
}

func (r *Registry) deliver(e *entry, frame videoframe.Frame) (delivered, detach bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.detached {
		return false, false
	}

	err := update(e.observer, frame)
	if errors.Is(err, ErrDetach) {
		e.detached = true
		atomic.StoreInt32(&e.leaving, 1)
		atomic.AddUint64(&e.delivered, 1)
		return true, true
	}
	if err != nil {
		atomic.AddUint64(&e.failed, 1)
		r.report(
			xerror.Errorf("%w: %v", videoerr.ErrObserver, err).
				AsKind("observer").
				WithParam("observer", e.id).
				WithParam("sequence", frame.Sequence()),
		)
		return false, false
	}
	atomic.AddUint64(&e.delivered, 1)
	return true, false
}

func update(o Observer, frame videoframe.Frame) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in %T.Update: %v", o, rec)
		}
	}()
	return o.Update(frame)
}

func (r *Registry) unlink(target *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e == target {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			return
		}
	}
}

func (r *Registry) report(err error) {
	if r.onError != nil {
		r.onError(err)
	}
}

// Close drops every observer and makes further Attach and Detach calls
// fail. Close must not race a Dispatch; the owning source only closes
// the registry once its production loop has exited.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for _, e := range r.entries {
		e.mu.Lock()
		e.detached = true
		e.mu.Unlock()
	}
	r.entries = nil
}
