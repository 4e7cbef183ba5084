package videoframe

import (
	"time"

	"github.com/qianqian121/GIFT-Grab/pkg/video/videoerr"
	"github.com/tauraamui/xerror"
)

type Dimensions struct {
	W, H int
}

func (d Dimensions) Area() int { return d.W * d.H }

// Frame is one decoded picture. The pixel buffer is shared read-only
// between every observer of the tick that produced it, so nothing may
// write into the slice returned by Data.
type Frame struct {
	data      []byte
	colour    ColourSpace
	dims      Dimensions
	seq       uint64
	timestamp time.Time
}

// New wraps data as a frame without copying it. The caller hands over
// ownership of data and must not modify it afterwards.
func New(colour ColourSpace, dims Dimensions, data []byte) (Frame, error) {
	if !colour.Valid() {
		return Frame{}, xerror.Errorf("%w: %d", videoerr.ErrUnsupportedColourSpace, int(colour))
	}
	if dims.W <= 0 || dims.H <= 0 {
		return Frame{}, xerror.Errorf("%w: invalid frame dimensions %dx%d", videoerr.ErrDecode, dims.W, dims.H)
	}
	if want := colour.BufferLength(dims); len(data) != want {
		return Frame{}, xerror.Errorf(
			"%w: %s frame of %dx%d expects %d bytes, got %d",
			videoerr.ErrDecode, colour, dims.W, dims.H, want, len(data),
		)
	}
	return Frame{data: data, colour: colour, dims: dims}, nil
}

// WithSequence returns a copy of the frame header stamped with the
// tick sequence number and capture time. The pixel buffer is shared.
func (f Frame) WithSequence(seq uint64, ts time.Time) Frame {
	f.seq = seq
	f.timestamp = ts
	return f
}

func (f Frame) Data() []byte { return f.data }

func (f Frame) Colour() ColourSpace { return f.colour }

func (f Frame) Dimensions() Dimensions { return f.dims }

func (f Frame) Sequence() uint64 { return f.seq }

func (f Frame) Timestamp() time.Time { return f.timestamp }

func (f Frame) Len() int { return len(f.data) }

func (f Frame) IsZero() bool { return f.data == nil }

// Clone deep copies the pixel buffer. Observers which keep a frame
// beyond their Update call must hold a clone instead of the original.
func (f Frame) Clone() Frame {
	if f.data == nil {
		return f
	}
	c := f
	c.data = make([]byte, len(f.data))
	copy(c.data, f.data)
	return c
}
