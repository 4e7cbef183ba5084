package videobackend

import (
	"context"
	"image"
	"strings"

	"github.com/qianqian121/GIFT-Grab/pkg/video/videoframe"
	"github.com/spf13/afero"
)

// Reader decodes frames from one opened resource. Read is only ever
// called from a single goroutine, the other methods may be called
// concurrently with it.
type Reader interface {
	Read() (videoframe.Frame, error)
	Colour() videoframe.ColourSpace
	FrameDimensions() videoframe.Dimensions
	FrameRate() float64
	// FrameCount is the number of frames the resource announces, or -1
	// for live and unbounded resources.
	FrameCount() int
	SetSubFrame(image.Rectangle) error
	FullFrame()
	Close() error
}

type Writer interface {
	Write(videoframe.Frame) error
	Close() error
}

// Info is what a backend can tell about an already written container.
type Info struct {
	Frames     int
	FrameRate  float64
	Dimensions videoframe.Dimensions
}

type Backend interface {
	Name() string
	SupportsColourSpace(videoframe.ColourSpace) bool
	SupportsCodec(videoframe.Codec) bool
	OpenReader(ctx context.Context, locator string, colour videoframe.ColourSpace) (Reader, error)
	OpenWriter(path string, codec videoframe.Codec, fps float64, dims videoframe.Dimensions, colour videoframe.ColourSpace) (Writer, error)
	Inspect(path string) (Info, error)
}

func Default() Backend {
	return OpenCV()
}

func OpenCV() Backend {
	return &openCVBackend{}
}

func Synthetic(fs afero.Fs) Backend {
	return &syntheticBackend{fs: fs}
}

func Resolve(t string) Backend {
	switch strings.ToLower(t) {
	case "synthetic", "mock":
		return Synthetic(afero.NewOsFs())
	default:
		return Default()
	}
}
