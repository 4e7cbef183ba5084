package videobackend

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"math"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"github.com/qianqian121/GIFT-Grab/pkg/video/videoerr"
	"github.com/qianqian121/GIFT-Grab/pkg/video/videoframe"
	"github.com/spf13/afero"
	"github.com/tauraamui/xerror"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
)

const SyntheticScheme = "synthetic"

const (
	defaultSyntheticWidth  = 320
	defaultSyntheticHeight = 240
	defaultSyntheticFPS    = 30
)

// syntheticBackend generates frames in process instead of decoding them,
// and writes a raw container through afero so it can run on an in-memory
// file system. Locators look like
//
//	synthetic://150?width=64&height=48&fps=30&title=cam
//
// where the host is the number of frames to produce, or "live" for an
// endless stream.
type syntheticBackend struct {
	fs afero.Fs
}

func (b *syntheticBackend) Name() string { return SyntheticScheme }

func (b *syntheticBackend) SupportsColourSpace(c videoframe.ColourSpace) bool { return c.Valid() }

func (b *syntheticBackend) SupportsCodec(c videoframe.Codec) bool { return c.Valid() }

type syntheticSpec struct {
	frames int
	dims   videoframe.Dimensions
	fps    float64
	title  string
}

func parseSyntheticLocator(locator string) (syntheticSpec, error) {
	spec := syntheticSpec{
		dims: videoframe.Dimensions{W: defaultSyntheticWidth, H: defaultSyntheticHeight},
		fps:  defaultSyntheticFPS,
	}

	u, err := url.Parse(locator)
	if err != nil {
		return spec, xerror.Errorf("%w: %s: %v", videoerr.ErrInvalidLocator, locator, err)
	}
	if u.Scheme != SyntheticScheme {
		return spec, xerror.Errorf("%w: scheme %q is unsupported, use %s://", videoerr.ErrInvalidLocator, u.Scheme, SyntheticScheme)
	}

	switch host := strings.ToLower(u.Host); host {
	case "live":
		spec.frames = -1
	default:
		n, err := strconv.Atoi(host)
		if err != nil || n < 0 {
			return spec, xerror.Errorf("%w: frame count %q", videoerr.ErrInvalidLocator, host)
		}
		spec.frames = n
	}

	q := u.Query()
	positive := func(key string, dst *int) error {
		v := q.Get(key)
		if len(v) == 0 {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxRawDimension {
			return xerror.Errorf("%w: %s=%q", videoerr.ErrInvalidLocator, key, v)
		}
		*dst = n
		return nil
	}
	if err := positive("width", &spec.dims.W); err != nil {
		return spec, err
	}
	if err := positive("height", &spec.dims.H); err != nil {
		return spec, err
	}
	if v := q.Get("fps"); len(v) > 0 {
		fps, err := strconv.ParseFloat(v, 64)
		if err != nil || fps <= 0 {
			return spec, xerror.Errorf("%w: fps=%q", videoerr.ErrInvalidLocator, v)
		}
		spec.fps = fps
	}
	spec.title = q.Get("title")
	return spec, nil
}

func (b *syntheticBackend) OpenReader(cancel context.Context, locator string, colour videoframe.ColourSpace) (Reader, error) {
	if !b.SupportsColourSpace(colour) {
		return nil, xerror.Errorf("%w: %d", videoerr.ErrUnsupportedColourSpace, int(colour))
	}
	spec, err := parseSyntheticLocator(locator)
	if err != nil {
		return nil, err
	}
	select {
	case <-cancel.Done():
		return nil, xerror.Errorf("%w: connection to %s cancelled", videoerr.ErrInvalidLocator, locator)
	default:
	}

	face, err := loadFace(spec.dims)
	if err != nil {
		return nil, err
	}
	return &syntheticReader{
		spec:   spec,
		colour: colour,
		canvas: renderBaseFrameCanvas(spec.dims),
		face:   face,
	}, nil
}

func (b *syntheticBackend) OpenWriter(
	path string, codec videoframe.Codec, fps float64, dims videoframe.Dimensions, colour videoframe.ColourSpace,
) (Writer, error) {
	if !b.SupportsCodec(codec) {
		return nil, xerror.Errorf("%w: %d", videoerr.ErrUnsupportedCodec, int(codec))
	}
	return createRawContainer(b.fs, path, rawHeader{
		codec: codec, colour: colour, dims: dims, fps: fps,
	})
}

func (b *syntheticBackend) Inspect(path string) (Info, error) {
	return inspectRawContainer(b.fs, path)
}

type syntheticReader struct {
	mu     sync.Mutex
	spec   syntheticSpec
	colour videoframe.ColourSpace
	canvas *image.RGBA
	face   font.Face
	next   int
	roi    image.Rectangle
	closed bool
}

func (r *syntheticReader) Colour() videoframe.ColourSpace { return r.colour }

func (r *syntheticReader) FrameRate() float64 { return r.spec.fps }

func (r *syntheticReader) FrameCount() int { return r.spec.frames }

func (r *syntheticReader) FrameDimensions() videoframe.Dimensions {
	r.mu.Lock()
	defer r.mu.Unlock()
	rect := r.region()
	return videoframe.Dimensions{W: rect.Dx(), H: rect.Dy()}
}

func (r *syntheticReader) region() image.Rectangle {
	if r.roi.Empty() {
		return r.canvas.Bounds()
	}
	return r.roi
}

func (r *syntheticReader) SetSubFrame(rect image.Rectangle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rect.Empty() || !rect.In(r.canvas.Bounds()) {
		return xerror.Errorf("%w: sub-frame %v outside of %v", videoerr.ErrConfiguration, rect, r.canvas.Bounds())
	}
	r.roi = rect
	return nil
}

func (r *syntheticReader) FullFrame() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roi = image.Rectangle{}
}

func (r *syntheticReader) Read() (videoframe.Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return videoframe.Frame{}, videoerr.ErrSourceLost
	}
	if r.spec.frames >= 0 && r.next >= r.spec.frames {
		return videoframe.Frame{}, videoerr.ErrEndOfStream
	}

	img := cloneImage(r.canvas)
	label := strconv.Itoa(r.next)
	if len(r.spec.title) > 0 {
		label = r.spec.title + " " + label
	}
	drawText(img, r.face, 2, label)
	r.next++

	rect := r.region()
	sub := img.SubImage(rect).(*image.RGBA)
	dims := videoframe.Dimensions{W: rect.Dx(), H: rect.Dy()}
	return videoframe.New(r.colour, dims, convertRGBA(sub, r.colour))
}

func (r *syntheticReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

var (
	fontOnce sync.Once
	fontFace *truetype.Font
	fontErr  error
)

func loadFace(dims videoframe.Dimensions) (font.Face, error) {
	fontOnce.Do(func() {
		fontFace, fontErr = freetype.ParseFont(goregular.TTF)
	})
	if fontErr != nil {
		return nil, xerror.Errorf("unable to load synthetic frame font: %w", fontErr)
	}
	size := math.Max(6, float64(dims.H)/6)
	return truetype.NewFace(fontFace, &truetype.Options{
		Size:    size,
		Hinting: font.HintingFull,
	}), nil
}

func renderBaseFrameCanvas(dims videoframe.Dimensions) *image.RGBA {
	w, h := dims.W, dims.H
	hw, hh := float64(w)/2, float64(h)/2
	r := math.Min(hw, hh) / 2
	θ := 2 * math.Pi / 3
	cr := &circle{hw - r*math.Sin(0), hh - r*math.Cos(0), r * 1.5}
	cg := &circle{hw - r*math.Sin(θ), hh - r*math.Cos(θ), r * 1.5}
	cb := &circle{hw - r*math.Sin(-θ), hh - r*math.Cos(-θ), r * 1.5}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.SetRGBA(x, y, color.RGBA{
				cr.Brightness(float64(x), float64(y)),
				cg.Brightness(float64(x), float64(y)),
				cb.Brightness(float64(x), float64(y)),
				255,
			})
		}
	}
	return img
}

func cloneImage(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, src, b.Min, draw.Src)
	return dst
}

func drawText(canvas *image.RGBA, face font.Face, x int, text string) {
	drawer := &font.Drawer{
		Dst:  canvas,
		Src:  image.White,
		Face: face,
	}
	ascent := face.Metrics().Ascent
	drawer.Dot = fixed.Point26_6{X: fixed.I(x), Y: ascent + fixed.I(1)}
	drawer.DrawString(text)
}

type circle struct {
	X, Y, R float64
}

func (c *circle) Brightness(x, y float64) uint8 {
	var dx, dy float64 = c.X - x, c.Y - y
	d := math.Sqrt(dx*dx+dy*dy) / c.R
	if d > 1 {
		return 0
	}
	return 255
}
