package videobackend

import (
	"context"
	"image"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/qianqian121/GIFT-Grab/pkg/log"
	"github.com/qianqian121/GIFT-Grab/pkg/video/videoerr"
	"github.com/qianqian121/GIFT-Grab/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
	"gocv.io/x/gocv"
)

type openCVBackend struct{}

func (b *openCVBackend) Name() string { return "opencv" }

// OpenCV decodes into BGR, so only colour spaces with a BGR conversion
// are offered. There is no BGR to UYVY conversion.
func (b *openCVBackend) SupportsColourSpace(c videoframe.ColourSpace) bool {
	switch c {
	case videoframe.BGRA, videoframe.I420, videoframe.BGR24:
		return true
	}
	return false
}

func (b *openCVBackend) SupportsCodec(c videoframe.Codec) bool {
	return c.Valid()
}

func (b *openCVBackend) OpenReader(cancel context.Context, locator string, colour videoframe.ColourSpace) (Reader, error) {
	if !b.SupportsColourSpace(colour) {
		return nil, xerror.Errorf("%w: %s not supported by %s backend", videoerr.ErrUnsupportedColourSpace, colour, b.Name())
	}
	if len(strings.TrimSpace(locator)) == 0 {
		return nil, xerror.Errorf("%w: empty locator", videoerr.ErrInvalidLocator)
	}

	isFile := looksLikeFile(locator)
	if isFile {
		if _, err := os.Stat(locator); err != nil {
			return nil, xerror.Errorf("%w: %s: %v", videoerr.ErrInvalidLocator, locator, err)
		}
	}

	r := openCVReader{colour: colour, isFile: isFile}
	if err := r.connect(cancel, locator); err != nil {
		return nil, err
	}
	return &r, nil
}

func looksLikeFile(locator string) bool {
	if strings.Contains(locator, "://") {
		return false
	}
	if _, err := strconv.Atoi(locator); err == nil {
		return false
	}
	return true
}

func (b *openCVBackend) OpenWriter(
	path string, codec videoframe.Codec, fps float64, dims videoframe.Dimensions, colour videoframe.ColourSpace,
) (Writer, error) {
	if !b.SupportsCodec(codec) {
		return nil, xerror.Errorf("%w: %d", videoerr.ErrUnsupportedCodec, int(codec))
	}
	if colour == videoframe.I420 && (dims.W%2 != 0 || dims.H%2 != 0) {
		return nil, xerror.Errorf("%w: I420 frames of %dx%d cannot be encoded", videoerr.ErrUnsupportedColourSpace, dims.W, dims.H)
	}

	vw, err := openVideoWriter(path, codec.FourCC(), fps, dims.W, dims.H, true)
	if err != nil {
		return nil, xerror.Errorf("%w: %s: %v", videoerr.ErrUnwritablePath, path, err)
	}
	if !vw.IsOpened() {
		vw.Close()
		return nil, xerror.Errorf("%w: encoder for %s unavailable", videoerr.ErrUnsupportedCodec, codec)
	}
	return &openCVWriter{vw: vw, dims: dims, colour: colour}, nil
}

func (b *openCVBackend) Inspect(path string) (Info, error) {
	vc, err := openVideoCapture(path)
	if err != nil {
		return Info{}, xerror.Errorf("%w: %s: %v", videoerr.ErrInvalidLocator, path, err)
	}
	defer vc.Close()

	return Info{
		Frames:    int(vc.Get(gocv.VideoCaptureFrameCount)),
		FrameRate: vc.Get(gocv.VideoCaptureFPS),
		Dimensions: videoframe.Dimensions{
			W: int(vc.Get(gocv.VideoCaptureFrameWidth)),
			H: int(vc.Get(gocv.VideoCaptureFrameHeight)),
		},
	}, nil
}

var openVideoCapture = func(addr string) (*gocv.VideoCapture, error) {
	return gocv.OpenVideoCapture(addr)
}

var readFromVideoConnection = func(vc *gocv.VideoCapture, mat *gocv.Mat) bool {
	if vc.IsOpened() {
		return vc.Read(mat)
	}
	return false
}

var openVideoWriter = func(filename, codec string, fps float64, width, height int, isColor bool) (*gocv.VideoWriter, error) {
	return gocv.VideoWriterFile(filename, codec, fps, width, height, isColor)
}

type openCVReader struct {
	mu     sync.Mutex
	vc     *gocv.VideoCapture
	colour videoframe.ColourSpace
	isFile bool
	fps    float64
	frames int
	full   videoframe.Dimensions
	roi    image.Rectangle
}

type openVideoStreamResult struct {
	vc  *gocv.VideoCapture
	err error
}

func openVideoStream(addr string, d chan openVideoStreamResult) {
	vc, err := openVideoCapture(addr)
	d <- openVideoStreamResult{vc: vc, err: err}
}

func (r *openCVReader) connect(cancel context.Context, addr string) error {
	connAndError := make(chan openVideoStreamResult, 1)
	go openVideoStream(addr, connAndError)
	select {
	case res := <-connAndError:
		if res.err != nil {
			return xerror.Errorf("%w: %s: %v", videoerr.ErrInvalidLocator, addr, res.err)
		}
		if !res.vc.IsOpened() {
			res.vc.Close()
			return xerror.Errorf("%w: unable to open %s", videoerr.ErrInvalidLocator, addr)
		}
		r.vc = res.vc
	case <-cancel.Done():
		go func() {
			if res := <-connAndError; res.vc != nil {
				res.vc.Close()
			}
		}()
		return xerror.Errorf("%w: connection to %s cancelled", videoerr.ErrInvalidLocator, addr)
	}

	r.fps = r.vc.Get(gocv.VideoCaptureFPS)
	r.frames = -1
	if r.isFile {
		r.frames = int(r.vc.Get(gocv.VideoCaptureFrameCount))
	}
	r.full = videoframe.Dimensions{
		W: int(r.vc.Get(gocv.VideoCaptureFrameWidth)),
		H: int(r.vc.Get(gocv.VideoCaptureFrameHeight)),
	}
	log.Debug("Opened [%s] %dx%d @ %.2f fps", addr, r.full.W, r.full.H, r.fps)
	return nil
}

func (r *openCVReader) Colour() videoframe.ColourSpace { return r.colour }

func (r *openCVReader) FrameRate() float64 { return r.fps }

func (r *openCVReader) FrameCount() int { return r.frames }

func (r *openCVReader) FrameDimensions() videoframe.Dimensions {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outputDimensions(r.region())
}

func (r *openCVReader) region() image.Rectangle {
	if r.roi.Empty() {
		return image.Rect(0, 0, r.full.W, r.full.H)
	}
	return r.roi
}

// I420 needs even sides, odd regions lose their last row or column.
func (r *openCVReader) outputDimensions(rect image.Rectangle) videoframe.Dimensions {
	d := videoframe.Dimensions{W: rect.Dx(), H: rect.Dy()}
	if r.colour == videoframe.I420 {
		d.W -= d.W % 2
		d.H -= d.H % 2
	}
	return d
}

func (r *openCVReader) SetSubFrame(rect image.Rectangle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	bounds := image.Rect(0, 0, r.full.W, r.full.H)
	if rect.Empty() || !rect.In(bounds) {
		return xerror.Errorf("%w: sub-frame %v outside of %v", videoerr.ErrConfiguration, rect, bounds)
	}
	if d := r.outputDimensions(rect); d.W == 0 || d.H == 0 {
		return xerror.Errorf("%w: sub-frame %v too small for %s", videoerr.ErrConfiguration, rect, r.colour)
	}
	r.roi = rect
	return nil
}

func (r *openCVReader) FullFrame() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roi = image.Rectangle{}
}

func (r *openCVReader) Read() (videoframe.Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	mat := gocv.NewMat()
	defer mat.Close()

	if !readFromVideoConnection(r.vc, &mat) {
		if !r.vc.IsOpened() {
			return videoframe.Frame{}, videoerr.ErrSourceLost
		}
		if r.isFile {
			return videoframe.Frame{}, videoerr.ErrEndOfStream
		}
		return videoframe.Frame{}, xerror.Errorf("%w: unable to read from video connection", videoerr.ErrDecode)
	}
	if mat.Empty() {
		return videoframe.Frame{}, xerror.Errorf("%w: empty frame", videoerr.ErrDecode)
	}

	rect := image.Rect(0, 0, mat.Cols(), mat.Rows())
	if !r.roi.Empty() {
		rect = r.roi.Intersect(rect)
	}
	dims := r.outputDimensions(rect)
	rect.Max = rect.Min.Add(image.Pt(dims.W, dims.H))

	region := mat.Region(rect)
	defer region.Close()

	converted := gocv.NewMat()
	defer converted.Close()
	switch r.colour {
	case videoframe.BGRA:
		gocv.CvtColor(region, &converted, gocv.ColorBGRToBGRA)
	case videoframe.I420:
		gocv.CvtColor(region, &converted, gocv.ColorBGRToYUVI420)
	default:
		region.CopyTo(&converted)
	}

	return videoframe.New(r.colour, dims, converted.ToBytes())
}

func (r *openCVReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.vc.Close()
}

type openCVWriter struct {
	mu     sync.Mutex
	vw     *gocv.VideoWriter
	dims   videoframe.Dimensions
	colour videoframe.ColourSpace
}

func (w *openCVWriter) Write(frame videoframe.Frame) error {
	if frame.Colour() != w.colour || frame.Dimensions() != w.dims {
		return xerror.Errorf(
			"%w: writer expects %s %dx%d, got %s %dx%d", videoerr.ErrConfiguration,
			w.colour, w.dims.W, w.dims.H, frame.Colour(), frame.Dimensions().W, frame.Dimensions().H,
		)
	}

	mat, err := matFromFrame(frame)
	if err != nil {
		return err
	}
	defer mat.Close()

	bgr := gocv.NewMat()
	defer bgr.Close()
	switch frame.Colour() {
	case videoframe.BGRA:
		gocv.CvtColor(mat, &bgr, gocv.ColorBGRAToBGR)
	case videoframe.I420:
		gocv.CvtColor(mat, &bgr, gocv.ColorYUVToBGRIYUV)
	case videoframe.UYVY:
		gocv.CvtColor(mat, &bgr, gocv.ColorYUVToBGRUYVY)
	default:
		mat.CopyTo(&bgr)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.vw.Write(bgr)
}

func matFromFrame(frame videoframe.Frame) (gocv.Mat, error) {
	d := frame.Dimensions()
	rows, mt := d.H, gocv.MatTypeCV8UC3
	switch frame.Colour() {
	case videoframe.BGRA:
		mt = gocv.MatTypeCV8UC4
	case videoframe.UYVY:
		mt = gocv.MatTypeCV8UC2
	case videoframe.I420:
		rows, mt = d.H*3/2, gocv.MatTypeCV8UC1
	}
	mat, err := gocv.NewMatFromBytes(rows, d.W, mt, frame.Data())
	if err != nil {
		return gocv.Mat{}, xerror.Errorf("unable to load frame into OpenCV mat: %w", err)
	}
	return mat, nil
}

func (w *openCVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.vw.Close()
}
