package videobackend_test

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/matryer/is"
	"github.com/qianqian121/GIFT-Grab/pkg/video/videobackend"
	"github.com/qianqian121/GIFT-Grab/pkg/video/videoerr"
	"github.com/qianqian121/GIFT-Grab/pkg/video/videoframe"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveBackend(t *testing.T) {
	is := is.New(t)
	is.Equal(videobackend.Resolve("synthetic").Name(), "synthetic")
	is.Equal(videobackend.Resolve("mock").Name(), "synthetic")
	is.Equal(videobackend.Resolve("").Name(), "opencv")
	is.Equal(videobackend.Default().Name(), "opencv")
}

func TestSyntheticReaderProducesAnnouncedFrameCountThenEndOfStream(t *testing.T) {
	is := is.New(t)
	backend := videobackend.Synthetic(afero.NewMemMapFs())

	r, err := backend.OpenReader(context.Background(), "synthetic://12?width=32&height=24&fps=25", videoframe.BGRA)
	is.NoErr(err)
	defer r.Close()

	is.Equal(r.FrameCount(), 12)
	is.Equal(r.FrameRate(), 25.0)
	is.Equal(r.FrameDimensions(), videoframe.Dimensions{W: 32, H: 24})

	for i := 0; i < 12; i++ {
		f, err := r.Read()
		is.NoErr(err)
		is.Equal(f.Colour(), videoframe.BGRA)
		is.Equal(f.Len(), 32*24*4)
	}

	_, err = r.Read()
	is.True(errors.Is(err, videoerr.ErrEndOfStream))
	is.True(videoerr.Unrecoverable(err))
}

func TestSyntheticReaderFrameSizesPerColourSpace(t *testing.T) {
	backend := videobackend.Synthetic(afero.NewMemMapFs())
	tests := []struct {
		colour videoframe.ColourSpace
		length int
	}{
		{videoframe.BGRA, 10 * 6 * 4},
		{videoframe.BGR24, 10 * 6 * 3},
		{videoframe.UYVY, 10 * 6 * 2},
		{videoframe.I420, 10*6 + 2*5*3},
	}
	for _, tt := range tests {
		t.Run(tt.colour.String(), func(t *testing.T) {
			r, err := backend.OpenReader(context.Background(), "synthetic://1?width=10&height=6", tt.colour)
			require.NoError(t, err)
			f, err := r.Read()
			require.NoError(t, err)
			assert.Equal(t, tt.length, f.Len())
		})
	}
}

func TestSyntheticReaderRejectsBadLocators(t *testing.T) {
	backend := videobackend.Synthetic(afero.NewMemMapFs())
	for _, locator := range []string{
		"file.avi",
		"synthetic://ten",
		"synthetic://10?width=-1",
		"synthetic://10?width=70000",
		"synthetic://10?height=65536",
		"synthetic://10?fps=0",
		"http://10",
	} {
		_, err := backend.OpenReader(context.Background(), locator, videoframe.BGRA)
		assert.Truef(t, errors.Is(err, videoerr.ErrInvalidLocator), "locator %q: %v", locator, err)
		assert.Truef(t, errors.Is(err, videoerr.ErrConfiguration), "locator %q", locator)
	}
}

func TestSyntheticReaderLiveLocatorIsUnbounded(t *testing.T) {
	is := is.New(t)
	backend := videobackend.Synthetic(afero.NewMemMapFs())
	r, err := backend.OpenReader(context.Background(), "synthetic://live?width=8&height=8", videoframe.BGRA)
	is.NoErr(err)
	is.Equal(r.FrameCount(), -1)
	for i := 0; i < 50; i++ {
		_, err := r.Read()
		is.NoErr(err)
	}
}

func TestSyntheticReaderSubFrame(t *testing.T) {
	is := is.New(t)
	backend := videobackend.Synthetic(afero.NewMemMapFs())
	r, err := backend.OpenReader(context.Background(), "synthetic://3?width=40&height=30", videoframe.BGRA)
	is.NoErr(err)

	is.True(r.SetSubFrame(image.Rect(30, 20, 50, 40)) != nil) // outside the frame
	is.NoErr(r.SetSubFrame(image.Rect(10, 5, 30, 15)))
	is.Equal(r.FrameDimensions(), videoframe.Dimensions{W: 20, H: 10})

	f, err := r.Read()
	is.NoErr(err)
	is.Equal(f.Dimensions(), videoframe.Dimensions{W: 20, H: 10})

	r.FullFrame()
	f, err = r.Read()
	is.NoErr(err)
	is.Equal(f.Dimensions(), videoframe.Dimensions{W: 40, H: 30})
}

func TestSyntheticReaderAfterCloseReportsSourceLost(t *testing.T) {
	is := is.New(t)
	backend := videobackend.Synthetic(afero.NewMemMapFs())
	r, err := backend.OpenReader(context.Background(), "synthetic://3?width=8&height=8", videoframe.BGRA)
	is.NoErr(err)
	is.NoErr(r.Close())
	_, err = r.Read()
	is.True(errors.Is(err, videoerr.ErrSourceLost))
}

func TestSyntheticOpenReaderWithCancelledContext(t *testing.T) {
	is := is.New(t)
	backend := videobackend.Synthetic(afero.NewMemMapFs())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := backend.OpenReader(ctx, "synthetic://3", videoframe.BGRA)
	is.True(err != nil)
}

func TestRawContainerWriteThenInspect(t *testing.T) {
	is := is.New(t)
	fs := afero.NewMemMapFs()
	backend := videobackend.Synthetic(fs)
	dims := videoframe.Dimensions{W: 16, H: 8}

	w, err := backend.OpenWriter("/out/clip.avi", videoframe.Xvid, 30, dims, videoframe.BGRA)
	is.NoErr(err)

	for i := 0; i < 7; i++ {
		f, err := videoframe.New(videoframe.BGRA, dims, make([]byte, 16*8*4))
		is.NoErr(err)
		is.NoErr(w.Write(f))
	}
	is.NoErr(w.Close())

	info, err := backend.Inspect("/out/clip.avi")
	is.NoErr(err)
	is.Equal(info.Frames, 7)
	is.Equal(info.FrameRate, 30.0)
	is.Equal(info.Dimensions, dims)
}

func TestRawContainerRejectsMismatchedFrames(t *testing.T) {
	is := is.New(t)
	backend := videobackend.Synthetic(afero.NewMemMapFs())
	w, err := backend.OpenWriter("/clip.avi", videoframe.Xvid, 30, videoframe.Dimensions{W: 4, H: 4}, videoframe.BGRA)
	is.NoErr(err)
	defer w.Close()

	f, err := videoframe.New(videoframe.BGRA, videoframe.Dimensions{W: 2, H: 2}, make([]byte, 16))
	is.NoErr(err)
	is.True(w.Write(f) != nil)
}

func TestRawContainerRejectsDimensionsItCannotStore(t *testing.T) {
	fs := afero.NewMemMapFs()
	backend := videobackend.Synthetic(fs)
	for _, dims := range []videoframe.Dimensions{
		{W: 70000, H: 1},
		{W: 1, H: 65536},
		{W: 0, H: 4},
	} {
		w, err := backend.OpenWriter("/clip.avi", videoframe.Xvid, 30, dims, videoframe.BGRA)
		assert.Nil(t, w)
		assert.Truef(t, errors.Is(err, videoerr.ErrConfiguration), "dims %v: %v", dims, err)
	}

	exists, err := afero.Exists(fs, "/clip.avi")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestInspectMissingOrCorruptContainer(t *testing.T) {
	is := is.New(t)
	fs := afero.NewMemMapFs()
	backend := videobackend.Synthetic(fs)

	_, err := backend.Inspect("/missing.avi")
	is.True(errors.Is(err, videoerr.ErrInvalidLocator))

	is.NoErr(afero.WriteFile(fs, "/corrupt.avi", []byte("not a container at all"), 0666))
	_, err = backend.Inspect("/corrupt.avi")
	is.True(err != nil)
}

func TestConvertRGBAChannelOrder(t *testing.T) {
	is := is.New(t)
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 10, 20, 30, 255
	}

	bgra := videobackend.ConvertRGBA(img, videoframe.BGRA)
	is.Equal(bgra[:4], []byte{30, 20, 10, 255})

	bgr := videobackend.ConvertRGBA(img, videoframe.BGR24)
	is.Equal(bgr[:3], []byte{30, 20, 10})

	i420 := videobackend.ConvertRGBA(img, videoframe.I420)
	is.Equal(len(i420), 2*2+2)
}
