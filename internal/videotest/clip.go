// Package videotest builds real video clips for tests which need the
// OpenCV backend to decode something.
package videotest

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/afero"
	"github.com/tauraamui/xerror"
	"gocv.io/x/gocv"
)

const rootDirName = "giftgrab-test"

// MakeRootPath creates and returns a fresh scratch directory on fs.
func MakeRootPath(fs afero.Fs) (string, error) {
	root, err := afero.TempDir(fs, "", rootDirName)
	if err != nil {
		return "", xerror.Errorf("unable to create test root dir: %w", err)
	}
	return root, nil
}

// WriteMJPGClip encodes frames numbered BGR frames of width x height into
// an MJPG avi at path. MJPG ships with every OpenCV build, callers can
// still skip when ErrEncoderUnavailable is returned.
func WriteMJPGClip(path string, frames int, fps float64, width, height int) error {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return err
	}
	vw, err := gocv.VideoWriterFile(path, "MJPG", fps, width, height, true)
	if err != nil {
		return xerror.Errorf("%w: %v", ErrEncoderUnavailable, err)
	}
	defer vw.Close()
	if !vw.IsOpened() {
		return ErrEncoderUnavailable
	}

	for i := 0; i < frames; i++ {
		mat := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
		shade := uint8(i % 256)
		gocv.Rectangle(&mat, image.Rect(0, 0, width, height), color.RGBA{shade, 255 - shade, 128, 0}, -1)
		gocv.PutText(
			&mat, strconv.Itoa(i), image.Pt(2, height/2),
			gocv.FontHersheyPlain, 1, color.RGBA{255, 255, 255, 0}, 1,
		)
		err := vw.Write(mat)
		mat.Close()
		if err != nil {
			return xerror.Errorf("unable to write test clip frame %d: %w", i, err)
		}
	}
	return nil
}

var ErrEncoderUnavailable = xerror.New("MJPG encoder unavailable in this OpenCV build")
