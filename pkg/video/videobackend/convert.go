package videobackend

import (
	"image"
	"image/color"

	"github.com/qianqian121/GIFT-Grab/pkg/video/videoframe"
)

// convertRGBA packs img into the byte layout of colour. It only backs
// the synthetic backend; decoded frames are converted by OpenCV.
func convertRGBA(img *image.RGBA, colour videoframe.ColourSpace) []byte {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dims := videoframe.Dimensions{W: w, H: h}
	out := make([]byte, colour.BufferLength(dims))

	at := func(x, y int) (r, g, bl uint8) {
		i := img.PixOffset(b.Min.X+x, b.Min.Y+y)
		return img.Pix[i], img.Pix[i+1], img.Pix[i+2]
	}

	switch colour {
	case videoframe.BGRA:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r, g, bl := at(x, y)
				o := (y*w + x) * 4
				out[o], out[o+1], out[o+2], out[o+3] = bl, g, r, 255
			}
		}
	case videoframe.BGR24:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r, g, bl := at(x, y)
				o := (y*w + x) * 3
				out[o], out[o+1], out[o+2] = bl, g, r
			}
		}
	case videoframe.UYVY:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				yy, cb, cr := color.RGBToYCbCr(at(x, y))
				o := (y*w + x) * 2
				if x%2 == 0 {
					out[o] = cb
				} else {
					out[o] = cr
				}
				out[o+1] = yy
			}
		}
	case videoframe.I420:
		cw, ch := (w+1)/2, (h+1)/2
		uPlane := out[w*h : w*h+cw*ch]
		vPlane := out[w*h+cw*ch:]
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				yy, cb, cr := color.RGBToYCbCr(at(x, y))
				out[y*w+x] = yy
				if x%2 == 0 && y%2 == 0 {
					uPlane[(y/2)*cw+x/2] = cb
					vPlane[(y/2)*cw+x/2] = cr
				}
			}
		}
	}
	return out
}
