package videobackend

import "gocv.io/x/gocv"

func OverloadOpenVideoCapture(overload func(addr string) (*gocv.VideoCapture, error)) func() {
	openVideoCaptureRef := openVideoCapture
	openVideoCapture = overload
	return func() { openVideoCapture = openVideoCaptureRef }
}

func OverloadOpenVideoWriter(overload func(filename, codec string, fps float64, width, height int, isColor bool) (*gocv.VideoWriter, error)) func() {
	openVideoWriterRef := openVideoWriter
	openVideoWriter = overload
	return func() { openVideoWriter = openVideoWriterRef }
}

var ConvertRGBA = convertRGBA
