package videobackend

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"os"
	"sync"

	"github.com/qianqian121/GIFT-Grab/pkg/video/videoerr"
	"github.com/qianqian121/GIFT-Grab/pkg/video/videoframe"
	"github.com/spf13/afero"
	"github.com/tauraamui/xerror"
)

// The raw container is a 14 byte header followed by frames, each stored
// as a little endian uint32 length, the pixel bytes and a two byte
// trailer. It exists so synthetic recordings can be inspected without an
// OpenCV build carrying the requested codec.
//
//	magic[4] "GGRW" | codec u8 | colour u8 | width u16 | height u16 | fps f32
var rawMagic = [4]byte{'G', 'G', 'R', 'W'}

var rawFrameTrailer = [2]byte{0x13, 0x31}

const rawHeaderSize = 14

// maxRawDimension is the widest or tallest frame the u16 header fields hold.
const maxRawDimension = math.MaxUint16

type rawHeader struct {
	codec  videoframe.Codec
	colour videoframe.ColourSpace
	dims   videoframe.Dimensions
	fps    float64
}

func (h rawHeader) marshal() []byte {
	b := make([]byte, rawHeaderSize)
	copy(b[:4], rawMagic[:])
	b[4] = byte(h.codec)
	b[5] = byte(h.colour)
	binary.LittleEndian.PutUint16(b[6:8], uint16(h.dims.W))
	binary.LittleEndian.PutUint16(b[8:10], uint16(h.dims.H))
	binary.LittleEndian.PutUint32(b[10:14], math.Float32bits(float32(h.fps)))
	return b
}

func unmarshalRawHeader(b []byte) (rawHeader, error) {
	if len(b) < rawHeaderSize || [4]byte{b[0], b[1], b[2], b[3]} != rawMagic {
		return rawHeader{}, errors.New("missing raw container header")
	}
	return rawHeader{
		codec:  videoframe.Codec(b[4]),
		colour: videoframe.ColourSpace(b[5]),
		dims: videoframe.Dimensions{
			W: int(binary.LittleEndian.Uint16(b[6:8])),
			H: int(binary.LittleEndian.Uint16(b[8:10])),
		},
		fps: float64(math.Float32frombits(binary.LittleEndian.Uint32(b[10:14]))),
	}, nil
}

type rawContainerWriter struct {
	mu     sync.Mutex
	file   afero.File
	buf    *bufio.Writer
	header rawHeader
}

func createRawContainer(fs afero.Fs, path string, header rawHeader) (Writer, error) {
	if d := header.dims; d.W <= 0 || d.H <= 0 || d.W > maxRawDimension || d.H > maxRawDimension {
		return nil, xerror.Errorf("%w: raw container cannot hold %dx%d frames", videoerr.ErrConfiguration, d.W, d.H)
	}
	file, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return nil, xerror.Errorf("%w: %s: %v", videoerr.ErrUnwritablePath, path, err)
	}
	w := &rawContainerWriter{file: file, buf: bufio.NewWriter(file), header: header}
	if _, err := w.buf.Write(header.marshal()); err != nil {
		file.Close()
		return nil, xerror.Errorf("unable to write raw container header: %w", err)
	}
	return w, nil
}

func (w *rawContainerWriter) Write(frame videoframe.Frame) error {
	if frame.Colour() != w.header.colour || frame.Dimensions() != w.header.dims {
		return xerror.Errorf(
			"%w: writer expects %s %dx%d, got %s %dx%d", videoerr.ErrConfiguration,
			w.header.colour, w.header.dims.W, w.header.dims.H,
			frame.Colour(), frame.Dimensions().W, frame.Dimensions().H,
		)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var length [4]byte
	binary.LittleEndian.PutUint32(length[:], uint32(frame.Len()))
	for _, chunk := range [][]byte{length[:], frame.Data(), rawFrameTrailer[:]} {
		if _, err := w.buf.Write(chunk); err != nil {
			return xerror.Errorf("unable to write frame to raw container: %w", err)
		}
	}
	return nil
}

func (w *rawContainerWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return xerror.Errorf("unable to flush raw container: %w", err)
	}
	return w.file.Close()
}

func inspectRawContainer(fs afero.Fs, path string) (Info, error) {
	file, err := fs.Open(path)
	if err != nil {
		return Info{}, xerror.Errorf("%w: %s: %v", videoerr.ErrInvalidLocator, path, err)
	}
	defer file.Close()

	r := bufio.NewReader(file)
	hb := make([]byte, rawHeaderSize)
	if _, err := io.ReadFull(r, hb); err != nil {
		return Info{}, xerror.Errorf("unable to read raw container header: %w", err)
	}
	header, err := unmarshalRawHeader(hb)
	if err != nil {
		return Info{}, xerror.Errorf("%s: %w", path, err)
	}

	info := Info{FrameRate: header.fps, Dimensions: header.dims}
	var length [4]byte
	for {
		if _, err := io.ReadFull(r, length[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return info, nil
			}
			return info, xerror.Errorf("truncated raw container after %d frames: %w", info.Frames, err)
		}
		n := int64(binary.LittleEndian.Uint32(length[:]))
		if _, err := io.CopyN(io.Discard, r, n); err != nil {
			return info, xerror.Errorf("truncated raw container after %d frames: %w", info.Frames, err)
		}
		var trailer [2]byte
		if _, err := io.ReadFull(r, trailer[:]); err != nil || trailer != rawFrameTrailer {
			return info, xerror.Errorf("raw container frame %d missing trailing suffix", info.Frames)
		}
		info.Frames++
	}
}
