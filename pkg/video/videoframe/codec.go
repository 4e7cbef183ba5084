package videoframe

import (
	"strings"

	"github.com/qianqian121/GIFT-Grab/pkg/video/videoerr"
	"github.com/tauraamui/xerror"
)

type Codec int

const (
	Xvid Codec = iota + 1
	HEVC
	VP9
	MJPG
)

type codecInfo struct {
	name     string
	fourcc   string
	filetype string
}

var codecs = map[Codec]codecInfo{
	Xvid: {name: "Xvid", fourcc: "XVID", filetype: "avi"},
	HEVC: {name: "HEVC", fourcc: "hev1", filetype: "mp4"},
	VP9:  {name: "VP9", fourcc: "VP90", filetype: "webm"},
	MJPG: {name: "MJPG", fourcc: "MJPG", filetype: "avi"},
}

func (c Codec) String() string {
	if i, ok := codecs[c]; ok {
		return i.name
	}
	return "UNKNOWN"
}

func (c Codec) Valid() bool {
	_, ok := codecs[c]
	return ok
}

// FourCC is the four character code handed to the encoder.
func (c Codec) FourCC() string { return codecs[c].fourcc }

// FileType is the container extension, without the dot, that output
// paths for this codec must carry.
func (c Codec) FileType() string { return codecs[c].filetype }

func ParseCodec(s string) (Codec, error) {
	for c, i := range codecs {
		if strings.EqualFold(i.name, s) {
			return c, nil
		}
	}
	return 0, xerror.Errorf("%w: %q", videoerr.ErrUnsupportedCodec, s)
}
