package videoframe

import (
	"strings"

	"github.com/qianqian121/GIFT-Grab/pkg/video/videoerr"
	"github.com/tauraamui/xerror"
)

type ColourSpace int

const (
	BGRA ColourSpace = iota + 1
	I420
	UYVY
	BGR24
)

var colourSpaceNames = map[ColourSpace]string{
	BGRA:  "BGRA",
	I420:  "I420",
	UYVY:  "UYVY",
	BGR24: "BGR24",
}

func (c ColourSpace) String() string {
	if n, ok := colourSpaceNames[c]; ok {
		return n
	}
	return "UNKNOWN"
}

func (c ColourSpace) Valid() bool {
	_, ok := colourSpaceNames[c]
	return ok
}

// BufferLength is the exact byte size of a frame of dims in this colour
// space. I420 chroma planes are rounded up for odd dimensions.
func (c ColourSpace) BufferLength(dims Dimensions) int {
	switch c {
	case BGRA:
		return 4 * dims.Area()
	case BGR24:
		return 3 * dims.Area()
	case UYVY:
		return 2 * dims.Area()
	case I420:
		cw, ch := (dims.W+1)/2, (dims.H+1)/2
		return dims.Area() + 2*cw*ch
	}
	return 0
}

func ParseColourSpace(s string) (ColourSpace, error) {
	for c, n := range colourSpaceNames {
		if strings.EqualFold(n, s) {
			return c, nil
		}
	}
	return 0, xerror.Errorf("%w: %q", videoerr.ErrUnsupportedColourSpace, s)
}
