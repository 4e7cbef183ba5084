package configdef

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/qianqian121/GIFT-Grab/pkg/video/videoframe"
	"github.com/qianqian121/GIFT-Grab/pkg/video/videosource"
	"github.com/qianqian121/GIFT-Grab/pkg/video/videotarget"
	"gopkg.in/dealancer/validate.v2"
)

type SubFrame struct {
	X      int `json:"x" yaml:"x"`
	Y      int `json:"y" yaml:"y"`
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

func (s SubFrame) Rect() image.Rectangle {
	return image.Rect(s.X, s.Y, s.X+s.Width, s.Y+s.Height)
}

type Source struct {
	Locator                string    `json:"locator" yaml:"locator" validate:"empty=false"`
	Colour                 string    `json:"colour" yaml:"colour"`
	Pace                   bool      `json:"pace" yaml:"pace"`
	MaxConsecutiveFailures int       `json:"max_consecutive_failures" yaml:"max_consecutive_failures"`
	SubFrame               *SubFrame `json:"sub_frame,omitempty" yaml:"sub_frame,omitempty"`
}

type Target struct {
	Codec     string  `json:"codec" yaml:"codec"`
	Path      string  `json:"path" yaml:"path" validate:"empty=false"`
	FrameRate float64 `json:"frame_rate" yaml:"frame_rate"`
	Queued    bool    `json:"queued" yaml:"queued"`
	QueueSize int     `json:"queue_size" yaml:"queue_size" validate:"gte=0 & lte=4096"`
	Overflow  string  `json:"overflow" yaml:"overflow"`
}

type Recording struct {
	Title    string `json:"title" yaml:"title" validate:"empty=false"`
	Disabled bool   `json:"disabled" yaml:"disabled"`
	Source   Source `json:"source" yaml:"source"`
	Target   Target `json:"target" yaml:"target"`
}

type Values struct {
	Debug      bool        `json:"debug" yaml:"debug"`
	Backend    string      `json:"backend" yaml:"backend"`
	Catalog    string      `json:"catalog" yaml:"catalog"`
	Recordings []Recording `json:"recordings" yaml:"recordings"`
}

// RunValidate runs the field validators first and the checks spanning
// several fields after.
func (v Values) RunValidate() error {
	if err := validate.Validate(&v); err != nil {
		return err
	}
	return v.Validate()
}

func (v Values) Validate() error {
	const validationErrorHeader = "validation failed: %w"
	if hasDupRecordingTitles(v.Recordings) {
		return fmt.Errorf(validationErrorHeader, errors.New("recording titles must be unique"))
	}
	switch strings.ToLower(v.Backend) {
	case "", "opencv", "synthetic", "mock":
	default:
		return fmt.Errorf(validationErrorHeader, fmt.Errorf("unknown backend %q", v.Backend))
	}
	for _, r := range v.Recordings {
		if err := r.validate(); err != nil {
			return fmt.Errorf(validationErrorHeader, fmt.Errorf("recording %q: %w", r.Title, err))
		}
	}
	return nil
}

func (r Recording) validate() error {
	if len(r.Source.Colour) > 0 {
		if _, err := videoframe.ParseColourSpace(r.Source.Colour); err != nil {
			return err
		}
	}
	if len(r.Target.Codec) > 0 {
		if _, err := videoframe.ParseCodec(r.Target.Codec); err != nil {
			return err
		}
	}
	if sf := r.Source.SubFrame; sf != nil && (sf.X < 0 || sf.Y < 0 || sf.Width < 1 || sf.Height < 1) {
		return fmt.Errorf("invalid sub frame %+v", *sf)
	}
	if r.Target.FrameRate < 0 {
		return fmt.Errorf("frame rate must be positive, got %v", r.Target.FrameRate)
	}
	if _, err := parseOverflow(r.Target.Overflow); err != nil {
		return err
	}
	return nil
}

func hasDupRecordingTitles(recordings []Recording) bool {
	seen := map[string]struct{}{}
	for _, r := range recordings {
		if _, ok := seen[r.Title]; ok {
			return true
		}
		seen[r.Title] = struct{}{}
	}
	return false
}

// ColourSpace falls back to BGRA for an unset colour.
func (s Source) ColourSpace() videoframe.ColourSpace {
	c, err := videoframe.ParseColourSpace(s.Colour)
	if err != nil {
		return videoframe.BGRA
	}
	return c
}

func (s Source) Settings() videosource.Settings {
	return videosource.Settings{
		Pace:                   s.Pace,
		MaxConsecutiveFailures: s.MaxConsecutiveFailures,
	}
}

// CodecValue falls back to Xvid for an unset codec.
func (t Target) CodecValue() videoframe.Codec {
	c, err := videoframe.ParseCodec(t.Codec)
	if err != nil {
		return videoframe.Xvid
	}
	return c
}

func (t Target) Settings() videotarget.Settings {
	s := videotarget.Settings{QueueSize: t.QueueSize}
	if t.Queued {
		s.Policy = videotarget.Queued
	}
	s.Overflow, _ = parseOverflow(t.Overflow)
	return s
}

func parseOverflow(s string) (videotarget.Overflow, error) {
	switch strings.ToLower(s) {
	case "", "block":
		return videotarget.Block, nil
	case "drop_newest":
		return videotarget.DropNewest, nil
	case "drop_oldest":
		return videotarget.DropOldest, nil
	}
	return videotarget.Block, fmt.Errorf("unknown overflow policy %q", s)
}
