package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/qianqian121/GIFT-Grab/pkg/video/videotarget"
	"gorm.io/gorm"
)

func init() {
	registerForAutomigration(&Recording{})
}

// Recording is one finalised output file.
type Recording struct {
	gorm.Model
	UUID       string `gorm:"uniqueIndex"`
	Source     string
	Path       string `gorm:"index"`
	Codec      string
	Colour     string
	FrameRate  float64
	Frames     uint64
	Dropped    uint64
	Failed     uint64
	Width      int
	Height     int
	StartedAt  time.Time
	FinishedAt time.Time
}

func (r *Recording) BeforeCreate(tx *gorm.DB) error {
	if len(r.UUID) == 0 {
		r.UUID = uuid.NewString()
	}
	return nil
}

func (r Recording) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

func NewRecording(source string, s videotarget.Summary) Recording {
	return Recording{
		UUID:       s.ID,
		Source:     source,
		Path:       s.Path,
		Codec:      s.Codec.String(),
		Colour:     s.Colour.String(),
		FrameRate:  s.FrameRate,
		Frames:     s.Frames,
		Dropped:    s.Dropped,
		Failed:     s.Failed,
		Width:      s.Dimensions.W,
		Height:     s.Dimensions.H,
		StartedAt:  s.Started,
		FinishedAt: s.Finished,
	}
}
