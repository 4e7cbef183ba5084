package configdef_test

import (
	"encoding/json"
	"image"
	"testing"

	"github.com/matryer/is"
	"github.com/qianqian121/GIFT-Grab/pkg/configdef"
	"github.com/qianqian121/GIFT-Grab/pkg/video/videoframe"
	"github.com/qianqian121/GIFT-Grab/pkg/video/videotarget"
	"gopkg.in/yaml.v3"
)

func TestValidateEmptyConfigPasses(t *testing.T) {
	is := is.New(t)
	config := configdef.Values{}
	is.NoErr(json.Unmarshal([]byte(`{}`), &config))
	is.NoErr(config.RunValidate())
}

func TestValidatePopulatedConfigPassesValidation(t *testing.T) {
	is := is.New(t)
	body := `{
			"backend": "synthetic",
			"recordings": [
				{
					"title": "Theatre",
					"source": {"locator": "synthetic://live", "colour": "I420", "pace": true},
					"target": {"codec": "HEVC", "path": "/tmp/theatre.mp4", "frame_rate": 25, "queued": true, "overflow": "drop_oldest"}
				}
			]
		}`
	config := configdef.Values{}
	is.NoErr(json.Unmarshal([]byte(body), &config))
	is.NoErr(config.RunValidate())

	rec := config.Recordings[0]
	is.Equal(rec.Source.ColourSpace(), videoframe.I420)
	is.Equal(rec.Target.CodecValue(), videoframe.HEVC)
	is.True(rec.Source.Settings().Pace)
	is.Equal(rec.Target.Settings(), videotarget.Settings{Policy: videotarget.Queued, Overflow: videotarget.DropOldest})
}

func TestValidateYAMLConfig(t *testing.T) {
	is := is.New(t)
	body := `
recordings:
  - title: Endoscope
    source:
      locator: /dev/video0
      sub_frame: {x: 10, y: 20, width: 640, height: 480}
    target:
      path: /tmp/endoscope.avi
`
	config := configdef.Values{}
	is.NoErr(yaml.Unmarshal([]byte(body), &config))
	is.NoErr(config.RunValidate())
	is.Equal(config.Recordings[0].Source.SubFrame.Rect(), image.Rect(10, 20, 650, 500))
	is.Equal(config.Recordings[0].Source.ColourSpace(), videoframe.BGRA)
	is.Equal(config.Recordings[0].Target.CodecValue(), videoframe.Xvid)
}

func TestValidatePopulatedConfigFailsValidationForMissingLocator(t *testing.T) {
	is := is.New(t)
	body := `{"recordings": [{"title": "NotBlank", "target": {"path": "/tmp/a.avi"}}]}`
	config := configdef.Values{}
	is.NoErr(json.Unmarshal([]byte(body), &config))
	is.Equal(config.RunValidate().Error(), `Validation error in field "Locator" of type "string" using validator "empty=false"`)
}

func TestValidatePopulatedConfigFailsValidationForNonUniqueTitles(t *testing.T) {
	is := is.New(t)
	body := `{"recordings": [
			{"title": "Same", "source": {"locator": "0"}, "target": {"path": "/tmp/a.avi"}},
			{"title": "Same", "source": {"locator": "1"}, "target": {"path": "/tmp/b.avi"}}
		]}`
	config := configdef.Values{}
	is.NoErr(json.Unmarshal([]byte(body), &config))
	is.Equal(config.RunValidate().Error(), "validation failed: recording titles must be unique")
}

func TestValidateFailsForUnknownEnumValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"codec", `{"recordings": [{"title": "a", "source": {"locator": "0"}, "target": {"path": "/a.avi", "codec": "h264"}}]}`},
		{"colour", `{"recordings": [{"title": "a", "source": {"locator": "0", "colour": "rgb"}, "target": {"path": "/a.avi"}}]}`},
		{"overflow", `{"recordings": [{"title": "a", "source": {"locator": "0"}, "target": {"path": "/a.avi", "overflow": "spill"}}]}`},
		{"frame rate", `{"recordings": [{"title": "a", "source": {"locator": "0"}, "target": {"path": "/a.avi", "frame_rate": -1}}]}`},
		{"backend", `{"backend": "gstreamer"}`},
		{"sub frame", `{"recordings": [{"title": "a", "source": {"locator": "0", "sub_frame": {"width": 0, "height": 3}}, "target": {"path": "/a.avi"}}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			config := configdef.Values{}
			is.NoErr(json.Unmarshal([]byte(tt.body), &config))
			is.True(config.RunValidate() != nil)
		})
	}
}
