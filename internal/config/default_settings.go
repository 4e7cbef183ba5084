package config

import "github.com/qianqian121/GIFT-Grab/pkg/configdef"

type defaultSettingKey uint

const (
	BACKEND    defaultSettingKey = 0x0
	COLOUR     defaultSettingKey = 0x1
	CODEC      defaultSettingKey = 0x2
	FRAMERATE  defaultSettingKey = 0x3
	RECORDINGS defaultSettingKey = 0x4
)

var defaultSettings = map[defaultSettingKey]interface{}{
	BACKEND:    "opencv",
	COLOUR:     "BGRA",
	CODEC:      "Xvid",
	FRAMERATE:  30.0,
	RECORDINGS: []configdef.Recording{},
}
