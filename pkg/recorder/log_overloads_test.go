package recorder_test

import "github.com/qianqian121/GIFT-Grab/pkg/log"

func overloadWarnLog(overload func(string, ...interface{})) func() {
	logWarnRef := log.Warn
	log.Warn = overload
	return func() { log.Warn = logWarnRef }
}
