package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/b0bbywan/go-hfpd/logger"
)

// WatchLogLevels reloads the log levels whenever the config file changes.
// It is a no-op when no config file was read.
func WatchLogLevels() {
	v := viper.GetViper()
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		logger.SetLevel(logger.ParseLevel(v.GetString("LogLevel")))
		logger.SetPackageLevels(parseLogLevels(v.GetStringMapString("log.levels")))
		logger.Info("[config] %s changed, log levels reloaded", e.Name)
	})
	v.WatchConfig()
}
