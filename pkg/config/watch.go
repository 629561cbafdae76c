package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/harunnryd/fallback/pkg/errorsx"
	"github.com/harunnryd/fallback/pkg/logging"
)

// Watch loads path and calls apply with every later valid revision of the
// file. Invalid revisions are logged and skipped. The returned Config is the
// initial load.
func Watch(path string, logger *slog.Logger, apply func(Config)) (Config, error) {
	logger = logging.NewComponentLogger(logger, "config")
	v := viper.New()
	v.SetConfigFile(path)
	cfg, err := load(v)
	if err != nil {
		return Config{}, err
	}
	v.OnConfigChange(func(ev fsnotify.Event) {
		if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
			return
		}
		next, err := Load(ev.Name)
		if err != nil {
			logger.Warn("config_reload_failed", "path", ev.Name, "reason", errorsx.Reason(err), "error", err)
			return
		}
		logger.Info("config_reloaded", "path", ev.Name)
		apply(next)
	})
	v.WatchConfig()
	return cfg, nil
}
