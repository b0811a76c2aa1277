package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"

	"trackvault/logger"
)

// Watch reloads the archive signing credentials whenever the given .env file
// changes, so keys can be rotated without restarting the server. Returns a
// stop function. Only the archive keys are hot-reloaded; everything else
// still requires a restart.
func (c *Config) Watch(envPath string) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(envPath); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				vars, err := godotenv.Read(envPath)
				if err != nil {
					logger.Warn("Failed to re-read env file", logger.String("path", envPath), logger.ErrorField(err))
					continue
				}
				access := vars["ARCHIVE_ACCESS_KEY"]
				secret := vars["ARCHIVE_SECRET_KEY"]
				if access == "" && secret == "" {
					continue
				}
				c.SetArchiveCredentials(access, secret)
				logger.Info("Archive credentials reloaded", logger.String("path", envPath))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Config watcher error", logger.ErrorField(err))
			}
		}
	}()

	return func() { watcher.Close() }, nil
}
