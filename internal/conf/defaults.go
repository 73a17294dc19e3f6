// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/racephotos/bibfinder/internal/logger"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)
	viper.SetDefault("main.name", "bibfinder")

	viper.SetDefault("logging.default_level", logger.DefaultLogLevel)
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", logger.DefaultLogLevel)
	viper.SetDefault("logging.file_output.enabled", false)
	viper.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	viper.SetDefault("logging.file_output.level", logger.DefaultLogLevel)
	viper.SetDefault("logging.file_output.max_size", logger.DefaultMaxSize)
	viper.SetDefault("logging.file_output.max_age", logger.DefaultMaxAge)
	viper.SetDefault("logging.file_output.max_backups", logger.DefaultMaxBackups)

	viper.SetDefault("database.type", "sqlite")
	viper.SetDefault("database.slowquerythreshold", 200*time.Millisecond)
	viper.SetDefault("database.sqlite.path", "data/bibfinder.db")
	viper.SetDefault("database.mysql.host", "localhost")
	viper.SetDefault("database.mysql.port", "3306")
	viper.SetDefault("database.mysql.database", "bibfinder")

	viper.SetDefault("storage.type", "local")
	viper.SetDefault("storage.localroot", "data/photos")
	viper.SetDefault("storage.timeout", 60*time.Second)

	viper.SetDefault("detector.url", "http://localhost:8000/detect")
	viper.SetDefault("detector.ratelimit", 0.0)
	viper.SetDefault("detector.burst", 1)
	viper.SetDefault("detector.timeout", time.Duration(0))

	viper.SetDefault("ocr.local.enabled", true)
	viper.SetDefault("ocr.local.language", "eng")
	viper.SetDefault("ocr.local.poolsize", 0)
	viper.SetDefault("ocr.cloud.enabled", false)
	viper.SetDefault("ocr.cloud.provider", "googlevision")
	viper.SetDefault("ocr.cloud.endpoint", "https://vision.googleapis.com/v1/images:annotate")

	viper.SetDefault("detection.mindetectionconfidence", 0.3)
	viper.SetDefault("detection.minocrconfidence", 0.5)
	viper.SetDefault("detection.useocr", true)
	viper.SetDefault("detection.enhanceimage", true)
	viper.SetDefault("detection.ocrfallback", true)
	viper.SetDefault("detection.regionpadding", 10.0)

	viper.SetDefault("queue.concurrency", 3)
	viper.SetDefault("queue.maxattempts", 3)
	viper.SetDefault("queue.initialdelay", 2*time.Second)
	viper.SetDefault("queue.maxdelay", 5*time.Minute)
	viper.SetDefault("queue.multiplier", 2.0)
	viper.SetDefault("queue.maxqueued", 10000)

	viper.SetDefault("server.listen", ":8080")
	viper.SetDefault("server.resultcachettl", 10*time.Minute)

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.environment", "production")
}
