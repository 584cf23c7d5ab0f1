// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "HerdWatch-Go")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "herdwatch.log")
	viper.SetDefault("main.log.rotation", RotationDaily)
	viper.SetDefault("main.log.maxsize", 1048576)

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "herdwatch.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "herdwatch")
	viper.SetDefault("output.mysql.password", "secret")
	viper.SetDefault("output.mysql.database", "herdwatch")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")

	viper.SetDefault("vision.modelpath", "")
	viper.SetDefault("vision.threshold", 0.3)
	viper.SetDefault("vision.threads", 0)

	viper.SetDefault("identify.tagreading", true)
	viper.SetDefault("identify.patternmatching", true)
	viper.SetDefault("identify.tagfloor", 0.6)
	viper.SetDefault("identify.patternfloor", 0.7)
	viper.SetDefault("identify.maxeditdistance", 1)
	viper.SetDefault("identify.registryttl", 5)

	viper.SetDefault("health.healthyfloor", 0.8)
	viper.SetDefault("health.attentionfloor", 0.5)
	viper.SetDefault("health.minactionableconfidence", 0.5)

	viper.SetDefault("attendance.missingthresholddays", 1)

	viper.SetDefault("realtime.interval", 30)
	viper.SetDefault("realtime.uploadpath", "uploads/")
	viper.SetDefault("realtime.camera.source", "simulated")
	viper.SetDefault("realtime.camera.name", "Barn Camera")
	viper.SetDefault("realtime.mqtt.enabled", false)
	viper.SetDefault("realtime.mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("realtime.mqtt.topic", "herdwatch")
	viper.SetDefault("realtime.mqtt.username", "")
	viper.SetDefault("realtime.mqtt.password", "")

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8080")

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
}
