// Package realtime implements the continuous monitoring command.
package realtime

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/herdwatch/herdwatch-go/internal/analysis"
	"github.com/herdwatch/herdwatch-go/internal/conf"
)

// Command creates the realtime monitoring command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "realtime",
		Short: "Monitor livestock in realtime mode",
		Long:  "Start the camera monitor, web dashboard and alerting pipeline and run until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return analysis.RealtimeAnalysis(cmd.Context(), settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the realtime command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().IntVar(&settings.Realtime.Interval, "interval", viper.GetInt("realtime.interval"), "Capture interval in seconds")
	cmd.Flags().StringVar(&settings.Realtime.Camera.Source, "source", viper.GetString("realtime.camera.source"), "Frame source: \"simulated\", a snapshot file or a drop directory")
	cmd.Flags().StringVar(&settings.Realtime.UploadPath, "uploadpath", viper.GetString("realtime.uploadpath"), "Directory for uploaded and captured images")
	cmd.Flags().BoolVar(&settings.WebServer.Enabled, "webserver", viper.GetBool("webserver.enabled"), "Enable the web dashboard and API")
	cmd.Flags().StringVar(&settings.WebServer.Port, "port", viper.GetString("webserver.port"), "Web server port")
	cmd.Flags().BoolVar(&settings.Realtime.MQTT.Enabled, "mqtt", viper.GetBool("realtime.mqtt.enabled"), "Publish frame results to MQTT")
	cmd.Flags().StringVar(&settings.Realtime.MQTT.Broker, "broker", viper.GetString("realtime.mqtt.broker"), "MQTT broker URL")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
