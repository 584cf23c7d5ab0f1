// Package cmd assembles the HerdWatch-Go command line interface.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/herdwatch/herdwatch-go/cmd/file"
	"github.com/herdwatch/herdwatch-go/cmd/realtime"
	"github.com/herdwatch/herdwatch-go/cmd/simulate"
	"github.com/herdwatch/herdwatch-go/internal/conf"
)

// RootCommand creates and returns the root command.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "herdwatch",
		Short: "HerdWatch-Go CLI",
		Long:  "Livestock monitoring: detection, identification, health assessment and attendance tracking.",
	}

	if err := setupFlags(rootCmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
	}

	rootCmd.AddCommand(
		file.Command(settings),
		realtime.Command(settings),
		simulate.Command(settings),
	)

	return rootCmd
}

// setupFlags defines flags shared by every subcommand.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Vision.ModelPath, "model", viper.GetString("vision.modelpath"), "Path to TensorFlow Lite detection model, empty for deterministic fallback")
	rootCmd.PersistentFlags().Float64VarP(&settings.Vision.Threshold, "threshold", "t", viper.GetFloat64("vision.threshold"), "Minimum confidence for detections, between 0.0 and 1.0")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
