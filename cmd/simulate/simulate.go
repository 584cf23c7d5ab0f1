// Package simulate implements the herd activity simulation command.
package simulate

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/herdwatch/herdwatch-go/internal/analysis"
	"github.com/herdwatch/herdwatch-go/internal/conf"
)

// Command creates the simulate command for generating demo herd activity.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Generate synthetic herd activity",
		Long:  "Mark random registered animals present on a fixed interval, exercising the attendance pipeline without a camera.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return analysis.SimulateAnalysis(cmd.Context(), settings)
		},
	}

	cmd.Flags().IntVar(&settings.Realtime.Interval, "interval", viper.GetInt("realtime.interval"), "Simulation cycle interval in seconds")
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		fmt.Printf("error binding flags: %v\n", err)
	}

	return cmd
}
