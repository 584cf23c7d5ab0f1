// Package file implements the single image analysis command.
package file

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/herdwatch/herdwatch-go/internal/analysis"
	"github.com/herdwatch/herdwatch-go/internal/conf"
)

// Command creates the file command for analyzing a single image.
func Command(settings *conf.Settings) *cobra.Command {
	var animalID uint

	cmd := &cobra.Command{
		Use:   "file [image.jpg]",
		Short: "Analyze a single image",
		Long:  "Run one image through detection, identification, health assessment and attendance reconciliation, printing the frame result as JSON.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var explicit *uint
			if animalID > 0 {
				explicit = &animalID
			}
			return analysis.FileAnalysis(cmd.Context(), settings, args[0], explicit)
		},
	}

	cmd.Flags().UintVar(&animalID, "animal", 0, "Animal ID to attach assessments to when identification stays unresolved")
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		fmt.Printf("error binding flags: %v\n", err)
	}

	return cmd
}
