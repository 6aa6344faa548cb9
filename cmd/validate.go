package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// validateCmd checks a manifest without running it.
var validateCmd = &cobra.Command{
	Use:   "validate <manifest>",
	Short: "Validate a deployment manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		m, err := LoadManifest(args[0])
		if err != nil {
			printError(w, "%v", err)
			return err
		}
		errs := m.Validate()
		if len(errs) == 0 {
			printSuccess(w, "%s: %d services, %d scheduled commands, OK", args[0], len(m.Services), len(m.Schedule))
			return nil
		}
		for _, e := range errs {
			printError(w, "  %v", e)
		}
		return fmt.Errorf("%s: %d problems", args[0], len(errs))
	},
}
