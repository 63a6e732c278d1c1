// ocrdesk is the operator console for a locally running OCR batch manager:
// it registers credential keys, stages folders, launches and stops jobs, and
// watches progress over the manager's HTTP API and event stream.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	noColor   bool
	serverURL string
)

var rootCmd = &cobra.Command{
	Use:           "ocrdesk",
	Short:         "Operator console for the local OCR batch pipeline",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "manager base URL (overrides config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
