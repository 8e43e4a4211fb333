package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "codeforge",
	Short: "Multi-stage code generation pipeline orchestrator",
	Long: `CodeForge turns a free-text request into code by running it through
decomposition, generation, extraction, review, test generation and execution
stages, with bounded retries, parallel review/test generation and token accounting.`,
	SilenceUsage: true,
	Version:      fmt.Sprintf("%s (built %s)", Version, BuildTime),
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newStagesCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
