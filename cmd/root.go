package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"chainkv/logx"
)

var rootCmd = &cobra.Command{
	Use:   "chainkv",
	Short: "chainkv replicated key-value node CLI",
	Long:  "Command line interface for running and managing a chainkv replicated key-value node.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logx.Error("CMD", "Command execution failed:", err)
		os.Exit(1)
	}
}
