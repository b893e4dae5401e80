package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/thushan/llamatap/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information",
	Run: func(*cobra.Command, []string) {
		version.PrintVersionInfo(true, log.New(os.Stdout, "", 0))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
