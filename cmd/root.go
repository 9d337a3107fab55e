package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "face-sorter",
	Short: "A CLI tool for sorting photos by the people in them",
	Long: `Face Sorter scans a directory of photos, matches the faces it finds
against a set of enrolled reference faces and relocates each recognized
photo into a per-person directory. Every copy or move is checksum
verified and recorded in a CSV audit trail.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to the YAML configuration file")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
