package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Fingerprint cache management commands",
	Long: `Commands for inspecting and resetting the fingerprint cache. The cache
stores embeddings and match decisions keyed by file fingerprint so repeated
runs skip detection. It is namespaced per detection model.`,
}

var cacheInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print the cache location and entry count",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := initDeps()
		if err != nil {
			return err
		}
		defer deps.close()

		fmt.Printf("Model:   %s\n", deps.cfg.Recognition.Model)
		fmt.Printf("Path:    %s\n", deps.cache.Path())
		fmt.Printf("Entries: %d\n", deps.cache.Len())
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cached fingerprint for the configured model",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := initDeps()
		if err != nil {
			return err
		}
		defer deps.close()

		entries := deps.cache.Len()
		if err := deps.cache.Clear(); err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
		fmt.Printf("Cleared %d entries from %s\n", entries, deps.cache.Path())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheInfoCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}
