package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-sorter/internal/config"
	"github.com/kozaktomas/face-sorter/internal/relocate"
	"github.com/kozaktomas/face-sorter/internal/sorter"
)

var sortCmd = &cobra.Command{
	Use:   "sort",
	Short: "Sort photos into per-person directories",
	Long: `Sort scans the input directory, detects faces in every image and matches
them against the enrolled reference faces. Recognized photos are copied
(or moved with --move) into a directory named after the matched person.

Every relocation is checksum verified before the source is touched and
recorded in a CSV audit log. Results are cached by file fingerprint, so
re-running over the same directory skips already-decided files.`,
	RunE: runSort,
}

func init() {
	rootCmd.AddCommand(sortCmd)

	sortCmd.Flags().String("input", "", "Directory with images to sort (overrides config)")
	sortCmd.Flags().String("output", "", "Base directory for sorted images (overrides config)")
	sortCmd.Flags().String("known-faces", "", "Directory with reference faces (overrides config)")
	sortCmd.Flags().String("model", "", "Detection model: hog or cnn (overrides config)")
	sortCmd.Flags().Bool("move", false, "Move files instead of copying them")
	sortCmd.Flags().Bool("recursive", false, "Process subdirectories of the input directory")
	sortCmd.Flags().Float64("tolerance", 0, "Matching tolerance, 0 = preset for the configured settings")
	sortCmd.Flags().StringSlice("priority", nil, "Priority order of people; non-priority matches are discarded")
	sortCmd.Flags().Int("workers", 0, "Number of parallel workers, 0 = number of CPUs")
	sortCmd.Flags().Int("batch-size", 0, "Files per batch, 0 = model default")
	sortCmd.Flags().Int("min-face-size", 0, "Discard detected faces smaller than this many pixels (overrides config)")
	sortCmd.Flags().Bool("age-matching", false, "Use configured birthdates to penalize age-implausible matches")
	sortCmd.Flags().Bool("no-progress", false, "Disable the progress bar")
}

func runSort(cmd *cobra.Command, args []string) error {
	deps, err := initDeps()
	if err != nil {
		return err
	}
	defer deps.close()

	cfg := deps.cfg
	applySortFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	tolerance := cfg.Tolerance()
	if cmd.Flags().Changed("tolerance") {
		tolerance = mustGetFloat64(cmd, "tolerance")
	}
	priority := cfg.PriorityList()
	if cmd.Flags().Changed("priority") {
		priority = mustGetStringSlice(cmd, "priority")
	}
	showProgress := !mustGetBool(cmd, "no-progress")

	// Handle Ctrl+C
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal...")
		cancel()
	}()

	set, err := deps.enroll(ctx)
	if err != nil {
		return err
	}
	if set.Len() == 0 {
		return fmt.Errorf("no usable reference faces found in %s", cfg.Directories.KnownFaces)
	}
	fmt.Printf("Enrolled %d people (%d reference faces)\n", set.Len(), set.EmbeddingCount())

	runID := uuid.NewString()
	audit, err := relocate.OpenAuditLog(cfg.Directories.Logs, runID, deps.logger)
	if err != nil {
		return err
	}
	defer audit.Close()

	engine := relocate.NewEngine(cfg.Directories.Output, cfg.PersonPaths(), audit, deps.logger)

	s := sorter.New(deps.client, set, deps.cache, engine, deps.logger)
	stats, err := s.Run(ctx, sorter.Options{
		RunID:        runID,
		InputDir:     cfg.Directories.Input,
		Recursive:    cfg.Behavior.Recursive,
		Model:        cfg.Recognition.Model,
		Tolerance:    tolerance,
		Priority:     priority,
		MinFaceSize:  cfg.Recognition.MinFaceSize,
		MaxImageSize: cfg.Recognition.MaxImageSize,
		BatchSize:    cfg.BatchSize(),
		Workers:      cfg.Workers(),
		Move:         cfg.Behavior.MoveFiles,
		AgeMatching:  cfg.Recognition.AgeBasedMatching,
		AgeTolerance: cfg.Recognition.AgeTolerance,
		ShowProgress: showProgress,
	})
	if err != nil {
		return fmt.Errorf("sorting failed: %w", err)
	}

	printSummary(stats)
	return ctx.Err()
}

// applySortFlags layers explicitly set flags on top of the loaded
// configuration. Unset flags leave the configured values alone.
func applySortFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("input") {
		cfg.Directories.Input = mustGetString(cmd, "input")
	}
	if cmd.Flags().Changed("output") {
		cfg.Directories.Output = mustGetString(cmd, "output")
	}
	if cmd.Flags().Changed("known-faces") {
		cfg.Directories.KnownFaces = mustGetString(cmd, "known-faces")
	}
	if cmd.Flags().Changed("model") {
		cfg.Recognition.Model = mustGetString(cmd, "model")
	}
	if cmd.Flags().Changed("move") {
		cfg.Behavior.MoveFiles = mustGetBool(cmd, "move")
	}
	if cmd.Flags().Changed("recursive") {
		cfg.Behavior.Recursive = mustGetBool(cmd, "recursive")
	}
	if cmd.Flags().Changed("workers") {
		cfg.Performance.Workers = mustGetInt(cmd, "workers")
	}
	if cmd.Flags().Changed("batch-size") {
		cfg.Performance.BatchSize = mustGetInt(cmd, "batch-size")
	}
	if cmd.Flags().Changed("min-face-size") {
		cfg.Recognition.MinFaceSize = mustGetInt(cmd, "min-face-size")
	}
	if cmd.Flags().Changed("age-matching") {
		cfg.Recognition.AgeBasedMatching = mustGetBool(cmd, "age-matching")
	}
}

func printSummary(stats *sorter.Stats) {
	fmt.Printf("\nProcessed: %d images in %s\n", stats.Total, stats.Elapsed.Round(10*time.Millisecond))
	if stats.Total > 0 {
		fmt.Printf("  Recognized:   %d (%.1f%%)\n", stats.Recognized, percent(stats.Recognized, stats.Total))
		fmt.Printf("  Unrecognized: %d (%.1f%%)\n", stats.Unrecognized, percent(stats.Unrecognized, stats.Total))
		fmt.Printf("  Errors:       %d (%.1f%%)\n", stats.Errors, percent(stats.Errors, stats.Total))
	}

	if people := stats.TopPeople(); len(people) > 0 {
		fmt.Println("\nPer person:")
		for _, p := range people {
			fmt.Printf("  %s: %d\n", p.Name, p.Count)
		}
	}

	if stats.Reconciled {
		fmt.Println("\nNote: the processed count did not match the enumerated count; totals were reconciled.")
	}
	if stats.AuditLogPath != "" {
		fmt.Printf("\nAudit log: %s\n", stats.AuditLogPath)
	}
}

func percent(part, total int) float64 {
	return float64(part) / float64(total) * 100
}
