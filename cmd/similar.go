package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-sorter/internal/match"
	"github.com/kozaktomas/face-sorter/internal/vision"
)

var similarCmd = &cobra.Command{
	Use:   "similar [image-path]",
	Short: "Show the enrolled people closest to the faces in an image",
	Long: `Similar detects the faces in a single image and lists the nearest
enrolled people for each face, with their embedding distances. Useful for
debugging why an image was or was not recognized before running a full sort.

Lower distance values indicate more similar faces; matches within the
configured tolerance would be accepted by the sort command.`,
	Args: cobra.ExactArgs(1),
	RunE: runSimilar,
}

func init() {
	rootCmd.AddCommand(similarCmd)

	similarCmd.Flags().Int("limit", 5, "Maximum number of neighbors per face")
}

func runSimilar(cmd *cobra.Command, args []string) error {
	imagePath := args[0]
	limit := mustGetInt(cmd, "limit")

	deps, err := initDeps()
	if err != nil {
		return err
	}
	defer deps.close()

	ctx := context.Background()
	set, err := deps.enroll(ctx)
	if err != nil {
		return err
	}
	if set.Len() == 0 {
		return fmt.Errorf("no usable reference faces found in %s", deps.cfg.Directories.KnownFaces)
	}
	index := match.NewIndex(set)

	data, err := vision.LoadForProcessing(imagePath, deps.cfg.Recognition.MaxImageSize)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", imagePath, err)
	}
	detections, err := deps.client.DetectFaces(ctx, data, deps.cfg.Recognition.Model)
	if err != nil {
		return fmt.Errorf("face detection failed: %w", err)
	}
	detections = vision.FilterBySize(detections, deps.cfg.Recognition.MinFaceSize)
	if len(detections) == 0 {
		fmt.Println("No faces detected.")
		return nil
	}

	tolerance := deps.cfg.Tolerance()
	fmt.Printf("Detected %d face(s), tolerance %.2f\n", len(detections), tolerance)
	for _, det := range detections {
		neighbors, err := index.Nearest(det.Embedding, limit)
		if err != nil {
			return fmt.Errorf("neighbor search failed: %w", err)
		}

		fmt.Printf("\nFace %d (%.0fx%.0f px):\n", det.FaceIndex, det.Width(), det.Height())
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  PERSON\tDISTANCE\tWITHIN TOLERANCE")
		for _, n := range neighbors {
			within := ""
			if n.Distance <= tolerance {
				within = "yes"
			}
			fmt.Fprintf(w, "  %s\t%.4f\t%s\n", n.Identity, n.Distance, within)
		}
		w.Flush()
	}
	return nil
}
