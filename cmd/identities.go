package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var identitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "List the people enrolled from the known-faces directory",
	Long: `Identities enrolls the reference faces exactly as the sort command would
and prints the resulting identity set: reference counts, priority ranks,
birthdates and custom destinations.`,
	RunE: runIdentities,
}

func init() {
	rootCmd.AddCommand(identitiesCmd)
}

func runIdentities(cmd *cobra.Command, args []string) error {
	deps, err := initDeps()
	if err != nil {
		return err
	}
	defer deps.close()

	set, err := deps.enroll(context.Background())
	if err != nil {
		return err
	}
	if set.Len() == 0 {
		fmt.Printf("No usable reference faces found in %s\n", deps.cfg.Directories.KnownFaces)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tREFERENCES\tPRIORITY\tBIRTHDATE\tDESTINATION")
	fmt.Fprintln(w, "----\t----------\t--------\t---------\t-----------")
	for _, id := range set.All() {
		priority := "-"
		if id.Priority > 0 {
			priority = fmt.Sprintf("%d", id.Priority)
		}
		birthdate := "-"
		if !id.Birthdate.IsZero() {
			birthdate = id.Birthdate.Format("2006-01-02")
		}
		destination := id.Destination
		if destination == "" {
			destination = "(default)"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", id.Name, len(id.Embeddings), priority, birthdate, destination)
	}
	w.Flush()

	fmt.Printf("\n%d people, %d reference faces\n", set.Len(), set.EmbeddingCount())
	return nil
}
