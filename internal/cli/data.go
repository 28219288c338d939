package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	statsJSON bool
	seenYes   bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write all recorded applications to job_applications.csv",
	Long: `Export writes every stored record, oldest first, to job_applications.csv in
the export directory. The file is replaced on every export.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		res, err := a.orch.ExportRecords(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "✓ Exported %d record(s)\n", res.Count)
		fmt.Println(res.Path)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show scan history counters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		stats, err := a.orch.ScanStats(ctx)
		if err != nil {
			return err
		}

		if statsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		}

		fmt.Printf("Messages seen:  %d\n", stats.TotalSeen)
		fmt.Printf("Applications:   %d\n", stats.TotalRecords)
		if stats.Watermark.IsZero() {
			fmt.Println("Newest mail:    never scanned")
		} else {
			fmt.Printf("Newest mail:    %s\n", stats.Watermark.Local().Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var seenCmd = &cobra.Command{
	Use:   "seen",
	Short: "Manage the set of already-processed messages",
}

var seenClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget which messages were processed",
	Long: `Clear empties the seen set so the next run looks at every message in its
window again. Recorded applications are kept and never duplicated.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !seenYes {
			return fmt.Errorf("this re-sends every message in the window to the model on the next run; pass --yes to confirm")
		}

		ctx := context.Background()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.orch.ClearSeenHistory(ctx); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "✓ Seen history cleared")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(seenCmd)
	seenCmd.AddCommand(seenClearCmd)

	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print as JSON")
	seenClearCmd.Flags().BoolVar(&seenYes, "yes", false, "confirm")
}
