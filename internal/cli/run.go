package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/applytrail/internal/export"
	"github.com/ppiankov/applytrail/internal/model"
	"github.com/ppiankov/applytrail/internal/pipeline"
)

var (
	runLookback       int
	runMaxItems       int
	runAfter          string
	runSinceWatermark bool
	runJSON           bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Scan the inbox for new application confirmations",
	Long: `Run fetches recent inbox messages, skips the ones already looked at,
classifies the rest and records company and position for every confirmation.

Press Ctrl-C once to stop after the current message; partial results are
saved. Press it again to abort immediately.

Example:
  applytrail run
  applytrail run --lookback 14 --max 100
  applytrail run --after 2024-05-01
  applytrail run --since-watermark --json`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVar(&runLookback, "lookback", 0, "lookback window in days (7, 14, 30, 60, 90; default: saved setting)")
	runCmd.Flags().IntVar(&runMaxItems, "max", 0, "maximum new messages to process (1-200; default: saved setting)")
	runCmd.Flags().StringVar(&runAfter, "after", "", "only messages after this date (YYYY-MM-DD), overrides --lookback")
	runCmd.Flags().BoolVar(&runSinceWatermark, "since-watermark", false, "only messages after the newest one seen by previous runs")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the run summary as JSON on stdout")
}

func runRun(cmd *cobra.Command, args []string) error {
	req := pipeline.RunRequest{
		LookbackDays:   runLookback,
		MaxItems:       runMaxItems,
		SinceWatermark: runSinceWatermark,
	}
	if err := req.Validate(); err != nil {
		return err
	}
	if runAfter != "" {
		after, err := time.ParseInLocation("2006-01-02", runAfter, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --after date %q (want YYYY-MM-DD)", runAfter)
		}
		req.After = after
	}

	ctx, abort := context.WithCancel(context.Background())
	defer abort()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	progress := make(chan model.Event, 16)
	req.Progress = progress

	run, err := a.orch.StartRun(ctx, req)
	if err != nil {
		return err
	}

	stopSignals := handleInterrupts(run, abort)
	defer stopSignals()

	for ev := range progress {
		printEvent(os.Stderr, ev)
	}

	summary, runErr := run.Wait()
	if summary != nil {
		if runJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(summary); err != nil {
				return err
			}
		} else {
			printSummary(os.Stderr, summary)
		}

		// Unsaved candidates go to stdout so they survive a storage failure
		if len(summary.Pending) > 0 {
			fmt.Fprintf(os.Stderr, "\n⚠ %d record(s) could not be saved; CSV follows on stdout\n", len(summary.Pending))
			if err := export.Write(os.Stdout, summary.Pending, time.Local); err != nil {
				return err
			}
		}
	}

	if errors.Is(runErr, model.ErrAuth) {
		return fmt.Errorf("%w\nRun 'applytrail auth login' to connect your Gmail account", runErr)
	}
	return runErr
}

// handleInterrupts cancels the run cooperatively on the first signal and
// aborts in-flight calls on the second
func handleInterrupts(run *pipeline.Run, abort context.CancelFunc) func() {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	go func() {
		count := 0
		for {
			select {
			case <-sigs:
				count++
				if count == 1 {
					fmt.Fprintln(os.Stderr, "\nStopping after the current message (Ctrl-C again to abort)...")
					run.Cancel()
					continue
				}
				abort()
				return
			case <-run.Done():
				return
			}
		}
	}()

	return func() { signal.Stop(sigs) }
}

func printEvent(w io.Writer, ev model.Event) {
	switch ev.Kind {
	case model.EventStage:
		if verbose {
			fmt.Fprintf(w, "⚙️  %s...\n", ev.Stage)
		}
	case model.EventItem:
		o := ev.Outcome
		if o == nil {
			return
		}
		switch o.Status {
		case model.OutcomeSuccess:
			fmt.Fprintf(w, "[%d/%d] ✓ %s | %s (%s)\n", ev.Index, ev.Total, orDash(o.Company), orDash(o.Position), o.Subject)
		case model.OutcomeExtractionFailed:
			fmt.Fprintf(w, "[%d/%d] ? confirmation without company/position: %s\n", ev.Index, ev.Total, o.Subject)
		case model.OutcomeError:
			fmt.Fprintf(w, "[%d/%d] ✗ %s: %s\n", ev.Index, ev.Total, o.Subject, o.Error)
		default:
			if verbose {
				fmt.Fprintf(w, "[%d/%d]   %s\n", ev.Index, ev.Total, o.Subject)
			}
		}
	case model.EventFailure:
		fmt.Fprintf(w, "✗ run failed: %s\n", ev.Message)
	}
}

func printSummary(w io.Writer, s *model.Summary) {
	fmt.Fprintln(w)
	if s.Cancelled {
		fmt.Fprintln(w, "Run cancelled; partial results saved.")
	}
	fmt.Fprintf(w, "Fetched:     %d\n", s.Fetched)
	fmt.Fprintf(w, "Scanned:     %d\n", s.Scanned)
	fmt.Fprintf(w, "Confirmed:   %d\n", s.Matched)
	fmt.Fprintf(w, "Recorded:    %d\n", s.Recorded)
	fmt.Fprintf(w, "Duplicates:  %d\n", s.DuplicatesSkipped)
	fmt.Fprintf(w, "Errors:      %d\n", s.Errors)
	if !s.Watermark.IsZero() {
		fmt.Fprintf(w, "Newest mail: %s\n", s.Watermark.Local().Format("2006-01-02 15:04"))
	}
	if !s.FinishedAt.IsZero() {
		fmt.Fprintf(w, "Elapsed:     %s\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
