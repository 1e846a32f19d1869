package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show the attendance log",
	Long: `Show attendance events in the order they were recorded.

With --verify the text and CSV views are compared and the command fails if
they disagree.`,
	Args: cobra.NoArgs,
	RunE: runLog,
}

func init() {
	rootCmd.AddCommand(logCmd)

	logCmd.Flags().String("name", "", "Only show events for this name")
	logCmd.Flags().Int("tail", 0, "Only show the last N events")
	logCmd.Flags().Bool("verify", false, "Check that the text and CSV views agree")
	logCmd.Flags().Bool("json", false, "Output as JSON")
}

func runLog(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name := mustGetString(cmd, "name")
	tail := mustGetInt(cmd, "tail")
	jsonOutput := mustGetBool(cmd, "json")

	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	if mustGetBool(cmd, "verify") {
		if err := a.ledger.Verify(ctx); err != nil {
			return err
		}
		fmt.Println("Text and CSV views agree")
		return nil
	}

	events, err := a.ledger.Events(ctx)
	if err != nil {
		return err
	}
	events = filterEvents(events, name, tail)

	if jsonOutput {
		if events == nil {
			events = []database.AttendanceEvent{}
		}
		return outputJSON(events)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tNAME\tACTION")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.Timestamp.Format(time.DateTime), e.Name, e.Direction)
	}
	w.Flush()
	return nil
}

// filterEvents keeps events for name (all when empty), then the last tail (all when 0).
func filterEvents(events []database.AttendanceEvent, name string, tail int) []database.AttendanceEvent {
	if name != "" {
		var kept []database.AttendanceEvent
		for _, e := range events {
			if e.Name == name {
				kept = append(kept, e)
			}
		}
		events = kept
	}
	if tail > 0 && len(events) > tail {
		events = events[len(events)-tail:]
	}
	return events
}
