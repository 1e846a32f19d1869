package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var identitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "List enrolled identities",
	Args:  cobra.NoArgs,
	RunE:  runIdentities,
}

func init() {
	rootCmd.AddCommand(identitiesCmd)

	identitiesCmd.Flags().Bool("json", false, "Output as JSON")
}

// IdentityOutput is one identity in the listing; embeddings are never printed.
type IdentityOutput struct {
	Name      string    `json:"name"`
	Dim       int       `json:"dim"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func runIdentities(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	jsonOutput := mustGetBool(cmd, "json")

	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	ids, err := a.service.Identities(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		out := make([]IdentityOutput, len(ids))
		for i, id := range ids {
			out[i] = IdentityOutput{Name: id.Name, Dim: id.Dim, Model: id.Model, CreatedAt: id.CreatedAt}
		}
		return outputJSON(out)
	}

	if len(ids) == 0 {
		fmt.Println("No identities enrolled")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDIM\tMODEL\tENROLLED")
	fmt.Fprintln(w, "----\t---\t-----\t--------")
	for _, id := range ids {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", id.Name, id.Dim, id.Model, id.CreatedAt.Local().Format(time.DateTime))
	}
	w.Flush()

	fmt.Printf("\nTotal: %d identities\n", len(ids))
	return nil
}
