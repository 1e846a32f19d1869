package cmd

import (
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/frame"
	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Record a login for every recognized face in an image",
	RunE:  runVerify(database.DirectionIn),
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Record a logout for every recognized face in an image",
	RunE:  runVerify(database.DirectionOut),
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, logoutCmd} {
		rootCmd.AddCommand(c)
		c.Flags().String("image", "", "Image file holding the faces (required)")
		c.Flags().Float64("threshold", 0, "Match distance threshold (overrides MATCH_THRESHOLD)")
		c.Flags().Bool("json", false, "Output as JSON")
		_ = c.MarkFlagRequired("image")
	}
}

// VerifyOutput is the JSON output of login and logout.
type VerifyOutput struct {
	Direction     database.Direction `json:"direction"`
	Recognized    []string           `json:"recognized"`
	UnknownCount  int                `json:"unknown_count"`
	NoFace        bool               `json:"no_face"`
	Notifications []string           `json:"notifications"`
}

func runVerify(dir database.Direction) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		jsonOutput := mustGetBool(cmd, "json")

		a, err := newApp(ctx, appOptions{threshold: mustGetFloat64(cmd, "threshold")})
		if err != nil {
			return err
		}
		defer a.Close()

		f, err := frame.FileSource{Path: mustGetString(cmd, "image")}.Current(ctx)
		if err != nil {
			return err
		}

		out, err := a.service.Verify(ctx, f, dir)
		if err != nil {
			return fmt.Errorf("%s failed: %w", cmd.Name(), err)
		}

		notes := out.Notifications(dir)
		if jsonOutput {
			return outputJSON(VerifyOutput{
				Direction:     dir,
				Recognized:    out.Recognized,
				UnknownCount:  out.UnknownCount,
				NoFace:        out.NoFace,
				Notifications: notes,
			})
		}
		for _, n := range notes {
			fmt.Println(n)
		}
		// Exit non-zero when nobody was recognised so scripts can react.
		return out.Err()
	}
}
