package cmd

import (
	"fmt"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/frame"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <name>",
	Short: "Enroll a person from an image",
	Long: `Enroll a person under <name> using the face in the given image.

The name is trimmed and must be unique. When the image holds more than one
face, the first face reported by the embedding service is used.`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("image", "", "Image file holding the face (required)")
	enrollCmd.Flags().Bool("json", false, "Output as JSON")
	_ = enrollCmd.MarkFlagRequired("image")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	imagePath := mustGetString(cmd, "image")
	jsonOutput := mustGetBool(cmd, "json")

	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := frame.FileSource{Path: imagePath}.Current(ctx)
	if err != nil {
		return err
	}

	res, err := a.service.Enroll(ctx, args[0], f)
	if err != nil {
		return fmt.Errorf("enrollment failed: %w", err)
	}

	if jsonOutput {
		return outputJSON(res)
	}
	fmt.Printf("Enrolled %s (%d-dim embedding)\n", res.Name, res.Dim)
	if res.FacesDetected > 1 {
		fmt.Printf("Note: %d faces detected, the first one was used\n", res.FacesDetected)
	}
	if len(res.Lookalikes) > 0 {
		fmt.Printf("Warning: similar names already enrolled: %s\n", strings.Join(res.Lookalikes, ", "))
	}
	return nil
}
