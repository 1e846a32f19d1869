package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/frame"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var enrollDirCmd = &cobra.Command{
	Use:   "enroll-dir <directory>",
	Short: "Enroll everyone from a directory of images",
	Long: `Enroll one person per image file. The file name without its extension
is used as the name, so "Alice Smith.jpg" enrolls "Alice Smith".

Names that are already enrolled are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runEnrollDir,
}

func init() {
	rootCmd.AddCommand(enrollDirCmd)

	enrollDirCmd.Flags().Int("workers", constants.EnrollDirWorkers, "Number of parallel enrollments")
	enrollDirCmd.Flags().StringSlice("ext", []string{".jpg", ".jpeg", ".png", ".webp", ".bmp", ".gif"}, "Image file extensions to include")
	enrollDirCmd.Flags().Bool("json", false, "Output as JSON")
}

// EnrollDirResult summarizes a directory enrollment.
type EnrollDirResult struct {
	Enrolled []string          `json:"enrolled"`
	Skipped  []string          `json:"skipped"`
	Failed   map[string]string `json:"failed"`
}

func runEnrollDir(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	workers := max(1, mustGetInt(cmd, "workers"))
	exts := mustGetStringSlice(cmd, "ext")
	jsonOutput := mustGetBool(cmd, "json")

	files, err := listImages(args[0], exts)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no images found in %s", args[0])
	}

	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetDescription("Enrolling"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("faces"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionFullWidth(),
		)
	}

	result := enrollFiles(ctx, a.service, files, workers, func() {
		if bar != nil {
			_ = bar.Add(1)
		}
	})

	if jsonOutput {
		return outputJSON(result)
	}
	fmt.Printf("\nEnrolled %d, skipped %d, failed %d\n", len(result.Enrolled), len(result.Skipped), len(result.Failed))
	for _, path := range sortedKeys(result.Failed) {
		fmt.Printf("  %s: %s\n", path, result.Failed[path])
	}
	if len(result.Failed) > 0 {
		return fmt.Errorf("%d enrollments failed", len(result.Failed))
	}
	return nil
}

// enrollFiles enrolls each file under its base name with a bounded number of workers.
func enrollFiles(ctx context.Context, svc *attendance.Service, files []string, workers int, progress func()) EnrollDirResult {
	result := EnrollDirResult{Failed: make(map[string]string)}
	var mu sync.Mutex
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for _, path := range files {
		wg.Add(1)
		sem <- struct{}{}
		go func(path string) {
			defer func() {
				<-sem
				progress()
				wg.Done()
			}()

			name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			err := enrollFile(ctx, svc, name, path)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				result.Enrolled = append(result.Enrolled, name)
			case errors.Is(err, attendance.ErrDuplicateIdentity):
				result.Skipped = append(result.Skipped, name)
			default:
				result.Failed[path] = err.Error()
			}
		}(path)
	}
	wg.Wait()

	slices.Sort(result.Enrolled)
	slices.Sort(result.Skipped)
	return result
}

func enrollFile(ctx context.Context, svc *attendance.Service, name, path string) error {
	f, err := frame.FileSource{Path: path}.Current(ctx)
	if err != nil {
		return err
	}
	_, err = svc.Enroll(ctx, name, f)
	return err
}

func listImages(dir string, exts []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if slices.Contains(exts, strings.ToLower(filepath.Ext(e.Name()))) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
