package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cablewatch/cablewatch/internal/timeline"
)

var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Manage named windows over the segment archive",
	Long: `Manage timelines: persisted [begin, begin+duration) windows over the
segment archive. The reserved name "glob" denotes the whole archive and
cannot be modified.`,
}

func init() {
	rootCmd.AddCommand(timelineCmd)

	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create and persist a new timeline",
		Args:  cobra.ExactArgs(1),
		RunE:  runTimelineCreate,
	}
	createCmd.Flags().StringP("duration", "d", "", "window duration (e.g. 600s); defaults to the archive span")
	timelineCmd.AddCommand(createCmd)

	advanceCmd := &cobra.Command{
		Use:   "advance <name>",
		Short: "Slide the window forward by its duration",
		Args:  cobra.ExactArgs(1),
		RunE:  runTimelineAdvance,
	}
	advanceCmd.Flags().StringP("truncate", "t", "", "advance by duration minus this amount")
	timelineCmd.AddCommand(advanceCmd)

	timelineCmd.AddCommand(&cobra.Command{
		Use:   "reset <name>",
		Short: "Recompute the window from the current archive bounds",
		Args:  cobra.ExactArgs(1),
		RunE:  runTimelineReset,
	})

	timelineCmd.AddCommand(&cobra.Command{
		Use:   "copy <src> <dst>",
		Short: "Copy a timeline under a new name",
		Args:  cobra.ExactArgs(2),
		RunE:  runTimelineCopy,
	})

	timelineCmd.AddCommand(&cobra.Command{
		Use:   "rename <src> <dst>",
		Short: "Rename a timeline",
		Args:  cobra.ExactArgs(2),
		RunE:  runTimelineRename,
	})

	timelineCmd.AddCommand(&cobra.Command{
		Use:   "edit <name>",
		Short: "Open the persisted window JSON in $EDITOR",
		Args:  cobra.ExactArgs(1),
		RunE:  runTimelineEdit,
	})

	timelineCmd.AddCommand(&cobra.Command{
		Use:   "remove <name>",
		Short: "Delete the persisted window (segments are never touched)",
		Args:  cobra.ExactArgs(1),
		RunE:  runTimelineRemove,
	})

	timelineCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the persisted timelines",
		Args:  cobra.NoArgs,
		RunE:  runTimelineList,
	})

	timelineCmd.AddCommand(&cobra.Command{
		Use:   "slices <name>",
		Short: "Print the slices of a timeline",
		Args:  cobra.ExactArgs(1),
		RunE:  runTimelineSlices,
	})

	concatCmd := &cobra.Command{
		Use:   "concat <name>",
		Short: "Print the concat manifest of one slice",
		Args:  cobra.ExactArgs(1),
		RunE:  runTimelineConcat,
	}
	concatCmd.Flags().IntP("slice", "s", 0, "slice index")
	concatCmd.Flags().Bool("trims", false, "emit inpoint/outpoint directives instead of comments")
	timelineCmd.AddCommand(concatCmd)
}

// openExisting opens a timeline that must already be persisted, so mutating
// actions on a never-created name surface ErrNotFound instead of silently
// synthesizing a default window. The glob pseudo-timeline has no file and is
// admitted; downstream mutation guards reject it.
func openExisting(name string) (*timeline.Timeline, error) {
	if name != timeline.GlobName && !timeline.Exists(archive(), name) {
		return nil, fmt.Errorf("%w: %q", timeline.ErrNotFound, name)
	}
	return timeline.Open(archive(), name, nil)
}

// parseSpan parses a duration flag value, accepting both Go duration syntax
// ("600s", "10m") and a bare number of seconds.
func parseSpan(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return 0, usageErrorf("invalid duration %q", s)
}

func runTimelineCreate(cmd *cobra.Command, args []string) error {
	name := args[0]
	if timeline.Exists(archive(), name) {
		return usageErrorf("timeline %q already exists", name)
	}

	opts := &timeline.OpenOptions{NoLoad: true}
	if spec, _ := cmd.Flags().GetString("duration"); spec != "" {
		d, err := parseSpan(spec)
		if err != nil {
			return err
		}
		opts.Duration = &d
	}

	t, err := timeline.Open(archive(), name, opts)
	if err != nil {
		return err
	}
	if err := t.Save(); err != nil {
		return err
	}
	fmt.Printf("created %s: begin=%s duration=%s\n", t.Name, t.Begin.Format(time.RFC3339), t.Duration)
	return nil
}

func runTimelineAdvance(cmd *cobra.Command, args []string) error {
	t, err := openExisting(args[0])
	if err != nil {
		return err
	}

	var truncate time.Duration
	if spec, _ := cmd.Flags().GetString("truncate"); spec != "" {
		if truncate, err = parseSpan(spec); err != nil {
			return err
		}
	}

	if err := t.Advance(truncate); err != nil {
		return err
	}
	if err := t.Save(); err != nil {
		return err
	}
	fmt.Printf("advanced %s: begin=%s duration=%s\n", t.Name, t.Begin.Format(time.RFC3339), t.Duration)
	return nil
}

func runTimelineReset(_ *cobra.Command, args []string) error {
	t, err := openExisting(args[0])
	if err != nil {
		return err
	}
	if err := t.Reset(); err != nil {
		return err
	}
	if err := t.Save(); err != nil {
		return err
	}
	fmt.Printf("reset %s: begin=%s duration=%s\n", t.Name, t.Begin.Format(time.RFC3339), t.Duration)
	return nil
}

func runTimelineCopy(_ *cobra.Command, args []string) error {
	t, err := openExisting(args[0])
	if err != nil {
		return err
	}
	return t.Copy(args[1])
}

func runTimelineRename(_ *cobra.Command, args []string) error {
	t, err := openExisting(args[0])
	if err != nil {
		return err
	}
	return t.Rename(args[1])
}

// runTimelineEdit replaces the process image with $EDITOR on the window JSON.
func runTimelineEdit(_ *cobra.Command, args []string) error {
	name := args[0]
	if !timeline.Exists(archive(), name) {
		return fmt.Errorf("%w: %q", timeline.ErrNotFound, name)
	}
	t, err := timeline.Open(archive(), name, nil)
	if err != nil {
		return err
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}
	path, err := exec.LookPath(editor)
	if err != nil {
		return fmt.Errorf("finding editor %q: %w", editor, err)
	}
	return syscall.Exec(path, []string{editor, t.JSONPath()}, os.Environ())
}

func runTimelineRemove(_ *cobra.Command, args []string) error {
	t, err := timeline.Open(archive(), args[0], &timeline.OpenOptions{NoLoad: true})
	if err != nil {
		return err
	}
	return t.Remove()
}

func runTimelineList(_ *cobra.Command, _ []string) error {
	names, err := timeline.List(archive())
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

func runTimelineSlices(_ *cobra.Command, args []string) error {
	t, err := timeline.Open(archive(), args[0], nil)
	if err != nil {
		return err
	}
	for i, sl := range t.Slices() {
		last := ""
		if sl.Last {
			last = " last"
		}
		fmt.Printf("%d: begin=%s duration=%.2fs effective=%.2fs segments=%d%s\n",
			i, sl.Begin().Format(time.RFC3339), sl.Duration(), sl.EffectiveDuration(), len(sl.Segments), last)
	}
	return nil
}

func runTimelineConcat(cmd *cobra.Command, args []string) error {
	t, err := timeline.Open(archive(), args[0], nil)
	if err != nil {
		return err
	}

	slices := t.Slices()
	index, _ := cmd.Flags().GetInt("slice")
	if index < 0 || index >= len(slices) {
		return usageErrorf("slice index %d out of range, timeline has %d slices", index, len(slices))
	}
	withTrims, _ := cmd.Flags().GetBool("trims")

	return slices[index].WriteManifest(os.Stdout, withTrims)
}
