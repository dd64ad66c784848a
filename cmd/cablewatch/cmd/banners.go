package cmd

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cablewatch/cablewatch/internal/banner"
	"github.com/cablewatch/cablewatch/internal/segment"
	"github.com/cablewatch/cablewatch/internal/timeline"
)

var bannersCmd = &cobra.Command{
	Use:   "banners",
	Short: "Extract on-screen banner graphics from archived segments",
	Long: `Extract cropped banner frames from a segment for the OCR pipeline,
or detect the freeze windows in which a banner is stable enough to read.
The segment is addressed by any timestamp it covers.`,
}

func init() {
	rootCmd.AddCommand(bannersCmd)

	extractCmd := &cobra.Command{
		Use:   "extract <timestamp>",
		Short: "Write cropped banner frames of the covering segment",
		Args:  cobra.ExactArgs(1),
		RunE:  runBannersExtract,
	}
	addBannerFlags(extractCmd)
	extractCmd.Flags().Float64("fps", 0.5, "frame sampling rate")
	bannersCmd.AddCommand(extractCmd)

	freezesCmd := &cobra.Command{
		Use:   "freezes <timestamp>",
		Short: "Print the freeze windows of the covering segment",
		Args:  cobra.ExactArgs(1),
		RunE:  runBannersFreezes,
	}
	addBannerFlags(freezesCmd)
	bannersCmd.AddCommand(freezesCmd)
}

func addBannerFlags(cmd *cobra.Command) {
	cmd.Flags().String("layout", "yellow", fmt.Sprintf("banner layout (%s)", strings.Join(layoutNames(), ", ")))
	cmd.Flags().String("crop", "", "explicit crop=w:h:x:y filter, overrides --layout")
	cmd.Flags().String("timeline", timeline.GlobName, "timeline to look the segment up in")
}

func layoutNames() []string {
	names := make([]string, 0, len(banner.Layouts))
	for name := range banner.Layouts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// bannerTarget resolves the command arguments to a segment and crop filter.
func bannerTarget(cmd *cobra.Command, arg string) (segment.Segment, string, error) {
	ts, err := time.ParseInLocation(queryTimeLayout, arg, time.Local)
	if err != nil {
		return segment.Segment{}, "", usageErrorf("invalid timestamp %q, want %s", arg, queryTimeLayout)
	}

	crop, _ := cmd.Flags().GetString("crop")
	if crop == "" {
		layout, _ := cmd.Flags().GetString("layout")
		var ok bool
		if crop, ok = banner.Layouts[layout]; !ok {
			return segment.Segment{}, "", usageErrorf("unknown layout %q, want one of %s", layout, strings.Join(layoutNames(), ", "))
		}
	}

	name, _ := cmd.Flags().GetString("timeline")
	t, err := timeline.Open(archive(), name, nil)
	if err != nil {
		return segment.Segment{}, "", err
	}
	seg, err := t.LookupSegment(ts)
	if err != nil {
		return segment.Segment{}, "", err
	}
	return seg, crop, nil
}

func runBannersExtract(cmd *cobra.Command, args []string) error {
	seg, crop, err := bannerTarget(cmd, args[0])
	if err != nil {
		return err
	}

	fps, _ := cmd.Flags().GetFloat64("fps")
	ex := banner.NewExtractor(cfg.BannerFramesDir(), fps, slog.Default())
	return ex.ExtractFrames(seg, crop)
}

func runBannersFreezes(cmd *cobra.Command, args []string) error {
	seg, crop, err := bannerTarget(cmd, args[0])
	if err != nil {
		return err
	}

	ex := banner.NewExtractor(cfg.BannerFramesDir(), 0, slog.Default())
	windows, err := ex.DetectFreezes(seg, crop)
	if err != nil {
		return err
	}
	for _, w := range windows {
		fmt.Printf("%.2f %.2f %.2f\n", w.Start, w.End, w.Duration())
	}
	return nil
}
