package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/cablewatch/cablewatch/internal/database"
	"github.com/cablewatch/cablewatch/internal/speech"
	"github.com/cablewatch/cablewatch/internal/timeline"
)

// queryTimeLayout is the timestamp syntax accepted by speech query and the
// banner commands, interpreted in the host local zone.
const queryTimeLayout = "2006-01-02T15:04:05"

var speechCmd = &cobra.Command{
	Use:   "speech",
	Short: "Extract slice audio and manage the transcript store",
	Long: `Extract wav files from the speech timeline for the external
recognition collaborator, fold its results back into the transcript
database, and query the recognized words.`,
}

func init() {
	rootCmd.AddCommand(speechCmd)

	uploadCmd := &cobra.Command{
		Use:   "upload",
		Short: "Extract one wav per slice and store it for recognition",
		Args:  cobra.NoArgs,
		RunE:  runSpeechUpload,
	}
	uploadCmd.Flags().Bool("stay", false, "do not advance the timeline after extraction")
	speechCmd.AddCommand(uploadCmd)

	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fold recognition results into the transcript database",
		Args:  cobra.NoArgs,
		RunE:  runSpeechFetch,
	}
	fetchCmd.Flags().Bool("keep", false, "keep processed blobs instead of deleting them")
	speechCmd.AddCommand(fetchCmd)

	speechCmd.AddCommand(&cobra.Command{
		Use:   "query <from> <to>",
		Short: "Print the words spoken in a time range",
		Args:  cobra.ExactArgs(2),
		RunE:  runSpeechQuery,
	})
}

func runSpeechUpload(cmd *cobra.Command, _ []string) error {
	dur := cfg.SpeechTimelineDuration()
	tl, err := timeline.Open(archive(), cfg.SpeechTimelineName(), &timeline.OpenOptions{
		Duration: &dur,
	})
	if err != nil {
		return err
	}

	ex := speech.NewExtractor(tl, speech.NewDirStore(cfg.SpeechBlobDir()), slog.Default())
	ex.Stay, _ = cmd.Flags().GetBool("stay")
	return ex.Upload()
}

func runSpeechFetch(cmd *cobra.Command, _ []string) error {
	db, err := database.Open(cfg.DatabasePath(), slog.Default())
	if err != nil {
		return err
	}
	defer db.Close()

	f := speech.NewFetcher(speech.NewDirStore(cfg.SpeechBlobDir()), database.NewTranscriptStore(db), slog.Default())
	f.Keep, _ = cmd.Flags().GetBool("keep")
	return f.Fetch()
}

func runSpeechQuery(_ *cobra.Command, args []string) error {
	from, err := time.ParseInLocation(queryTimeLayout, args[0], time.Local)
	if err != nil {
		return usageErrorf("invalid from timestamp %q, want %s", args[0], queryTimeLayout)
	}
	to, err := time.ParseInLocation(queryTimeLayout, args[1], time.Local)
	if err != nil {
		return usageErrorf("invalid to timestamp %q, want %s", args[1], queryTimeLayout)
	}

	db, err := database.Open(cfg.DatabasePath(), slog.Default())
	if err != nil {
		return err
	}
	defer db.Close()

	words, err := database.NewTranscriptStore(db).Query(from, to)
	if err != nil {
		return err
	}
	for _, w := range words {
		fmt.Printf("%s %d %s\n", w.TS.Format(queryTimeLayout), w.Speaker, w.Word)
	}
	return nil
}
