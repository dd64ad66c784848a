package speech

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cablewatch/cablewatch/internal/database"
	"github.com/cablewatch/cablewatch/internal/observability"
)

var resultNameRe = regexp.MustCompile(`^(.+)_transcript_.+\.json$`)

// Fetcher folds recognition results back into the transcript store.
type Fetcher struct {
	store       BlobStore
	transcripts *database.TranscriptStore
	log         *slog.Logger

	// Keep leaves processed blobs in the store instead of deleting them.
	Keep bool
}

// NewFetcher returns a Fetcher reading results from store into transcripts.
func NewFetcher(store BlobStore, transcripts *database.TranscriptStore, log *slog.Logger) *Fetcher {
	return &Fetcher{
		store:       store,
		transcripts: transcripts,
		log:         observability.WithComponent(log, "speech"),
	}
}

// Fetch processes every result blob: parse the recognized words, replace the
// covered transcript window, and clean up the result plus its source wav.
func (f *Fetcher) Fetch() error {
	names, err := f.store.List(ResultsPrefix)
	if err != nil {
		return err
	}

	fetched := 0
	for _, name := range names {
		m := resultNameRe.FindStringSubmatch(path.Base(name))
		if m == nil {
			continue
		}
		wavBase := m[1]

		data, err := f.store.Get(name)
		if err != nil {
			return err
		}
		words, from, to, err := ParseBatchResult(wavBase, data)
		if err != nil {
			f.log.Error("unusable recognition result", "blob", name, "error", err)
			continue
		}
		if err := f.transcripts.ReplaceRange(from, to, words); err != nil {
			return err
		}
		f.log.Info("transcript stored",
			"words", len(words),
			"from", from.Format(time.RFC3339),
			"to", to.Format(time.RFC3339))
		fetched++

		if f.Keep {
			continue
		}
		if err := f.store.Delete(name); err != nil {
			return err
		}
		for _, prefix := range []string{UploadedPrefix, ProcessingPrefix} {
			if err := f.deleteByStem(prefix, wavBase); err != nil {
				return err
			}
		}
	}
	if fetched == 0 {
		f.log.Warn("no recognition results to fetch")
	}
	return nil
}

// deleteByStem removes every blob under prefix whose basename stem matches.
func (f *Fetcher) deleteByStem(prefix, stem string) error {
	names, err := f.store.List(prefix)
	if err != nil {
		return err
	}
	for _, name := range names {
		base := path.Base(name)
		if strings.TrimSuffix(base, path.Ext(base)) != stem {
			continue
		}
		f.log.Info("deleting blob", "name", name)
		if err := f.store.Delete(name); err != nil {
			return err
		}
	}
	return nil
}

// batchResult mirrors the recognition result JSON shape.
type batchResult struct {
	Results []struct {
		Alternatives []struct {
			Words []resultWord `json:"words"`
		} `json:"alternatives"`
	} `json:"results"`
}

type resultWord struct {
	Word         string `json:"word"`
	StartOffset  string `json:"startOffset"`
	EndOffset    string `json:"endOffset"`
	SpeakerLabel string `json:"speakerLabel"`
}

// ParseBatchResult converts one recognition result into transcript rows. The
// wav basename carries the absolute begin time and audio length, offsets are
// relative to it. Words without a speaker label inherit the previous one.
func ParseBatchResult(wavBase string, data []byte) ([]database.Transcript, time.Time, time.Time, error) {
	begin, length, err := ParseWavName(wavBase)
	if err != nil {
		return nil, time.Time{}, time.Time{}, err
	}

	var res batchResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, time.Time{}, time.Time{}, fmt.Errorf("parsing result for %s: %w", wavBase, err)
	}
	if len(res.Results) == 0 || len(res.Results[0].Alternatives) == 0 {
		return nil, begin, begin.Add(length), nil
	}

	var rows []database.Transcript
	lastSpeaker := 0
	for _, w := range res.Results[0].Alternatives[0].Words {
		offset, err := wordOffset(w)
		if err != nil {
			return nil, time.Time{}, time.Time{}, fmt.Errorf("parsing result for %s: %w", wavBase, err)
		}
		speaker := lastSpeaker
		if w.SpeakerLabel != "" {
			if v, err := strconv.Atoi(w.SpeakerLabel); err == nil {
				speaker = v
				lastSpeaker = v
			}
		}
		rows = append(rows, database.Transcript{
			TS:      begin.Add(time.Duration(offset * float64(time.Second))),
			Speaker: speaker,
			Word:    w.Word,
		})
	}
	return rows, begin, begin.Add(length), nil
}

// wordOffset places a word at the midpoint of its time span, falling back to
// whichever bound is present.
func wordOffset(w resultWord) (float64, error) {
	start, hasStart, err := parseOffset(w.StartOffset)
	if err != nil {
		return 0, err
	}
	end, hasEnd, err := parseOffset(w.EndOffset)
	if err != nil {
		return 0, err
	}
	switch {
	case hasStart && hasEnd:
		return (start + end) / 2, nil
	case hasEnd:
		return end, nil
	case hasStart:
		return start, nil
	default:
		return 0, fmt.Errorf("word %q has no time offsets", w.Word)
	}
}

// parseOffset parses a "1.200s" style offset.
func parseOffset(s string) (float64, bool, error) {
	if s == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "s"), 64)
	if err != nil {
		return 0, false, fmt.Errorf("bad offset %q: %w", s, err)
	}
	return v, true, nil
}
