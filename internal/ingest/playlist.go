package ingest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedPlaylist is returned when a playlist rewrite does not yield the
// three expected fields. While a recording is requested this indicates a
// tooling bug and forces a supervised restart.
var ErrMalformedPlaylist = errors.New("ingest: malformed playlist")

const (
	tagExtInf          = "#EXTINF:"
	tagProgramDateTime = "#EXT-X-PROGRAM-DATE-TIME:"
	segmentURIPrefix   = "segment_"
)

// PlaylistEvent is the outcome of one playlist cycle: the segmenter rewrote
// its rolling playlist and the previous segment file is complete.
type PlaylistEvent struct {
	// Duration is the finished segment's duration in fractional seconds.
	Duration float64
	// Begin is the absolute begin timestamp embedded by the segmenter.
	Begin time.Time
	// SegmentURI is the segment reference line, uncorrected.
	SegmentURI string
}

// ParsePlaylist extracts one EXTINF duration, one program-date-time and one
// segment URI from a rolling single-entry playlist. Fewer than three fields
// yield ErrMalformedPlaylist.
func ParsePlaylist(r io.Reader) (PlaylistEvent, error) {
	var (
		ev     PlaylistEvent
		fields int
	)

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		switch {
		case strings.HasPrefix(line, tagExtInf):
			v := strings.TrimSuffix(line[len(tagExtInf):], ",")
			d, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return ev, fmt.Errorf("%w: bad EXTINF %q", ErrMalformedPlaylist, line)
			}
			ev.Duration = d
			fields++
		case strings.HasPrefix(line, tagProgramDateTime):
			ts, err := ParseProgramDateTime(line[len(tagProgramDateTime):])
			if err != nil {
				return ev, fmt.Errorf("%w: bad program-date-time %q", ErrMalformedPlaylist, line)
			}
			ev.Begin = ts
			fields++
		case strings.HasPrefix(line, segmentURIPrefix):
			ev.SegmentURI = line
			fields++
		}
	}
	if err := sc.Err(); err != nil {
		return ev, fmt.Errorf("reading playlist: %w", err)
	}
	if fields < 3 {
		return ev, fmt.Errorf("%w: %d of 3 fields", ErrMalformedPlaylist, fields)
	}
	return ev, nil
}

// programDateTimeLayouts covers the segmenter's timestamp renderings: RFC3339
// with a colon in the zone offset, and the compact form without one.
var programDateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999-0700",
}

// ParseProgramDateTime parses an absolute playlist timestamp.
func ParseProgramDateTime(s string) (time.Time, error) {
	var firstErr error
	for _, layout := range programDateTimeLayouts {
		ts, err := time.Parse(layout, s)
		if err == nil {
			return ts, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}
