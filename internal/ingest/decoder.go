package ingest

import (
	"bufio"
	"bytes"
	"io"
)

// NewLineScanner returns a scanner over the merged output of the capture
// pipeline. ffmpeg terminates progress lines with a bare CR, so the scanner
// splits on CR, LF or CRLF alike.
func NewLineScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	sc.Split(scanCROrLF)
	return sc
}

func scanCROrLF(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		advance := i + 1
		if data[i] == '\r' {
			if advance == len(data) && !atEOF {
				// A LF may still follow the CR; wait for more input.
				return 0, nil, nil
			}
			if advance < len(data) && data[advance] == '\n' {
				advance++
			}
		}
		return advance, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
