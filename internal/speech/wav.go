package speech

import (
	"encoding/binary"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const wavTimeLayout = "20060102_15h04m05"

var wavNameRe = regexp.MustCompile(`^(\d{8}_\d{2}h\d{2}m\d{2})_(\d+)ms(\.wav)?$`)

// WavName renders the blob basename for a slice beginning at begin whose
// audio ends at endSeconds.
func WavName(begin time.Time, endSeconds float64) string {
	return fmt.Sprintf("%s_%dms.wav", begin.Format(wavTimeLayout), int(endSeconds*1000))
}

// ParseWavName recovers the begin timestamp and audio length from a wav
// basename, with or without the extension.
func ParseWavName(name string) (time.Time, time.Duration, error) {
	m := wavNameRe.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, 0, fmt.Errorf("malformed wav name %q", name)
	}
	begin, err := time.ParseInLocation(wavTimeLayout, m[1], time.Local)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("malformed wav name %q: %w", name, err)
	}
	ms, err := strconv.Atoi(m[2])
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("malformed wav name %q: %w", name, err)
	}
	return begin, time.Duration(ms) * time.Millisecond, nil
}

// EncodeWAV wraps raw 16kHz mono s16le frames in a RIFF header.
func EncodeWAV(frames []byte) []byte {
	const fmtChunkSize = 16
	byteRate := wavSampleRate * wavChannels * wavSampleWidth
	blockAlign := wavChannels * wavSampleWidth

	buf := make([]byte, 0, wavHeaderSize+len(frames))
	le := binary.LittleEndian

	u32 := func(v uint32) []byte {
		b := make([]byte, 4)
		le.PutUint32(b, v)
		return b
	}
	u16 := func(v uint16) []byte {
		b := make([]byte, 2)
		le.PutUint16(b, v)
		return b
	}

	buf = append(buf, "RIFF"...)
	buf = append(buf, u32(uint32(36+len(frames)))...)
	buf = append(buf, "WAVE"...)
	buf = append(buf, "fmt "...)
	buf = append(buf, u32(fmtChunkSize)...)
	buf = append(buf, u16(1)...) // PCM
	buf = append(buf, u16(wavChannels)...)
	buf = append(buf, u32(wavSampleRate)...)
	buf = append(buf, u32(uint32(byteRate))...)
	buf = append(buf, u16(uint16(blockAlign))...)
	buf = append(buf, u16(8*wavSampleWidth)...)
	buf = append(buf, "data"...)
	buf = append(buf, u32(uint32(len(frames)))...)
	buf = append(buf, frames...)
	return buf
}
