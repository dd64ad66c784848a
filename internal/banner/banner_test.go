package banner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFreezeParser(t *testing.T) {
	p := newFreezeParser()

	lines := []string{
		"[freezedetect @ 0x5640] lavfi.freezedetect.freeze_start: 12.04",
		"frame=  300 fps= 25 q=-1.0 size=N/A",
		"[freezedetect @ 0x5640] lavfi.freezedetect.freeze_duration: 4.2",
		"[freezedetect @ 0x5640] lavfi.freezedetect.freeze_end: 16.24",
		"[freezedetect @ 0x5640] lavfi.freezedetect.freeze_start: 20.0",
		"[freezedetect @ 0x5640] lavfi.freezedetect.freeze_end: 25.5",
	}

	var windows []FreezeWindow
	for _, ln := range lines {
		if w, ok := p.ProcessLine(ln); ok {
			windows = append(windows, w)
		}
	}

	require.Len(t, windows, 2)
	assert.InDelta(t, 12.04, windows[0].Start, 1e-9)
	assert.InDelta(t, 16.24, windows[0].End, 1e-9)
	assert.InDelta(t, 4.2, windows[0].Duration(), 1e-9)
	assert.InDelta(t, 5.5, windows[1].Duration(), 1e-9)
}

func TestFreezeEndWithoutStartIgnored(t *testing.T) {
	p := newFreezeParser()
	_, ok := p.ProcessLine("[freezedetect @ 0x5640] lavfi.freezedetect.freeze_end: 16.24")
	assert.False(t, ok)
}

func TestKnownLayouts(t *testing.T) {
	for name, crop := range Layouts {
		assert.Contains(t, crop, "crop=", name)
	}
}
