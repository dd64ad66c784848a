package cmd

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cablewatch/cablewatch/internal/timeline"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(errors.New("boom")))

	assert.Equal(t, 2, ExitCode(fmt.Errorf("opening: %w", timeline.ErrInvalidName)))
	assert.Equal(t, 2, ExitCode(timeline.ErrReservedName))
	assert.Equal(t, 2, ExitCode(timeline.ErrNotFound))
	assert.Equal(t, 2, ExitCode(usageErrorf("bad argument %q", "x")))
	assert.Equal(t, 2, ExitCode(fmt.Errorf("wrapped: %w", usageErrorf("bad"))))
}

func TestParseSpan(t *testing.T) {
	d, err := parseSpan("600s")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, d)

	d, err = parseSpan("90")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	d, err = parseSpan("1.5")
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, d)

	_, err = parseSpan("soon")
	assert.Error(t, err)
	assert.Equal(t, 2, ExitCode(err))
}
