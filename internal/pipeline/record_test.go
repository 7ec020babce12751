package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"fxingest/internal/market"
)

func TestStatusAtLeast(t *testing.T) {
	assert.True(t, StatusDownloaded.AtLeast(StatusValidated))
	assert.True(t, StatusDownloaded.AtLeast(StatusDownloaded))
	assert.False(t, StatusValidated.AtLeast(StatusDownloaded))
	assert.True(t, StatusLoaded.AtLeast(StatusPending))

	// Terminal markers are outside the forward order.
	assert.False(t, StatusFailed.AtLeast(StatusPending))
	assert.False(t, StatusPending.AtLeast(StatusFailed))
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusSkipped.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusLoaded.Terminal())
}

func TestIdentityKey(t *testing.T) {
	rec := NewRecord("eurusd", market.PlatformASCII, market.TimeframeM1,
		market.YearMonth{Year: 2021, Month: time.January})

	assert.Equal(t, "eurusd/ascii/M1/2021-01", rec.Key())
	assert.Equal(t, StatusPending, rec.Status)
	assert.Equal(t, market.YearMonth{Year: 2021, Month: time.January}, rec.YearMonth())
}
