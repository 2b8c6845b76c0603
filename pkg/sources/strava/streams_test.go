package strava

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStreamCatalog(t *testing.T) {
	samples := SampleStreams()
	assert.Len(t, samples, 11)
	assert.NotContains(t, samples, StreamActivity)
	assert.NotContains(t, samples, StreamAthleteSummary)

	all := AllStreams()
	assert.Len(t, all, len(samples)+2)
	assert.Equal(t, StreamActivity, all[0])
	assert.Equal(t, StreamAthleteSummary, all[1])
}
