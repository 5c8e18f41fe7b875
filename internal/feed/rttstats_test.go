package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRTTStatsRolling(t *testing.T) {
	var s rttStats
	assert.Equal(t, RTTPayload{}, s.payload())

	s.add(10)
	s.add(30)
	s.add(20)

	p := s.payload()
	assert.Equal(t, 20.0, p.Current)
	assert.Equal(t, 20.0, p.Average)
	assert.Equal(t, 10.0, p.Min)
	assert.Equal(t, 30.0, p.Max)
}

func TestRTTStatsSingleSample(t *testing.T) {
	var s rttStats
	s.add(42)

	p := s.payload()
	assert.Equal(t, 42.0, p.Current)
	assert.Equal(t, 42.0, p.Min)
	assert.Equal(t, 42.0, p.Max)
}
