package feed

// rttStats keeps a rolling round-trip statistic for one camera's publisher
// link, in milliseconds.
type rttStats struct {
	current float64
	sum     float64
	count   int
	min     float64
	max     float64
}

func (s *rttStats) add(ms float64) {
	s.current = ms
	s.sum += ms
	s.count++
	if s.count == 1 || ms < s.min {
		s.min = ms
	}
	if ms > s.max {
		s.max = ms
	}
}

func (s *rttStats) payload() RTTPayload {
	avg := 0.0
	if s.count > 0 {
		avg = s.sum / float64(s.count)
	}
	return RTTPayload{
		Current: s.current,
		Average: avg,
		Min:     s.min,
		Max:     s.max,
	}
}
