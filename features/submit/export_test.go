package submit

import "time"

// SetClock pins id and time generation for tests.
func (s *Service) SetClock(now func() time.Time, newID func() string) {
	s.now = now
	s.newID = newID
}
