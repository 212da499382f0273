package pad

import "time"

// timer is a callback scheduled on the player's virtual clock.
type timer struct {
	at      time.Duration
	period  time.Duration // zero for one-shot timers
	fn      func()
	stopped bool
}

// stop cancels the timer. Safe on nil and on already fired timers.
func (t *timer) stop() {
	if t != nil {
		t.stopped = true
	}
}

// scheduler is a cooperative timer queue driven by advance. Callbacks run
// one at a time in due-time order (ties in scheduling order) on the
// goroutine that calls advance.
type scheduler struct {
	now    time.Duration
	timers []*timer
}

func (s *scheduler) after(d time.Duration, fn func()) *timer {
	if d < 0 {
		d = 0
	}
	t := &timer{at: s.now + d, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

// every schedules fn each period, first firing one period from now.
func (s *scheduler) every(period time.Duration, fn func()) *timer {
	t := &timer{at: s.now + period, period: period, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

// advance moves the clock forward by d, firing every timer that falls due.
// Timers scheduled by a callback fire within the same advance if due.
func (s *scheduler) advance(d time.Duration) {
	target := s.now + d
	for {
		t := s.next(target)
		if t == nil {
			break
		}
		s.now = t.at
		if t.period > 0 {
			t.at += t.period
		} else {
			t.stopped = true
		}
		t.fn()
	}
	s.now = target
	s.compact()
}

// next returns the earliest live timer due at or before limit.
func (s *scheduler) next(limit time.Duration) *timer {
	var best *timer
	for _, t := range s.timers {
		if t.stopped || t.at > limit {
			continue
		}
		if best == nil || t.at < best.at {
			best = t
		}
	}
	return best
}

func (s *scheduler) compact() {
	live := s.timers[:0]
	for _, t := range s.timers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	for i := len(live); i < len(s.timers); i++ {
		s.timers[i] = nil
	}
	s.timers = live
}

// cancelAll stops every pending timer.
func (s *scheduler) cancelAll() {
	for _, t := range s.timers {
		t.stopped = true
	}
	s.timers = nil
}

// pending reports the number of live timers.
func (s *scheduler) pending() int {
	n := 0
	for _, t := range s.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}
