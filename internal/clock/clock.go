package clock

import (
	"sync"
	"time"
)

// Clock - источник текущего времени, передаётся явно во все расчёты со временем
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func System() Clock { return systemClock{} }

// Manual - часы для тестов, время двигается только вручную
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

func NewManual(now time.Time) *Manual {
	return &Manual{now: now}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Set(now time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// InLocation переводит показания часов в указанную зону
func InLocation(c Clock, loc *time.Location) Clock {
	if loc == nil {
		return c
	}
	return locClock{base: c, loc: loc}
}

type locClock struct {
	base Clock
	loc  *time.Location
}

func (l locClock) Now() time.Time { return l.base.Now().In(l.loc) }
