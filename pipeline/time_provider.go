package pipeline

import "time"

type TimeProvider interface {
	Now() time.Time
}

type realTimeProvider struct{}

func (realTimeProvider) Now() time.Time { return time.Now() }

var timeProvider TimeProvider = realTimeProvider{}
