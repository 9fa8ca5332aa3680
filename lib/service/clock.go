package service

import "time"

// clock abstracts time for the session loop so expiry behavior is testable
// without sleeping through real TTLs.
type clock interface {
	Now() time.Time
	Ticker(d time.Duration) ticker
}

type ticker interface {
	Chan() <-chan time.Time
	Stop()
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Ticker(d time.Duration) ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct{ t *time.Ticker }

func (rt realTicker) Chan() <-chan time.Time { return rt.t.C }
func (rt realTicker) Stop()                  { rt.t.Stop() }
