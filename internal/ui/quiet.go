package ui

import (
	"github.com/hxsam/appifi/internal/event"
	"github.com/hxsam/appifi/internal/stats"
)

// quietPresenter consumes events but produces no output.
type quietPresenter struct {
	stats stats.Reader
}

func (p *quietPresenter) Run(events <-chan event.Event) error {
	for range events {
		// Counters live on the collector; the job writes them directly.
	}
	return nil
}

func (p *quietPresenter) Summary() string {
	return ""
}
