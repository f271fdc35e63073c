package stream

import "github.com/tphakala/audiostream/internal/audiocore"

// Observer receives stream lifecycle events on the control path. Metrics
// implement it; nil observers are replaced by a no-op.
type Observer interface {
	StreamOpened(api audiocore.API, dir audiocore.Direction, err error)
	StateChanged(state audiocore.State)
	QuirkFired(rule string)
}

type nopObserver struct{}

func (nopObserver) StreamOpened(audiocore.API, audiocore.Direction, error) {}
func (nopObserver) StateChanged(audiocore.State)                          {}
func (nopObserver) QuirkFired(string)                                     {}
