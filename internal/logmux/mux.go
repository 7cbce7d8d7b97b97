package logmux

import (
	"sync"

	"github.com/Paintersrp/kr/internal/engine"
)

// Sink receives every event delivered by the mux, in emission order.
type Sink interface {
	Write(evt engine.Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(evt engine.Event)

func (f SinkFunc) Write(evt engine.Event) {
	f(evt)
}

// Mux drains the supervisor event channel and fans each event out to the
// registered sinks. Events are never dropped; the supervisor blocks while
// sinks catch up.
type Mux struct {
	in    chan engine.Event
	sinks []Sink
	done  chan struct{}

	closeOnce sync.Once
}

// New constructs a mux with an input buffer of the provided size and starts
// draining it. A size of zero results in a minimally buffered channel.
func New(size int, sinks ...Sink) *Mux {
	if size <= 0 {
		size = 1
	}
	m := &Mux{
		in:    make(chan engine.Event, size),
		done:  make(chan struct{}),
		sinks: make([]Sink, 0, len(sinks)),
	}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	go m.run()
	return m
}

// Input exposes the channel the supervisor emits on.
func (m *Mux) Input() chan<- engine.Event {
	return m.in
}

// Close stops accepting events and waits until every buffered event has been
// delivered. The supervisor must not emit after Close.
func (m *Mux) Close() {
	m.closeOnce.Do(func() {
		close(m.in)
	})
	<-m.done
}

func (m *Mux) run() {
	defer close(m.done)
	for evt := range m.in {
		for _, s := range m.sinks {
			s.Write(evt)
		}
	}
}
