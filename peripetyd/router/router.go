// Package router fans raw StorageEvents out to every registered parser
// whose filter accepts them.
package router

import (
	"context"

	"github.com/dwlehman/peripety/internal/plog"
	"github.com/dwlehman/peripety/peripety"
)

// Router is single-threaded: it holds the registration table and performs
// fan-out sequentially on its own goroutine, so registration never races
// dispatch.
type Router struct {
	log     *plog.Logger
	in      <-chan peripety.StorageEvent
	parsers []peripety.ParserInfo
}

// New builds a Router reading raw events from in. Register parsers with
// Register before calling Run.
func New(log *plog.Logger, in <-chan peripety.StorageEvent) *Router {
	return &Router{log: log, in: in}
}

// Register adds a parser's registration. Not safe to call concurrently with
// Run; register every parser up front, before Run starts.
func (r *Router) Register(p peripety.ParserInfo) {
	r.parsers = append(r.parsers, p)
}

// Run blocks, dispatching events until in is closed or ctx is cancelled.
func (r *Router) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-r.in:
			if !ok {
				return nil
			}
			r.dispatch(event)
		}
	}
}

// dispatch fans out a freshly collected event. Every event entering the
// Router from the Collector is Raw; parsers forward their enriched results
// straight to the sink, never back through the Router, so Synthetic never
// appears here.
func (r *Router) dispatch(event peripety.StorageEvent) {
	for _, p := range r.parsers {
		if !p.Accepts(peripety.Raw, event.SubSystem) {
			continue
		}
		// A blocking send here is the deliberate backpressure point: a slow
		// parser stalls the router rather than losing events.
		p.Sender <- event.Clone()
	}
}
