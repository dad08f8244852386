// Package batch runs DVH calculations for many structures in parallel.
//
// Each structure is calculated in its own goroutine. A semaphore bounds the
// number of structures in flight to NumCores, and the results are joined
// through a channel into a map keyed by structure ID. A failing structure
// does not stop the others; its error is reported in its Outcome.
package batch

import (
	"fmt"
	"io"
	"log"
	"runtime"

	"dvhcalc/pkg/dose"
	"dvhcalc/pkg/dvh"
	"dvhcalc/pkg/geometry"
)

// ProgressCallback is called after each structure completes with the number
// of finished structures and the total.
type ProgressCallback func(done, total int)

// Outcome is the DVH result of one structure.
type Outcome struct {
	ID     int
	Name   string
	Result *dvh.Result
	Err    error
}

// ConformityOutcome is the conformity result of one structure.
type ConformityOutcome struct {
	ID         int
	Name       string
	Conformity *dvh.Conformity
	Err        error
}

// Runner fans structure calculations out over a fixed number of workers.
type Runner struct {
	// NumCores bounds the number of structures processed at once. Zero or
	// negative uses runtime.NumCPU.
	NumCores int

	Engine *dvh.Engine

	// Progress is optional.
	Progress ProgressCallback

	// Logger receives one line per failed structure. Nil discards them.
	Logger *log.Logger
}

// NewRunner creates a runner for engine using numCores workers.
func NewRunner(engine *dvh.Engine, numCores int) *Runner {
	return &Runner{NumCores: numCores, Engine: engine}
}

// Run calculates the DVH of every structure in field. Structures sharing an
// ID overwrite each other in the result.
func (r *Runner) Run(structures []*geometry.Structure, field *dose.Field) map[int]Outcome {
	done := fanOut(r, structures, func(s *geometry.Structure) (*dvh.Result, error) {
		return r.Engine.Calculate(s, field)
	})

	out := make(map[int]Outcome, len(done))
	for _, d := range done {
		out[d.id] = Outcome{ID: d.id, Name: d.name, Result: d.value, Err: d.err}
	}
	return out
}

// RunConformity computes the conformity index of every structure for the
// isodose above lowerLimit cGy.
func (r *Runner) RunConformity(structures []*geometry.Structure, field *dose.Field, lowerLimit float64) map[int]ConformityOutcome {
	done := fanOut(r, structures, func(s *geometry.Structure) (*dvh.Conformity, error) {
		return r.Engine.ConformityIndex(s, field, lowerLimit)
	})

	out := make(map[int]ConformityOutcome, len(done))
	for _, d := range done {
		out[d.id] = ConformityOutcome{ID: d.id, Name: d.name, Conformity: d.value, Err: d.err}
	}
	return out
}

func (r *Runner) workers(n int) int {
	w := r.NumCores
	if w <= 0 {
		w = runtime.NumCPU()
	}
	if w > n {
		w = n
	}
	return w
}

func (r *Runner) logger() *log.Logger {
	if r.Logger == nil {
		return log.New(io.Discard, "", 0)
	}
	return r.Logger
}

type job[T any] struct {
	id    int
	name  string
	value T
	err   error
}

// fanOut runs calc once per structure, at most r.workers at a time, and
// collects the results in completion order.
func fanOut[T any](r *Runner, structures []*geometry.Structure, calc func(*geometry.Structure) (T, error)) []job[T] {
	total := len(structures)
	if total == 0 {
		return nil
	}
	logger := r.logger()

	resultChan := make(chan job[T])
	sem := make(chan struct{}, r.workers(total))

	for _, s := range structures {
		go func(s *geometry.Structure) {
			sem <- struct{}{}
			defer func() { <-sem }()

			res := job[T]{id: s.ID, name: s.Name}
			defer func() {
				if p := recover(); p != nil {
					res.err = fmt.Errorf("batch: structure %q: panic: %v", s.Name, p)
				}
				resultChan <- res
			}()
			res.value, res.err = calc(s)
		}(s)
	}

	done := make([]job[T], 0, total)
	for len(done) < total {
		res := <-resultChan
		if res.err != nil {
			logger.Printf("structure %d (%s): %v", res.id, res.name, res.err)
		}
		done = append(done, res)
		if r.Progress != nil {
			r.Progress(len(done), total)
		}
	}
	return done
}
