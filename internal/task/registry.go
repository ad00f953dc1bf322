package task

import (
	"errors"
	"fmt"
	"image/draw"

	"github.com/rs/zerolog"
)

var (
	// ErrDuplicateTask is returned when two tasks share a name.
	ErrDuplicateTask = errors.New("task already registered")
	// ErrUnresolvedInput is returned when a task reads a resource nothing
	// before it produces.
	ErrUnresolvedInput = errors.New("input resource has no producer")
)

// Registry runs an ordered list of tasks. Tasks run in the order they were
// added, so producers must be added before their consumers.
type Registry struct {
	tasks    []Task
	provided map[string]bool
	log      zerolog.Logger
}

// NewRegistry creates an empty registry. provided lists resources supplied by
// the frame loop itself, such as MainFrame.
func NewRegistry(log zerolog.Logger, provided ...string) *Registry {
	r := &Registry{
		provided: make(map[string]bool),
		log:      log.With().Str("component", "registry").Logger(),
	}
	for _, name := range provided {
		r.provided[name] = true
	}
	return r
}

// Add appends t. Every input resource of t must be provided by the frame loop
// or an output of a task added earlier.
func (r *Registry) Add(t Task) error {
	if _, ok := r.Find(t.Name()); ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, t.Name())
	}
	for _, in := range t.InputResources() {
		if !r.provided[in] {
			return fmt.Errorf("%w: %s needs %q", ErrUnresolvedInput, t.Name(), in)
		}
	}

	r.tasks = append(r.tasks, t)
	for _, out := range t.OutputResources() {
		r.provided[out] = true
	}
	r.log.Debug().Str("task", t.Name()).Msg("task registered")
	return nil
}

// Load loads every task in order and stops at the first failure.
func (r *Registry) Load() error {
	for _, t := range r.tasks {
		if err := t.Load(); err != nil {
			return fmt.Errorf("load %s: %w", t.Name(), err)
		}
		r.log.Info().Str("task", t.Name()).Msg("task loaded")
	}
	return nil
}

// Run runs every task once. A panicking task is logged and the remaining
// tasks still run.
func (r *Registry) Run(dt float64) {
	for _, t := range r.tasks {
		r.runOne(t, dt)
	}
}

func (r *Registry) runOne(t Task, dt float64) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Str("task", t.Name()).Interface("panic", rec).Msg("task panicked")
		}
	}()
	t.Run(dt)
}

// Draw draws every task's overlay in order.
func (r *Registry) Draw(dst draw.Image) {
	for _, t := range r.tasks {
		t.Draw(dst)
	}
}

// Tasks returns the registered tasks in run order.
func (r *Registry) Tasks() []Task {
	out := make([]Task, len(r.tasks))
	copy(out, r.tasks)
	return out
}

// Find returns the task called name.
func (r *Registry) Find(name string) (Task, bool) {
	for _, t := range r.tasks {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}
