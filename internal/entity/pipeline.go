package entity

import (
	"context"
	"fmt"
)

// Event names a point in the write lifecycle.
type Event string

const (
	BeforeInsert Event = "before_insert"
	BeforeUpdate Event = "before_update"
)

// HookFunc may mutate rec. A non-nil error aborts the write.
type HookFunc func(ctx context.Context, rec Record) error

// Hook is a named pre-commit callback bound to one event.
type Hook struct {
	Name  string
	Event Event
	Fn    HookFunc
}

// Capability is anything that contributes hooks to a Pipeline.
type Capability interface {
	Hooks() []Hook
}

// Pipeline runs hooks in registration order. It is built once at wiring
// time and is read-only afterwards.
type Pipeline struct {
	hooks []Hook
}

// NewPipeline returns a pipeline with the hooks of every capability, in the
// order given.
func NewPipeline(caps ...Capability) *Pipeline {
	p := &Pipeline{}
	for _, c := range caps {
		p.Use(c)
	}
	return p
}

func (p *Pipeline) Use(c Capability) {
	p.Register(c.Hooks()...)
}

func (p *Pipeline) Register(hooks ...Hook) {
	p.hooks = append(p.hooks, hooks...)
}

// Names lists the hooks registered for ev, in run order.
func (p *Pipeline) Names(ev Event) []string {
	var names []string
	for _, h := range p.hooks {
		if h.Event == ev {
			names = append(names, h.Name)
		}
	}
	return names
}

// Run invokes every hook registered for ev and stops at the first failure.
// A nil pipeline is a no-op.
func (p *Pipeline) Run(ctx context.Context, ev Event, rec Record) error {
	if p == nil {
		return nil
	}
	for _, h := range p.hooks {
		if h.Event != ev {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h.Fn(ctx, rec); err != nil {
			return fmt.Errorf("%s hook %q: %w", ev, h.Name, err)
		}
	}
	return nil
}
