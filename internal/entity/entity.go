// Package entity defines what the auth capabilities need from a persisted
// record and from the store that writes it.
//
// A capability never reaches into a concrete model. It reads and writes
// fields by column name through Record, contributes pre-commit callbacks
// through Hooks, and persists partial changes through a Patcher. The store
// owns the Pipeline and runs it before every insert and update, so the data
// actually written reflects every hook's effect.
package entity

import (
	"context"
	"fmt"
	"sort"
)

// Record is field access by column name.
// An absent or unset field reads as "".
type Record interface {
	Field(name string) string
	SetField(name, value string) error
}

// Fields is a change set for a partial update. It is itself a Record, so
// hooks see exactly the columns being written and nothing else.
type Fields map[string]string

func (f Fields) Field(name string) string { return f[name] }

func (f Fields) SetField(name, value string) error {
	f[name] = value
	return nil
}

// Has reports whether the change set touches name.
func (f Fields) Has(name string) bool {
	_, ok := f[name]
	return ok
}

// Names returns the changed column names in sorted order.
func (f Fields) Names() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply copies every change onto rec.
func (f Fields) Apply(rec Record) error {
	for _, name := range f.Names() {
		if err := rec.SetField(name, f[name]); err != nil {
			return fmt.Errorf("entity: setting %s: %w", name, err)
		}
	}
	return nil
}

// Patcher applies a field-level patch to a single identified record,
// persists it and reflects the written values back onto rec.
type Patcher interface {
	Patch(ctx context.Context, rec Record, changes Fields) error
}
