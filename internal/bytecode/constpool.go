package bytecode

import (
	"github.com/roach88/waypost/internal/value"
)

// ConstPool is the builder-side deduplicated table of literal values.
// Equal values (by deep value equality, so two distinct strings with the
// same contents fold together) share one index.
type ConstPool struct {
	values []value.Value
}

// NewConstPool creates an empty constant pool.
func NewConstPool() *ConstPool {
	return &ConstPool{}
}

// Index returns the pool index of v, appending it on first sight.
// Pools are small (bounded by a 2-byte count), so dedup is a linear scan
// with deep equality rather than a hashed key.
func (p *ConstPool) Index(v value.Value) int {
	if v == nil {
		v = value.Null{}
	}
	for i, existing := range p.values {
		if existing.Equal(v) {
			return i
		}
	}
	p.values = append(p.values, v)
	return len(p.values) - 1
}

// Len returns the number of pooled constants.
func (p *ConstPool) Len() int {
	return len(p.values)
}

// Values returns the pooled constants in index order.
// The slice is shared; callers must not mutate it.
func (p *ConstPool) Values() []value.Value {
	return p.values
}
