package scenario

import (
	"fmt"
	"sort"
	"sync"

	"github.com/compose-network/ledger-harness/x/errs"
)

// Key names a value one scenario hands to later ones.
type Key string

// Outputs threads values produced by scenarios to the scenarios that declare
// them in Requires.
type Outputs struct {
	mu     sync.RWMutex
	values map[Key]any
}

func NewOutputs() *Outputs {
	return &Outputs{values: make(map[Key]any)}
}

// Set stores v under k, replacing any previous value.
func (o *Outputs) Set(k Key, v any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.values[k] = v
}

// Has reports whether k was produced.
func (o *Outputs) Has(k Key) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.values[k]
	return ok
}

// Keys returns the produced keys in sorted order.
func (o *Outputs) Keys() []Key {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]Key, 0, len(o.values))
	for k := range o.values {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Get returns the value under k as a T.
func Get[T any](o *Outputs, k Key) (T, error) {
	var zero T
	o.mu.RLock()
	v, ok := o.values[k]
	o.mu.RUnlock()
	if !ok {
		return zero, errs.Newf(errs.KindMissingInput, "outputs", "%s was never produced", k)
	}
	t, ok := v.(T)
	if !ok {
		return zero, errs.Newf(errs.KindMissingInput, "outputs", "%s holds %T, want %s", k, v, fmt.Sprintf("%T", zero))
	}
	return t, nil
}
