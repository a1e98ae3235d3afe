package resources

import (
	"sync"

	"github.com/vk/burstcluster/internal/status"
	"github.com/vk/burstcluster/internal/tensor"
)

// Table is a keyed lookup table. Keys are compared as the float64 values
// tensors carry, so integer keys are exact only up to 2^53; larger int64
// keys may collide.
type Table struct {
	mu        sync.RWMutex
	keyType   tensor.DType
	valueType tensor.DType
	data      map[float64]float64
}

// NewTable creates an empty table.
func NewTable(keyType, valueType tensor.DType) *Table {
	return &Table{keyType: keyType, valueType: valueType, data: make(map[float64]float64)}
}

// Insert adds key/value pairs and returns the number of bytes written.
func (t *Table) Insert(keys, values tensor.Tensor) (int64, error) {
	if keys.NumElements() != values.NumElements() {
		return 0, status.Errorf(status.InvalidArgument,
			"table needs one value per key: %d keys, %d values", keys.NumElements(), values.NumElements())
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, k := range keys.Values {
		t.data[k] = values.Values[i]
	}
	return int64(len(keys.Values)) * (t.keyType.Size() + t.valueType.Size()), nil
}

// Find looks up every key, substituting def for missing ones.
func (t *Table) Find(keys tensor.Tensor, def float64) tensor.Tensor {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]float64, len(keys.Values))
	for i, k := range keys.Values {
		v, ok := t.data[k]
		if !ok {
			v = def
		}
		out[i] = v
	}
	return tensor.Tensor{DType: t.valueType, Shape: keys.Shape.Clone()}.WithValues(out)
}

// Len is the number of stored keys.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.data)
}
