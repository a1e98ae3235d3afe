package resources

import (
	"sync"

	"github.com/vk/burstcluster/internal/status"
	"github.com/vk/burstcluster/internal/tensor"
)

// Variable holds a mutable tensor.
type Variable struct {
	mu    sync.RWMutex
	dtype tensor.DType
	shape tensor.Shape
	value *tensor.Tensor
}

// NewVariable creates an uninitialized variable with a declared type.
func NewVariable(dtype tensor.DType, shape tensor.Shape) *Variable {
	return &Variable{dtype: dtype, shape: shape.Clone()}
}

// DType is the declared element type.
func (v *Variable) DType() tensor.DType { return v.dtype }

// Shape is the declared shape.
func (v *Variable) Shape() tensor.Shape { return v.shape.Clone() }

// Load returns the current value, if any.
func (v *Variable) Load() (tensor.Tensor, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.value == nil {
		return tensor.Tensor{}, false
	}
	return *v.value, true
}

// Store replaces the value. The shape must match the declared shape when
// one was given.
func (v *Variable) Store(t tensor.Tensor) error {
	if len(v.shape) > 0 && !v.shape.Equal(t.Shape) {
		return status.Errorf(status.InvalidArgument, "cannot assign shape %s to variable of shape %s", t.Shape, v.shape)
	}
	stored := t.Clone()
	stored.Handle = ""
	if v.dtype != tensor.Invalid {
		stored = tensor.Tensor{DType: v.dtype, Shape: stored.Shape}.WithValues(stored.Values)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.value = &stored
	return nil
}
