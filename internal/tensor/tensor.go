// Package tensor provides the dense value type that flows along graph edges.
//
// Values are kept as float64 regardless of DType; the DType decides the
// element width used for memory accounting and how values are rounded.
package tensor

import (
	"fmt"
	"math"
	"strings"
)

// DType is the element type of a tensor.
type DType int

const (
	Invalid DType = iota
	Float32
	Float64
	Int32
	Int64
	Bool
	// Resource tensors carry a handle to a stateful resource rather than data.
	Resource
)

var dtypeNames = map[DType]string{
	Invalid:  "invalid",
	Float32:  "float32",
	Float64:  "float64",
	Int32:    "int32",
	Int64:    "int64",
	Bool:     "bool",
	Resource: "resource",
}

var dtypeAliases = map[string]DType{
	"float":    Float32,
	"float32":  Float32,
	"double":   Float64,
	"float64":  Float64,
	"int":      Int32,
	"int32":    Int32,
	"int64":    Int64,
	"bool":     Bool,
	"resource": Resource,
}

func (d DType) String() string {
	if name, ok := dtypeNames[d]; ok {
		return name
	}
	return fmt.Sprintf("dtype(%d)", int(d))
}

// Size is the width of one element in bytes.
func (d DType) Size() int64 {
	switch d {
	case Float32, Int32:
		return 4
	case Float64, Int64, Resource:
		return 8
	case Bool:
		return 1
	}
	return 0
}

// IsInteger reports whether values of this type are whole numbers.
func (d DType) IsInteger() bool {
	return d == Int32 || d == Int64
}

// ParseDType maps a type name such as "float32" or "int64" to a DType.
func ParseDType(s string) (DType, error) {
	if d, ok := dtypeAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return d, nil
	}
	return Invalid, fmt.Errorf("unknown dtype %q", s)
}

// Shape lists the size of each dimension. An empty shape is a scalar.
type Shape []int

// NumElements is the product of all dimensions, or -1 if any is unknown.
func (s Shape) NumElements() int64 {
	n := int64(1)
	for _, d := range s {
		if d < 0 {
			return -1
		}
		n *= int64(d)
	}
	return n
}

// Equal reports whether two shapes have the same rank and dimensions.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	if s == nil {
		return nil
	}
	return append(Shape{}, s...)
}

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = fmt.Sprint(d)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Tensor is a dense, immutable-by-convention value.
//
// Handle is set on tensors that refer to a stateful resource (a variable,
// table or queue). A variable reference may carry the variable's current
// Values as well; an uninitialized one carries only the handle.
type Tensor struct {
	DType  DType
	Shape  Shape
	Values []float64
	Handle string
}

// New builds a tensor and checks that values fill the shape exactly.
func New(dtype DType, shape Shape, values []float64) (Tensor, error) {
	if n := shape.NumElements(); n < 0 || int64(len(values)) != n {
		return Tensor{}, fmt.Errorf("shape %s needs %d values, got %d", shape, n, len(values))
	}
	t := Tensor{DType: dtype, Shape: shape.Clone(), Values: append([]float64{}, values...)}
	t.normalize()
	return t, nil
}

// Scalar builds a rank-0 tensor.
func Scalar(dtype DType, v float64) Tensor {
	t := Tensor{DType: dtype, Shape: Shape{}, Values: []float64{v}}
	t.normalize()
	return t
}

// Fill builds a tensor of the given shape with every element set to v.
func Fill(dtype DType, shape Shape, v float64) Tensor {
	n := shape.NumElements()
	if n < 0 {
		n = 0
	}
	values := make([]float64, n)
	for i := range values {
		values[i] = v
	}
	t := Tensor{DType: dtype, Shape: shape.Clone(), Values: values}
	t.normalize()
	return t
}

// Vector builds a rank-1 tensor.
func Vector(dtype DType, values ...float64) Tensor {
	t := Tensor{DType: dtype, Shape: Shape{len(values)}, Values: append([]float64{}, values...)}
	t.normalize()
	return t
}

// HandleTo builds a scalar resource handle naming a resource.
func HandleTo(name string) Tensor {
	return Tensor{DType: Resource, Shape: Shape{}, Handle: name}
}

// NumElements is the element count implied by the shape.
func (t Tensor) NumElements() int64 {
	return t.Shape.NumElements()
}

// ByteSize is the memory footprint implied by dtype and shape.
func (t Tensor) ByteSize() int64 {
	n := t.NumElements()
	if n < 0 {
		return 0
	}
	return n * t.DType.Size()
}

// IsRef reports whether the tensor refers to a stateful resource.
func (t Tensor) IsRef() bool {
	return t.Handle != ""
}

// HasValues reports whether the tensor carries readable data.
func (t Tensor) HasValues() bool {
	return int64(len(t.Values)) == t.NumElements()
}

// WithValues returns a copy of t carrying new values for the same shape.
func (t Tensor) WithValues(values []float64) Tensor {
	out := Tensor{DType: t.DType, Shape: t.Shape.Clone(), Values: values, Handle: t.Handle}
	out.normalize()
	return out
}

// Clone returns a deep copy.
func (t Tensor) Clone() Tensor {
	out := t
	out.Shape = t.Shape.Clone()
	if t.Values != nil {
		out.Values = append([]float64{}, t.Values...)
	}
	return out
}

// Truthy reports whether every element of the tensor is non-zero.
func (t Tensor) Truthy() bool {
	for _, v := range t.Values {
		if v == 0 {
			return false
		}
	}
	return len(t.Values) > 0
}

func (t Tensor) String() string {
	if t.IsRef() && !t.HasValues() {
		return fmt.Sprintf("%s%s<%s>", t.DType, t.Shape, t.Handle)
	}
	return fmt.Sprintf("%s%s%v", t.DType, t.Shape, t.Values)
}

func (t *Tensor) normalize() {
	switch {
	case t.DType.IsInteger():
		for i, v := range t.Values {
			t.Values[i] = math.Trunc(v)
		}
	case t.DType == Bool:
		for i, v := range t.Values {
			if v != 0 {
				t.Values[i] = 1
			}
		}
	case t.DType == Float32:
		for i, v := range t.Values {
			t.Values[i] = float64(float32(v))
		}
	}
}
