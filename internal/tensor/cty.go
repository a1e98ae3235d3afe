package tensor

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
)

// FromCty converts a number, bool, or rectangular nest of lists/tuples into a
// tensor. If dtype is Invalid it is inferred: bool leaves give Bool and
// numbers give Float32.
func FromCty(v cty.Value, dtype DType) (Tensor, error) {
	if v.IsNull() || !v.IsWhollyKnown() {
		return Tensor{}, fmt.Errorf("tensor value must be known and non-null")
	}

	shape := inferShape(v)
	var values []float64
	sawBool := false
	if err := flatten(v, shape, 0, &values, &sawBool); err != nil {
		return Tensor{}, err
	}

	if dtype == Invalid {
		dtype = Float32
		if sawBool {
			dtype = Bool
		}
	}
	return New(dtype, shape, values)
}

// ToCty converts a tensor back into a cty value: a number or bool for
// scalars, nested tuples otherwise.
func (t Tensor) ToCty() cty.Value {
	if !t.HasValues() {
		return cty.NullVal(cty.DynamicPseudoType)
	}
	pos := 0
	return t.toCty(0, &pos)
}

func (t Tensor) toCty(depth int, pos *int) cty.Value {
	if depth == len(t.Shape) {
		v := t.Values[*pos]
		*pos++
		if t.DType == Bool {
			return cty.BoolVal(v != 0)
		}
		return cty.NumberFloatVal(v)
	}
	if t.Shape[depth] == 0 {
		return cty.EmptyTupleVal
	}
	elems := make([]cty.Value, t.Shape[depth])
	for i := range elems {
		elems[i] = t.toCty(depth+1, pos)
	}
	return cty.TupleVal(elems)
}

func isSequence(ty cty.Type) bool {
	return ty.IsListType() || ty.IsTupleType() || ty.IsSetType()
}

func inferShape(v cty.Value) Shape {
	shape := Shape{}
	for isSequence(v.Type()) {
		n := v.LengthInt()
		shape = append(shape, n)
		if n == 0 {
			break
		}
		it := v.ElementIterator()
		it.Next()
		_, v = it.Element()
	}
	return shape
}

func flatten(v cty.Value, shape Shape, depth int, out *[]float64, sawBool *bool) error {
	ty := v.Type()
	switch {
	case ty == cty.Number:
		if depth != len(shape) {
			return fmt.Errorf("ragged tensor value at depth %d", depth)
		}
		f, _ := v.AsBigFloat().Float64()
		*out = append(*out, f)
	case ty == cty.Bool:
		if depth != len(shape) {
			return fmt.Errorf("ragged tensor value at depth %d", depth)
		}
		*sawBool = true
		if v.True() {
			*out = append(*out, 1)
		} else {
			*out = append(*out, 0)
		}
	case isSequence(ty):
		if depth >= len(shape) || v.LengthInt() != shape[depth] {
			return fmt.Errorf("ragged tensor value at depth %d", depth)
		}
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			if err := flatten(ev, shape, depth+1, out, sawBool); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unsupported tensor element type %s", ty.FriendlyName())
	}
	return nil
}
