// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines Operation, a single node of a GraphSpec, along with typed
// accessors for its attributes.
package graphspec

import (
	"github.com/vk/burstcluster/internal/nodeid"
	"github.com/vk/burstcluster/internal/status"
	"github.com/vk/burstcluster/internal/tensor"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Operation is one node of the graph.
type Operation struct {
	Name   string
	Kind   string
	Inputs []string
	Device string
	Attrs  map[string]cty.Value
}

// Op builds an operation. It is the usual way to assemble graphs in Go code.
func Op(name, kind string, inputs ...string) *Operation {
	return &Operation{Name: name, Kind: kind, Inputs: inputs, Attrs: map[string]cty.Value{}}
}

// WithAttr sets an attribute and returns the operation for chaining.
func (o *Operation) WithAttr(name string, v cty.Value) *Operation {
	if o.Attrs == nil {
		o.Attrs = map[string]cty.Value{}
	}
	o.Attrs[name] = v
	return o
}

// OnDevice sets the explicit placement and returns the operation.
func (o *Operation) OnDevice(device string) *Operation {
	o.Device = device
	return o
}

// Clone returns a copy that can be modified independently. cty values are
// immutable and are shared.
func (o *Operation) Clone() *Operation {
	c := *o
	c.Inputs = append([]string(nil), o.Inputs...)
	c.Attrs = make(map[string]cty.Value, len(o.Attrs))
	for k, v := range o.Attrs {
		c.Attrs[k] = v
	}
	return &c
}

// Refs parses every input reference.
func (o *Operation) Refs() ([]nodeid.Address, error) {
	refs := make([]nodeid.Address, 0, len(o.Inputs))
	for _, in := range o.Inputs {
		ref, err := nodeid.Parse(in)
		if err != nil {
			return nil, status.Wrap(status.InvalidArgument, err, "operation %q has a bad input", o.Name)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// Attr returns a raw attribute.
func (o *Operation) Attr(name string) (cty.Value, bool) {
	v, ok := o.Attrs[name]
	if !ok || v.IsNull() {
		return cty.NilVal, false
	}
	return v, true
}

func (o *Operation) decodeAttr(name string, ty cty.Type, target any) (bool, error) {
	v, ok := o.Attr(name)
	if !ok {
		return false, nil
	}
	conv, err := convert.Convert(v, ty)
	if err != nil {
		return false, status.Wrap(status.InvalidArgument, err, "operation %q attribute %q", o.Name, name)
	}
	if err := gocty.FromCtyValue(conv, target); err != nil {
		return false, status.Wrap(status.InvalidArgument, err, "operation %q attribute %q", o.Name, name)
	}
	return true, nil
}

// AttrString reads a string attribute, or def if it is absent.
func (o *Operation) AttrString(name, def string) (string, error) {
	var s string
	ok, err := o.decodeAttr(name, cty.String, &s)
	if err != nil || !ok {
		return def, err
	}
	return s, nil
}

// AttrInt reads an integer attribute, or def if it is absent.
func (o *Operation) AttrInt(name string, def int) (int, error) {
	var n int
	ok, err := o.decodeAttr(name, cty.Number, &n)
	if err != nil || !ok {
		return def, err
	}
	return n, nil
}

// AttrFloat reads a number attribute, or def if it is absent.
func (o *Operation) AttrFloat(name string, def float64) (float64, error) {
	var f float64
	ok, err := o.decodeAttr(name, cty.Number, &f)
	if err != nil || !ok {
		return def, err
	}
	return f, nil
}

// AttrBool reads a bool attribute, or def if it is absent.
func (o *Operation) AttrBool(name string, def bool) (bool, error) {
	var b bool
	ok, err := o.decodeAttr(name, cty.Bool, &b)
	if err != nil || !ok {
		return def, err
	}
	return b, nil
}

// AttrShape reads a list of dimensions. ok is false when the attribute is absent.
func (o *Operation) AttrShape(name string) (shape tensor.Shape, ok bool, err error) {
	var dims []int
	ok, err = o.decodeAttr(name, cty.List(cty.Number), &dims)
	if err != nil || !ok {
		return nil, ok, err
	}
	if dims == nil {
		dims = []int{}
	}
	return tensor.Shape(dims), true, nil
}

// AttrDType reads a dtype name such as "float32", or def if it is absent.
func (o *Operation) AttrDType(name string, def tensor.DType) (tensor.DType, error) {
	s, err := o.AttrString(name, "")
	if err != nil || s == "" {
		return def, err
	}
	d, err := tensor.ParseDType(s)
	if err != nil {
		return def, status.Wrap(status.InvalidArgument, err, "operation %q attribute %q", o.Name, name)
	}
	return d, nil
}

// Shape builds a list-of-numbers attribute value.
func Shape(dims ...int) cty.Value {
	if len(dims) == 0 {
		return cty.ListValEmpty(cty.Number)
	}
	vals := make([]cty.Value, len(dims))
	for i, d := range dims {
		vals[i] = cty.NumberIntVal(int64(d))
	}
	return cty.ListVal(vals)
}

// Numbers builds a list-of-numbers attribute value from floats.
func Numbers(values ...float64) cty.Value {
	if len(values) == 0 {
		return cty.ListValEmpty(cty.Number)
	}
	vals := make([]cty.Value, len(values))
	for i, v := range values {
		vals[i] = cty.NumberFloatVal(v)
	}
	return cty.ListVal(vals)
}
