package kernels

import (
	"github.com/vk/burstcluster/internal/graphspec"
	"github.com/vk/burstcluster/internal/resources"
	"github.com/vk/burstcluster/internal/status"
	"github.com/vk/burstcluster/internal/tensor"
)

func registerStateKernels(r *Registry) {
	r.Register(&Kernel{Kind: KindVariable, Flags: ResourceCreator | Stateful, ResourceKind: resources.KindVariable, Compute: computeVariable})
	r.Register(&Kernel{Kind: KindAssign, Flags: Stateful, Compute: computeAssign})
	r.Register(&Kernel{Kind: KindHashTable, Flags: ResourceCreator | Stateful, ResourceKind: resources.KindTable, Compute: computeHashTable})
	r.Register(&Kernel{Kind: KindInitializeTable, Flags: Initializer | Stateful, Compute: computeInitializeTable})
	r.Register(&Kernel{Kind: KindLookupTableFind, Flags: Stateful, Compute: computeLookupTableFind})
}

// ResourceName is the registry key a creator op uses: its `shared_name`
// attribute if set, else the op name.
func ResourceName(op *graphspec.Operation) string {
	if name, err := op.AttrString("shared_name", ""); err == nil && name != "" {
		return name
	}
	return op.Name
}

// resourceFingerprint identifies a resource definition independently of the
// op that declares it, so that shared resources can be matched.
func resourceFingerprint(op *graphspec.Operation) string {
	def := op.Clone()
	def.Name = "resource"
	def.Inputs = nil
	def.Device = ""
	delete(def.Attrs, "shared_name")
	return graphspec.OpFingerprint(def)
}

func (kc *Context) requireResources() error {
	if kc.Resources == nil {
		return status.Errorf(status.FailedPrecondition, "%s %q needs a resource registry", kc.Op.Kind, kc.Op.Name)
	}
	return nil
}

func (kc *Context) create(kind resources.Kind, create func() (any, error)) (*resources.Entry, error) {
	if err := kc.requireResources(); err != nil {
		return nil, err
	}
	entry, _, err := kc.Resources.LookupOrCreate(kc.context(), ResourceName(kc.Op), kind, resourceFingerprint(kc.Op), kc.Op.Name, create)
	return entry, err
}

func (kc *Context) lookup(input int, kind resources.Kind) (*resources.Entry, error) {
	name, err := kc.Handle(input)
	if err != nil {
		return nil, err
	}
	if err := kc.requireResources(); err != nil {
		return nil, err
	}
	entry, ok := kc.Resources.Get(name)
	if !ok {
		return nil, status.Errorf(status.NotFound, "resource %q does not exist", name)
	}
	if entry.Kind != kind {
		return nil, status.Errorf(status.InvalidArgument, "resource %q is a %s, %s %q needs a %s",
			name, entry.Kind, kc.Op.Kind, kc.Op.Name, kind)
	}
	return entry, nil
}

func computeVariable(kc *Context) error {
	dtype, err := kc.Op.AttrDType("dtype", tensor.Float32)
	if err != nil {
		return err
	}
	shape, _, err := kc.Op.AttrShape("shape")
	if err != nil {
		return err
	}
	entry, err := kc.create(resources.KindVariable, func() (any, error) {
		return resources.NewVariable(dtype, shape), nil
	})
	if err != nil {
		return err
	}

	v := entry.Handle.(*resources.Variable)
	out := tensor.Tensor{DType: v.DType(), Shape: v.Shape()}
	if value, ok := v.Load(); ok {
		out = value
	}
	out.Handle = entry.Name
	kc.SetOutput(0, out)
	return nil
}

func computeAssign(kc *Context) error {
	entry, err := kc.lookup(0, resources.KindVariable)
	if err != nil {
		return err
	}
	value, err := kc.Input(1)
	if err != nil {
		return err
	}

	v := entry.Handle.(*resources.Variable)
	if err := v.Store(value); err != nil {
		return err
	}
	stored, _ := v.Load()
	kc.RecordWrite(entry.Name, stored.ByteSize())
	if err := kc.Resources.MarkInitialized(entry.Name, kc.Op.Name); err != nil {
		return err
	}

	stored.Handle = entry.Name
	kc.SetOutput(0, stored)
	return nil
}

func computeHashTable(kc *Context) error {
	keyType, err := kc.Op.AttrDType("key_dtype", tensor.Int64)
	if err != nil {
		return err
	}
	valueType, err := kc.Op.AttrDType("value_dtype", tensor.Int64)
	if err != nil {
		return err
	}
	entry, err := kc.create(resources.KindTable, func() (any, error) {
		return resources.NewTable(keyType, valueType), nil
	})
	if err != nil {
		return err
	}
	kc.SetOutput(0, tensor.HandleTo(entry.Name))
	return nil
}

// computeInitializeTable populates a table once; later executions against an
// already populated table are no-ops.
func computeInitializeTable(kc *Context) error {
	entry, err := kc.lookup(0, resources.KindTable)
	if err != nil {
		return err
	}
	keys, err := kc.Input(1)
	if err != nil {
		return err
	}
	values, err := kc.Input(2)
	if err != nil {
		return err
	}
	if kc.Resources.Initialized(entry.Name) {
		return nil
	}

	written, err := entry.Handle.(*resources.Table).Insert(keys, values)
	if err != nil {
		return err
	}
	kc.RecordWrite(entry.Name, written)
	return kc.Resources.MarkInitialized(entry.Name, kc.Op.Name)
}

func computeLookupTableFind(kc *Context) error {
	entry, err := kc.lookup(0, resources.KindTable)
	if err != nil {
		return err
	}
	if !kc.Resources.Initialized(entry.Name) {
		return status.Errorf(status.FailedPrecondition, "table %q is not initialized", entry.Name)
	}
	keys, err := kc.Input(1)
	if err != nil {
		return err
	}
	def := 0.0
	if kc.NumInputs() > 2 {
		d, err := kc.Input(2)
		if err != nil {
			return err
		}
		if len(d.Values) > 0 {
			def = d.Values[0]
		}
	}
	kc.SetOutput(0, entry.Handle.(*resources.Table).Find(keys, def))
	return nil
}
