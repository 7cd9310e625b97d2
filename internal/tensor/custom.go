package tensor

import (
	"github.com/born-ml/strided/internal/backend/cpu"
	"github.com/born-ml/strided/internal/backend/gpu"
	"github.com/born-ml/strided/internal/core"
	"github.com/born-ml/strided/internal/storage"
)

// CustomOp1 is a user-defined operation over one tensor. CPUForward
// receives the operand's storage and layout and returns fresh contiguous
// storage together with its shape.
type CustomOp1 interface {
	Name() string
	CPUForward(s *cpu.Storage, l core.Layout) (*cpu.Storage, core.Shape, error)
}

// CustomOp2 is a user-defined operation over two tensors.
type CustomOp2 interface {
	Name() string
	CPUForward(s1 *cpu.Storage, l1 core.Layout, s2 *cpu.Storage, l2 core.Layout) (*cpu.Storage, core.Shape, error)
}

// GPUForward1 is implemented by a CustomOp1 that can run on a GPU device.
type GPUForward1 interface {
	GPUForward(s *gpu.Storage, l core.Layout) (*gpu.Storage, core.Shape, error)
}

// GPUForward2 is implemented by a CustomOp2 that can run on a GPU device.
type GPUForward2 interface {
	GPUForward(s1 *gpu.Storage, l1 core.Layout, s2 *gpu.Storage, l2 core.Layout) (*gpu.Storage, core.Shape, error)
}

// ApplyOp1 runs op on t's device.
func (t *Tensor) ApplyOp1(op CustomOp1) (*Tensor, error) {
	if cs, ok := t.storage.CPU(); ok {
		out, shape, err := op.CPUForward(cs, t.layout)
		if err != nil {
			return nil, err
		}
		return fromStorage(storage.FromCPU(out), shape, track(OpCustom, op.Name(), op, t)), nil
	}
	g, ok := op.(GPUForward1)
	if !ok {
		return nil, unsupportedCustom(op.Name(), t)
	}
	gs, _ := t.storage.GPU()
	out, shape, err := g.GPUForward(gs, t.layout)
	if err != nil {
		return nil, err
	}
	return fromStorage(storage.FromGPU(out), shape, track(OpCustom, op.Name(), op, t)), nil
}

// ApplyOp2 runs op on the shared device of t and rhs.
func (t *Tensor) ApplyOp2(rhs *Tensor, op CustomOp2) (*Tensor, error) {
	if !t.Device().Same(rhs.Device()) {
		return nil, core.WithArg(core.DeviceMismatchError(op.Name(), t.Device().Location(), rhs.Device().Location()), 2)
	}
	if c1, ok := t.storage.CPU(); ok {
		c2, _ := rhs.storage.CPU()
		out, shape, err := op.CPUForward(c1, t.layout, c2, rhs.layout)
		if err != nil {
			return nil, err
		}
		return fromStorage(storage.FromCPU(out), shape, track(OpCustom, op.Name(), op, t, rhs)), nil
	}
	g, ok := op.(GPUForward2)
	if !ok {
		return nil, unsupportedCustom(op.Name(), t)
	}
	g1, _ := t.storage.GPU()
	g2, _ := rhs.storage.GPU()
	out, shape, err := g.GPUForward(g1, t.layout, g2, rhs.layout)
	if err != nil {
		return nil, err
	}
	return fromStorage(storage.FromGPU(out), shape, track(OpCustom, op.Name(), op, t, rhs)), nil
}

func unsupportedCustom(name string, t *Tensor) error {
	return &core.Error{
		Kind:      core.KindUnsupportedOp,
		Op:        name,
		DTypes:    []core.DType{t.DType()},
		Locations: []core.Location{t.Device().Location()},
	}
}
