// Package tensor is the user-facing tensor: a shared storage read through
// a layout, plus the operation metadata autodiff needs.
//
// Tensors are immutable. View operations (Transpose, Narrow, BroadcastAs,
// contiguous Reshape) return a new Tensor sharing the same storage; every
// other operation writes fresh storage. Inputs are validated here (shape,
// broadcast resolution), then routed to the storage layer, which checks
// device and dtype agreement before any backend code runs.
package tensor

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/born-ml/strided/internal/core"
	"github.com/born-ml/strided/internal/storage"
)

// ID uniquely identifies a tensor within the process.
type ID uint64

var lastID atomic.Uint64

func newID() ID { return ID(lastID.Add(1)) }

// Tensor is a view over a storage buffer.
type Tensor struct {
	id       ID
	storage  *storage.Storage
	layout   core.Layout
	op       *BackpropOp
	variable bool
}

// fromStorage wraps fresh contiguous storage.
func fromStorage(s *storage.Storage, shape core.Shape, op *BackpropOp) *Tensor {
	return &Tensor{id: newID(), storage: s, layout: core.Contiguous(shape), op: op}
}

// view shares t's storage under a new layout.
func (t *Tensor) view(l core.Layout, op *BackpropOp) *Tensor {
	return &Tensor{id: newID(), storage: t.storage, layout: l, op: op}
}

// ID returns the tensor's unique id.
func (t *Tensor) ID() ID { return t.id }

// Shape returns a copy of the tensor's shape.
func (t *Tensor) Shape() core.Shape { return t.layout.Shape().Clone() }

// Dims returns a copy of the tensor's dimensions.
func (t *Tensor) Dims() []int { return t.Shape() }

// Dim returns the size of dim, which may be negative.
func (t *Tensor) Dim(dim int) (int, error) {
	d, err := t.layout.Shape().ResolveDim("dim", dim)
	if err != nil {
		return 0, err
	}
	return t.layout.Dims()[d], nil
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int { return t.layout.Rank() }

// ElemCount returns the number of elements.
func (t *Tensor) ElemCount() int { return t.layout.ElemCount() }

// DType returns the element type.
func (t *Tensor) DType() core.DType { return t.storage.DType() }

// Device returns the device holding the storage.
func (t *Tensor) Device() storage.Device { return t.storage.Device() }

// Layout returns the tensor's layout.
func (t *Tensor) Layout() core.Layout { return t.layout }

// Storage returns the shared storage. Callers must not write into it.
func (t *Tensor) Storage() *storage.Storage { return t.storage }

// IsContiguous reports whether the layout is row-major.
func (t *Tensor) IsContiguous() bool { return t.layout.IsContiguous() }

// Op returns the operation that produced t, or nil when it is not tracked.
func (t *Tensor) Op() *BackpropOp { return t.op }

// IsVariable reports whether t was created with Var.
func (t *Tensor) IsVariable() bool { return t.variable }

// TrackOp reports whether operations on t record their operands.
func (t *Tensor) TrackOp() bool { return t.variable || t.op != nil }

// Detach returns a view of t without op metadata.
func (t *Tensor) Detach() *Tensor {
	return &Tensor{id: newID(), storage: t.storage, layout: t.layout}
}

// String returns a short summary such as Tensor[2, 3; f32, cpu].
func (t *Tensor) String() string {
	dims := strings.Trim(t.layout.Shape().String(), "[]")
	return fmt.Sprintf("Tensor[%s; %s, %s]", dims, t.DType(), t.Device())
}
