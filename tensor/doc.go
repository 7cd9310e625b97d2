// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor is the public API of the strided tensor engine.
//
// # Overview
//
// A Tensor pairs a storage buffer with a strided layout. Views such as
// Transpose, Narrow, BroadcastAs and most Reshape calls only rewrite the
// layout; every other op allocates fresh storage on the device of its
// operands. Operands must share a device and, except where noted, a dtype.
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/strided/backend/cpu"
//	    "github.com/born-ml/strided/tensor"
//	)
//
//	func main() {
//	    x, _ := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, cpu.Device())
//	    xt, _ := x.T()
//	    y, _ := x.MatMul(xt)
//	    rows, _ := tensor.ToVec2[float32](y) // [[14 32] [32 77]]
//	}
//
// # Devices
//
// The host device is always available. GPU devices are opened through the
// backend/webgpu and backend/metal packages and released with Close.
// Ops a GPU backend does not implement return ErrUnsupportedOp; move the
// tensor with ToDevice and retry on the host.
//
// # Errors
//
// Every failure is an *Error carrying the op name, the shapes, dtypes and
// devices involved and, for multi-operand ops, the 1-based index of the
// offending operand:
//
//	_, err := a.Add(b)
//	if errors.Is(err, tensor.ErrShapeMismatch) {
//	    var e *tensor.Error
//	    errors.As(err, &e)
//	    log.Printf("operand %d: %v", e.Arg, e.Shapes)
//	}
package tensor
