// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import "github.com/born-ml/strided/internal/core"

// Error is returned by every tensor operation. Match a kind with
// errors.Is against the Err* sentinels, or inspect the fields with
// errors.As.
type Error = core.Error

// ErrorKind classifies an Error.
type ErrorKind = core.ErrorKind

// Sentinels for errors.Is.
var (
	ErrShapeMismatch              = core.ErrShapeMismatch
	ErrRankMismatch               = core.ErrRankMismatch
	ErrDimOutOfRange              = core.ErrDimOutOfRange
	ErrElemCountMismatch          = core.ErrElemCountMismatch
	ErrEmptyTensor                = core.ErrEmptyTensor
	ErrDTypeMismatch              = core.ErrDTypeMismatch
	ErrUnsupportedDType           = core.ErrUnsupportedDType
	ErrUnsupportedCast            = core.ErrUnsupportedCast
	ErrDeviceMismatch             = core.ErrDeviceMismatch
	ErrUnsupportedOp              = core.ErrUnsupportedOp
	ErrNonContiguousMatMul        = core.ErrNonContiguousMatMul
	ErrNonContiguous              = core.ErrNonContiguous
	ErrLengthMismatch             = core.ErrLengthMismatch
	ErrIndexOutOfRange            = core.ErrIndexOutOfRange
	ErrUnexpectedDType            = core.ErrUnexpectedDType
	ErrUnexpectedNumberOfDims     = core.ErrUnexpectedNumberOfDims
	ErrInvalidPermutation         = core.ErrInvalidPermutation
	ErrNarrowInvalidArgs          = core.ErrNarrowInvalidArgs
	ErrOpRequiresAtLeastOneTensor = core.ErrOpRequiresAtLeastOneTensor
	ErrAllocation                 = core.ErrAllocation
	ErrBackend                    = core.ErrBackend
	ErrInvalidShape               = core.ErrInvalidShape
)
