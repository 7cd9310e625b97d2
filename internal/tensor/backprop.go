package tensor

// OpKind names the operation that produced a tensor.
type OpKind int

// Recorded operation kinds.
const (
	OpAffine OpKind = iota
	OpPowf
	OpElu
	OpUnary
	OpBinary
	OpCmp
	OpWhereCond
	OpReduce
	OpToDType
	OpToDevice
	OpCopy
	OpReshape
	OpTranspose
	OpPermute
	OpNarrow
	OpBroadcast
	OpSqueeze
	OpCat
	OpGather
	OpIndexSelect
	OpIndexAdd
	OpScatterAdd
	OpMatMul
	OpConv1D
	OpConv2D
	OpConvTranspose1D
	OpConvTranspose2D
	OpAvgPool2D
	OpMaxPool2D
	OpUpsampleNearest1D
	OpUpsampleNearest2D
	OpCustom
)

var opKindNames = [...]string{
	OpAffine: "affine", OpPowf: "powf", OpElu: "elu", OpUnary: "unary", OpBinary: "binary",
	OpCmp: "cmp", OpWhereCond: "where_cond", OpReduce: "reduce", OpToDType: "to_dtype",
	OpToDevice: "to_device", OpCopy: "copy", OpReshape: "reshape", OpTranspose: "transpose",
	OpPermute: "permute", OpNarrow: "narrow", OpBroadcast: "broadcast", OpSqueeze: "squeeze",
	OpCat: "cat", OpGather: "gather", OpIndexSelect: "index_select", OpIndexAdd: "index_add",
	OpScatterAdd: "scatter_add", OpMatMul: "matmul", OpConv1D: "conv1d", OpConv2D: "conv2d",
	OpConvTranspose1D: "conv_transpose1d", OpConvTranspose2D: "conv_transpose2d",
	OpAvgPool2D: "avg_pool2d", OpMaxPool2D: "max_pool2d",
	OpUpsampleNearest1D: "upsample_nearest1d", OpUpsampleNearest2D: "upsample_nearest2d",
	OpCustom: "custom",
}

func (k OpKind) String() string {
	if int(k) < len(opKindNames) {
		return opKindNames[k]
	}
	return "unknown"
}

// BackpropOp records how a tensor was produced: the operation, the
// operands it read and the scalar parameters a derivative needs.
type BackpropOp struct {
	Kind   OpKind
	Name   string // sub-operation, e.g. "exp" for OpUnary
	Args   []*Tensor
	Params any
}

// track returns the op record when any operand is tracked, nil otherwise.
func track(kind OpKind, name string, params any, args ...*Tensor) *BackpropOp {
	for _, a := range args {
		if a != nil && a.TrackOp() {
			return &BackpropOp{Kind: kind, Name: name, Args: args, Params: params}
		}
	}
	return nil
}
