package main

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/born-ml/strided/internal/backend/gpu"
	"github.com/born-ml/strided/internal/backend/gpu/gputest"
	"github.com/born-ml/strided/internal/core"
	"github.com/born-ml/strided/internal/storage"
	"github.com/born-ml/strided/internal/tensor"
)

// probe runs a fixed mix of strided, broadcast, indexing and reduction ops
// and returns every result flattened to f32.
func probe(dev storage.Device) (map[string][]float32, error) {
	x, err := tensor.FromSlice([]float32{1, -2, 3, -4, 5, -6}, core.Shape{2, 3}, dev)
	if err != nil {
		return nil, err
	}
	bias, err := tensor.FromSlice([]float32{0.5, 1.5}, core.Shape{2}, dev)
	if err != nil {
		return nil, err
	}
	ids, err := tensor.FromSlice([]uint32{2, 0}, core.Shape{2}, dev)
	if err != nil {
		return nil, err
	}
	xt, err := x.T()
	if err != nil {
		return nil, err
	}
	shifted, err := xt.BroadcastAdd(bias)
	if err != nil {
		return nil, err
	}

	results := map[string]func() (*tensor.Tensor, error){
		"relu_sum": func() (*tensor.Tensor, error) {
			act, err := shifted.Relu()
			if err != nil {
				return nil, err
			}
			return act.Sum(0)
		},
		"argmax":   func() (*tensor.Tensor, error) { return shifted.ArgMax(0) },
		"matmul":   func() (*tensor.Tensor, error) { return x.MatMul(xt) },
		"cat":      func() (*tensor.Tensor, error) { return tensor.Cat([]*tensor.Tensor{x, x}, 1) },
		"select":   func() (*tensor.Tensor, error) { return x.IndexSelect(ids, 1) },
		"reshape":  func() (*tensor.Tensor, error) { return xt.Reshape(6) },
		"affine":   func() (*tensor.Tensor, error) { return xt.Affine(0.5, -1) },
		"to_u8":    func() (*tensor.Tensor, error) { return x.ToDType(core.U8) },
		"max_cols": func() (*tensor.Tensor, error) { return x.Max(1) },
		"where": func() (*tensor.Tensor, error) {
			col, err := bias.Reshape(2, 1)
			if err != nil {
				return nil, err
			}
			mask, err := x.BroadcastCmp(core.Gt, col)
			if err != nil {
				return nil, err
			}
			zeros, err := tensor.ZerosLike(x)
			if err != nil {
				return nil, err
			}
			return mask.WhereCond(x, zeros)
		},
	}

	out := make(map[string][]float32, len(results))
	for name, fn := range results {
		r, err := fn()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		f, err := r.ToDType(core.F32)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		f, err = f.FlattenAll()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if out[name], err = tensor.ToVec1[float32](f); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	return out, nil
}

var approx = cmp.Comparer(func(a, b float32) bool {
	return a == b || math.Abs(float64(a-b)) <= 1e-5*math.Max(1, math.Abs(float64(a)))
})

type checkRow struct {
	device string
	result string
	pool   gpu.PoolStats
	cached int
}

func checkDevice(dev storage.Device, want map[string][]float32) checkRow {
	row := checkRow{device: dev.String(), result: "ok"}
	got, err := probe(dev)
	switch {
	case err != nil:
		row.result = "error: " + err.Error()
	default:
		if diff := cmp.Diff(want, got, approx); diff != "" {
			slog.Error("backend disagrees with cpu", "device", row.device, "diff", diff)
			row.result = "mismatch"
		}
	}
	if g, ok := dev.GPUDevice(); ok {
		row.pool = g.Pool().Stats()
		row.cached = g.Kernels().Len()
	}
	return row
}

func checkHandler(cmd *cobra.Command, _ []string) error {
	want, err := probe(storage.CPU)
	if err != nil {
		return fmt.Errorf("cpu reference: %w", err)
	}

	var devs []storage.Device
	for _, kind := range []core.DeviceKind{core.WebGPU, core.Metal} {
		opts := gputest.DefaultOptions()
		opts.Kind = kind
		opts.Name = kind.String() + " emulator"
		d, _ := gputest.NewDevice(opts)
		defer d.Close()
		devs = append(devs, storage.GPU(d))
	}
	if emulatedOnly, _ := cmd.Flags().GetBool("emulated"); !emulatedOnly {
		gpus := openGPUs()
		defer closeAll(gpus)
		for _, g := range gpus {
			devs = append(devs, storage.GPU(g))
		}
	}

	rows := make([]checkRow, len(devs))
	var g errgroup.Group
	for i, dev := range devs {
		g.Go(func() error {
			rows[i] = checkDevice(dev, want)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	data := [][]string{{"cpu", "reference", "-", "-", "-", "-"}}
	for _, r := range rows {
		if r.result != "ok" {
			failed++
		}
		data = append(data, []string{
			r.device, r.result,
			strconv.Itoa(r.cached),
			fmt.Sprintf("%d/%d", r.pool.Hits, r.pool.Misses),
			strconv.Itoa(r.pool.Buffers),
			strconv.FormatInt(r.pool.Bytes, 10),
		})
	}
	table := newTable(cmd.OutOrStdout(), []string{"DEVICE", "RESULT", "KERNELS", "POOL HIT/MISS", "BUFFERS", "BYTES"})
	table.AppendBulk(data)
	table.Render()

	if failed > 0 {
		return fmt.Errorf("%d of %d backends disagree with the cpu", failed, len(rows))
	}
	return nil
}

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run the same ops on every backend and compare with the cpu",
		Args:  cobra.NoArgs,
		RunE:  checkHandler,
	}
	cmd.Flags().Bool("emulated", false, "Only check the host emulators")
	return cmd
}
