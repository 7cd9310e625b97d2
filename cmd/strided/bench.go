package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/born-ml/strided/internal/core"
	"github.com/born-ml/strided/internal/parallel"
	"github.com/born-ml/strided/internal/quant"
	"github.com/born-ml/strided/internal/storage"
	"github.com/born-ml/strided/internal/tensor"
)

type benchCase struct {
	name  string
	flops func(n int) float64
	run   func(a, b *tensor.Tensor) (*tensor.Tensor, error)
}

var benchCases = []benchCase{
	{
		name:  "matmul",
		flops: func(n int) float64 { return 2 * float64(n) * float64(n) * float64(n) },
		run:   func(a, b *tensor.Tensor) (*tensor.Tensor, error) { return a.MatMul(b) },
	},
	{
		name:  "affine",
		flops: func(n int) float64 { return 2 * float64(n) * float64(n) },
		run:   func(a, _ *tensor.Tensor) (*tensor.Tensor, error) { return a.Affine(2, 1) },
	},
	{
		name:  "add",
		flops: func(n int) float64 { return float64(n) * float64(n) },
		run:   func(a, b *tensor.Tensor) (*tensor.Tensor, error) { return a.Add(b) },
	},
	{
		name:  "exp",
		flops: func(n int) float64 { return float64(n) * float64(n) },
		run:   func(a, _ *tensor.Tensor) (*tensor.Tensor, error) { return a.Exp() },
	},
	{
		name:  "sum",
		flops: func(n int) float64 { return float64(n) * float64(n) },
		run:   func(a, _ *tensor.Tensor) (*tensor.Tensor, error) { return a.Sum(1) },
	},
	{
		name:  "transpose+contiguous",
		flops: func(n int) float64 { return float64(n) * float64(n) },
		run: func(a, _ *tensor.Tensor) (*tensor.Tensor, error) {
			tr, err := a.T()
			if err != nil {
				return nil, err
			}
			return tr.Contiguous()
		},
	},
}

func synchronize(dev storage.Device) error {
	if g, ok := dev.GPUDevice(); ok {
		return g.Synchronize()
	}
	return nil
}

type benchResult struct {
	mean   time.Duration
	gflops float64
}

func benchOne(dev storage.Device, c benchCase, n, iters int) (benchResult, error) {
	shape := core.Shape{n, n}
	a, err := tensor.RandUniform(-1, 1, shape, core.F32, dev)
	if err != nil {
		return benchResult{}, err
	}
	b, err := tensor.RandUniform(-1, 1, shape, core.F32, dev)
	if err != nil {
		return benchResult{}, err
	}
	defer a.Storage().Release()
	defer b.Storage().Release()

	// warm up kernels and pooled buffers
	out, err := c.run(a, b)
	if err != nil {
		return benchResult{}, err
	}
	out.Storage().Release()
	if err := synchronize(dev); err != nil {
		return benchResult{}, err
	}

	start := time.Now()
	for range iters {
		out, err := c.run(a, b)
		if err != nil {
			return benchResult{}, err
		}
		out.Storage().Release()
	}
	if err := synchronize(dev); err != nil {
		return benchResult{}, err
	}
	elapsed := time.Since(start)
	mean := elapsed / time.Duration(iters)
	return benchResult{mean: mean, gflops: c.flops(n) / mean.Seconds() / 1e9}, nil
}

func hostValues(n int) ([]float32, error) {
	t, err := tensor.RandUniform(-1, 1, core.Shape{n}, core.F32, storage.CPU)
	if err != nil {
		return nil, err
	}
	return tensor.ToVec1[float32](t)
}

// benchQuant times an [n, n] f32 activation against an [n, n] weight in the
// named block format.
func benchQuant(name string, n, iters int) (benchResult, error) {
	typ, err := quant.ParseType(name)
	if err != nil {
		return benchResult{}, err
	}
	w, err := hostValues(n * n)
	if err != nil {
		return benchResult{}, err
	}
	qw, err := quant.Quantize(typ, core.Shape{n, n}, w)
	if err != nil {
		return benchResult{}, err
	}
	x, err := hostValues(n * n)
	if err != nil {
		return benchResult{}, err
	}
	cfg := parallel.DefaultConfig()
	if _, err := quant.MatMul(x, n, n, qw, cfg); err != nil {
		return benchResult{}, err
	}

	start := time.Now()
	for range iters {
		if _, err := quant.MatMul(x, n, n, qw, cfg); err != nil {
			return benchResult{}, err
		}
	}
	mean := time.Since(start) / time.Duration(iters)
	return benchResult{mean: mean, gflops: 2 * float64(n) * float64(n) * float64(n) / mean.Seconds() / 1e9}, nil
}

func benchHandler(cmd *cobra.Command, _ []string) error {
	n, _ := cmd.Flags().GetInt("size")
	iters, _ := cmd.Flags().GetInt("iters")
	if n <= 0 || iters <= 0 {
		return fmt.Errorf("size and iters must be positive, got %d and %d", n, iters)
	}

	devs := []storage.Device{storage.CPU}
	if cpuOnly, _ := cmd.Flags().GetBool("cpu"); !cpuOnly {
		gpus := openGPUs()
		defer closeAll(gpus)
		for _, g := range gpus {
			devs = append(devs, storage.GPU(g))
		}
	}

	var data [][]string
	for _, dev := range devs {
		for _, c := range benchCases {
			r, err := benchOne(dev, c, n, iters)
			if err != nil {
				slog.Warn("benchmark failed", "device", dev.String(), "op", c.name, "error", err)
				data = append(data, []string{dev.String(), c.name, "-", "-"})
				continue
			}
			slog.Debug("benchmark", "device", dev.String(), "op", c.name, "mean", r.mean)
			data = append(data, []string{dev.String(), c.name, r.mean.String(), fmt.Sprintf("%.2f", r.gflops)})
		}
	}

	if name, _ := cmd.Flags().GetString("quant"); name != "" {
		op := "matmul(" + name + ")"
		r, err := benchQuant(name, n, iters)
		if err != nil {
			slog.Warn("benchmark failed", "device", "cpu", "op", op, "error", err)
			data = append(data, []string{"cpu", op, "-", "-"})
		} else {
			data = append(data, []string{"cpu", op, r.mean.String(), fmt.Sprintf("%.2f", r.gflops)})
		}
	}

	table := newTable(cmd.OutOrStdout(), []string{"DEVICE", "OP", "MEAN", "GFLOP/S"})
	table.AppendBulk(data)
	table.Render()
	return nil
}

func newBenchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Time core kernels on every available device",
		Args:  cobra.NoArgs,
		RunE:  benchHandler,
	}
	cmd.Flags().Int("size", 256, "Side length of the square f32 operands")
	cmd.Flags().Int("iters", 10, "Timed iterations per op")
	cmd.Flags().Bool("cpu", false, "Only benchmark the host")
	cmd.Flags().String("quant", "q4_0", "Block format for the quantized matmul row, empty to skip")
	return cmd
}
