package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/born-ml/strided/internal/backend/cpu"
	"github.com/born-ml/strided/internal/backend/gpu"
	"github.com/born-ml/strided/internal/backend/metal"
	"github.com/born-ml/strided/internal/backend/webgpu"
	"github.com/born-ml/strided/internal/envconfig"
)

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	return table
}

// openGPUs opens every GPU backend available on this host. Backends that
// are missing are logged and skipped.
func openGPUs() []*gpu.Device {
	if envconfig.NoGPU() {
		slog.Debug("gpu discovery disabled")
		return nil
	}
	var out []*gpu.Device
	for _, open := range []struct {
		name string
		fn   func() (*gpu.Device, error)
	}{
		{"webgpu", webgpu.Open},
		{"metal", metal.Open},
	} {
		dev, err := open.fn()
		if err != nil {
			if errors.Is(err, gpu.ErrUnavailable) {
				slog.Debug("gpu backend unavailable", "backend", open.name, "error", err)
			} else {
				slog.Warn("gpu backend failed to open", "backend", open.name, "error", err)
			}
			continue
		}
		slog.Info("opened gpu device", "device", dev.String())
		out = append(out, dev)
	}
	return out
}

func closeAll(devs []*gpu.Device) {
	for _, d := range devs {
		if err := d.Close(); err != nil {
			slog.Warn("closing gpu device", "device", d.String(), "error", err)
		}
	}
}

func capsString(c gpu.Caps) string {
	var out []string
	if c.F16 {
		out = append(out, "f16")
	}
	if c.ByteStores {
		out = append(out, "byte-stores")
	}
	if c.VendorGEMM {
		out = append(out, "gemm")
	}
	if len(out) == 0 {
		return "-"
	}
	return strings.Join(out, ",")
}

func devicesHandler(cmd *cobra.Command, _ []string) error {
	host := cpu.Default()
	data := [][]string{{
		"cpu", host.Name(), "native",
		fmt.Sprintf("threads=%d %s", host.Threads(), strings.Join(host.Features(), ",")),
	}}

	devs := openGPUs()
	defer closeAll(devs)
	for _, d := range devs {
		info := d.Info()
		data = append(data, []string{d.Location().String(), info.Name, info.Backend, capsString(info.Caps)})
	}

	table := newTable(cmd.OutOrStdout(), []string{"DEVICE", "NAME", "BACKEND", "FEATURES"})
	table.AppendBulk(data)
	table.Render()
	return nil
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List the devices tensors can be placed on",
		Args:  cobra.NoArgs,
		RunE:  devicesHandler,
	}
}

func envHandler(cmd *cobra.Command, _ []string) error {
	vars := envconfig.AsMap()
	var data [][]string
	for _, name := range slices.Sorted(maps.Keys(vars)) {
		v := vars[name]
		data = append(data, []string{v.Name, fmt.Sprint(v.Value), v.Description})
	}
	table := newTable(cmd.OutOrStdout(), []string{"NAME", "VALUE", "DESCRIPTION"})
	table.AppendBulk(data)
	table.Render()
	return nil
}

func newEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Show the effective engine configuration",
		Args:  cobra.NoArgs,
		RunE:  envHandler,
	}
}
