// Command strided inspects the devices the engine can run on, benchmarks
// core kernels and cross-checks the backends against each other.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/born-ml/strided/internal/envconfig"
	"github.com/born-ml/strided/internal/logutil"
)

const version = "v0.1.0-dev"

func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-32s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI builds the root command with every subcommand attached.
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "strided",
		Short:         "Strided tensor engine tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			slog.SetDefault(logutil.NewLogger(cmd.ErrOrStderr(), envconfig.LogLevel()))
		},
		Run: func(cmd *cobra.Command, args []string) {
			if v, _ := cmd.Flags().GetBool("version"); v {
				versionHandler(cmd, args)
				return
			}
			cmd.Print(cmd.UsageString())
		},
	}
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run:   versionHandler,
	}
	devicesCmd := newDevicesCmd()
	envCmd := newEnvCmd()
	benchCmd := newBenchCmd()
	checkCmd := newCheckCmd()

	envVars := envconfig.AsMap()
	gpuEnvs := []envconfig.EnvVar{
		envVars["STRIDED_NO_GPU"],
		envVars["STRIDED_WEBGPU_POWER"],
		envVars["STRIDED_METAL_ORDINAL"],
	}
	for _, cmd := range []*cobra.Command{devicesCmd, benchCmd, checkCmd} {
		switch cmd {
		case benchCmd:
			appendEnvDocs(cmd, append([]envconfig.EnvVar{
				envVars["STRIDED_NUM_THREADS"],
				envVars["STRIDED_GPU_COMPUTE_PER_BUFFER"],
			}, gpuEnvs...))
		case checkCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["STRIDED_DEBUG"]})
		default:
			appendEnvDocs(cmd, gpuEnvs)
		}
	}

	rootCmd.AddCommand(versionCmd, devicesCmd, envCmd, benchCmd, checkCmd)
	return rootCmd
}

func versionHandler(cmd *cobra.Command, _ []string) {
	fmt.Fprintf(cmd.OutOrStdout(), "strided version is %s\n", version)
}

func main() {
	if err := NewCLI().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
