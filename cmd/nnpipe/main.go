// Command nnpipe launches, inspects and serves tensor pipelines.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nnsuite/nnpipe/config"
)

var (
	successExitCode = 0
	errorExitCode   = 1
)

func main() {
	if err := newCLI().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Command failed: %v\n", err)
		os.Exit(errorExitCode)
	}
	os.Exit(successExitCode)
}

// commands returns every subcommand of the CLI.
func commands() []*cobra.Command {
	return []*cobra.Command{
		newLaunchCmd(),
		newInspectCmd(),
		newServeCmd(),
	}
}

func newCLI() *cobra.Command {
	cobra.EnableCommandSorting = false
	root := &cobra.Command{
		Use:           "nnpipe",
		Short:         "Tensor stream pipeline runner",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	root.PersistentFlags().String("config", "", "YAML configuration file (overrides "+config.EnvConfig+")")
	for _, cmd := range commands() {
		appendEnvDocs(cmd)
		root.AddCommand(cmd)
	}
	return root
}

func appendEnvDocs(cmd *cobra.Command) {
	usage := "\nEnvironment Variables:\n"
	for _, e := range [][2]string{
		{config.EnvDebug, "Enable debug logging"},
		{config.EnvConfig, "YAML configuration file"},
		{config.EnvMaxTensors, "Maximum number of tensors in a set"},
		{config.EnvMaxRank, "Maximum rank of a tensor"},
		{config.EnvQueueSize, "Capacity of appsrc queues"},
		{config.EnvLinkBuffer, "Capacity of links between elements"},
		{config.EnvNATSURL, "NATS server for network elements"},
	} {
		usage += fmt.Sprintf("      %-24s   %s\n", e[0], e[1])
	}
	cmd.SetUsageTemplate(cmd.UsageTemplate() + usage)
}

// loadConfig reads the file passed with --config or the environment.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Load()
	}
	c, err := config.FromFile(path)
	if err != nil {
		return config.Config{}, err
	}
	return c, c.Validate()
}
