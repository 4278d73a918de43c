package bootstrap

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/launchdarkly/egg-mock/egg"
	"github.com/launchdarkly/egg-mock/mock"
	"github.com/launchdarkly/egg-mock/servicedef"
)

// NewCommand creates the egg-mock command with its start-cluster, call and check subcommands.
func NewCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "egg-mock",
		Short:         "Child process entry points and tools for egg-mock",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       servicedef.Version,
	}
	root.AddCommand(startClusterCommand(), callCommand(), checkCommand())
	return root
}

func startClusterCommand() *cobra.Command {
	return &cobra.Command{
		Use:   servicedef.CommandStartCluster + " <options-json>",
		Short: "Run an application cluster until SIGTERM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := StartCluster(context.Background(), args[0], ipcWriter())
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
			}
			return err
		},
	}
}

func callCommand() *cobra.Command {
	return &cobra.Command{
		Use:   servicedef.CommandCall + " <call-json>",
		Short: "Forward one call to a running cluster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code := Call(context.Background(), args[0], cmd.OutOrStdout(), cmd.ErrOrStderr())
			if code != servicedef.CallExitOK {
				return &ExitCodeError{Code: code}
			}
			return nil
		},
	}
}

func checkCommand() *cobra.Command {
	var framework string
	cmd := &cobra.Command{
		Use:   "check [baseDir]",
		Short: "Validate an application directory and print the options it resolves to",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := mock.Options{Framework: framework}
			if len(args) > 0 {
				abs, err := filepath.Abs(args[0])
				if err != nil {
					return err
				}
				opts.BaseDir = abs
			}
			formatted, err := mock.FormatOptions(opts)
			if err != nil {
				color.New(color.FgRed).Fprintf(cmd.ErrOrStderr(), "invalid: %s\n", err)
				return err
			}
			printOptions(cmd.OutOrStdout(), formatted)
			return nil
		},
	}
	cmd.Flags().StringVar(&framework, "framework", "", "framework name (default: resolved from the environment and manifests)")
	return cmd
}

func printOptions(w io.Writer, opts mock.Options) {
	key := color.New(color.FgCyan).SprintFunc()
	fmt.Fprintf(w, "%s %s\n", key("baseDir:"), opts.BaseDir)
	fmt.Fprintf(w, "%s %s", key("framework:"), opts.Framework)
	if _, ok := egg.Lookup(opts.Framework); !ok {
		color.New(color.FgYellow).Fprint(w, " (not registered in this binary)")
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s %t\n", key("cache:"), *opts.Cache)
	fmt.Fprintf(w, "%s %t\n", key("clean:"), *opts.Clean)
	fmt.Fprintf(w, "%s %t\n", key("plugin:"), *opts.Plugin)
	names := make([]string, 0, len(opts.Plugins))
	for name := range opts.Plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(w, key("plugins:"))
	for _, name := range names {
		p := opts.Plugins[name]
		fmt.Fprintf(w, "  %s enable=%t", name, p.Enable)
		if p.Path != "" {
			fmt.Fprintf(w, " path=%s", p.Path)
		}
		fmt.Fprintln(w)
	}
}
