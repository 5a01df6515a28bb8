// Package main is the entry point for the nudgeme CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/nudgeme/nudgeme/internal/config"
	"github.com/nudgeme/nudgeme/internal/core"
	"github.com/nudgeme/nudgeme/pkg/app"
	"github.com/spf13/cobra"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := fang.Execute(context.Background(), rootCmd(), fang.WithVersion(version), fang.WithCommit(commit)); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "nudgeme",
		Short:         "A self-hosted personal assistant that nudges you through the day",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	root.PersistentFlags().String("data-dir", "", "Persistent data directory")
	root.AddCommand(
		versionCmd(),
		startCmd(),
		configCmd(),
		initCmd(),
		serviceCmd(),
		mcpCmd(),
		memoryCmd(),
		sessionsCmd(),
	)
	return root
}

// runParams builds app.RunParams from the persistent flags.
func runParams(cmd *cobra.Command) app.RunParams {
	cfgPath, _ := cmd.Flags().GetString("config")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	return app.RunParams{
		ConfigPath: cfgPath,
		DataDir:    dataDir,
		Version:    version,
		Commit:     commit,
		Date:       date,
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "nudgeme %s (commit: %s, built: %s)\n", version, commit, date)
			mods := core.GetModules()
			if len(mods) == 0 {
				fmt.Fprintln(out, "\nNo compiled modules.")
				return
			}
			fmt.Fprintln(out, "\nCompiled modules:")
			for _, mod := range mods {
				fmt.Fprintf(out, "  %s\n", mod.ID)
			}
		},
	}
}

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the nudgeme daemon with all configured modules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			params := runParams(cmd)
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				params.LogLevel = slog.LevelDebug
			}
			return app.Run(params)
		},
	}
	cmd.Flags().BoolP("verbose", "v", false, "Enable debug logging")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check [path]",
		Short: "Validate configuration and provision its modules",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := runParams(cmd)
			if len(args) == 1 {
				params.ConfigPath = args[0]
			}
			params.LogWriter = io.Discard

			inst, err := app.Setup(params)
			if err != nil {
				return err
			}
			defer inst.Discard()

			ids := config.Resolve(inst.Config)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration OK: %s (%d modules)\n", inst.ConfigPath, len(ids))
			for _, id := range ids {
				fmt.Fprintf(out, "  %s\n", id)
			}
			return nil
		},
	})
	return cmd
}
