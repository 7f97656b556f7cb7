package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/taskchat/taskchat/internal/config"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	dataDir string
	baseURL string
	verbose bool
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   appName,
		Short: "Chat with the task manager's assistants from the terminal",
		Long: `taskchat opens a chat panel with two assistants: the app guide, which
answers questions about the application, and a per-task assistant scoped to
one of your tasks. Switch between them without leaving the panel.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, flags)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.dataDir, "data-dir", "", "data directory (default $TASKCHAT_DATA or ~/.taskchat)")
	pf.StringVar(&flags.baseURL, "base-url", "", "backend URL, overrides config")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newChatCmd(flags),
		newReplCmd(flags),
		newAskCmd(flags),
		newTasksCmd(flags),
		newTokenCmd(flags),
		newConfigCmd(flags),
		newVersionCmd(),
	)
	return root
}

// load reads the config and applies command-line overrides.
func (f *globalFlags) load() (*config.Config, error) {
	cfg, err := config.Load(f.dataDir)
	if err != nil {
		return nil, err
	}
	if f.baseURL != "" {
		cfg.BaseURL = strings.TrimRight(f.baseURL, "/")
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	if f.verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s v%s\n", appName, version)
		},
	}
}
