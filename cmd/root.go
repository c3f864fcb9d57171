// Package cmd implements the jido-shell command line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentjido/jido-shell/config"
	"github.com/agentjido/jido-shell/log"
	"github.com/agentjido/jido-shell/repl"
	"github.com/agentjido/jido-shell/shell"
)

var (
	flagConfig    string
	flagProfile   string
	flagWorkspace string
	flagSessionID string
	flagUI        bool
)

var rootCmd = &cobra.Command{
	Use:   "jido-shell",
	Short: "Sandboxed shell session runtime",
	Long: `jido-shell starts an interactive session against a named workspace.

Commands run against a virtual filesystem built from the configured
mounts; chaining with ";" and "&&" is supported. Type "exit", "quit"
or press Ctrl-D to leave.`,
	SilenceUsage: true,
	RunE:         runRoot,
}

func init() {
	rootCmd.Flags().StringVar(&flagConfig, "config", "", "path to the configuration file")
	rootCmd.Flags().StringVar(&flagProfile, "profile", "", "configuration profile to apply")
	rootCmd.Flags().StringVar(&flagWorkspace, "workspace", "", "workspace name (default \"default\")")
	rootCmd.Flags().StringVar(&flagSessionID, "session-id", "", "attach to an existing session")
	rootCmd.Flags().BoolVar(&flagUI, "ui", false, "use the full-screen front-end")
}

func runRoot(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig, flagProfile)
	if err != nil {
		return err
	}
	if flagWorkspace != "" {
		cfg.Workspace = flagWorkspace
	}

	var logger log.LibraryLogger = log.NoOpLogger{}
	if cfg.Debug {
		logger = log.StdoutLogger{}
	}

	sh, err := shell.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}
	defer sh.Close()

	return repl.Run(sh, repl.Options{
		SessionID:  flagSessionID,
		Fullscreen: flagUI,
	})
}

// Execute runs the CLI, exiting non-zero on startup failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
