// Package cmd implements the timerfix command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/fang"
	charmlog "github.com/charmbracelet/log"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"timerfix/internal/config"
	"timerfix/internal/logging"
	"timerfix/internal/timerfix/log"
)

func init() {
	rootCmd.PersistentFlags().StringP("cwd", "c", "", "Current working directory")
	rootCmd.PersistentFlags().StringP("config", "C", "", "Configuration file (default: nearest "+config.FileName+")")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug")

	rootCmd.AddCommand(patchCmd, disasmCmd, reportCmd, schemaCmd)
}

var rootCmd = &cobra.Command{
	Use:   "timerfix",
	Short: "Rewrite action timer checks in Wurm Unlimited server classes",
	Long: `Timerfix patches the compiled server classes in place so that the tick
checks of long-running actions ask a hook class whether the tick should
proceed. It works on single .class files or directly on server.jar.`,
	Example: `
# Patch the server jar, keeping server.jar.bak
timerfix patch --backup server.jar

# See what would change without writing anything
timerfix report server.jar

# List the bytecode of the flatten method
timerfix disasm Flattening.class --method flatten
  `,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.Flags().GetBool("debug")
		log.Setup("", debug)
	},
}

// ResolveCwd applies --cwd and returns the working directory.
func ResolveCwd(cmd *cobra.Command) (string, error) {
	cwd, _ := cmd.Flags().GetString("cwd")
	if cwd != "" {
		err := os.Chdir(cwd)
		if err != nil {
			return "", fmt.Errorf("failed to change directory: %v", err)
		}
		return filepath.Abs(cwd)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %v", err)
	}
	return cwd, nil
}

// loadConfig reads --config, or the nearest timerfix.toml above cwd.
func loadConfig(cmd *cobra.Command, cwd string) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.FindAndLoad(cwd)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(cwd, path)
	}
	return config.Load(path)
}

// newEngineLogger returns the logger the patch passes write to.
func newEngineLogger(cmd *cobra.Command) *logging.LoggerCloser {
	lg := logging.NewLogger()
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		lg.SetLevel(charmlog.DebugLevel)
	}
	return lg
}

// resolvePath makes a command argument absolute against cwd.
func resolvePath(cwd, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(cwd, p)
}

func isTerminal() bool {
	return term.IsTerminal(os.Stdout.Fd())
}

func Execute() {
	if !isTerminal() {
		// Use cobra directly to avoid fang's styled output when piped
		if err := rootCmd.Execute(); err != nil {
			os.Exit(1)
		}
		return
	}
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}
