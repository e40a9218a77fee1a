// Package cli implements the shellbridge command line interface.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mkvold/shellbridge/internal/config"
	"github.com/mkvold/shellbridge/internal/history"
	"github.com/mkvold/shellbridge/internal/logging"
	"github.com/mkvold/shellbridge/internal/registry"
	"github.com/mkvold/shellbridge/internal/sshexec"
	"github.com/mkvold/shellbridge/internal/sshpool"
)

var (
	cliVersion string

	flagConfigFile string
	flagLogLevel   string
	flagLogFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "shellbridge",
	Short: "Execute commands on configured SSH servers over MCP",
	Long: `shellbridge maintains reusable SSH connections to a fixed set of named
servers and executes commands against them on demand. Run "shellbridge serve"
to expose the servers to an MCP client, or use "exec" for one-off commands.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigFile, "config", "", "config file (default is $HOME/.config/shellbridge/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "override logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "override logging format (json, console)")
}

// Execute runs the CLI with the given version string.
func Execute(version string) error {
	cliVersion = version
	return rootCmd.Execute()
}

// ExitError signals that the process should exit with a specific code
// without printing an additional error message.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// app bundles the wired core components for one command invocation.
type app struct {
	cfg  *config.Config
	reg  *registry.Registry
	pool *sshpool.Pool
	exec *sshexec.Executor
	hist *history.Store
}

// buildApp loads config, initializes logging, and wires the registry, pool,
// executor, and optional history store. The returned cleanup closes all
// connections and the history database.
func buildApp() (*app, func(), error) {
	loader := config.NewLoader()
	if flagConfigFile != "" {
		loader.SetConfigFile(flagConfigFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}

	if flagLogLevel != "" {
		cfg.Logging.Level = flagLogLevel
	}
	if flagLogFormat != "" {
		cfg.Logging.Format = flagLogFormat
	}
	logging.Init(logging.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		EnableCaller: cfg.Logging.EnableCaller,
	})
	if cfgUsed := loader.ConfigFileUsed(); cfgUsed != "" {
		logging.Debug().Str("config_file", cfgUsed).Msg("loaded config file")
	}

	reg, err := registry.Load(cfg.Descriptors())
	if err != nil {
		return nil, nil, err
	}

	pool := sshpool.New(reg)

	var hist *history.Store
	execOpts := []sshexec.Option{}
	if cfg.History.Enabled {
		hist, err = history.Open(cfg.History.Path, cfg.History.MaxEntries)
		if err != nil {
			// History is auxiliary; a broken database must not take the
			// tool down.
			logging.Warn().Err(err).Msg("history disabled")
		} else {
			execOpts = append(execOpts, sshexec.WithRecorder(hist))
		}
	}

	executor := sshexec.New(reg, pool, execOpts...)

	cleanup := func() {
		pool.ReleaseAll()
		if hist != nil {
			hist.Close()
		}
	}

	return &app{
		cfg:  cfg,
		reg:  reg,
		pool: pool,
		exec: executor,
		hist: hist,
	}, cleanup, nil
}
