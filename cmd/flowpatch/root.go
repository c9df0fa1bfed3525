package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dd0wney/flowpatch/pkg/logging"
)

var version = "dev"

// app is the state shared by every command of one invocation.
type app struct {
	stdout  io.Writer
	stderr  io.Writer
	v       *viper.Viper
	cfgFile string

	cfg    Config
	logger logging.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr, v: viper.New()}

	root := &cobra.Command{
		Use:           "flowpatch",
		Short:         "Safe, verifiable edits of workflow graph documents",
		Long:          longRoot,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVar(
		&a.cfgFile,
		"config",
		"",
		"config file (default is ./flowpatch.yaml or $HOME/.flowpatch/flowpatch.yaml)",
	)
	root.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")

	root.AddCommand(
		newApplyCmd(a),
		newVerifyCmd(a),
		newInspectCmd(a),
		newRestoreCmd(a),
	)
	return root
}

// setup reads the config file and environment, binds the flags of cmd and
// builds the logger. Precedence: flag, env, config file, default.
func (a *app) setup(cmd *cobra.Command) error {
	v := a.v
	setDefaults(v)

	v.SetEnvPrefix("FLOWPATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	// LOG_LEVEL is honoured as a fallback, as for the library's stderr logger.
	if err := v.BindEnv("log_level", "FLOWPATCH_LOG_LEVEL", "LOG_LEVEL"); err != nil {
		return fmt.Errorf("bind env: %w", err)
	}

	if a.cfgFile != "" {
		v.SetConfigFile(a.cfgFile)
	} else {
		v.SetConfigName("flowpatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".flowpatch"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	for _, key := range configKeys {
		if flag := cmd.Flags().Lookup(flagName(key)); flag != nil {
			if err := v.BindPFlag(key, flag); err != nil {
				return fmt.Errorf("bind flag %s: %w", flag.Name, err)
			}
		}
	}

	a.cfg = loadConfig(v)
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	a.logger = logging.NewJSONLogger(a.stderr, logging.ParseLevel(a.cfg.LogLevel)).
		With(logging.String("command", cmd.Name()))
	if used := v.ConfigFileUsed(); used != "" {
		a.logger.Debug("config loaded", logging.Path(used))
	}
	return nil
}

var longRoot = `
flowpatch edits n8n-style workflow documents (a JSON "nodes" array plus a
"connections" map) from declarative YAML plans. Every run reloads the written
document and verifies that each edit took effect.

Examples:
  # Preview a plan without touching the file
  flowpatch apply --plan plans/phase-split.yaml --in workflow.json --dry-run

  # Apply in place, keeping a compressed backup
  flowpatch apply --plan plans/phase-split.yaml --in workflow.json --backup

  # List trigger nodes and where they lead
  flowpatch inspect --in workflow.json --type webhook
`
