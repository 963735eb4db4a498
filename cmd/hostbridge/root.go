package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/funvibe/hostbridge/internal/config"
	"github.com/funvibe/hostbridge/internal/logging"
	"github.com/funvibe/hostbridge/pkg/bridge"
)

// Version is the release version (set via -ldflags).
var Version = "dev"

// cli holds the state shared by subcommands.
type cli struct {
	flags   *viper.Viper
	cfgFile string
	cfg     *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{flags: viper.New()}

	root := &cobra.Command{
		Use:   "hostbridge",
		Short: "Script foreign objects from a small command language",
		Long: `hostbridge drives Go values, protobuf messages, gRPC services and
described Go packages from scripts through the "object" command.

Examples:
  hostbridge run script.tcl
  hostbridge repl --proto api/greeter.proto
  hostbridge describe --types Buffer bytes > bytes.yaml`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.loadConfig,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.cfgFile, "config", "", "config file (default is ./"+config.DefaultConfigFile+" when present)")
	pf.String("log-level", "", "log level: debug, info, warn or error")
	pf.StringSlice("proto", nil, "extra .proto files to load")
	_ = c.flags.BindPFlag("log.level", pf.Lookup("log-level"))
	_ = c.flags.BindPFlag("providers.proto_files", pf.Lookup("proto"))

	root.AddCommand(
		newRunCmd(c),
		newReplCmd(c),
		newDescribeCmd(c),
		newVersionCmd(),
	)
	return root
}

func (c *cli) loadConfig(cmd *cobra.Command, _ []string) error {
	path := c.cfgFile
	if path == "" {
		if _, err := os.Stat(config.DefaultConfigFile); err == nil {
			path = config.DefaultConfigFile
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	cfg, err := config.Load(cmd.Context(), path)
	if err != nil {
		return err
	}
	if c.flags.IsSet("log.level") {
		cfg.Log.Level = c.flags.GetString("log.level")
	}
	if c.flags.IsSet("providers.proto_files") {
		cfg.Providers.ProtoFiles = append(cfg.Providers.ProtoFiles, c.flags.GetStringSlice("providers.proto_files")...)
	}
	c.cfg = cfg
	return nil
}

// session builds a bridge session writing script output to cmd's stdout
// and logs to its stderr.
func (c *cli) session(cmd *cobra.Command) (*bridge.Session, error) {
	logger, err := logging.New(cmd.ErrOrStderr(), c.cfg.Log.Level, c.cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	s, err := bridge.New(cmd.Context(),
		bridge.WithConfig(*c.cfg),
		bridge.WithLogger(logger),
		bridge.WithOutput(cmd.OutOrStdout()),
	)
	if err != nil {
		return nil, fmt.Errorf("starting session: %w", err)
	}
	return s, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hostbridge %s\n", Version)
		},
	}
}
