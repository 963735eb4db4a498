package main

import (
	"github.com/spf13/cobra"

	"github.com/funvibe/hostbridge/internal/bindgen"
	"github.com/funvibe/hostbridge/internal/logging"
	"github.com/funvibe/hostbridge/internal/provider/table"
)

func newDescribeCmd(c *cli) *cobra.Command {
	var opts bindgen.Options
	cmd := &cobra.Command{
		Use:   "describe <package pattern>...",
		Short: "Write descriptor tables for Go packages",
		Long: `describe loads Go packages and writes YAML descriptor tables for their
exported types and functions. Load the tables with the providers.tables
config key and bind them to Go with bridge.Session.Implement.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(cmd.ErrOrStderr(), c.cfg.Log.Level, c.cfg.Log.Format)
			if err != nil {
				return err
			}
			opts.Logger = logger
			files, err := bindgen.Describe(cmd.Context(), opts, args...)
			if err != nil {
				return err
			}
			return table.Encode(cmd.OutOrStdout(), files...)
		},
	}
	cmd.Flags().StringSliceVar(&opts.Types, "types", nil, "only describe these type names ("+bindgen.FuncsType+" for package functions)")
	cmd.Flags().StringVar(&opts.Namespace, "namespace", "", "table namespace (default is the package name)")
	cmd.Flags().StringVar(&opts.Dir, "dir", "", "directory to resolve package patterns in")
	return cmd
}
