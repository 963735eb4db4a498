package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newRunCmd(c *cli) *cobra.Command {
	var printResult bool
	cmd := &cobra.Command{
		Use:   "run <script>",
		Short: "Run a script file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			s, err := c.session(cmd)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, s.Close()) }()

			res, err := s.EvalFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if printResult && res != "" {
				fmt.Fprintln(cmd.OutOrStdout(), res)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&printResult, "print", "p", false, "print the result of the last command")
	return cmd
}
