package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/funvibe/hostbridge/internal/shell"
)

const (
	prompt         = "% "
	continuePrompt = "> "
)

func newReplCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Read and run commands interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			s, err := c.session(cmd)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, s.Close()) }()

			in := cmd.InOrStdin()
			return repl(cmd, in, interactive(in), func(script string) (string, error) {
				return s.Eval(cmd.Context(), script)
			})
		},
	}
}

func interactive(in io.Reader) bool {
	f, ok := in.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// repl collects lines until they form complete commands, evaluates them and
// prints non-empty results. Errors are reported and the loop goes on.
func repl(cmd *cobra.Command, in io.Reader, showPrompt bool, eval func(string) (string, error)) error {
	out := cmd.OutOrStdout()
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var pending strings.Builder
	for {
		if showPrompt {
			if pending.Len() == 0 {
				fmt.Fprint(out, prompt)
			} else {
				fmt.Fprint(out, continuePrompt)
			}
		}
		if !scanner.Scan() {
			break
		}
		if err := cmd.Context().Err(); err != nil {
			return err
		}
		line := scanner.Text()
		if pending.Len() == 0 && strings.TrimSpace(line) == "exit" {
			return nil
		}
		pending.WriteString(line)
		pending.WriteByte('\n')
		if !shell.Complete(pending.String()) {
			continue
		}

		script := pending.String()
		pending.Reset()
		res, err := eval(script)
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
			continue
		}
		if res != "" {
			fmt.Fprintln(out, res)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if pending.Len() > 0 {
		return fmt.Errorf("unexpected end of input: incomplete command")
	}
	return nil
}
