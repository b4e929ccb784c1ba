package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/waypost/internal/bytecode"
)

// DisasmResult holds the disassembly for JSON output.
type DisasmResult struct {
	Fingerprint string `json:"fingerprint"`
	Listing     string `json:"listing"`
}

// NewDisasmCommand creates the disasm command.
func NewDisasmCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disasm <program.wbc>",
		Short: "Disassemble a compiled program",
		Long: `Print the human-readable listing of a compiled bytecode program:
header counts, register and constant tables, the decision diagram, and
every condition and result body with resolved operand names.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDisasm(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runDisasm(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	prog, exitErr := LoadProgram(path)
	if exitErr != nil {
		return reportError(formatter, exitErr)
	}

	listing := bytecode.Disassemble(prog)
	if formatter.Format == "json" {
		return formatter.Success(DisasmResult{
			Fingerprint: prog.Fingerprint(),
			Listing:     listing,
		})
	}

	fmt.Fprint(formatter.Writer, listing)
	return nil
}
