package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/waypost/internal/vm"
)

// CheckResult holds the summary of a validated program.
type CheckResult struct {
	Valid       bool   `json:"valid"`
	Fingerprint string `json:"fingerprint"`
	Conditions  int    `json:"conditions"`
	Results     int    `json:"results"`
	Registers   int    `json:"registers"`
	Constants   int    `json:"constants"`
	Functions   int    `json:"functions"`
	BDDNodes    int    `json:"bdd_nodes"`
	BDDRoot     string `json:"bdd_root"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <program.wbc>",
		Short: "Validate a compiled program",
		Long: `Validate a compiled bytecode program without running it.

Decodes the binary, verifies structural consistency (offsets, register
and constant references, decision-diagram refs), and links the function
table against the built-in function set. Exits 1 if the program is
invalid, 2 if it cannot be read.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runCheck(opts *RootOptions, path string, cmd *cobra.Command) error {
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
	formatter.VerboseLog("decoded %s", path)

	if _, err := vm.NewEvaluator(prog); err != nil {
		return reportError(formatter, WrapExitError(ExitFailure, "program does not link", err))
	}

	result := CheckResult{
		Valid:       true,
		Fingerprint: prog.Fingerprint(),
		Conditions:  prog.ConditionCount(),
		Results:     prog.ResultCount(),
		Registers:   len(prog.Registers),
		Constants:   len(prog.Constants),
		Functions:   len(prog.Functions),
		BDDNodes:    len(prog.BDDNodes),
		BDDRoot:     prog.BDDRoot.String(),
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "program: %s\n", path)
	fmt.Fprintf(formatter.Writer, "fingerprint: %s\n", result.Fingerprint)
	fmt.Fprintf(formatter.Writer, "conditions: %d\n", result.Conditions)
	fmt.Fprintf(formatter.Writer, "results: %d\n", result.Results)
	fmt.Fprintf(formatter.Writer, "registers: %d\n", result.Registers)
	fmt.Fprintf(formatter.Writer, "constants: %d\n", result.Constants)
	fmt.Fprintf(formatter.Writer, "functions: %d\n", result.Functions)
	fmt.Fprintf(formatter.Writer, "bdd nodes: %d\n", result.BDDNodes)
	fmt.Fprintf(formatter.Writer, "bdd root: %s\n", result.BDDRoot)
	return nil
}
