package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/waypost/internal/value"
	"github.com/roach88/waypost/internal/vm"
)

// ResolveOptions holds flags for the resolve command.
type ResolveOptions struct {
	*RootOptions
	ParamsFile string
}

// ResolveResult holds a resolution outcome for JSON output.
type ResolveResult struct {
	Outcome    string              `json:"outcome"` // "endpoint" or "value"
	URL        string              `json:"url,omitempty"`
	Headers    map[string][]string `json:"headers,omitempty"`
	Properties map[string]any      `json:"properties,omitempty"`
	Value      any                 `json:"value,omitempty"`
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve <program.wbc>",
		Short: "Run a compiled program against parameters",
		Long: `Run a compiled bytecode program with caller parameters and print the
resolved endpoint or value.

Parameters come from a YAML file: a flat map of parameter name to value.

Example:
  waypost resolve service.wbc --params params.yaml
  waypost resolve service.wbc --params params.yaml --format json --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ParamsFile, "params", "", "path to YAML parameter file")

	return cmd
}

func runResolve(opts *ResolveOptions, path string, cmd *cobra.Command) error {
	// Configure logging based on verbose flag
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))

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
	slog.Debug("program loaded", "path", path, "fingerprint", prog.Fingerprint())

	params, err := loadParams(opts.ParamsFile)
	if err != nil {
		return reportError(formatter, WrapExitError(ExitCommandError, "failed to load parameters", err))
	}
	slog.Debug("parameters loaded", "count", len(params))

	eval, err := vm.NewEvaluator(prog)
	if err != nil {
		return reportError(formatter, WrapExitError(ExitFailure, "program does not link", err))
	}

	res, err := eval.Resolve(nil, params)
	if err != nil {
		return outputResolveError(formatter, err)
	}

	return outputResolveSuccess(formatter, res)
}

// loadParams reads a flat YAML map and converts it to runtime values. An
// empty path means no parameters.
func loadParams(path string) (map[string]value.Value, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc map[string]interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	params := make(map[string]value.Value, len(doc))
	for name, rawVal := range doc {
		v, err := value.FromInterface(rawVal)
		if err != nil {
			return nil, fmt.Errorf("param %q: %w", name, err)
		}
		params[name] = v
	}
	return params, nil
}

func outputResolveSuccess(formatter *OutputFormatter, res *vm.Result) error {
	if res.Endpoint != nil {
		if formatter.Format == "json" {
			props := make(map[string]any, len(res.Endpoint.Properties))
			for k, v := range res.Endpoint.Properties {
				props[k] = value.ToInterface(v)
			}
			return formatter.Success(ResolveResult{
				Outcome:    "endpoint",
				URL:        res.Endpoint.URI.String(),
				Headers:    res.Endpoint.Headers,
				Properties: props,
			})
		}

		fmt.Fprintf(formatter.Writer, "endpoint: %s\n", res.Endpoint.URI.String())
		headerNames := make([]string, 0, len(res.Endpoint.Headers))
		for name := range res.Endpoint.Headers {
			headerNames = append(headerNames, name)
		}
		sort.Strings(headerNames)
		for _, name := range headerNames {
			fmt.Fprintf(formatter.Writer, "header %s: %s\n", name, strings.Join(res.Endpoint.Headers[name], ","))
		}
		if len(res.Endpoint.Properties) > 0 {
			for _, name := range value.Map(res.Endpoint.Properties).SortedKeys() {
				fmt.Fprintf(formatter.Writer, "property %s: %s\n", name, value.Format(res.Endpoint.Properties[name]))
			}
		}
		return nil
	}

	if formatter.Format == "json" {
		return formatter.Success(ResolveResult{
			Outcome: "value",
			Value:   value.ToInterface(res.Value),
		})
	}
	fmt.Fprintf(formatter.Writer, "value: %s\n", value.Format(res.Value))
	return nil
}

func outputResolveError(formatter *OutputFormatter, err error) error {
	code := ErrCodeGeneric
	var evalErr *vm.EvalError
	if errors.As(err, &evalErr) {
		code = string(evalErr.Code)
	}
	_ = formatter.Error(code, err.Error())
	return WrapExitError(ExitFailure, "resolution failed", err)
}
