// Package harness provides a conformance testing framework for compiled
// resolution programs.
//
// A scenario names a bytecode fixture and a list of resolution cases; the
// harness loads and links the program once, runs every case against it, and
// checks each outcome against the case's expect clause. Rendered results are
// deterministic so they can be captured in golden files.
package harness

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/waypost/internal/bytecode"
	"github.com/roach88/waypost/internal/value"
	"github.com/roach88/waypost/internal/vm"
)

// Result holds the outcome of one scenario run.
type Result struct {
	// ScenarioName echoes the scenario's name.
	ScenarioName string

	// RunToken identifies this run. Fixed by the scenario for golden
	// comparison, otherwise a fresh UUIDv7.
	RunToken string

	// TokenFixed records whether the token came from the scenario.
	TokenFixed bool

	// Cases holds one entry per scenario case, in order.
	Cases []CaseResult

	// Errors collects expectation failures across all cases.
	Errors []string
}

// Passed reports whether every case matched its expectation.
func (r *Result) Passed() bool { return len(r.Errors) == 0 }

// AddError records an expectation failure.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// CaseResult captures what one resolution actually produced.
type CaseResult struct {
	Name string

	// Outcome is "endpoint", "value", or "error".
	Outcome string

	// URL, Headers, and Properties are set for endpoint outcomes.
	URL        string
	Headers    map[string][]string
	Properties map[string]value.Value

	// Value is the formatted result for value outcomes.
	Value string

	// Error is the full error string for error outcomes.
	Error string
}

// Run loads the scenario's program fixture, links an evaluator, and executes
// every case. Extra evaluator options (builtin providers, extension
// functions) apply to all cases. A load or link failure aborts the run;
// expectation mismatches are collected per case instead.
func Run(scenario *Scenario, opts ...vm.Option) (*Result, error) {
	raw, err := os.ReadFile(scenario.Program)
	if err != nil {
		return nil, fmt.Errorf("failed to read program fixture: %w", err)
	}
	prog, err := bytecode.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to load program: %w", err)
	}
	eval, err := vm.NewEvaluator(prog, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to link program: %w", err)
	}

	result := &Result{
		ScenarioName: scenario.Name,
		RunToken:     scenario.RunToken,
		TokenFixed:   scenario.RunToken != "",
	}
	if result.RunToken == "" {
		token, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate run token: %w", err)
		}
		result.RunToken = token.String()
	}

	for _, c := range scenario.Cases {
		cr, err := runCase(eval, c)
		if err != nil {
			return nil, fmt.Errorf("case %q: %w", c.Name, err)
		}
		result.Cases = append(result.Cases, cr)
		checkCase(result, c, cr)
	}
	return result, nil
}

// runCase converts the case's parameters and resolves once. Evaluation
// errors are an outcome, not a run failure.
func runCase(eval *vm.Evaluator, c Case) (CaseResult, error) {
	params := make(map[string]value.Value, len(c.Params))
	for name, raw := range c.Params {
		v, err := value.FromInterface(raw)
		if err != nil {
			return CaseResult{}, fmt.Errorf("param %q: %w", name, err)
		}
		params[name] = v
	}

	cr := CaseResult{Name: c.Name}
	res, err := eval.Resolve(nil, params)
	switch {
	case err != nil:
		cr.Outcome = "error"
		cr.Error = err.Error()
	case res.Endpoint != nil:
		cr.Outcome = "endpoint"
		cr.URL = res.Endpoint.URI.String()
		cr.Headers = res.Endpoint.Headers
		cr.Properties = res.Endpoint.Properties
	default:
		cr.Outcome = "value"
		cr.Value = value.Format(res.Value)
	}
	return cr, nil
}

// checkCase validates one case result against its expect clause, recording
// mismatches on the result.
func checkCase(r *Result, c Case, cr CaseResult) {
	switch {
	case c.Endpoint != nil:
		if cr.Outcome != "endpoint" {
			r.AddError("case %q: expected an endpoint, got %s %s", c.Name, cr.Outcome, cr.Value+cr.Error)
			return
		}
		if cr.URL != c.Endpoint.URL {
			r.AddError("case %q: expected url %q, got %q", c.Name, c.Endpoint.URL, cr.URL)
		}
		for name, want := range c.Endpoint.Headers {
			got, ok := cr.Headers[name]
			if !ok {
				r.AddError("case %q: missing header %q", c.Name, name)
				continue
			}
			if strings.Join(got, ",") != strings.Join(want, ",") {
				r.AddError("case %q: header %q: expected %v, got %v", c.Name, name, want, got)
			}
		}
		for name, raw := range c.Endpoint.Properties {
			want, err := value.FromInterface(raw)
			if err != nil {
				r.AddError("case %q: property %q: %v", c.Name, name, err)
				continue
			}
			got, ok := cr.Properties[name]
			if !ok {
				r.AddError("case %q: missing property %q", c.Name, name)
				continue
			}
			if !want.Equal(got) {
				r.AddError("case %q: property %q: expected %s, got %s", c.Name, name, value.Format(want), value.Format(got))
			}
		}

	case c.Value != "":
		if cr.Outcome != "value" {
			r.AddError("case %q: expected a value, got %s", c.Name, cr.Outcome)
			return
		}
		if cr.Value != c.Value {
			r.AddError("case %q: expected value %s, got %s", c.Name, c.Value, cr.Value)
		}

	case c.Error != nil:
		if cr.Outcome != "error" {
			r.AddError("case %q: expected an error, got %s", c.Name, cr.Outcome)
			return
		}
		if c.Error.Code != "" && !strings.HasPrefix(cr.Error, c.Error.Code+":") {
			r.AddError("case %q: expected error code %s, got %q", c.Name, c.Error.Code, cr.Error)
		}
		if c.Error.Contains != "" && !strings.Contains(cr.Error, c.Error.Contains) {
			r.AddError("case %q: expected error containing %q, got %q", c.Name, c.Error.Contains, cr.Error)
		}
	}
}

// Render produces the deterministic textual snapshot of a run, one block per
// case. Map entries are emitted in sorted key order. The run token appears
// only when the scenario fixed it.
func (r *Result) Render() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", r.ScenarioName)
	if r.TokenFixed {
		fmt.Fprintf(&b, "run_token: %s\n", r.RunToken)
	}
	for _, cr := range r.Cases {
		fmt.Fprintf(&b, "\ncase: %s\n", cr.Name)
		switch cr.Outcome {
		case "endpoint":
			fmt.Fprintf(&b, "  endpoint: %s\n", cr.URL)
			for _, name := range sortedKeys(cr.Headers) {
				fmt.Fprintf(&b, "  header %s: %s\n", name, strings.Join(cr.Headers[name], ","))
			}
			if len(cr.Properties) > 0 {
				for _, name := range value.Map(cr.Properties).SortedKeys() {
					fmt.Fprintf(&b, "  property %s: %s\n", name, value.Format(cr.Properties[name]))
				}
			}
		case "value":
			fmt.Fprintf(&b, "  value: %s\n", cr.Value)
		case "error":
			fmt.Fprintf(&b, "  error: %s\n", cr.Error)
		}
	}
	return []byte(b.String())
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
