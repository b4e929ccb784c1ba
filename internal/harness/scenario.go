package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario: one compiled program and a
// list of resolution cases run against it. Scenarios are the source of truth
// for end-to-end resolution behavior; golden files capture their expected
// output.
type Scenario struct {
	// Name uniquely identifies this scenario. It is also the golden file
	// name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Program is the path to the compiled bytecode fixture, relative to
	// the scenario file location.
	Program string `yaml:"program"`

	// Cases lists the resolutions to run, in order.
	Cases []Case `yaml:"cases"`

	// RunToken is an optional fixed run token for deterministic golden
	// output. If empty, each run stamps a fresh UUIDv7 and the token is
	// omitted from the rendered snapshot.
	RunToken string `yaml:"run_token,omitempty"`
}

// Case is a single resolution: input parameters plus the expected outcome.
// Exactly one of Endpoint, Value, or Error must be set.
type Case struct {
	// Name identifies the case within the scenario.
	Name string `yaml:"name"`

	// Params contains the caller parameters as a YAML map. Values are
	// converted to runtime values before evaluation.
	Params map[string]interface{} `yaml:"params"`

	// Endpoint is the expected resolved endpoint.
	Endpoint *ExpectEndpoint `yaml:"endpoint,omitempty"`

	// Value is the expected plain result value, rendered with the
	// runtime formatter.
	Value string `yaml:"value,omitempty"`

	// Error is the expected evaluation error.
	Error *ExpectError `yaml:"error,omitempty"`
}

// ExpectEndpoint specifies the expected endpoint fields.
// Headers and Properties are subset matches: only listed entries are
// validated.
type ExpectEndpoint struct {
	URL        string                 `yaml:"url"`
	Headers    map[string][]string    `yaml:"headers,omitempty"`
	Properties map[string]interface{} `yaml:"properties,omitempty"`
}

// ExpectError specifies the expected evaluation error.
type ExpectError struct {
	// Code is the expected error code (e.g. "MISSING_PARAMETER").
	// If empty, only the message is validated.
	Code string `yaml:"code,omitempty"`

	// Contains is a substring the error message must include.
	Contains string `yaml:"contains,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file, resolving the program
// fixture path relative to the scenario file's directory. Unknown fields
// (typos) and missing required fields are errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Program != "" && !filepath.IsAbs(scenario.Program) {
		scenario.Program = filepath.Join(filepath.Dir(path), scenario.Program)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Program == "" {
		return fmt.Errorf("program is required")
	}
	if _, err := os.Stat(s.Program); os.IsNotExist(err) {
		return fmt.Errorf("program fixture not found: %s", s.Program)
	}
	if len(s.Cases) == 0 {
		return fmt.Errorf("cases list is required and must be non-empty")
	}

	for i, c := range s.Cases {
		if c.Name == "" {
			return fmt.Errorf("cases[%d]: name is required", i)
		}
		outcomes := 0
		if c.Endpoint != nil {
			outcomes++
			if c.Endpoint.URL == "" {
				return fmt.Errorf("cases[%d].endpoint: url is required", i)
			}
		}
		if c.Value != "" {
			outcomes++
		}
		if c.Error != nil {
			outcomes++
			if c.Error.Code == "" && c.Error.Contains == "" {
				return fmt.Errorf("cases[%d].error: code or contains is required", i)
			}
		}
		if outcomes != 1 {
			return fmt.Errorf("cases[%d]: exactly one of endpoint, value, or error is required", i)
		}
	}
	return nil
}
