package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/waypost/internal/vm"
)

// RunWithGolden executes a scenario and compares the rendered result against
// a golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Scenarios used with golden files should fix run_token so the snapshot is
// stable across runs. Returns an error if the scenario itself fails to run;
// golden mismatch is a test failure via goldie.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...vm.Option) (*Result, error) {
	t.Helper()

	result, err := Run(scenario, opts...)
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, result.Render())
	return result, nil
}

// AssertGolden compares an already-produced result against a golden file,
// without re-running its scenario.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, result.Render())
}
