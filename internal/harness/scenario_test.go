package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenarioFile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadScenario_ResolvesProgramPath(t *testing.T) {
	dir := t.TempDir()
	writeRegionProgram(t, dir)

	path := writeScenarioFile(t, dir, `
name: region-routing
description: routes fips traffic
program: region.wbc
cases:
  - name: standard
    params:
      Region: us-east-1
    endpoint:
      url: https://std.example.com
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "region-routing", scenario.Name)
	assert.Equal(t, filepath.Join(dir, "region.wbc"), scenario.Program)
	require.Len(t, scenario.Cases, 1)
	assert.Equal(t, "us-east-1", scenario.Cases[0].Params["Region"])
}

func TestLoadScenario_LoadedScenarioRuns(t *testing.T) {
	dir := t.TempDir()
	writeRegionProgram(t, dir)

	path := writeScenarioFile(t, dir, `
name: region-routing
description: routes fips traffic
program: region.wbc
run_token: test-run-0002
cases:
  - name: fips
    params:
      Region: us-east-1
      UseFips: true
    endpoint:
      url: https://fips.example.com
  - name: missing
    params: {}
    error:
      code: MISSING_PARAMETER
      contains: Region
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Passed(), "errors: %v", result.Errors)
	assert.Equal(t, "test-run-0002", result.RunToken)
}

func TestLoadScenario_RejectsUnknownField(t *testing.T) {
	dir := t.TempDir()
	writeRegionProgram(t, dir)

	path := writeScenarioFile(t, dir, `
name: typo
description: has a typo
program: region.wbc
caes:
  - name: x
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_Validation(t *testing.T) {
	dir := t.TempDir()
	writeRegionProgram(t, dir)

	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing name",
			body: "description: d\nprogram: region.wbc\ncases:\n  - name: x\n    endpoint:\n      url: https://a\n",
			want: "name is required",
		},
		{
			name: "missing program fixture",
			body: "name: n\ndescription: d\nprogram: gone.wbc\ncases:\n  - name: x\n    endpoint:\n      url: https://a\n",
			want: "program fixture not found",
		},
		{
			name: "no cases",
			body: "name: n\ndescription: d\nprogram: region.wbc\n",
			want: "cases list is required",
		},
		{
			name: "case without outcome",
			body: "name: n\ndescription: d\nprogram: region.wbc\ncases:\n  - name: x\n",
			want: "exactly one of endpoint, value, or error",
		},
		{
			name: "case with two outcomes",
			body: "name: n\ndescription: d\nprogram: region.wbc\ncases:\n  - name: x\n    value: \"true\"\n    error:\n      contains: boom\n",
			want: "exactly one of endpoint, value, or error",
		},
		{
			name: "empty error clause",
			body: "name: n\ndescription: d\nprogram: region.wbc\ncases:\n  - name: x\n    error: {}\n",
			want: "code or contains is required",
		},
		{
			name: "endpoint without url",
			body: "name: n\ndescription: d\nprogram: region.wbc\ncases:\n  - name: x\n    endpoint:\n      headers:\n        h: [v]\n",
			want: "url is required",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeScenarioFile(t, dir, tc.body)
			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
