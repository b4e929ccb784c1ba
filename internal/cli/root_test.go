package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/waypost/internal/bytecode"
	"github.com/roach88/waypost/internal/value"
)

// writeFixture compiles a small region-routing program and writes its binary
// encoding to a file in dir. Region is required, UseFips defaults to false.
func writeFixture(t *testing.T, dir string) string {
	t.Helper()

	a := bytecode.NewAssembler()
	regs := a.Registers()
	_, err := regs.Allocate(bytecode.RegisterDef{Name: "Region", Required: true})
	require.NoError(t, err)
	_, err = regs.Allocate(bytecode.RegisterDef{Name: "UseFips", Default: value.Bool(false)})
	require.NoError(t, err)

	a.StartCondition()
	a.Emit(bytecode.OpTestRegisterIsTrue, 1)
	a.Emit(bytecode.OpReturnValue)

	a.StartResult()
	a.Emit(bytecode.OpLoadConst, a.Const(value.String("https://fips.example.com")))
	a.Emit(bytecode.OpReturnEndpoint, 0)

	a.StartResult()
	a.Emit(bytecode.OpLoadConst, a.Const(value.String("https://std.example.com")))
	a.Emit(bytecode.OpReturnEndpoint, 0)

	a.SetBDD([]bytecode.Node{
		{Condition: 0, High: bytecode.ResultRef(0), Low: bytecode.ResultRef(1)},
	}, bytecode.Ref(0))

	prog, err := a.Program()
	require.NoError(t, err)

	path := filepath.Join(dir, "region.wbc")
	require.NoError(t, os.WriteFile(path, bytecode.Encode(prog), 0o644))
	return path
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "waypost", cmd.Use)
	assert.Contains(t, cmd.Long, "bytecode")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"check", "disasm", "resolve"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestResolveCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	resolveCmd, _, err := cmd.Find([]string{"resolve"})
	require.NoError(t, err)

	paramsFlag := resolveCmd.Flags().Lookup("params")
	require.NotNil(t, paramsFlag)
	assert.Equal(t, "", paramsFlag.DefValue)
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "check", "x.wbc"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
