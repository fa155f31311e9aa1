package scripts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func TestRunJSON(t *testing.T) {
	dir := t.TempDir()
	r := NewRunner("python3", 2*time.Second)

	tests := []struct {
		name   string
		body   string
		args   []string
		status string
		check  func(t *testing.T, out Output)
	}{
		{
			name:   "object",
			body:   `echo '{"status":"success","MW":180.16}'`,
			status: "success",
			check: func(t *testing.T, out Output) {
				assert.Equal(t, 180.16, out["MW"])
			},
		},
		{
			name:   "args reach the script",
			body:   `printf '{"smiles":"%s"}' "$2"`,
			args:   []string{"--smiles", "CC(=O)O"},
			status: "",
			check: func(t *testing.T, out Output) {
				assert.Equal(t, "CC(=O)O", out["smiles"])
			},
		},
		{
			name:   "non-zero exit uses stderr",
			body:   "echo boom >&2; exit 1",
			status: "error",
			check: func(t *testing.T, out Output) {
				assert.Equal(t, "boom", out.Error())
			},
		},
		{
			name:   "non-zero exit falls back to stdout",
			body:   `echo '{"error":"RDKit not installed"}'; exit 1`,
			status: "error",
			check: func(t *testing.T, out Output) {
				assert.Equal(t, `{"error":"RDKit not installed"}`, out.Error())
			},
		},
		{
			name:   "silent failure",
			body:   "exit 2",
			status: "error",
			check: func(t *testing.T, out Output) {
				assert.Equal(t, "Unknown error", out.Error())
			},
		},
		{
			name:   "empty output",
			body:   "true",
			status: "error",
			check: func(t *testing.T, out Output) {
				assert.Equal(t, "No output from script", out.Error())
			},
		},
		{
			name:   "raw text",
			body:   "echo CC(=O)O",
			status: "success",
			check: func(t *testing.T, out Output) {
				assert.Equal(t, "CC(=O)O", out["raw"])
			},
		},
		{
			name:   "array is wrapped",
			body:   `echo '[1,2]'`,
			status: "success",
			check: func(t *testing.T, out Output) {
				assert.Equal(t, []any{float64(1), float64(2)}, out["result"])
			},
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			script := writeScript(t, dir, "s"+string(rune('a'+i))+".sh", tt.body)
			out, err := r.RunJSON(context.Background(), script, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.status, out.Status())
			tt.check(t, out)
		})
	}
}

func TestRunJSONTimeout(t *testing.T) {
	script := writeScript(t, t.TempDir(), "slow.sh", "exec sleep 5")
	r := NewRunner("python3", time.Second)

	out, err := r.RunJSON(context.Background(), script, nil)
	require.NoError(t, err)
	assert.True(t, out.IsError())
	assert.Equal(t, "Request timed out (1s)", out.Error())
}

func TestRunJSONMissingScript(t *testing.T) {
	r := NewRunner("python3", time.Second)
	_, err := r.RunJSON(context.Background(), filepath.Join(t.TempDir(), "query_pubchem.py"), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrScriptNotFound))
	assert.Contains(t, err.Error(), "query_pubchem.py")
}

func TestCommandPicksInterpreter(t *testing.T) {
	r := NewRunner("/opt/venv/bin/python", time.Second)

	c := r.Command("/skills/chem/scripts/rdkit_mol.py", []string{"--action", "props"})
	assert.Equal(t, "/opt/venv/bin/python", c.Name)
	assert.Equal(t, []string{"/skills/chem/scripts/rdkit_mol.py", "--action", "props"}, c.Args)
	assert.Equal(t, "/skills/chem/scripts", c.Dir)

	assert.Equal(t, "sh", r.Command("/x/run.sh", nil).Name)
	assert.Equal(t, "node", r.Command("/x/run.js", nil).Name)
	assert.Equal(t, "/x/run", r.Command("/x/run", nil).Name)
}
