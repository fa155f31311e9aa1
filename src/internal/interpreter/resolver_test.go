package interpreter

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	executable map[string]bool
	importable map[string]bool
	onPath     map[string]string
	probed     []string
}

func (f *fakeProber) Executable(path string) bool {
	f.probed = append(f.probed, "stat:"+path)
	return f.executable[path]
}

func (f *fakeProber) CanImport(_ context.Context, python, module string) bool {
	f.probed = append(f.probed, "import:"+python+":"+module)
	return f.importable[python]
}

func (f *fakeProber) LookPath(name string) (string, error) {
	if p, ok := f.onPath[name]; ok {
		return p, nil
	}
	return "", errors.New("not found")
}

func testOptions() Options {
	return Options{BundledEnv: "/skills/.venv", SystemPython: "python3", UserEnv: "/home/u/.pharmaclaw/venv"}
}

func TestResolvePrefersBundled(t *testing.T) {
	p := &fakeProber{
		executable: map[string]bool{"/skills/.venv/bin/python": true, "/home/u/.pharmaclaw/venv/bin/python": true},
		importable: map[string]bool{"/usr/bin/python3": true},
		onPath:     map[string]string{"python3": "/usr/bin/python3"},
	}
	r := NewWithProber(testOptions(), p)

	got, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SourceBundled, got.Source)
	assert.Equal(t, "/skills/.venv/bin/python", got.Path)
	assert.Equal(t, []string{"stat:/skills/.venv/bin/python"}, p.probed, "later candidates must not be probed")
}

func TestResolveSystemNeedsModule(t *testing.T) {
	p := &fakeProber{
		importable: map[string]bool{"/usr/bin/python3": true},
		onPath:     map[string]string{"python3": "/usr/bin/python3"},
	}
	r := NewWithProber(testOptions(), p)

	got, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SourceSystem, got.Source)
	assert.Equal(t, "/usr/bin/python3", got.Path)
	assert.Contains(t, p.probed, "import:/usr/bin/python3:rdkit")
}

func TestResolveFallsBackToUserEnv(t *testing.T) {
	p := &fakeProber{
		executable: map[string]bool{"/home/u/.pharmaclaw/venv/bin/python": true},
		onPath:     map[string]string{"python3": "/usr/bin/python3"},
	}
	r := NewWithProber(testOptions(), p)

	got, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SourceUser, got.Source)
}

func TestResolveNoCandidate(t *testing.T) {
	p := &fakeProber{onPath: map[string]string{"python3": "/usr/bin/python3"}}
	r := NewWithProber(testOptions(), p)

	got, err := r.Resolve(context.Background())
	require.Error(t, err)
	assert.Nil(t, got)

	var envErr *Error
	require.True(t, errors.As(err, &envErr))
	require.Len(t, envErr.Rejections, 3)
	assert.Equal(t, "not found", envErr.Rejections[0].Reason)
	assert.Equal(t, "cannot import rdkit", envErr.Rejections[1].Reason)
	assert.NotEmpty(t, err.Error())
	assert.Contains(t, err.Error(), "no python interpreter with rdkit available")
}

func TestResolveSystemNotOnPath(t *testing.T) {
	r := NewWithProber(Options{SystemPython: "python3"}, &fakeProber{})

	_, err := r.Resolve(context.Background())
	var envErr *Error
	require.ErrorAs(t, err, &envErr)
	require.Len(t, envErr.Rejections, 1)
	assert.Equal(t, "not on PATH", envErr.Rejections[0].Reason)
}

func TestCandidatesOrder(t *testing.T) {
	r := NewWithProber(testOptions(), &fakeProber{})
	c := r.Candidates()
	require.Len(t, c, 3)
	assert.Equal(t, []Source{SourceBundled, SourceSystem, SourceUser}, []Source{c[0].Source, c[1].Source, c[2].Source})
	assert.True(t, c[1].Probe)
}

func TestExecProberExecutable(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "python")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\n"), 0o644))

	p := execProber{}
	assert.False(t, p.Executable(script), "non-executable file must not qualify")
	require.NoError(t, os.Chmod(script, 0o755))
	assert.True(t, p.Executable(script))
	assert.False(t, p.Executable(dir))
	assert.False(t, p.Executable(filepath.Join(dir, "missing")))
}

func TestResolveRealBundledEnv(t *testing.T) {
	env := filepath.Join(t.TempDir(), ".venv")
	require.NoError(t, os.MkdirAll(filepath.Join(env, "bin"), 0o755))
	require.NoError(t, os.WriteFile(EnvPython(env), []byte("#!/bin/sh\n"), 0o755))

	r := New(Options{BundledEnv: env, SystemPython: "definitely-not-a-python-binary"})
	got, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, EnvPython(env), got.Path)
}
