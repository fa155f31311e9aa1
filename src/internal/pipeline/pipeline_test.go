package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmaclaw/src/internal/args"
	"pharmaclaw/src/internal/chain"
	"pharmaclaw/src/internal/config"
	"pharmaclaw/src/internal/interpreter"
	"pharmaclaw/src/internal/skills"
	"pharmaclaw/src/internal/storage"
)

// The fixture scripts are shell scripts with a .py extension; the fake
// resolver selects sh as the interpreter.
var fixture = map[string]map[string]string{
	"pharmaclaw-compound-comparator": {
		"compare_compounds.py": `for a; do [ "$a" = bad ] && { echo "cannot parse $a" >&2; exit 3; }; done
printf '{"compounds":"%s"}\n' "$*"`,
		"generate_report.py": `out=""; fmt=""
while [ $# -gt 0 ]; do
  case "$1" in
    --output) out="$2"; shift 2 ;;
    --format) fmt="$2"; shift 2 ;;
    *) shift ;;
  esac
done
cat > "$out"
echo "wrote $fmt report"`,
	},
	"chemistry-query": {
		"query_pubchem.py": `case "$2" in
  aspirin) echo '{"PropertyTable":{"Properties":[{"CID":2244,"CanonicalSMILES":"CC(=O)OC1=CC=CC=C1C(=O)O"}]}}' ;;
  mystery) if [ "$4" = info ]; then echo '{"CID":1}'; else echo 'C1=CC=CC=C1'; fi ;;
  *) echo "compound not found" >&2; exit 1 ;;
esac`,
		"rdkit_mol.py": `printf '{"status":"success","argv":"%s"}\n' "$*"`,
	},
	"pharmacology-agent": {
		"chain_entry.py": `printf '{"agent":"pharmacology","status":"success","input":%s}\n' "$2"`,
	},
	"catalyst": {
		"chain_entry.py": `printf '{"agent":"catalyst","status":"success","input":%s}\n' "$2"`,
	},
}

type fakeResolver struct {
	interp *interpreter.Interpreter
	err    error
	calls  int
}

func (f *fakeResolver) Resolve(context.Context) (*interpreter.Interpreter, error) {
	f.calls++
	return f.interp, f.err
}

func newPipeline(t *testing.T, resolver Resolver, history *storage.History) *Pipeline {
	t.Helper()
	root := t.TempDir()
	for skill, files := range fixture {
		dir := filepath.Join(root, skill)
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "scripts"), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte("---\nname: "+skill+"\n---\n"), 0644))
		for name, body := range files {
			require.NoError(t, os.WriteFile(filepath.Join(dir, "scripts", name), []byte(body+"\n"), 0755))
		}
	}
	loader := skills.NewSkillLoader(root, nil)
	require.NoError(t, loader.Load())

	cfg := config.PipelineConfig{
		CompareSkill:  "pharmaclaw-compound-comparator",
		CompareScript: "compare_compounds.py",
		ReportScript:  "generate_report.py",
		ChemSkill:     "chemistry-query",
		PharmaSkill:   "pharmacology-agent",
		CatalystSkill: "catalyst",
		ScriptTimeout: 5 * time.Second,
	}
	p := New(cfg, loader, resolver, history)
	p.now = func() time.Time { return time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC) }
	return p
}

func shResolver() *fakeResolver {
	return &fakeResolver{interp: &interpreter.Interpreter{Path: "sh", Source: interpreter.SourceSystem}}
}

func openHistory(t *testing.T) *storage.History {
	t.Helper()
	h, err := storage.OpenHistory(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestCompare(t *testing.T) {
	h := openHistory(t)
	p := newPipeline(t, shResolver(), h)
	outDir := t.TempDir()

	var stdout bytes.Buffer
	res, err := p.Compare(context.Background(), CompareRequest{
		Compounds: []string{"CCO", "CC(=O)O"},
		Names:     []string{"Ethanol", "Acetic acid"},
		OutputDir: outDir,
		Format:    "json",
	}, chain.IO{Stdout: &stdout})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(outDir, "comparison_report_2026-10-17.json"), res.OutputPath)
	data, err := os.ReadFile(res.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, `{"compounds":"CCO CC(=O)O --names Ethanol,Acetic acid"}`+"\n", string(data))
	assert.Equal(t, "wrote json report\n", stdout.String())
	require.Len(t, res.Stages, 2)

	run, err := h.Get(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, storage.KindCompare, run.Kind)
	assert.Equal(t, 0, run.ExitCode)
	assert.Equal(t, res.OutputPath, run.OutputPath)
}

func TestCompareFirstStageFailure(t *testing.T) {
	h := openHistory(t)
	p := newPipeline(t, shResolver(), h)
	output := filepath.Join(t.TempDir(), "out.pdf")

	res, err := p.Compare(context.Background(), CompareRequest{
		Compounds: []string{"CCO", "bad"},
		Output:    output,
	}, chain.IO{})

	var stageErr *chain.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, "compare", stageErr.Stage)
	assert.Equal(t, 3, stageErr.ExitCode)
	assert.Equal(t, "pdf", res.Format)

	run, err := h.Get(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, 3, run.ExitCode)
	assert.NotEmpty(t, run.Error)
}

func TestCompareTooFewCompounds(t *testing.T) {
	resolver := shResolver()
	h := openHistory(t)
	p := newPipeline(t, resolver, h)

	_, err := p.Compare(context.Background(), CompareRequest{Compounds: []string{"compoundA"}}, chain.IO{})
	var usage *args.UsageError
	require.ErrorAs(t, err, &usage)
	assert.Zero(t, resolver.calls, "resolution must not run")

	runs, err := h.List(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestCompareBadFormat(t *testing.T) {
	p := newPipeline(t, shResolver(), nil)
	_, err := p.Compare(context.Background(), CompareRequest{Compounds: []string{"a", "b"}, Format: "docx"}, chain.IO{})
	var usage *args.UsageError
	assert.ErrorAs(t, err, &usage)
}

func TestCompareNoInterpreter(t *testing.T) {
	resolver := &fakeResolver{err: &interpreter.Error{Module: "rdkit"}}
	p := newPipeline(t, resolver, nil)
	output := filepath.Join(t.TempDir(), "out.pdf")

	_, err := p.Compare(context.Background(), CompareRequest{Compounds: []string{"a", "b"}, Output: output}, chain.IO{})
	var envErr *interpreter.Error
	require.ErrorAs(t, err, &envErr)
	assert.NoFileExists(t, output)

	// failures are not cached
	_, _ = p.Compare(context.Background(), CompareRequest{Compounds: []string{"a", "b"}, Output: output}, chain.IO{})
	assert.Equal(t, 2, resolver.calls)
}

func TestInterpreterIsCached(t *testing.T) {
	resolver := shResolver()
	p := newPipeline(t, resolver, nil)
	ctx := context.Background()

	_, err := p.Interpreter(ctx)
	require.NoError(t, err)
	_, err = p.Interpreter(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, resolver.calls)

	p.ResetInterpreter()
	_, err = p.Interpreter(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, resolver.calls)
}

func intPtr(n int) *int { return &n }

func TestChemistryRetroDepthDefault(t *testing.T) {
	p := newPipeline(t, shResolver(), nil)
	var req ChemistryRequest
	require.NoError(t, json.Unmarshal([]byte(`{"compound":"aspirin"}`), &req))
	res, err := p.Chemistry(context.Background(), req)
	require.NoError(t, err)
	retro := res["retrosynthesis"].(map[string]any)
	assert.Contains(t, retro["argv"], "--depth 2")

	var zero ChemistryRequest
	require.NoError(t, json.Unmarshal([]byte(`{"compound":"aspirin","retro_depth":0}`), &zero))
	_, err = p.Chemistry(context.Background(), zero)
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestChemistryPropertyTable(t *testing.T) {
	p := newPipeline(t, shResolver(), nil)
	res, err := p.Chemistry(context.Background(), ChemistryRequest{Compound: "aspirin", RetroDepth: intPtr(3)})
	require.NoError(t, err)

	smiles := "CC(=O)OC1=CC=CC=C1C(=O)O"
	assert.Equal(t, smiles, res["smiles"])
	assert.Equal(t, "aspirin", res["query"])
	pubchem := res["pubchem"].(map[string]any)
	assert.Equal(t, float64(2244), pubchem["CID"])

	props := res["properties"].(map[string]any)
	assert.Equal(t, "--smiles "+smiles+" --action props", props["argv"])
	retro := res["retrosynthesis"].(map[string]any)
	assert.Equal(t, "--target "+smiles+" --action retro --depth 3", retro["argv"])
}

func TestChemistryStructureFallback(t *testing.T) {
	p := newPipeline(t, shResolver(), nil)
	off := false
	res, err := p.Chemistry(context.Background(), ChemistryRequest{Compound: "mystery", IncludeRetro: &off})
	require.NoError(t, err)
	assert.Equal(t, "C1=CC=CC=C1", res["smiles"])
	assert.Contains(t, res, "properties")
	assert.NotContains(t, res, "retrosynthesis")
}

func TestChemistrySMILESInput(t *testing.T) {
	p := newPipeline(t, shResolver(), nil)
	res, err := p.Chemistry(context.Background(), ChemistryRequest{Compound: "C(C)O"})
	require.NoError(t, err)

	pubchem := res["pubchem"].(map[string]any)
	assert.Equal(t, "error", pubchem["status"])
	assert.Equal(t, "compound not found", pubchem["error"])
	assert.Equal(t, "C(C)O", res["smiles"])
	assert.Contains(t, res, "retrosynthesis")
}

func TestChemistryUnresolved(t *testing.T) {
	p := newPipeline(t, shResolver(), nil)
	res, err := p.Chemistry(context.Background(), ChemistryRequest{Compound: "unobtainium"})
	require.NoError(t, err)
	assert.Nil(t, res["smiles"])
	assert.Contains(t, res["note"], "Could not resolve SMILES")
	assert.NotContains(t, res, "properties")
}

func TestChemistryValidation(t *testing.T) {
	p := newPipeline(t, shResolver(), nil)
	for _, req := range []ChemistryRequest{
		{Compound: " "},
		{Compound: "aspirin", RetroDepth: intPtr(5)},
		{Compound: "aspirin", RetroDepth: intPtr(-1)},
		{Compound: "aspirin", RetroDepth: intPtr(0)},
	} {
		_, err := p.Chemistry(context.Background(), req)
		assert.ErrorIs(t, err, ErrBadRequest)
	}
}

func TestPharmacology(t *testing.T) {
	p := newPipeline(t, shResolver(), nil)
	ctx := context.Background()

	out, err := p.Pharmacology(ctx, PharmacologyRequest{Compound: "ibuprofen"})
	require.NoError(t, err)
	assert.Equal(t, "pharmacology", out["agent"])
	assert.Equal(t, map[string]any{"name": "ibuprofen", "context": "web_ui"}, out["input"])

	out, err = p.Pharmacology(ctx, PharmacologyRequest{Compound: "CC(C)Cc1ccc(cc1)C(C)C(=O)O"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"smiles": "CC(C)Cc1ccc(cc1)C(C)C(=O)O", "context": "web_ui"}, out["input"])
}

func TestCatalyst(t *testing.T) {
	p := newPipeline(t, shResolver(), nil)
	ctx := context.Background()

	_, err := p.Catalyst(ctx, CatalystRequest{})
	assert.ErrorIs(t, err, ErrBadRequest)

	out, err := p.Catalyst(ctx, CatalystRequest{Reaction: "suzuki", PreferEarthAbundant: true})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"context":          "web_ui",
		"reaction":         "suzuki",
		"strategy":         "all",
		"enantioselective": false,
		"constraints":      map[string]any{"prefer_earth_abundant": true},
	}, out["input"])
}

func TestRunScriptFailureRecorded(t *testing.T) {
	h := openHistory(t)
	p := newPipeline(t, shResolver(), h)
	ctx := context.Background()

	out, err := p.RunScript(ctx, "chemistry-query", "query_pubchem.py", []string{"--compound", "nothing"})
	require.NoError(t, err)
	assert.True(t, out.IsError())

	runs, err := h.List(ctx, storage.KindScript, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 1, runs[0].ExitCode)
	assert.Equal(t, "compound not found", runs[0].Error)

	_, err = p.RunScript(ctx, "chemistry-query", "missing.py", nil)
	assert.Error(t, err)
}

func TestBatch(t *testing.T) {
	p := newPipeline(t, shResolver(), openHistory(t))
	res, err := p.Batch(context.Background(), []string{"aspirin", "mystery", "unobtainium", "C(C)O"}, 2, false)
	require.NoError(t, err)
	require.Len(t, res.Items, 4)

	var order []string
	for _, it := range res.Items {
		order = append(order, it.Compound)
		assert.Empty(t, it.Error)
	}
	assert.Equal(t, []string{"aspirin", "mystery", "unobtainium", "C(C)O"}, order)
	assert.Equal(t, "C1=CC=CC=C1", res.Items[1].Result["smiles"])
	assert.Zero(t, res.Failed)
	assert.NotEmpty(t, res.RunID)
}

func TestBatchCapturesPerCompoundErrors(t *testing.T) {
	p := newPipeline(t, shResolver(), nil)
	res, err := p.Batch(context.Background(), []string{"aspirin", ""}, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Contains(t, res.Items[1].Error, "compound is required")
}

func TestBatchNoInterpreter(t *testing.T) {
	p := newPipeline(t, &fakeResolver{err: errors.New("boom")}, nil)
	_, err := p.Batch(context.Background(), []string{"aspirin"}, 1, false)
	assert.EqualError(t, err, "boom")
}

func TestLooksLikeSMILES(t *testing.T) {
	yes := []string{"CC(=O)O", "C#N", "[Na+]", "C[C@H](N)C(=O)O"}
	no := []string{"aspirin", "2244", "CCO"}
	for _, s := range yes {
		assert.True(t, LooksLikeSMILES(s), s)
	}
	for _, s := range no {
		assert.False(t, LooksLikeSMILES(s), s)
	}
}
