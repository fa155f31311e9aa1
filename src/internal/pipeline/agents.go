package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"pharmaclaw/src/internal/scripts"
)

const (
	DefaultRetroDepth = 2
	MaxRetroDepth     = 4
)

// Agents lists the hosted agent names served over the API.
var Agents = []string{"chemistry", "pharmacology", "catalyst"}

type ChemistryRequest struct {
	Compound     string `json:"compound"`
	IncludeRetro *bool  `json:"include_retro,omitempty"`
	RetroDepth   *int   `json:"retro_depth,omitempty"`
}

func (r *ChemistryRequest) normalize() error {
	r.Compound = strings.TrimSpace(r.Compound)
	if r.Compound == "" {
		return fmt.Errorf("%w: compound is required", ErrBadRequest)
	}
	if r.IncludeRetro == nil {
		on := true
		r.IncludeRetro = &on
	}
	if r.RetroDepth == nil {
		depth := DefaultRetroDepth
		r.RetroDepth = &depth
	}
	if *r.RetroDepth < 1 || *r.RetroDepth > MaxRetroDepth {
		return fmt.Errorf("%w: retro_depth must be between 1 and %d", ErrBadRequest, MaxRetroDepth)
	}
	return nil
}

// Chemistry looks the compound up in PubChem, derives its SMILES and runs
// the RDKit property and retrosynthesis scripts on it.
func (p *Pipeline) Chemistry(ctx context.Context, req ChemistryRequest) (map[string]any, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	r, err := p.Runner(ctx)
	if err != nil {
		return nil, err
	}
	pubchem, err := p.skills.ResolveScript(p.cfg.ChemSkill, "query_pubchem.py")
	if err != nil {
		return nil, err
	}
	rdkit, err := p.skills.ResolveScript(p.cfg.ChemSkill, "rdkit_mol.py")
	if err != nil {
		return nil, err
	}

	results := map[string]any{}

	info, err := r.RunJSON(ctx, pubchem, []string{"--compound", req.Compound, "--type", "info"})
	if err != nil {
		return nil, err
	}
	results["pubchem"] = flattenPubChem(info)

	smiles := ""
	if !info.IsError() {
		smiles = smilesFrom(info)
		if smiles == "" {
			structure, err := r.RunJSON(ctx, pubchem, []string{"--compound", req.Compound, "--type", "structure", "--format", "smiles"})
			if err != nil {
				return nil, err
			}
			smiles = structureSMILES(structure)
		}
	}
	if smiles == "" && LooksLikeSMILES(req.Compound) {
		smiles = req.Compound
	}

	if smiles != "" {
		var props, retro scripts.Output
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			props, err = r.RunJSON(gctx, rdkit, []string{"--smiles", smiles, "--action", "props"})
			return err
		})
		if *req.IncludeRetro {
			g.Go(func() error {
				var err error
				retro, err = r.RunJSON(gctx, rdkit, []string{"--target", smiles, "--action", "retro", "--depth", strconv.Itoa(*req.RetroDepth)})
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		results["properties"] = map[string]any(props)
		if *req.IncludeRetro {
			results["retrosynthesis"] = map[string]any(retro)
		}
		results["smiles"] = smiles
	} else {
		results["note"] = "Could not resolve SMILES. Try entering a SMILES string directly."
		results["smiles"] = nil
	}
	results["query"] = req.Compound
	return results, nil
}

// flattenPubChem returns the first PropertyTable entry when present.
func flattenPubChem(info scripts.Output) map[string]any {
	if props := pubChemProperties(info); props != nil {
		return props
	}
	return info
}

func pubChemProperties(info scripts.Output) map[string]any {
	table, ok := info["PropertyTable"].(map[string]any)
	if !ok {
		return nil
	}
	list, ok := table["Properties"].([]any)
	if !ok || len(list) == 0 {
		return nil
	}
	first, _ := list[0].(map[string]any)
	return first
}

func smilesFrom(info scripts.Output) string {
	for _, key := range []string{"CanonicalSMILES", "smiles"} {
		if s, ok := info[key].(string); ok && s != "" {
			return s
		}
	}
	if props := pubChemProperties(info); props != nil {
		if s, ok := props["CanonicalSMILES"].(string); ok {
			return s
		}
	}
	return ""
}

func structureSMILES(out scripts.Output) string {
	for _, key := range []string{"result", "smiles", "CanonicalSMILES"} {
		if s, ok := out[key].(string); ok && s != "" {
			return s
		}
	}
	if raw, ok := out["raw"].(string); ok {
		return strings.TrimSpace(raw)
	}
	return ""
}

type PharmacologyRequest struct {
	Compound string `json:"compound"`
}

// Pharmacology runs the ADME/PK chain entry point. The returned envelope
// is passed through as the script printed it.
func (p *Pipeline) Pharmacology(ctx context.Context, req PharmacologyRequest) (scripts.Output, error) {
	compound := strings.TrimSpace(req.Compound)
	if compound == "" {
		return nil, fmt.Errorf("%w: compound is required", ErrBadRequest)
	}
	input := map[string]any{"name": compound, "context": "web_ui"}
	if LooksLikeSMILES(compound) {
		input = map[string]any{"smiles": compound, "context": "web_ui"}
	}
	return p.chainEntry(ctx, p.cfg.PharmaSkill, input)
}

type CatalystRequest struct {
	Reaction            string `json:"reaction,omitempty"`
	Scaffold            string `json:"scaffold,omitempty"`
	Strategy            string `json:"strategy,omitempty"`
	Enantioselective    bool   `json:"enantioselective"`
	PreferEarthAbundant bool   `json:"prefer_earth_abundant"`
}

// CatalystInput is the --input-json document for the catalyst agent.
func CatalystInput(req CatalystRequest) (map[string]any, error) {
	if req.Reaction == "" && req.Scaffold == "" {
		return nil, fmt.Errorf("%w: Provide either 'reaction' or 'scaffold' (or both)", ErrBadRequest)
	}
	if req.Strategy == "" {
		req.Strategy = "all"
	}
	input := map[string]any{"context": "web_ui"}
	if req.Reaction != "" {
		input["reaction"] = req.Reaction
	}
	if req.Scaffold != "" {
		input["scaffold"] = req.Scaffold
	}
	input["strategy"] = req.Strategy
	input["enantioselective"] = req.Enantioselective
	if req.PreferEarthAbundant {
		input["constraints"] = map[string]any{"prefer_earth_abundant": true}
	}
	return input, nil
}

func (p *Pipeline) Catalyst(ctx context.Context, req CatalystRequest) (scripts.Output, error) {
	input, err := CatalystInput(req)
	if err != nil {
		return nil, err
	}
	return p.chainEntry(ctx, p.cfg.CatalystSkill, input)
}

func (p *Pipeline) chainEntry(ctx context.Context, skill string, input map[string]any) (scripts.Output, error) {
	b, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	return p.RunScript(ctx, skill, "chain_entry.py", []string{"--input-json", string(b)})
}
