package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"pharmaclaw/src/internal/exitcode"
	"pharmaclaw/src/internal/gateway"
	"pharmaclaw/src/internal/pipeline"
)

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var resolveJSON bool

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Show which Python interpreter scripts will run with",
	Args:  usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withGateway(func(gw *gateway.Gateway) error {
			resolver := gw.Resolver()
			interp, err := resolver.Resolve(cmd.Context())
			if resolveJSON {
				status := map[string]any{"module": resolver.Module(), "candidates": resolver.Candidates()}
				if err != nil {
					status["error"] = err.Error()
				} else {
					status["selected"] = interp
				}
				if perr := printJSON(cmd, status); perr != nil {
					return perr
				}
				return err
			}
			if err != nil {
				return err
			}
			cmd.Printf("%s (%s)\n", interp.Path, interp.Source)
			return nil
		})
	},
}

var runCmd = &cobra.Command{
	Use:   "run <skill> <script> [args...]",
	Short: "Run one skill script and print its JSON output",
	Example: `  pharmaclaw run chemistry-query query_pubchem.py --compound aspirin --type info
  pharmaclaw run chemistry-query rdkit_mol.py --smiles "CCO" --action props`,
	Args: usageArgs(cobra.MinimumNArgs(2)),
	RunE: func(cmd *cobra.Command, argv []string) error {
		return withGateway(func(gw *gateway.Gateway) error {
			out, err := gw.RunScript(cmd.Context(), argv[0], argv[1], argv[2:])
			if err != nil {
				return err
			}
			if err := printJSON(cmd, out); err != nil {
				return err
			}
			return exitcode.CheckOutput(argv[1], out)
		})
	},
}

var (
	chemNoRetro bool
	chemDepth   int
)

var chemCmd = &cobra.Command{
	Use:   "chem <compound>",
	Short: "Look up a compound and compute its properties",
	Args:  usageArgs(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, argv []string) error {
		retro := !chemNoRetro
		return withGateway(func(gw *gateway.Gateway) error {
			out, err := gw.Pipe().Chemistry(cmd.Context(), pipeline.ChemistryRequest{
				Compound:     argv[0],
				IncludeRetro: &retro,
				RetroDepth:   &chemDepth,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		})
	},
}

var pharmaCmd = &cobra.Command{
	Use:   "pharma <smiles>",
	Short: "Run the pharmacology agent on a compound",
	Args:  usageArgs(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, argv []string) error {
		return withGateway(func(gw *gateway.Gateway) error {
			out, err := gw.Pipe().Pharmacology(cmd.Context(), pipeline.PharmacologyRequest{Compound: argv[0]})
			if err != nil {
				return err
			}
			if err := printJSON(cmd, out); err != nil {
				return err
			}
			return exitcode.CheckOutput("pharmacology", out)
		})
	},
}

var catalystReq pipeline.CatalystRequest

var catalystCmd = &cobra.Command{
	Use:   "catalyst",
	Short: "Recommend catalysts for a reaction or scaffold",
	Args:  usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withGateway(func(gw *gateway.Gateway) error {
			out, err := gw.Pipe().Catalyst(cmd.Context(), catalystReq)
			if err != nil {
				return err
			}
			if err := printJSON(cmd, out); err != nil {
				return err
			}
			return exitcode.CheckOutput("catalyst", out)
		})
	},
}

var (
	batchFile        string
	batchConcurrency int
	batchRetro       bool
)

var batchCmd = &cobra.Command{
	Use:   "batch [compounds...]",
	Short: "Look up many compounds concurrently",
	Long: `Batch runs the chemistry lookup for every compound given as an argument
or listed in --file, one per line. Blank lines and lines starting with #
are skipped. A failed lookup does not stop the others.`,
	RunE: func(cmd *cobra.Command, argv []string) error {
		compounds := append([]string(nil), argv...)
		if batchFile != "" {
			fromFile, err := readCompoundFile(batchFile)
			if err != nil {
				return err
			}
			compounds = append(compounds, fromFile...)
		}
		if len(compounds) == 0 {
			return fmt.Errorf("%w: no compounds given", pipeline.ErrBadRequest)
		}
		return withGateway(func(gw *gateway.Gateway) error {
			res, err := gw.Pipe().Batch(cmd.Context(), compounds, batchConcurrency, batchRetro)
			if err != nil {
				return err
			}
			if err := printJSON(cmd, res); err != nil {
				return err
			}
			if res.Failed > 0 {
				return fmt.Errorf("%d of %d lookups failed", res.Failed, len(res.Items))
			}
			return nil
		})
	},
}

func readCompoundFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var compounds []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		compounds = append(compounds, line)
	}
	return compounds, sc.Err()
}

func init() {
	resolveCmd.Flags().BoolVar(&resolveJSON, "json", false, "print every candidate as JSON")

	runCmd.Flags().SetInterspersed(false)

	chemCmd.Flags().BoolVar(&chemNoRetro, "no-retro", false, "skip retrosynthesis")
	chemCmd.Flags().IntVar(&chemDepth, "depth", pipeline.DefaultRetroDepth, "retrosynthesis depth")

	catalystCmd.Flags().StringVar(&catalystReq.Reaction, "reaction", "", "reaction type, e.g. suzuki")
	catalystCmd.Flags().StringVar(&catalystReq.Scaffold, "scaffold", "", "scaffold SMILES")
	catalystCmd.Flags().StringVar(&catalystReq.Strategy, "strategy", "all", "ligand strategy")
	catalystCmd.Flags().BoolVar(&catalystReq.Enantioselective, "enantioselective", false, "require an enantioselective catalyst")
	catalystCmd.Flags().BoolVar(&catalystReq.PreferEarthAbundant, "earth-abundant", false, "prefer earth-abundant metals")

	batchCmd.Flags().StringVarP(&batchFile, "file", "f", "", "file with one compound per line")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "lookups in flight (default from config)")
	batchCmd.Flags().BoolVar(&batchRetro, "retro", false, "include retrosynthesis")

	rootCmd.AddCommand(resolveCmd, runCmd, chemCmd, pharmaCmd, catalystCmd, batchCmd)
}
